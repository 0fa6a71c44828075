package orchestrator

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/nitinkhare/tradegateway/internal/config"
	"github.com/nitinkhare/tradegateway/internal/risk"
)

// breakerTable lazily creates one risk.CircuitBreaker per account_id,
// the same "mutex-guarded map of per-entity state" shape leaseTable
// uses for fair locking.
type breakerTable struct {
	mu       sync.Mutex
	cfg      config.CircuitBreakerConfig
	breakers map[string]*risk.CircuitBreaker
}

func newBreakerTable(cfg config.CircuitBreakerConfig) *breakerTable {
	return &breakerTable{cfg: cfg, breakers: make(map[string]*risk.CircuitBreaker)}
}

func (t *breakerTable) get(accountID string, funded bool) *risk.CircuitBreaker {
	t.mu.Lock()
	defer t.mu.Unlock()
	cb, ok := t.breakers[accountID]
	if !ok {
		cb = risk.NewCircuitBreaker(t.cfg, funded, nil)
		t.breakers[accountID] = cb
	}
	return cb
}

// equityCache remembers the last account equity reported by a fill, so
// the pre-trade Guard can size percentage-based limits without the
// Broker interface needing its own balance-query method. Zero means
// "unknown" and causes the guard's percentage checks to no-op rather
// than reject every trade against a zero capital base.
type equityCache struct {
	mu    sync.Mutex
	value map[string]decimal.Decimal
}

func newEquityCache() *equityCache {
	return &equityCache{value: make(map[string]decimal.Decimal)}
}

func (c *equityCache) get(accountID string) decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value[accountID]
}

func (c *equityCache) set(accountID string, equity decimal.Decimal) {
	if equity.IsZero() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value[accountID] = equity
}
