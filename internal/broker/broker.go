// Package broker defines the broker abstraction layer.
//
// Design rules (from spec):
//   - Adapters are stateless above the session layer: all durable state
//     lives in storage, not in the adapter.
//   - No strategy or risk logic inside an adapter; it only translates
//     alerts to broker wire format and reports back fills/positions/quotes.
//   - Adapters must be safe for concurrent use by multiple orchestrator
//     workers.
package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nitinkhare/tradegateway/internal/alert"
	"github.com/shopspring/decimal"
)

// ErrNotConfigured is returned by a live adapter that has no credentials
// or connectivity configured yet.
var ErrNotConfigured = errors.New("broker: not configured")

// Capability names an optional feature a broker adapter supports.
type Capability string

const (
	CapabilityBracketOrders Capability = "bracket_orders"
	CapabilityFractional    Capability = "fractional_shares"
	CapabilityOptions       Capability = "options"
	CapabilityCrypto        Capability = "crypto"
)

// InitResult is what Initialize reports about the adapter's session.
type InitResult struct {
	Connected        bool
	AccountIDs       []string
	DefaultAccountID string
	Capabilities     []Capability
}

// Fill describes an executed (partial or full) trade.
type Fill struct {
	OrderID    string
	Symbol     string
	Quantity   int
	Price      decimal.Decimal
	Commission decimal.Decimal
	FilledAt   time.Time

	// RealizedPnL is the P&L booked by this specific fill (zero when it
	// only opened or added to a position). AccountEquity is the account's
	// balance immediately after the fill. Adapters that track account
	// state locally (the paper simulator) populate both; live adapters
	// that don't reconcile equity inline may leave AccountEquity zero.
	// There is no separate balance query: on a zero AccountEquity the
	// orchestrator keeps the last non-zero equity it saw for the account.
	RealizedPnL   decimal.Decimal
	AccountEquity decimal.Decimal
}

// ExecutionResult is the outcome of ExecuteAlert.
type ExecutionResult struct {
	Success         bool
	OrderID         string
	Fill            *Fill
	RejectionReason string
}

// Position is a current open position at the broker.
type Position struct {
	Symbol       string
	Quantity     int
	AveragePrice decimal.Decimal
	LastPrice    decimal.Decimal
	PnL          decimal.Decimal
}

// Quote is a best-effort snapshot of current market price for a symbol.
type Quote struct {
	Symbol    string
	Bid       decimal.Decimal
	Ask       decimal.Decimal
	Last      decimal.Decimal
	Timestamp time.Time
}

// Broker defines the interface every concrete adapter (paper or live)
// must satisfy. This is the only contract the router/orchestrator has
// with broker-specific code.
type Broker interface {
	// Initialize establishes (or re-establishes) the broker session.
	Initialize(ctx context.Context) (*InitResult, error)

	// ExecuteAlert submits an alert for execution, blocking until the
	// broker acknowledges working/filled/rejected or ctx's deadline
	// expires (default 10s, applied by the caller).
	ExecuteAlert(ctx context.Context, a *alert.Alert) (*ExecutionResult, error)

	// GetPositions returns all current open positions for the account.
	GetPositions(ctx context.Context, accountID string) ([]Position, error)

	// GetQuote returns a best-effort market snapshot; it may fail without
	// affecting the adapter's usability for execution.
	GetQuote(ctx context.Context, symbol string) (*Quote, error)

	// Close releases any broker-side session resources.
	Close() error
}

// Registry maps broker names to their factory functions. New broker
// implementations register themselves here via an init() in their own file.
var Registry = map[string]func(configJSON []byte) (Broker, error){}

// New creates a broker instance by name using the registry.
func New(name string, configJSON []byte) (Broker, error) {
	factory, ok := Registry[name]
	if !ok {
		return nil, fmt.Errorf("broker: unknown broker %q, registered: %v", name, registeredNames())
	}
	return factory(configJSON)
}

func registeredNames() []string {
	names := make([]string, 0, len(Registry))
	for name := range Registry {
		names = append(names, name)
	}
	return names
}
