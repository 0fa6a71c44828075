package paper

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/nitinkhare/tradegateway/internal/alert"
	"github.com/nitinkhare/tradegateway/internal/broker"
	"github.com/shopspring/decimal"
)

// FillEvent is published whenever the simulator completes a fill, so the
// event bus (and anything else subscribed to trade activity) can react
// without the simulator knowing anything about its subscribers.
type FillEvent struct {
	AccountID  string
	Symbol     string
	Action     alert.Action
	Quantity   int
	Price      decimal.Decimal
	Commission decimal.Decimal
	FilledAt   time.Time
}

// Config configures a single paper account's simulator.
type Config struct {
	AccountID       string
	DisplayName     string
	Mode            string // paper_sandbox | paper_sim | paper_hybrid
	InitialBalance  decimal.Decimal
	Location        *time.Location // exchange timezone; defaults to America/New_York
	MaxNetContracts int            // per-symbol futures net position cap; default 10
	AllowAfterHours bool           // test-mode override: fill even when session is closed
	Logger          *log.Logger
	Now             func() time.Time // overridable clock, for tests
	Rand            *rand.Rand
	OnFill          func(FillEvent)
}

// OrderRecord is one accepted-or-rejected order submitted to the
// simulator, kept in a capped ring buffer for the §6.3
// GET .../accounts/{id}/orders endpoint.
type OrderRecord struct {
	OrderID         string
	Symbol          string
	Action          alert.Action
	Quantity        int
	OrderType       alert.OrderType
	Status          string // "filled" | "rejected"
	RejectionReason string
	SubmittedAt     time.Time
}

const maxHistory = 500

// Simulator is a synthetic-microstructure paper broker: it implements
// broker.Broker entirely out of an in-memory account, a quote cache, and
// the §4.5 fill-price/commission model. Grounded in the teacher's
// PaperBroker (mutex-guarded struct, monotonic order-ID counter); the
// microstructure model itself is new.
type Simulator struct {
	mu      sync.Mutex
	account *Account
	quotes  *quoteCache
	orderSeq uint64
	orders   []OrderRecord
	fills    []FillEvent

	initialBalance  decimal.Decimal
	displayName     string
	mode            string
	loc             *time.Location
	maxNetContracts int
	allowAfterHours bool
	logger          *log.Logger
	now             func() time.Time
	rng             *rand.Rand
	onFill          func(FillEvent)

	stopPerturb chan struct{}
	wg          sync.WaitGroup
}

// NewSimulator builds a Simulator and starts its background quote
// perturbation task. Call Close to stop it.
func NewSimulator(cfg Config) *Simulator {
	loc := cfg.Location
	if loc == nil {
		loc = mustLoadNY()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[paper] ", log.LstdFlags)
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	maxNet := cfg.MaxNetContracts
	if maxNet == 0 {
		maxNet = 10
	}

	s := &Simulator{
		account:         NewAccount(cfg.AccountID, cfg.DisplayName, cfg.Mode, cfg.InitialBalance),
		quotes:          newQuoteCache(),
		initialBalance:  cfg.InitialBalance,
		displayName:     cfg.DisplayName,
		mode:            cfg.Mode,
		loc:             loc,
		maxNetContracts: maxNet,
		allowAfterHours: cfg.AllowAfterHours,
		logger:          logger,
		now:             now,
		rng:             rng,
		onFill:          cfg.OnFill,
		stopPerturb:     make(chan struct{}),
	}

	s.wg.Add(1)
	go s.perturbLoop()

	return s
}

func mustLoadNY() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.UTC
	}
	return loc
}

func (s *Simulator) perturbLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopPerturb:
			return
		case <-ticker.C:
			now := s.now()
			cond := conditionsAt(now, s.loc)
			s.quotes.perturb(cond.VolatilityMultiplier, now)
		}
	}
}

// Initialize reports the simulator as always connected: there is no
// external session to establish.
func (s *Simulator) Initialize(ctx context.Context) (*broker.InitResult, error) {
	return &broker.InitResult{
		Connected:        true,
		AccountIDs:       []string{s.account.ID},
		DefaultAccountID: s.account.ID,
		Capabilities: []broker.Capability{
			broker.CapabilityFractional,
			broker.CapabilityOptions,
			broker.CapabilityCrypto,
		},
	}, nil
}

// ExecuteAlert validates the alert against account/session/position-limit
// constraints, simulates broker latency, computes a synthetic fill, and
// applies it to the account, per spec §4.5.
func (s *Simulator) ExecuteAlert(ctx context.Context, a *alert.Alert) (*broker.ExecutionResult, error) {
	result, err := s.executeAlert(ctx, a)
	if err != nil {
		return result, err
	}
	s.recordOrder(a, result)
	return result, nil
}

func (s *Simulator) recordOrder(a *alert.Alert, result *broker.ExecutionResult) {
	rec := OrderRecord{
		Symbol:      a.Symbol,
		Action:      a.Action,
		Quantity:    a.Quantity,
		OrderType:   a.OrderType,
		SubmittedAt: s.now(),
	}
	if result.Success {
		rec.OrderID = result.OrderID
		rec.Status = "filled"
	} else {
		rec.Status = "rejected"
		rec.RejectionReason = result.RejectionReason
	}

	s.mu.Lock()
	s.orders = append(s.orders, rec)
	if len(s.orders) > maxHistory {
		s.orders = s.orders[len(s.orders)-maxHistory:]
	}
	if result.Success && result.Fill != nil {
		s.fills = append(s.fills, FillEvent{
			AccountID:  s.account.ID,
			Symbol:     a.Symbol,
			Action:     a.Action,
			Quantity:   result.Fill.Quantity,
			Price:      result.Fill.Price,
			Commission: result.Fill.Commission,
			FilledAt:   result.Fill.FilledAt,
		})
		if len(s.fills) > maxHistory {
			s.fills = s.fills[len(s.fills)-maxHistory:]
		}
	}
	s.mu.Unlock()
}

// executeAlert is ExecuteAlert's original validate/simulate/fill body.
func (s *Simulator) executeAlert(ctx context.Context, a *alert.Alert) (*broker.ExecutionResult, error) {
	now := s.now()
	info := alert.ResolveSymbol(a.Symbol)
	cond := conditionsAt(now, s.loc)

	if cond.Session == SessionClosed && !s.allowAfterHours {
		return &broker.ExecutionResult{Success: false, RejectionReason: "market_closed"}, nil
	}

	if a.OrderType == alert.OrderTypeLimit || a.OrderType == alert.OrderTypeStopLimit {
		if !isTickMultiple(a.Price, info.Tick) {
			return &broker.ExecutionResult{Success: false, RejectionReason: "invalid_tick"}, nil
		}
	}
	if a.OrderType == alert.OrderTypeStop || a.OrderType == alert.OrderTypeStopLimit {
		if !isTickMultiple(a.StopPrice, info.Tick) {
			return &broker.ExecutionResult{Success: false, RejectionReason: "invalid_tick"}, nil
		}
	}

	signedQty := a.Quantity
	if a.Action == alert.ActionSell || a.Action == alert.ActionClose {
		signedQty = -a.Quantity
	}

	s.mu.Lock()
	pos := s.account.Positions[a.Symbol]
	var currentNet int
	if pos != nil {
		currentNet = pos.NetQuantity
	}
	s.mu.Unlock()

	if info.Kind == alert.AssetFuture {
		projected := currentNet + signedQty
		if abs(projected) > s.maxNetContracts {
			return &broker.ExecutionResult{Success: false, RejectionReason: "position_limit_exceeded"}, nil
		}
	}

	snap := s.quotes.get(a.Symbol, cond, now)

	if a.Action == alert.ActionBuy {
		estimate := basePrice(a, snap).Mul(decimal.NewFromInt(int64(a.Quantity))).Mul(info.Multiplier)
		s.mu.Lock()
		bp := s.account.BuyingPower
		s.mu.Unlock()
		if estimate.GreaterThan(bp) {
			return &broker.ExecutionResult{Success: false, RejectionReason: "insufficient_buying_power"}, nil
		}
	}

	if err := s.simulateLatency(ctx); err != nil {
		return nil, err
	}

	price := fillPrice(a, info, snap, cond, s.rng)
	notional := price.Mul(decimal.NewFromInt(int64(a.Quantity))).Mul(info.Multiplier)
	comm := commission(info.Kind, a.Quantity, notional)

	s.mu.Lock()
	s.orderSeq++
	orderID := fmt.Sprintf("paper-%s-%d", s.account.ID, s.orderSeq)
	realized, equity := s.account.applyFill(a.Symbol, info, signedQty, price, comm, now)
	s.mu.Unlock()

	fill := &broker.Fill{
		OrderID:       orderID,
		Symbol:        a.Symbol,
		Quantity:      a.Quantity,
		Price:         price,
		Commission:    comm,
		FilledAt:      now,
		RealizedPnL:   realized,
		AccountEquity: equity,
	}

	if s.onFill != nil {
		s.onFill(FillEvent{
			AccountID:  s.account.ID,
			Symbol:     a.Symbol,
			Action:     a.Action,
			Quantity:   a.Quantity,
			Price:      price,
			Commission: comm,
			FilledAt:   now,
		})
	}

	return &broker.ExecutionResult{Success: true, OrderID: orderID, Fill: fill}, nil
}

// simulateLatency sleeps a uniform 50-200ms to mimic broker round-trip
// time, honoring ctx cancellation.
func (s *Simulator) simulateLatency(ctx context.Context) error {
	s.mu.Lock()
	ms := 50 + s.rng.Intn(151)
	s.mu.Unlock()
	timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetPositions returns the account's open positions. accountID is
// validated but otherwise ignored: a Simulator always represents exactly
// one paper account.
func (s *Simulator) GetPositions(ctx context.Context, accountID string) ([]broker.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if accountID != "" && accountID != s.account.ID {
		return nil, fmt.Errorf("paper: unknown account %q", accountID)
	}

	out := make([]broker.Position, 0, len(s.account.Positions))
	for _, p := range s.account.Positions {
		out = append(out, broker.Position{
			Symbol:       p.Symbol,
			Quantity:     p.NetQuantity,
			AveragePrice: p.AvgPrice,
			LastPrice:    p.MarketPrice,
			PnL:          p.UnrealizedPnL.Add(p.RealizedPnL),
		})
	}
	return out, nil
}

// GetQuote returns the current synthetic snapshot for symbol.
func (s *Simulator) GetQuote(ctx context.Context, symbol string) (*broker.Quote, error) {
	now := s.now()
	cond := conditionsAt(now, s.loc)
	snap := s.quotes.get(symbol, cond, now)
	return &broker.Quote{
		Symbol:    snap.Symbol,
		Bid:       snap.Bid,
		Ask:       snap.Ask,
		Last:      snap.Last,
		Timestamp: snap.Timestamp,
	}, nil
}

// Close stops the background perturbation task.
func (s *Simulator) Close() error {
	close(s.stopPerturb)
	s.wg.Wait()
	return nil
}

// Account returns a snapshot of the account's current balances, for
// callers (router, REST API) that need it outside the Broker interface.
func (s *Simulator) Account() Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.account
}

// RecentOrders returns up to n of the most recently submitted orders,
// newest last, for the §6.3 order-history endpoint.
func (s *Simulator) RecentOrders(n int) []OrderRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || n > len(s.orders) {
		n = len(s.orders)
	}
	out := make([]OrderRecord, n)
	copy(out, s.orders[len(s.orders)-n:])
	return out
}

// RecentFills returns up to n of the most recently executed fills,
// newest last, for the §6.3 fill-history endpoint.
func (s *Simulator) RecentFills(n int) []FillEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || n > len(s.fills) {
		n = len(s.fills)
	}
	out := make([]FillEvent, n)
	copy(out, s.fills[len(s.fills)-n:])
	return out
}

// Reset wipes the account back to a fresh initial balance with no
// positions and clears order/fill history, per §6.3's
// POST .../accounts/{id}/reset (which requires an explicit confirm at
// the HTTP layer before this is called).
func (s *Simulator) Reset(initialBalance decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if initialBalance.IsZero() {
		initialBalance = s.initialBalance
	}
	s.initialBalance = initialBalance
	s.account = NewAccount(s.account.ID, s.displayName, s.mode, initialBalance)
	s.orders = nil
	s.fills = nil
}

// Flatten submits a closing order for every currently open position and
// returns the positions that were closed, per §6.3's
// POST .../accounts/{id}/flatten. Positions are closed one at a time
// under the account mutex's normal fill accounting; a failure partway
// through still leaves every prior close applied.
func (s *Simulator) Flatten(ctx context.Context) ([]broker.Position, error) {
	s.mu.Lock()
	open := make([]*Position, 0, len(s.account.Positions))
	for _, p := range s.account.Positions {
		if p.NetQuantity != 0 {
			open = append(open, p)
		}
	}
	s.mu.Unlock()

	closed := make([]broker.Position, 0, len(open))
	for _, p := range open {
		action := alert.ActionSell
		qty := p.NetQuantity
		if qty < 0 {
			action = alert.ActionBuy
			qty = -qty
		}
		closeAlert := &alert.Alert{
			Symbol:       p.Symbol,
			Action:       action,
			Quantity:     qty,
			OrderType:    alert.OrderTypeMarket,
			AccountGroup: s.account.ID,
		}
		result, err := s.executeAlert(ctx, closeAlert)
		if err != nil {
			return closed, err
		}
		s.recordOrder(closeAlert, result)
		if !result.Success {
			return closed, fmt.Errorf("paper: flatten %s: %s", p.Symbol, result.RejectionReason)
		}
		closed = append(closed, broker.Position{
			Symbol:       p.Symbol,
			Quantity:     0,
			AveragePrice: result.Fill.Price,
			LastPrice:    result.Fill.Price,
			PnL:          result.Fill.RealizedPnL,
		})
	}
	return closed, nil
}

func isTickMultiple(price, tick decimal.Decimal) bool {
	if tick.IsZero() || price.IsZero() {
		return true
	}
	ratio := price.Div(tick)
	return ratio.Equal(ratio.Round(0))
}
