package httpapi

import "time"

// ErrorResponse is the standard error envelope for every non-2xx JSON
// response, matching the teacher's cmd/dashboard shape.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Code      int       `json:"code"`
	Timestamp time.Time `json:"timestamp"`
}

// FundedAccountResponse is one funded account's current rule snapshot,
// for GET /api/v1/funded-accounts/ and .../{id}.
type FundedAccountResponse struct {
	AccountID        string `json:"account_id"`
	Status           string `json:"status"` // "active" | "paused" | "violated"
	RiskLevel        string `json:"risk_level"`
	MaxDailyLoss     string `json:"max_daily_loss"`
	TrailingDrawdown string `json:"trailing_drawdown"`
	MaxContracts     int    `json:"max_contracts"`
	CurrentDailyPnL  string `json:"current_daily_pnl"`
	CurrentDrawdown  string `json:"current_drawdown"`
	TodayTradeCount  int    `json:"today_trade_count"`
}

// FundedMetricsResponse is the §5-supplemented funded-account metrics
// view: GET /api/v1/funded-accounts/{id}/metrics.
type FundedMetricsResponse struct {
	AccountID        string               `json:"account_id"`
	DailyLossPct     float64              `json:"daily_loss_pct"`
	DrawdownPct      float64              `json:"drawdown_pct"`
	RiskLevel        string               `json:"risk_level"`
	CanTrade         bool                 `json:"can_trade"`
	ActiveViolations []ViolationResponse  `json:"active_violations"`
	Performance      *PerformanceResponse `json:"performance,omitempty"`
}

// PerformanceResponse mirrors analytics.PerformanceReport for the REST
// surface, computed from an account's fill history (§6.2/§6.3 metrics
// endpoints). Omitted entirely when no fill history is available yet.
type PerformanceResponse struct {
	TotalFills     int                         `json:"total_fills"`
	WinRate        float64                     `json:"win_rate"`
	TotalPnL       float64                     `json:"total_pnl"`
	AveragePnL     float64                     `json:"average_pnl"`
	ProfitFactor   float64                     `json:"profit_factor"`
	MaxDrawdown    float64                     `json:"max_drawdown"`
	MaxDrawdownPct float64                     `json:"max_drawdown_pct"`
	SharpeRatio    float64                     `json:"sharpe_ratio"`
	BySymbol       map[string]SymbolPerfResponse `json:"by_symbol,omitempty"`
}

// SymbolPerfResponse is one symbol's slice of a PerformanceResponse.
type SymbolPerfResponse struct {
	TotalFills int     `json:"total_fills"`
	WinRate    float64 `json:"win_rate"`
	TotalPnL   float64 `json:"total_pnl"`
}

// ViolationResponse is one funded-account rule violation or warning.
type ViolationResponse struct {
	ID           string    `json:"id"`
	AccountID    string    `json:"account_id"`
	Kind         string    `json:"kind"`
	Severity     string    `json:"severity"`
	Value        string    `json:"value"`
	Limit        string    `json:"limit"`
	OccurredAt   time.Time `json:"occurred_at"`
	Acknowledged bool      `json:"acknowledged"`
}

// ClosedPositionResponse is one position closed by a flatten operation.
type ClosedPositionResponse struct {
	Symbol       string `json:"symbol"`
	ClosedQty    int    `json:"closed_quantity"`
	ClosePrice   string `json:"close_price"`
	RealizedPnL  string `json:"realized_pnl"`
}

// FlattenResponse reports the result of a flatten-all operation.
type FlattenResponse struct {
	AccountID string                   `json:"account_id"`
	Closed    []ClosedPositionResponse `json:"closed"`
}

// PaperAccountResponse is a paper-trading account snapshot.
type PaperAccountResponse struct {
	AccountID      string                   `json:"account_id"`
	DisplayName    string                   `json:"display_name"`
	Mode           string                   `json:"mode"`
	InitialBalance string                   `json:"initial_balance"`
	CurrentBalance string                   `json:"current_balance"`
	BuyingPower    string                   `json:"buying_power"`
	DayPnL         string                   `json:"day_pnl"`
	TotalPnL       string                   `json:"total_pnl"`
	Positions      []PaperPositionResponse  `json:"positions"`
}

// PaperPositionResponse is one open paper position.
type PaperPositionResponse struct {
	Symbol         string `json:"symbol"`
	NetQuantity    int    `json:"net_quantity"`
	AvgPrice       string `json:"avg_price"`
	MarketPrice    string `json:"market_price"`
	UnrealizedPnL  string `json:"unrealized_pnl"`
	RealizedPnL    string `json:"realized_pnl"`
}

// PaperOrderResponse is one submitted paper order.
type PaperOrderResponse struct {
	OrderID         string    `json:"order_id,omitempty"`
	Symbol          string    `json:"symbol"`
	Action          string    `json:"action"`
	Quantity        int       `json:"quantity"`
	OrderType       string    `json:"order_type"`
	Status          string    `json:"status"`
	RejectionReason string    `json:"rejection_reason,omitempty"`
	SubmittedAt     time.Time `json:"submitted_at"`
}

// PaperFillResponse is one executed paper fill.
type PaperFillResponse struct {
	AccountID  string    `json:"account_id"`
	Symbol     string    `json:"symbol"`
	Action     string    `json:"action"`
	Quantity   int       `json:"quantity"`
	Price      string    `json:"price"`
	Commission string    `json:"commission"`
	FilledAt   time.Time `json:"filled_at"`
}

// ExecutionEventResponse mirrors orchestrator.ExecutionEvent for the
// paper-alert submission endpoint's synchronous response.
type ExecutionEventResponse struct {
	AlertID    string    `json:"alert_id"`
	AccountID  string    `json:"account_id"`
	Status     string    `json:"status"`
	Kind       string    `json:"kind,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// StrategySummaryResponse mirrors strategy.Summary for the REST surface.
type StrategySummaryResponse struct {
	StrategyID        string  `json:"strategy_id"`
	Name              string  `json:"name"`
	Mode              string  `json:"mode"`
	MinWinRate        float64 `json:"min_win_rate"`
	SetSize           int     `json:"set_size"`
	CompletedSets     int     `json:"completed_sets"`
	CurrentSetTrades  int     `json:"current_set_trades"`
	CurrentSetWinRate float64 `json:"current_set_win_rate"`
	LifetimeWinRate   float64 `json:"lifetime_win_rate"`
	LifetimeTrades    int     `json:"lifetime_trades"`
}

// StrategySetResponse is one trade set in a strategy's history.
type StrategySetResponse struct {
	Mode    string  `json:"mode"`
	Trades  int     `json:"trades"`
	WinRate float64 `json:"win_rate"`
	Closed  bool    `json:"closed"`
}

// ModeTransitionResponse mirrors strategy.ModeTransition /
// storage.ModeTransitionRecord for the transitions history endpoint.
type ModeTransitionResponse struct {
	StrategyID     string    `json:"strategy_id"`
	From           string    `json:"from"`
	To             string    `json:"to"`
	Reason         string    `json:"reason"`
	WindowWinRates []float64 `json:"window_win_rates"`
	OccurredAt     time.Time `json:"occurred_at"`
}
