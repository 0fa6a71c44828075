package paper

import (
	"time"

	"github.com/nitinkhare/tradegateway/internal/alert"
	"github.com/shopspring/decimal"
)

// Position is a single symbol's net position within a paper account.
type Position struct {
	Symbol        string
	AssetKind     alert.AssetKind
	NetQuantity   int
	AvgPrice      decimal.Decimal
	MarketPrice   decimal.Decimal
	Multiplier    decimal.Decimal
	UnrealizedPnL decimal.Decimal
	RealizedPnL   decimal.Decimal
	OpenedAt      time.Time
	LastUpdated   time.Time
}

func (p *Position) recomputeUnrealized() {
	p.UnrealizedPnL = p.MarketPrice.Sub(p.AvgPrice).
		Mul(decimal.NewFromInt(int64(p.NetQuantity))).
		Mul(p.Multiplier)
}

// Account is a paper-trading account: balances, buying power, and
// per-symbol positions. Invariants (spec §3) as applyFill keeps them:
//
//	current_balance = initial_balance + total_pnl
//	buying_power >= 0
//
// total_pnl is booked net of commissions, so realized_fees (kept as a
// running total) is already deducted inside it.
type Account struct {
	ID              string
	DisplayName     string
	Mode            string // paper_sandbox | paper_sim | paper_hybrid
	InitialBalance  decimal.Decimal
	CurrentBalance  decimal.Decimal
	BuyingPower     decimal.Decimal
	DayPnL          decimal.Decimal
	TotalPnL        decimal.Decimal
	RealizedFees    decimal.Decimal
	Positions       map[string]*Position
	ConnectionState string
}

// NewAccount creates a fresh paper account with the given starting capital.
func NewAccount(id, displayName, mode string, initialBalance decimal.Decimal) *Account {
	return &Account{
		ID:              id,
		DisplayName:     displayName,
		Mode:            mode,
		InitialBalance:  initialBalance,
		CurrentBalance:  initialBalance,
		BuyingPower:     initialBalance,
		Positions:       make(map[string]*Position),
		ConnectionState: "connected",
	}
}

// applyFill updates the account's position, balance, and buying power
// for a single fill, per the §3 Position/Account invariants: when
// net_quantity crosses zero, realized P&L is booked and avg_price resets;
// if it reverses, the remainder opens a new position at the fill price.
func (a *Account) applyFill(symbol string, info alert.SymbolInfo, signedQty int, price, comm decimal.Decimal, now time.Time) (realizedThisFill, equity decimal.Decimal) {
	pos, ok := a.Positions[symbol]
	if !ok {
		pos = &Position{
			Symbol:      symbol,
			AssetKind:   info.Kind,
			Multiplier:  info.Multiplier,
			MarketPrice: price,
			OpenedAt:    now,
		}
		a.Positions[symbol] = pos
	}

	notional := price.Mul(decimal.NewFromInt(int64(abs(signedQty)))).Mul(info.Multiplier)
	if signedQty > 0 {
		a.BuyingPower = a.BuyingPower.Sub(notional)
	} else {
		a.BuyingPower = a.BuyingPower.Add(notional)
	}

	oldQty := pos.NetQuantity
	newQty := oldQty + signedQty

	switch {
	case oldQty == 0 || sameSign(oldQty, signedQty):
		// Adding to (or opening) a position: blend the average price.
		totalNotional := pos.AvgPrice.Mul(decimal.NewFromInt(int64(oldQty))).
			Add(price.Mul(decimal.NewFromInt(int64(signedQty))))
		if newQty != 0 {
			pos.AvgPrice = totalNotional.Div(decimal.NewFromInt(int64(newQty)))
		}
		pos.NetQuantity = newQty

	case abs(newQty) == 0:
		// Fully closes the position: book realized P&L, clear quantity.
		realizedThisFill = price.Sub(pos.AvgPrice).Mul(decimal.NewFromInt(int64(oldQty))).Mul(info.Multiplier)
		pos.RealizedPnL = pos.RealizedPnL.Add(realizedThisFill)
		a.TotalPnL = a.TotalPnL.Add(realizedThisFill)
		a.DayPnL = a.DayPnL.Add(realizedThisFill)
		pos.NetQuantity = 0
		pos.AvgPrice = decimal.Zero

	case sameSign(newQty, oldQty):
		// Partial close, same side as before: book P&L on the closed
		// portion only (-signedQty, since signedQty opposes oldQty here).
		closedQty := -signedQty
		realizedThisFill = price.Sub(pos.AvgPrice).Mul(decimal.NewFromInt(int64(closedQty))).Mul(info.Multiplier)
		pos.RealizedPnL = pos.RealizedPnL.Add(realizedThisFill)
		a.TotalPnL = a.TotalPnL.Add(realizedThisFill)
		a.DayPnL = a.DayPnL.Add(realizedThisFill)
		pos.NetQuantity = newQty

	default:
		// Reversal: the old side fully closes and the remainder opens a
		// new position at the fill price.
		realizedThisFill = price.Sub(pos.AvgPrice).Mul(decimal.NewFromInt(int64(oldQty))).Mul(info.Multiplier)
		pos.RealizedPnL = pos.RealizedPnL.Add(realizedThisFill)
		a.TotalPnL = a.TotalPnL.Add(realizedThisFill)
		a.DayPnL = a.DayPnL.Add(realizedThisFill)
		pos.NetQuantity = newQty
		pos.AvgPrice = price
		pos.OpenedAt = now
	}

	pos.MarketPrice = price
	pos.LastUpdated = now
	pos.recomputeUnrealized()

	a.RealizedFees = a.RealizedFees.Add(comm)
	a.TotalPnL = a.TotalPnL.Sub(comm)
	a.DayPnL = a.DayPnL.Sub(comm)
	a.BuyingPower = a.BuyingPower.Sub(comm)
	a.CurrentBalance = a.InitialBalance.Add(a.TotalPnL)

	if pos.NetQuantity == 0 {
		delete(a.Positions, symbol)
	}

	return realizedThisFill, a.CurrentBalance
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func sameSign(a, b int) bool {
	return (a >= 0 && b >= 0) || (a <= 0 && b <= 0)
}
