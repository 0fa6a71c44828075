package paper

import (
	"math/rand"

	"github.com/nitinkhare/tradegateway/internal/alert"
	"github.com/shopspring/decimal"
)

// orderTypeMult is the order_type_mult factor from spec §4.5.
func orderTypeMult(ot alert.OrderType) float64 {
	switch ot {
	case alert.OrderTypeLimit:
		return 0.2
	case alert.OrderTypeStop:
		return 1.5
	case alert.OrderTypeStopLimit:
		return 1.2
	default:
		return 1.0
	}
}

// baseSlip is the base_slip(asset_kind) factor from spec §4.5.
func baseSlip(kind alert.AssetKind) float64 {
	switch kind {
	case alert.AssetFuture:
		return 5e-4
	case alert.AssetOption:
		return 2e-3
	case alert.AssetCrypto:
		return 1e-3
	default:
		return 1e-4 // stock
	}
}

// basePrice picks the base price per spec §4.5 step 1: ask for buy-market,
// bid for sell-market, the supplied limit/stop price for limit orders,
// last otherwise.
func basePrice(a *alert.Alert, snap Snapshot) decimal.Decimal {
	switch {
	case a.OrderType == alert.OrderTypeMarket && a.Action == alert.ActionBuy:
		return snap.Ask
	case a.OrderType == alert.OrderTypeMarket && a.Action == alert.ActionSell:
		return snap.Bid
	case a.OrderType == alert.OrderTypeLimit:
		return a.Price
	case a.OrderType == alert.OrderTypeStop || a.OrderType == alert.OrderTypeStopLimit:
		return a.StopPrice
	default:
		return snap.Last
	}
}

// fillPrice implements the full §4.5 fill-price algorithm, snapping to
// the symbol's tick size.
func fillPrice(a *alert.Alert, info alert.SymbolInfo, snap Snapshot, cond MarketConditions, rng *rand.Rand) decimal.Decimal {
	base := basePrice(a, snap)

	slipFraction := baseSlip(info.Kind) *
		(2 - cond.LiquidityFactor) *
		cond.VolatilityMultiplier *
		orderTypeMult(a.OrderType) *
		(1 + minFloat(float64(a.Quantity)/1000.0, 0.01)) *
		uniform(rng, 0.5, 1.5)

	slip := base.Mul(decimal.NewFromFloat(slipFraction))

	var final decimal.Decimal
	if a.Action == alert.ActionBuy {
		final = base.Add(slip)
	} else {
		final = base.Sub(slip)
	}

	return roundToTick(final, info.Tick)
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

// commission implements the §4.5 per-asset-kind commission schedule.
// Future: $2.25 exchange fee + $1.25 clearing + $0.02 NFA, per contract.
// Option: $0.65 per-contract fee + $0.15 clearing + $0.02 OCC, per contract.
func commission(kind alert.AssetKind, quantity int, notional decimal.Decimal) decimal.Decimal {
	q := decimal.NewFromInt(int64(quantity))
	switch kind {
	case alert.AssetFuture:
		return decimal.NewFromFloat(3.52).Mul(q)
	case alert.AssetOption:
		return decimal.NewFromFloat(0.82).Mul(q)
	case alert.AssetCrypto:
		return notional.Mul(decimal.NewFromFloat(0.001))
	default: // stock: zero commission, SEC regulatory fee only
		return decimal.NewFromFloat(0.01).Mul(q)
	}
}
