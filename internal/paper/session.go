package paper

import "time"

// Session is the current state of the exchange session.
type Session string

const (
	SessionRegular  Session = "regular"
	SessionExtended Session = "extended"
	SessionClosed   Session = "closed"
)

// MarketConditions are derived from the current time of day in the
// configured exchange timezone, per spec §4.5.
type MarketConditions struct {
	Session              Session
	LiquidityFactor      float64
	VolatilityMultiplier float64
}

// conditionsAt classifies the market session and derives the liquidity
// and volatility factors for the given instant, in loc.
//
// Regular session: 09:30-16:00. Extended: 04:00-09:30 and 16:00-20:00.
// Closed: everything else, including weekends.
func conditionsAt(now time.Time, loc *time.Location) MarketConditions {
	t := now.In(loc)
	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return MarketConditions{Session: SessionClosed, LiquidityFactor: 0.1, VolatilityMultiplier: 1.0}
	}

	minutesOfDay := t.Hour()*60 + t.Minute()
	regularOpen := 9*60 + 30
	regularClose := 16 * 60
	extendedOpen := 4 * 60
	extendedClose := 20 * 60

	var session Session
	var liquidity float64
	switch {
	case minutesOfDay >= regularOpen && minutesOfDay < regularClose:
		session = SessionRegular
		liquidity = 1.0
	case minutesOfDay >= extendedOpen && minutesOfDay < extendedClose:
		session = SessionExtended
		liquidity = 0.3
	default:
		session = SessionClosed
		liquidity = 0.1
	}

	volatility := volatilityMultiplierFor(t.Hour(), t.Minute(), session)

	return MarketConditions{
		Session:              session,
		LiquidityFactor:      liquidity,
		VolatilityMultiplier: volatility,
	}
}

// volatilityMultiplierFor implements the open/close/mid-day/otherwise
// bucketing from spec §4.5. Open and close hours (the first and last hour
// of the regular session) get 1.5x; mid-day (11:00-14:00) gets 0.7x;
// everything else is 1.0x.
func volatilityMultiplierFor(hour, minute int, session Session) float64 {
	if session != SessionRegular {
		return 1.0
	}
	minutesOfDay := hour*60 + minute
	openStart, openEnd := 9*60+30, 10*60+30
	closeStart, closeEnd := 15*60, 16*60
	if minutesOfDay >= openStart && minutesOfDay < openEnd {
		return 1.5
	}
	if minutesOfDay >= closeStart && minutesOfDay < closeEnd {
		return 1.5
	}
	if minutesOfDay >= 11*60 && minutesOfDay < 14*60 {
		return 0.7
	}
	return 1.0
}
