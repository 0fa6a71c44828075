// Package strategy implements the strategy performance tracker (§4.9):
// it does not generate trading signals (the spec's Non-goals explicitly
// exclude that — TradingView supplies fully-formed alerts), it only
// tracks the live/paper performance of externally-identified
// strategy_ids and decides when to auto-rotate a strategy into paper
// mode after a losing streak.
package strategy

import (
	"fmt"
	"sync"
	"time"
)

// Mode is whether a strategy's alerts currently route to a live broker
// or are forced into the paper simulator.
type Mode string

const (
	ModeLive  Mode = "live"
	ModePaper Mode = "paper"
)

// TradeResult is one completed trade fed to Record.
type TradeResult struct {
	StrategyID string
	Symbol     string
	Win        bool
	PnL        float64
	ClosedAt   time.Time
}

// ModeTransition is a durable record of a strategy changing mode, either
// automatically (after a losing or winning streak) or manually.
type ModeTransition struct {
	StrategyID string
	From       Mode
	To         Mode
	Reason     string // "manual", "auto_rotate_to_paper", "auto_rotate_to_live"
	// WindowWinRates holds the win rate of every closed set in the
	// triggering window, oldest first (e.g. two entries for rotateK=2),
	// not just the most recently closed set. Empty for manual transitions.
	WindowWinRates []float64
	OccurredAt     time.Time
}

// tradeSet is a closed or in-progress block of set_size trades. Once
// closed it is never mutated again (spec §4.9 invariant).
type tradeSet struct {
	mode    Mode // mode at the time of this set's first trade
	trades  []TradeResult
	closed  bool
}

func (s *tradeSet) winRate() float64 {
	if len(s.trades) == 0 {
		return 0
	}
	wins := 0
	for _, t := range s.trades {
		if t.Win {
			wins++
		}
	}
	return float64(wins) / float64(len(s.trades))
}

// Summary is the current state of a tracked strategy, for status views.
type Summary struct {
	StrategyID      string
	Name            string
	Mode            Mode
	MinWinRate      float64
	SetSize         int
	CompletedSets   int
	CurrentSetTrades int
	CurrentSetWinRate float64
	LifetimeWinRate float64
	LifetimeTrades  int
}

type trackedStrategy struct {
	strategyID      string
	name            string
	minWinRate      float64
	setSize         int
	mode            Mode
	closedSets      []*tradeSet
	current         *tradeSet
	consecutiveBad  int // consecutive closed live sets below min_win_rate
	consecutiveGood int // consecutive closed paper sets at/above min_win_rate
	badWindow       []float64 // win rate of each set in the current consecutiveBad streak
	goodWindow      []float64 // win rate of each set in the current consecutiveGood streak
	lifetimeTrades  int
	lifetimeWins    int
}

// Tracker tracks per-strategy live/paper performance and auto-rotation,
// grounded on the teacher's risk.Manager: a mutex-guarded map of
// per-entity state, with ordered rule evaluation on each event.
type Tracker struct {
	mu         sync.Mutex
	strategies map[string]*trackedStrategy
	rotateK    int // consecutive sets required to trigger auto-rotation
	onTransition func(ModeTransition)
}

// NewTracker creates a Tracker. onTransition, if non-nil, is invoked
// synchronously (under lock release) for every transition — callers
// typically wire this to the event bus (StrategyModeChanged) and a
// durable store.
func NewTracker(onTransition func(ModeTransition)) *Tracker {
	return &Tracker{
		strategies:   make(map[string]*trackedStrategy),
		rotateK:      2,
		onTransition: onTransition,
	}
}

// Register adds (or replaces) a tracked strategy.
func (t *Tracker) Register(strategyID, name string, minWinRate float64, setSize int, initialMode Mode) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if setSize <= 0 {
		setSize = 20
	}
	t.strategies[strategyID] = &trackedStrategy{
		strategyID: strategyID,
		name:       name,
		minWinRate: minWinRate,
		setSize:    setSize,
		mode:       initialMode,
	}
}

// Mode returns the strategy's current mode. Unregistered strategies
// default to live (the router treats this as "no override").
func (t *Tracker) Mode(strategyID string) Mode {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.strategies[strategyID]
	if !ok {
		return ModeLive
	}
	return s.mode
}

// Record appends a completed trade to the strategy's current set,
// closing and evaluating the set once it reaches set_size trades. It
// returns a non-nil ModeTransition if this trade triggered auto-rotation.
func (t *Tracker) Record(result TradeResult) (*ModeTransition, error) {
	t.mu.Lock()

	s, ok := t.strategies[result.StrategyID]
	if !ok {
		t.mu.Unlock()
		return nil, fmt.Errorf("strategy: %q is not registered", result.StrategyID)
	}

	if s.current == nil {
		s.current = &tradeSet{mode: s.mode}
	}
	s.current.trades = append(s.current.trades, result)
	s.lifetimeTrades++
	if result.Win {
		s.lifetimeWins++
	}

	var transition *ModeTransition
	if len(s.current.trades) >= s.setSize {
		transition = t.closeSet(s)
	}

	t.mu.Unlock()

	if transition != nil && t.onTransition != nil {
		t.onTransition(*transition)
	}
	return transition, nil
}

// closeSet closes the strategy's current set, updates the
// consecutive-streak counters, applies auto-rotation if warranted, and
// opens a fresh set in the (possibly new) mode. Caller must hold t.mu.
func (t *Tracker) closeSet(s *trackedStrategy) *ModeTransition {
	set := s.current
	set.closed = true
	s.closedSets = append(s.closedSets, set)
	s.current = nil

	winRate := set.winRate()
	belowMin := winRate < s.minWinRate
	atOrAboveMin := winRate >= s.minWinRate

	switch set.mode {
	case ModeLive:
		if belowMin {
			s.consecutiveBad++
			s.badWindow = append(s.badWindow, winRate)
		} else {
			s.consecutiveBad = 0
			s.badWindow = nil
		}
		s.consecutiveGood = 0
		s.goodWindow = nil
	case ModePaper:
		if atOrAboveMin {
			s.consecutiveGood++
			s.goodWindow = append(s.goodWindow, winRate)
		} else {
			s.consecutiveGood = 0
			s.goodWindow = nil
		}
		s.consecutiveBad = 0
		s.badWindow = nil
	}

	var transition *ModeTransition
	switch {
	case set.mode == ModeLive && s.consecutiveBad >= t.rotateK:
		transition = t.transition(s, ModePaper, "auto_rotate_to_paper", s.badWindow)
		s.consecutiveBad = 0
		s.badWindow = nil
	case set.mode == ModePaper && s.consecutiveGood >= t.rotateK:
		transition = t.transition(s, ModeLive, "auto_rotate_to_live", s.goodWindow)
		s.consecutiveGood = 0
		s.goodWindow = nil
	}

	// The set that just closed always keeps the mode it started with;
	// a transition only takes effect for the next set, opened here.
	s.current = &tradeSet{mode: s.mode}

	return transition
}

// transition applies a mode change and returns the ModeTransition
// record. windowWinRates is copied so the caller's slice (reset or
// reused on the next streak) can't mutate the returned record. Caller
// must hold t.mu.
func (t *Tracker) transition(s *trackedStrategy, to Mode, reason string, windowWinRates []float64) *ModeTransition {
	from := s.mode
	if from == to {
		return nil
	}
	s.mode = to
	rates := make([]float64, len(windowWinRates))
	copy(rates, windowWinRates)
	return &ModeTransition{
		StrategyID:     s.strategyID,
		From:           from,
		To:             to,
		Reason:         reason,
		WindowWinRates: rates,
		OccurredAt:     time.Now().UTC(),
	}
}

// SetMode manually forces a strategy's mode. It is always honored and is
// recorded with reason "manual", or with reason when that is non-empty.
func (t *Tracker) SetMode(strategyID string, mode Mode, reason string) (*ModeTransition, error) {
	t.mu.Lock()
	s, ok := t.strategies[strategyID]
	if !ok {
		t.mu.Unlock()
		return nil, fmt.Errorf("strategy: %q is not registered", strategyID)
	}
	from := s.mode
	if from == mode {
		t.mu.Unlock()
		return nil, nil
	}
	s.mode = mode
	// The in-flight set keeps its original mode; only the next set
	// (and new sets going forward) observes the change.
	if s.current == nil {
		s.current = &tradeSet{mode: mode}
	}
	transition := ModeTransition{
		StrategyID: strategyID,
		From:       from,
		To:         mode,
		Reason:     "manual",
		OccurredAt: time.Now().UTC(),
	}
	t.mu.Unlock()

	if reason != "" {
		transition.Reason = reason
	}
	if t.onTransition != nil {
		t.onTransition(transition)
	}
	return &transition, nil
}

// List returns the strategy_id of every registered strategy, for the
// §6.3 GET /api/strategies/summaries endpoint.
func (t *Tracker) List() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.strategies))
	for id := range t.strategies {
		out = append(out, id)
	}
	return out
}

// SetSummary describes one closed or in-progress trade set, for the
// §6.3 GET /api/strategies/{id}/sets endpoint.
type SetSummary struct {
	Mode    Mode
	Trades  int
	WinRate float64
	Closed  bool
}

// Sets returns every set (closed, then the in-progress one if any) for
// a registered strategy, oldest first.
func (t *Tracker) Sets(strategyID string) ([]SetSummary, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.strategies[strategyID]
	if !ok {
		return nil, fmt.Errorf("strategy: %q is not registered", strategyID)
	}
	out := make([]SetSummary, 0, len(s.closedSets)+1)
	for _, set := range s.closedSets {
		out = append(out, SetSummary{Mode: set.mode, Trades: len(set.trades), WinRate: set.winRate(), Closed: true})
	}
	if s.current != nil {
		out = append(out, SetSummary{Mode: s.current.mode, Trades: len(s.current.trades), WinRate: s.current.winRate(), Closed: false})
	}
	return out, nil
}

// Summary reports the current state of a tracked strategy.
func (t *Tracker) Summary(strategyID string) (Summary, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.strategies[strategyID]
	if !ok {
		return Summary{}, fmt.Errorf("strategy: %q is not registered", strategyID)
	}

	sum := Summary{
		StrategyID:    s.strategyID,
		Name:          s.name,
		Mode:          s.mode,
		MinWinRate:    s.minWinRate,
		SetSize:       s.setSize,
		CompletedSets: len(s.closedSets),
		LifetimeTrades: s.lifetimeTrades,
	}
	if s.lifetimeTrades > 0 {
		sum.LifetimeWinRate = float64(s.lifetimeWins) / float64(s.lifetimeTrades)
	}
	if s.current != nil {
		sum.CurrentSetTrades = len(s.current.trades)
		sum.CurrentSetWinRate = s.current.winRate()
	}
	return sum, nil
}
