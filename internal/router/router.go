// Package router resolves an Alert's account_group to a concrete
// (account ID, broker adapter, is_funded) tuple, per spec §4.7.
//
// Ownership (spec §3): the router owns the set of adapters and the
// mapping from account_group to adapter + account; it holds no other
// durable state.
package router

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/nitinkhare/tradegateway/internal/alert"
	"github.com/nitinkhare/tradegateway/internal/broker"
	"github.com/nitinkhare/tradegateway/internal/strategy"
)

// RejectReason explains why Route could not resolve an alert to a
// broker.
type RejectReason string

const (
	RejectNoBrokerConfigured RejectReason = "no_broker_configured"
)

// RouteError reports a routing failure.
type RouteError struct {
	Reason RejectReason
}

func (e *RouteError) Error() string {
	return fmt.Sprintf("router: %s", e.Reason)
}

// SandboxPreference is the suffix on a paper_ account_group selecting
// which broker's sandbox the simulator stands in for.
type SandboxPreference string

const (
	SandboxTastytrade SandboxPreference = "tastytrade"
	SandboxTradovate  SandboxPreference = "tradovate"
	SandboxAlpaca     SandboxPreference = "alpaca"
	SandboxSimulator  SandboxPreference = "simulator"
	SandboxAuto       SandboxPreference = "auto"
)

// Route is the resolved destination for an alert.
type Route struct {
	AccountID string
	Adapter   broker.Broker
	IsFunded  bool
	// IntendedLiveAccountID is set when the strategy tracker overrides a
	// live route to paper: the fill is still tagged with the account the
	// alert would have gone to, for bookkeeping (spec §4.7).
	IntendedLiveAccountID string
}

// liveGroup binds one configured account_group (not paper_*) to its
// live adapter, account ID, and whether it is a funded-account group.
type liveGroup struct {
	accountID string
	adapter   broker.Broker
	isFunded  bool
}

// Router resolves account_group routing keys to adapters.
type Router struct {
	mu         sync.RWMutex
	simulator  broker.Broker // always available as the paper fallback
	sandboxes  map[SandboxPreference]broker.Broker
	liveGroups map[string]liveGroup // keyed by account_group, lowercase
	fundedGroupNames map[string]bool // e.g. "topstep", "apex", "tradeday"
	tracker    *strategy.Tracker    // may be nil: no strategy-driven override
	logger     *log.Logger
}

// Config wires a Router's adapters.
type Config struct {
	Simulator  broker.Broker
	Sandboxes  map[SandboxPreference]broker.Broker
	Tracker    *strategy.Tracker
	Logger     *log.Logger
}

// New creates a Router. Register live account groups, and whether each is
// funded, with RegisterLiveGroup after construction.
func New(cfg Config) *Router {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[router] ", log.LstdFlags)
	}
	sandboxes := cfg.Sandboxes
	if sandboxes == nil {
		sandboxes = make(map[SandboxPreference]broker.Broker)
	}
	return &Router{
		simulator:        cfg.Simulator,
		sandboxes:        sandboxes,
		liveGroups:       make(map[string]liveGroup),
		fundedGroupNames: make(map[string]bool),
		tracker:          cfg.Tracker,
		logger:           logger,
	}
}

// RegisterLiveGroup binds a non-paper account_group to its live adapter
// and account ID. isFunded marks it as subject to funded-rule gating.
func (r *Router) RegisterLiveGroup(group, accountID string, adapter broker.Broker, isFunded bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.liveGroups[strings.ToLower(group)] = liveGroup{accountID: accountID, adapter: adapter, isFunded: isFunded}
	if isFunded {
		r.fundedGroupNames[strings.ToLower(group)] = true
	}
}

// Route resolves a's account_group to a concrete destination, per the
// §4.7 resolution rules, applying the strategy tracker's live/paper
// override (§4.9) last.
func (r *Router) Route(a *alert.Alert) (*Route, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	group := strings.ToLower(strings.TrimSpace(a.AccountGroup))

	var route *Route
	var err error
	if strings.HasPrefix(group, "paper_") {
		route = r.routePaper(group, a)
	} else {
		route, err = r.routeLive(group)
	}
	if err != nil {
		return nil, err
	}

	if r.tracker != nil && a.StrategyID != "" && r.tracker.Mode(a.StrategyID) == strategy.ModePaper {
		if route.Adapter != r.simulator {
			route = &Route{
				AccountID:             "paper_" + a.StrategyID,
				Adapter:               r.simulator,
				IsFunded:              false,
				IntendedLiveAccountID: route.AccountID,
			}
		}
	}

	return route, nil
}

func (r *Router) routePaper(group string, a *alert.Alert) *Route {
	suffix := strings.TrimPrefix(group, "paper_")
	pref := SandboxPreference(suffix)
	if pref == SandboxAuto {
		pref = r.autoPreferenceFor(a)
	}

	if pref != SandboxSimulator {
		if adapter, ok := r.sandboxes[pref]; ok {
			return &Route{AccountID: group, Adapter: adapter}
		}
		r.logger.Printf("paper sandbox %q not configured, falling back to simulator", pref)
	}
	return &Route{AccountID: group, Adapter: r.simulator}
}

func (r *Router) autoPreferenceFor(a *alert.Alert) SandboxPreference {
	info := alert.ResolveSymbol(a.Symbol)
	switch info.Kind {
	case alert.AssetFuture:
		return SandboxTradovate
	case alert.AssetOption, alert.AssetStock:
		return SandboxTastytrade
	default:
		return SandboxSimulator
	}
}

func (r *Router) routeLive(group string) (*Route, error) {
	lg, ok := r.liveGroups[group]
	if !ok {
		return nil, &RouteError{Reason: RejectNoBrokerConfigured}
	}
	return &Route{AccountID: lg.accountID, Adapter: lg.adapter, IsFunded: lg.isFunded}, nil
}
