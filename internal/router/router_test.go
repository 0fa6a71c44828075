package router

import (
	"context"
	"testing"

	"github.com/nitinkhare/tradegateway/internal/alert"
	"github.com/nitinkhare/tradegateway/internal/broker"
	"github.com/nitinkhare/tradegateway/internal/strategy"
)

type fakeBroker struct{ name string }

func (f *fakeBroker) Initialize(ctx context.Context) (*broker.InitResult, error) { return nil, nil }
func (f *fakeBroker) ExecuteAlert(ctx context.Context, a *alert.Alert) (*broker.ExecutionResult, error) {
	return nil, nil
}
func (f *fakeBroker) GetPositions(ctx context.Context, accountID string) ([]broker.Position, error) {
	return nil, nil
}
func (f *fakeBroker) GetQuote(ctx context.Context, symbol string) (*broker.Quote, error) {
	return nil, nil
}
func (f *fakeBroker) Close() error { return nil }

func mustAlert(t *testing.T, group, symbol, strategyID string) *alert.Alert {
	t.Helper()
	body := `{"symbol":"` + symbol + `","action":"buy","quantity":1,"account_group":"` + group + `"`
	if strategyID != "" {
		body += `,"strategy_id":"` + strategyID + `"`
	}
	body += `}`
	a, err := alert.Parse([]byte(body))
	if err != nil {
		t.Fatalf("alert.Parse: %v", err)
	}
	return a
}

func TestRoute_PaperSimulatorDirect(t *testing.T) {
	sim := &fakeBroker{name: "sim"}
	r := New(Config{Simulator: sim})

	route, err := r.Route(mustAlert(t, "paper_simulator", "ESZ26", ""))
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if route.Adapter != sim {
		t.Error("expected route to the simulator")
	}
}

func TestRoute_PaperSandboxPreference(t *testing.T) {
	sim := &fakeBroker{name: "sim"}
	tasty := &fakeBroker{name: "tastytrade"}
	r := New(Config{
		Simulator: sim,
		Sandboxes: map[SandboxPreference]broker.Broker{SandboxTastytrade: tasty},
	})

	route, err := r.Route(mustAlert(t, "paper_tastytrade", "AAPL", ""))
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if route.Adapter != tasty {
		t.Error("expected route to the tastytrade sandbox")
	}
}

func TestRoute_PaperSandboxFallsBackWhenUnconfigured(t *testing.T) {
	sim := &fakeBroker{name: "sim"}
	r := New(Config{Simulator: sim})

	route, err := r.Route(mustAlert(t, "paper_tastytrade", "AAPL", ""))
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if route.Adapter != sim {
		t.Error("expected fallback to the simulator when sandbox is unconfigured")
	}
}

func TestRoute_AutoSelectsByAssetKind(t *testing.T) {
	sim := &fakeBroker{name: "sim"}
	tradovate := &fakeBroker{name: "tradovate"}
	tasty := &fakeBroker{name: "tastytrade"}
	r := New(Config{
		Simulator: sim,
		Sandboxes: map[SandboxPreference]broker.Broker{
			SandboxTradovate:  tradovate,
			SandboxTastytrade: tasty,
		},
	})

	futRoute, err := r.Route(mustAlert(t, "paper_auto", "ESZ26", ""))
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if futRoute.Adapter != tradovate {
		t.Error("expected futures to auto-select tradovate")
	}

	stockRoute, err := r.Route(mustAlert(t, "paper_auto", "AAPL", ""))
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if stockRoute.Adapter != tasty {
		t.Error("expected stock to auto-select tastytrade")
	}
}

func TestRoute_FundedGroupIsFunded(t *testing.T) {
	sim := &fakeBroker{name: "sim"}
	live := &fakeBroker{name: "topstep-live"}
	r := New(Config{Simulator: sim})
	r.RegisterLiveGroup("topstep", "topstep-acct-1", live, true)

	route, err := r.Route(mustAlert(t, "topstep", "MNQZ26", ""))
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if !route.IsFunded {
		t.Error("expected topstep route to be funded")
	}
	if route.Adapter != live {
		t.Error("expected the configured live adapter")
	}
}

func TestRoute_UnconfiguredLiveGroupRejects(t *testing.T) {
	sim := &fakeBroker{name: "sim"}
	r := New(Config{Simulator: sim})

	_, err := r.Route(mustAlert(t, "some_broker", "AAPL", ""))
	if err == nil {
		t.Fatal("expected a routing error")
	}
	routeErr, ok := err.(*RouteError)
	if !ok {
		t.Fatalf("expected *RouteError, got %T", err)
	}
	if routeErr.Reason != RejectNoBrokerConfigured {
		t.Errorf("reason = %s, want no_broker_configured", routeErr.Reason)
	}
}

func TestRoute_StrategyTrackerOverridesLiveToPaper(t *testing.T) {
	sim := &fakeBroker{name: "sim"}
	live := &fakeBroker{name: "topstep-live"}
	tracker := strategy.NewTracker(nil)
	tracker.Register("strat-1", "Breakout", 0.5, 5, strategy.ModePaper)

	r := New(Config{Simulator: sim, Tracker: tracker})
	r.RegisterLiveGroup("topstep", "topstep-acct-1", live, true)

	route, err := r.Route(mustAlert(t, "topstep", "MNQZ26", "strat-1"))
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if route.Adapter != sim {
		t.Error("expected the strategy tracker's paper mode to override the live route")
	}
	if route.IntendedLiveAccountID != "topstep-acct-1" {
		t.Errorf("intended live account = %q, want topstep-acct-1", route.IntendedLiveAccountID)
	}
}
