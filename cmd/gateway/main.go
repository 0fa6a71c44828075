// cmd/gateway is the unified multi-broker trading gateway binary: it
// wires the webhook intake, router, funded-account and guard risk
// checks, paper simulators, live broker adapters, strategy tracker,
// journal client, event bus, and dashboard push transport behind one
// HTTP listener, replacing the teacher's split cmd/engine +
// cmd/dashboard processes (spec §3).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nitinkhare/tradegateway/internal/alert"
	"github.com/nitinkhare/tradegateway/internal/broker"
	"github.com/nitinkhare/tradegateway/internal/config"
	"github.com/nitinkhare/tradegateway/internal/dashboard"
	"github.com/nitinkhare/tradegateway/internal/eventbus"
	"github.com/nitinkhare/tradegateway/internal/httpapi"
	"github.com/nitinkhare/tradegateway/internal/journal"
	"github.com/nitinkhare/tradegateway/internal/market"
	"github.com/nitinkhare/tradegateway/internal/orchestrator"
	"github.com/nitinkhare/tradegateway/internal/paper"
	"github.com/nitinkhare/tradegateway/internal/risk"
	"github.com/nitinkhare/tradegateway/internal/router"
	"github.com/nitinkhare/tradegateway/internal/scheduler"
	"github.com/nitinkhare/tradegateway/internal/storage"
	"github.com/nitinkhare/tradegateway/internal/strategy"
	"github.com/nitinkhare/tradegateway/internal/vault"
	"github.com/nitinkhare/tradegateway/internal/webhook"
)

func main() {
	configPath := flag.String("config", "config/config.json", "Path to config file")
	flag.Parse()

	logger := log.New(os.Stdout, "[gateway] ", log.LstdFlags|log.Lshortfile)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}

	store, err := storage.NewPostgresStore(cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("failed to connect to database: %v", err)
	}
	defer store.Close()

	credVault, err := vault.Open(cfg.VaultPath, logger)
	if err != nil {
		logger.Fatalf("failed to open credential vault: %v", err)
	}

	bus := eventbus.New(256)

	// §4.10: the journal client is optional — absent config disables
	// trade-journal upload entirely, the pipeline still runs. Left as a
	// nil orchestrator.Journal interface (not a typed nil pointer) when
	// disabled, so the orchestrator's nil check behaves correctly.
	var journalAdapter orchestrator.Journal
	if cfg.Journal.Enabled {
		journalClient := journal.New(journal.Config{
			BaseURL:       cfg.Journal.BaseURL,
			AppID:         cfg.Journal.AppID,
			MasterKey:     cfg.Journal.MasterKey,
			BrokerName:    cfg.Journal.BrokerName,
			Logger:        log.New(os.Stdout, "[journal] ", log.LstdFlags),
			QueueCapacity: cfg.Journal.QueueCapacity,
			BatchSize:     cfg.Journal.BatchSize,
			FlushInterval: cfg.Journal.FlushInterval,
			MaxAttempts:   cfg.Journal.MaxRetries,
		})
		defer journalClient.Close(context.Background())
		journalAdapter = journal.NewOrchestratorAdapter(journalClient)
	}

	// Strategy mode transitions persist to storage and fan out over the
	// event bus the same way funded-rule violations do.
	tracker := strategy.NewTracker(func(t strategy.ModeTransition) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.SaveModeTransition(ctx, storage.ModeTransitionRecord{
			StrategyID: t.StrategyID, From: string(t.From), To: string(t.To),
			Reason: t.Reason, WindowWinRates: t.WindowWinRates, OccurredAt: t.OccurredAt,
		}); err != nil {
			logger.Printf("save mode transition for %s failed: %v", t.StrategyID, err)
		}
		bus.Publish(eventbus.Event{
			Kind: eventbus.KindStrategyModeChanged, AccountID: t.StrategyID, Payload: t,
		})
	})

	fundedEngine := risk.NewEngine()
	guard := risk.NewGuard(risk.GuardConfig{
		RequireStopPrice:        cfg.Risk.Guard.RequireStopPrice,
		MaxRiskPerTradePct:      cfg.Risk.Guard.MaxRiskPerTradePct,
		MaxOpenPositions:        cfg.Risk.Guard.MaxOpenPositions,
		MaxDailyLossPct:         cfg.Risk.Guard.MaxDailyLossPct,
		MaxCapitalDeploymentPct: cfg.Risk.Guard.MaxCapitalDeploymentPct,
	})

	tradingWindows := make([]risk.TradingWindow, 0, len(cfg.Risk.TradingWindows))
	for _, w := range cfg.Risk.TradingWindows {
		loc, err := time.LoadLocation(w.Timezone)
		if err != nil {
			logger.Printf("trading window %s: bad timezone %q, using UTC: %v", w.Weekday, w.Timezone, err)
			loc = time.UTC
		}
		start, errStart := parseClock(w.Start)
		end, errEnd := parseClock(w.End)
		if errStart != nil || errEnd != nil {
			logger.Printf("trading window %s: bad start/end (%q, %q), skipping", w.Weekday, w.Start, w.End)
			continue
		}
		tradingWindows = append(tradingWindows, risk.TradingWindow{
			Weekday: w.Weekday, Start: start, End: end, Location: loc,
		})
	}

	restrictedSymbols := make(map[string]bool, len(cfg.Risk.RestrictedSymbols))
	for _, sym := range cfg.Risk.RestrictedSymbols {
		restrictedSymbols[sym] = true
	}

	fundedBrokers := make(map[string]broker.Broker, len(cfg.FundedAccounts))
	for _, acct := range cfg.FundedAccounts {
		adapter, err := newBrokerAdapter(acct, cfg.BrokerConfig, credVault, logger)
		if err != nil {
			logger.Fatalf("failed to build broker adapter for funded account %s (%s): %v",
				acct.AccountID, acct.Broker, err)
		}
		if _, err := adapter.Initialize(context.Background()); err != nil {
			logger.Printf("broker %s (%s) initialize failed, continuing degraded: %v",
				acct.Broker, acct.AccountID, err)
		}
		fundedBrokers[acct.AccountID] = adapter
	}

	// Each sandbox preference (§4.7) gets its own independent paper
	// account, plus a bare "simulator" account that is the fallback for
	// any paper_* group that names no specific sandbox.
	paperAccounts := map[string]*paper.Simulator{}
	for _, pref := range []router.SandboxPreference{
		router.SandboxSimulator, router.SandboxTastytrade, router.SandboxTradovate, router.SandboxAlpaca,
	} {
		sim := newPaperSimulator(paper.Config{
			AccountID:      "paper_" + string(pref),
			DisplayName:    "Paper (" + string(pref) + ")",
			Mode:           "paper_sandbox",
			InitialBalance: decimal.NewFromInt(100000),
		}, cfg, bus, logger)
		defer sim.Close()
		paperAccounts[sim.Account().ID] = sim
	}

	rtr := router.New(router.Config{
		Simulator: paperAccounts["paper_simulator"],
		Sandboxes: map[router.SandboxPreference]broker.Broker{
			router.SandboxTastytrade: paperAccounts["paper_tastytrade"],
			router.SandboxTradovate:  paperAccounts["paper_tradovate"],
			router.SandboxAlpaca:     paperAccounts["paper_alpaca"],
		},
		Tracker: tracker,
		Logger:  logger,
	})

	for _, acct := range cfg.FundedAccounts {
		rtr.RegisterLiveGroup(acct.Group, acct.AccountID, fundedBrokers[acct.AccountID], true)

		fundedEngine.Register(&risk.FundedRules{
			AccountID:         acct.AccountID,
			MaxDailyLoss:      decimal.NewFromFloat(cfg.Risk.MaxDailyLoss),
			TrailingDrawdown:  decimal.NewFromFloat(cfg.Risk.TrailingDrawdown),
			MaxContracts:      cfg.Risk.MaxContracts,
			MaxConcurrentPos:  cfg.Risk.MaxConcurrentPositions,
			ProfitTarget:      decimal.NewFromFloat(cfg.Risk.ProfitTarget),
			MaxDailyTrades:    cfg.Risk.MaxDailyTrades,
			TradingWindows:    tradingWindows,
			RestrictedSymbols: restrictedSymbols,
		})
	}

	ctx, cancel := context.WithCancel(context.Background())

	// The funded-account daily-reset job (§4.6) clears CurrentDailyPnL and
	// TodayTradeCount for every registered account at the start of each
	// trading day, polled once a minute against the exchange calendar.
	exchangeLoc := time.UTC
	if cfg.Paper.ExchangeTimezone != "" {
		if loc, err := time.LoadLocation(cfg.Paper.ExchangeTimezone); err == nil {
			exchangeLoc = loc
		}
	}
	calendar := market.NewCalendarFromHolidays(nil, exchangeLoc)
	sched := scheduler.New(calendar, log.New(os.Stdout, "[scheduler] ", log.LstdFlags), time.Now())
	sched.RegisterJob(scheduler.Job{
		Name: "reset-funded-daily-counters",
		Type: scheduler.JobTypeDailyReset,
		RunFunc: func(ctx context.Context) error {
			for _, rules := range fundedEngine.List() {
				fundedEngine.ResetDaily(rules.AccountID)
			}
			return nil
		},
	})
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if err := sched.Tick(ctx, now); err != nil {
					logger.Printf("scheduler tick failed: %v", err)
				}
			}
		}
	}()

	orch := orchestrator.New(orchestrator.Config{
		Router:         rtr,
		FundedRules:    fundedEngine,
		Guard:          guard,
		CircuitBreaker: cfg.Risk.CircuitBreaker,
		Tracker:        tracker,
		Bus:            bus,
		Journal:        journalAdapter,
		Store:          store,
		Logger:         log.New(os.Stdout, "[orchestrator] ", log.LstdFlags),
	})

	webhookServer := webhook.NewServer(webhook.Config{
		Secret:          cfg.Webhook.Secret,
		RateLimitPerMin: cfg.Webhook.RateLimitPerMin,
		RateLimitWindow: cfg.Webhook.RateLimitWindow,
		MaxBodyBytes:    cfg.Webhook.MaxBodyBytes,
	}, log.New(os.Stdout, "[webhook] ", log.LstdFlags))
	webhookServer.OnAlert(func(a *alert.Alert) {
		orch.Handle(context.Background(), a)
	})
	webhookServer.StartEvictLoop()

	broadcaster := dashboard.NewBroadcaster(log.New(os.Stdout, "[dashboard] ", log.LstdFlags))
	broadcaster.ConsumeBus(bus)
	go broadcaster.Run()

	eventListener := dashboard.NewEventListener(cfg.DatabaseURL, broadcaster, logger)
	eventListener.Start(ctx)

	apiServer := httpapi.New(httpapi.Config{
		Cfg:           cfg,
		Logger:        logger,
		Webhook:       webhookServer,
		Orchestrator:  orch,
		Router:        rtr,
		Funded:        fundedEngine,
		Guard:         guard,
		Tracker:       tracker,
		PaperAccounts: paperAccounts,
		FundedBrokers: fundedBrokers,
		Store:         store,
		Bus:           bus,
		Broadcaster:   broadcaster,
	})

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      apiServer.Mux(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Printf("gateway starting on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Println("shutting down gateway...")
	cancel()
	eventListener.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("http shutdown error: %v", err)
	}
	if err := webhookServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("webhook shutdown error: %v", err)
	}
	broadcaster.Shutdown()

	logger.Println("gateway stopped")
}

func parseClock(hhmm string) (time.Duration, error) {
	var h, m int
	if _, err := fmt.Sscanf(hhmm, "%d:%d", &h, &m); err != nil {
		return 0, err
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, nil
}

// newBrokerAdapter builds one broker.Broker from the registry, merging
// vault-held credentials into the raw broker config blob when present
// so operators never need api keys in the config file (spec §6.6).
func newBrokerAdapter(acct config.FundedAccount, brokerConfig map[string]json.RawMessage, v *vault.Vault, logger *log.Logger) (broker.Broker, error) {
	raw := brokerConfig[acct.Broker]
	merged := map[string]interface{}{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &merged); err != nil {
			return nil, fmt.Errorf("parse broker_config[%s]: %w", acct.Broker, err)
		}
	}
	if apiKey, ok, err := v.Get(acct.Broker, "api_key"); err == nil && ok {
		merged["api_key"] = apiKey
	}
	if apiSecret, ok, err := v.Get(acct.Broker, "api_secret"); err == nil && ok {
		merged["api_secret"] = apiSecret
	}
	configJSON, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("marshal broker config for %s: %w", acct.Broker, err)
	}
	return broker.New(acct.Broker, configJSON)
}

func newPaperSimulator(base paper.Config, cfg *config.Config, bus *eventbus.Bus, logger *log.Logger) *paper.Simulator {
	base.AllowAfterHours = cfg.Paper.TestMode
	base.MaxNetContracts = cfg.Paper.FuturesPositionCap
	base.Logger = log.New(os.Stdout, "[paper] ", log.LstdFlags)
	if cfg.Paper.ExchangeTimezone != "" {
		if loc, err := time.LoadLocation(cfg.Paper.ExchangeTimezone); err == nil {
			base.Location = loc
		} else {
			logger.Printf("paper: bad exchange_timezone %q, using default: %v", cfg.Paper.ExchangeTimezone, err)
		}
	}
	base.OnFill = func(f paper.FillEvent) {
		bus.Publish(eventbus.Event{
			Kind: eventbus.KindFill, Symbol: f.Symbol, AccountID: f.AccountID, Payload: f,
		})
	}
	return paper.NewSimulator(base)
}
