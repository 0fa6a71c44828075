// Package httpapi is the unified REST + WebSocket surface for
// cmd/gateway: funded-account administration (§6.2), paper-trading and
// strategy administration (§6.3), and the push-transport WebSocket
// (§6.4). It replaces cmd/dashboard's handler set with one that speaks
// the gateway's own domain types instead of the teacher's backtest
// trade history.
//
// Grounded on cmd/dashboard/main.go's Server struct and
// respondJSON/respondError helpers, generalized from one store
// dependency to the full set of gateway collaborators.
package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/nitinkhare/tradegateway/internal/broker"
	"github.com/nitinkhare/tradegateway/internal/config"
	"github.com/nitinkhare/tradegateway/internal/dashboard"
	"github.com/nitinkhare/tradegateway/internal/eventbus"
	"github.com/nitinkhare/tradegateway/internal/orchestrator"
	"github.com/nitinkhare/tradegateway/internal/paper"
	"github.com/nitinkhare/tradegateway/internal/risk"
	"github.com/nitinkhare/tradegateway/internal/router"
	"github.com/nitinkhare/tradegateway/internal/storage"
	"github.com/nitinkhare/tradegateway/internal/strategy"
	"github.com/nitinkhare/tradegateway/internal/webhook"
)

// Config wires a Server's collaborators. Every field may be nil: the
// handlers that use Orchestrator, Store, Funded, Tracker, Webhook or
// Broadcaster answer with an empty result or an error status when it is
// missing, so a minimal deployment (paper-only, no funded accounts)
// still boots.
type Config struct {
	Cfg           *config.Config
	Logger        *log.Logger
	Webhook       *webhook.Server
	Orchestrator  *orchestrator.Orchestrator
	Router        *router.Router
	Funded        *risk.Engine
	Guard         *risk.Guard
	Tracker       *strategy.Tracker
	PaperAccounts map[string]*paper.Simulator
	FundedBrokers map[string]broker.Broker
	Store         storage.Store
	Bus           *eventbus.Bus
	Broadcaster   *dashboard.Broadcaster
}

// Server holds every dependency the REST/WS surface needs, the same
// single-struct-of-collaborators shape as cmd/dashboard's Server.
type Server struct {
	cfg           *config.Config
	logger        *log.Logger
	webhook       *webhook.Server
	orchestrator  *orchestrator.Orchestrator
	router        *router.Router
	funded        *risk.Engine
	guard         *risk.Guard
	tracker       *strategy.Tracker
	paperAccounts map[string]*paper.Simulator
	fundedBrokers map[string]broker.Broker
	store         storage.Store
	bus           *eventbus.Bus
	broadcaster   *dashboard.Broadcaster
}

// New builds a Server from cfg.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[httpapi] ", log.LstdFlags)
	}
	return &Server{
		cfg:           cfg.Cfg,
		logger:        logger,
		webhook:       cfg.Webhook,
		orchestrator:  cfg.Orchestrator,
		router:        cfg.Router,
		funded:        cfg.Funded,
		guard:         cfg.Guard,
		tracker:       cfg.Tracker,
		paperAccounts: cfg.PaperAccounts,
		fundedBrokers: cfg.FundedBrokers,
		store:         cfg.Store,
		bus:           cfg.Bus,
		broadcaster:   cfg.Broadcaster,
	}
}

// Mux builds the complete route table for spec §6.1-§6.4 on a single
// net/http.ServeMux, using Go 1.22+ method-prefixed patterns instead of
// the teacher's manual r.Method switch per handler.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()

	if s.webhook != nil {
		mux.Handle("/webhook/tradingview", s.webhook.Handler())
		mux.Handle("/webhook/test", s.webhook.Handler())
	}

	// §6.2 funded accounts.
	mux.HandleFunc("GET /api/v1/funded-accounts/violations/", s.handleViolationsList)
	mux.HandleFunc("POST /api/v1/funded-accounts/violations/{id}/acknowledge", s.handleAcknowledgeViolation)
	mux.HandleFunc("GET /api/v1/funded-accounts/{id}/metrics", s.handleFundedMetrics)
	mux.HandleFunc("POST /api/v1/funded-accounts/{id}/flatten-positions", s.handleFundedFlatten)
	mux.HandleFunc("POST /api/v1/funded-accounts/{id}/pause", s.handleFundedPause)
	mux.HandleFunc("POST /api/v1/funded-accounts/{id}/resume", s.handleFundedResume)
	mux.HandleFunc("GET /api/v1/funded-accounts/{id}", s.handleFundedDetail)
	mux.HandleFunc("GET /api/v1/funded-accounts/", s.handleFundedList)

	// §6.3 paper trading.
	mux.HandleFunc("GET /api/paper-trading/accounts", s.handlePaperAccountsList)
	mux.HandleFunc("GET /api/paper-trading/accounts/{id}/orders", s.handlePaperOrders)
	mux.HandleFunc("GET /api/paper-trading/accounts/{id}/fills", s.handlePaperFills)
	mux.HandleFunc("GET /api/paper-trading/accounts/{id}/metrics", s.handlePaperMetrics)
	mux.HandleFunc("POST /api/paper-trading/accounts/{id}/reset", s.handlePaperReset)
	mux.HandleFunc("POST /api/paper-trading/accounts/{id}/flatten", s.handlePaperFlatten)
	mux.HandleFunc("GET /api/paper-trading/accounts/{id}", s.handlePaperAccountDetail)
	mux.HandleFunc("POST /api/paper-trading/alerts", s.handlePaperAlert)
	mux.HandleFunc("POST /api/paper-trading/orders/{id}/cancel", s.handlePaperCancelOrder)

	// §6.3 strategies.
	mux.HandleFunc("GET /api/strategies/summaries", s.handleStrategySummaries)
	mux.HandleFunc("GET /api/strategies/alerts", s.handleStrategyAlertsList)
	mux.HandleFunc("DELETE /api/strategies/alerts", s.handleStrategyAlertsClear)
	mux.HandleFunc("POST /api/strategies/register", s.handleStrategyRegister)
	mux.HandleFunc("GET /api/strategies/{id}/summary", s.handleStrategyDetail)
	mux.HandleFunc("GET /api/strategies/{id}/sets", s.handleStrategySets)
	mux.HandleFunc("GET /api/strategies/{id}/transitions", s.handleStrategyTransitions)
	mux.HandleFunc("POST /api/strategies/{id}/mode", s.handleStrategySetMode)
	mux.HandleFunc("GET /api/strategies/{id}", s.handleStrategyDetail)

	// §6.4 push transport.
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	mux.HandleFunc("GET /health", s.handleHealth)

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := "ok"
	if s.store != nil {
		if err := s.store.Ping(ctx); err != nil {
			status = "degraded"
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": status})
}

// ────────────────────────────────────────────────────────────────────
// Response helpers, matching cmd/dashboard/main.go's shape.
// ────────────────────────────────────────────────────────────────────

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Printf("httpapi: encode response: %v", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, ErrorResponse{
		Error:     http.StatusText(status),
		Message:   message,
		Code:      status,
		Timestamp: time.Now().UTC(),
	})
}
