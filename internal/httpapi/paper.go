package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/nitinkhare/tradegateway/internal/alert"
	"github.com/nitinkhare/tradegateway/internal/analytics"
	"github.com/nitinkhare/tradegateway/internal/paper"
	"github.com/shopspring/decimal"
)

func toPaperAccountResponse(acct paper.Account) PaperAccountResponse {
	positions := make([]PaperPositionResponse, 0, len(acct.Positions))
	for _, p := range acct.Positions {
		if p.NetQuantity == 0 {
			continue
		}
		positions = append(positions, PaperPositionResponse{
			Symbol:        p.Symbol,
			NetQuantity:   p.NetQuantity,
			AvgPrice:      p.AvgPrice.String(),
			MarketPrice:   p.MarketPrice.String(),
			UnrealizedPnL: p.UnrealizedPnL.String(),
			RealizedPnL:   p.RealizedPnL.String(),
		})
	}
	return PaperAccountResponse{
		AccountID:      acct.ID,
		DisplayName:    acct.DisplayName,
		Mode:           acct.Mode,
		InitialBalance: acct.InitialBalance.String(),
		CurrentBalance: acct.CurrentBalance.String(),
		BuyingPower:    acct.BuyingPower.String(),
		DayPnL:         acct.DayPnL.String(),
		TotalPnL:       acct.TotalPnL.String(),
		Positions:      positions,
	}
}

func (s *Server) handlePaperAccountsList(w http.ResponseWriter, r *http.Request) {
	out := make([]PaperAccountResponse, 0, len(s.paperAccounts))
	for _, sim := range s.paperAccounts {
		out = append(out, toPaperAccountResponse(sim.Account()))
	}
	s.respondJSON(w, http.StatusOK, out)
}

func (s *Server) handlePaperAccountDetail(w http.ResponseWriter, r *http.Request) {
	sim, ok := s.paperAccounts[r.PathValue("id")]
	if !ok {
		s.respondError(w, http.StatusNotFound, "unknown paper account")
		return
	}
	s.respondJSON(w, http.StatusOK, toPaperAccountResponse(sim.Account()))
}

func (s *Server) handlePaperOrders(w http.ResponseWriter, r *http.Request) {
	sim, ok := s.paperAccounts[r.PathValue("id")]
	if !ok {
		s.respondError(w, http.StatusNotFound, "unknown paper account")
		return
	}
	orders := sim.RecentOrders(100)
	out := make([]PaperOrderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, PaperOrderResponse{
			OrderID:         o.OrderID,
			Symbol:          o.Symbol,
			Action:          string(o.Action),
			Quantity:        o.Quantity,
			OrderType:       string(o.OrderType),
			Status:          o.Status,
			RejectionReason: o.RejectionReason,
			SubmittedAt:     o.SubmittedAt,
		})
	}
	s.respondJSON(w, http.StatusOK, out)
}

func (s *Server) handlePaperFills(w http.ResponseWriter, r *http.Request) {
	sim, ok := s.paperAccounts[r.PathValue("id")]
	if !ok {
		s.respondError(w, http.StatusNotFound, "unknown paper account")
		return
	}
	fills := sim.RecentFills(100)
	out := make([]PaperFillResponse, 0, len(fills))
	for _, f := range fills {
		out = append(out, PaperFillResponse{
			AccountID:  f.AccountID,
			Symbol:     f.Symbol,
			Action:     string(f.Action),
			Quantity:   f.Quantity,
			Price:      f.Price.String(),
			Commission: f.Commission.String(),
			FilledAt:   f.FilledAt,
		})
	}
	s.respondJSON(w, http.StatusOK, out)
}

func (s *Server) handlePaperMetrics(w http.ResponseWriter, r *http.Request) {
	sim, ok := s.paperAccounts[r.PathValue("id")]
	if !ok {
		s.respondError(w, http.StatusNotFound, "unknown paper account")
		return
	}
	acct := sim.Account()
	openPositions := 0
	for _, p := range acct.Positions {
		if p.NetQuantity != 0 {
			openPositions++
		}
	}

	var performance *PerformanceResponse
	if s.store != nil {
		fills, err := s.store.GetFillsByAccount(r.Context(), acct.ID, time.Time{}, time.Now())
		if err != nil {
			s.logger.Printf("httpapi: get fills for %s: %v", acct.ID, err)
		} else {
			performance = toPerformanceResponse(analytics.Analyze(fills))
		}
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"account_id":      acct.ID,
		"day_pnl":         acct.DayPnL.String(),
		"total_pnl":       acct.TotalPnL.String(),
		"current_balance": acct.CurrentBalance.String(),
		"open_positions":  openPositions,
		"performance":     performance,
	})
}

type resetRequest struct {
	Confirm        bool   `json:"confirm"`
	InitialBalance string `json:"initial_balance,omitempty"`
}

func (s *Server) handlePaperReset(w http.ResponseWriter, r *http.Request) {
	sim, ok := s.paperAccounts[r.PathValue("id")]
	if !ok {
		s.respondError(w, http.StatusNotFound, "unknown paper account")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 4096))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	var req resetRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			s.respondError(w, http.StatusBadRequest, "parse body: "+err.Error())
			return
		}
	}
	if !req.Confirm {
		s.respondError(w, http.StatusBadRequest, "reset requires confirm: true")
		return
	}
	var initialBalance decimal.Decimal
	if req.InitialBalance != "" {
		initialBalance, err = decimal.NewFromString(req.InitialBalance)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid initial_balance: "+err.Error())
			return
		}
	}
	sim.Reset(initialBalance)
	s.respondJSON(w, http.StatusOK, toPaperAccountResponse(sim.Account()))
}

func (s *Server) handlePaperFlatten(w http.ResponseWriter, r *http.Request) {
	sim, ok := s.paperAccounts[r.PathValue("id")]
	if !ok {
		s.respondError(w, http.StatusNotFound, "unknown paper account")
		return
	}
	closed, err := sim.Flatten(r.Context())
	if err != nil {
		s.respondError(w, http.StatusBadGateway, "flatten: "+err.Error())
		return
	}
	out := make([]ClosedPositionResponse, 0, len(closed))
	for _, p := range closed {
		out = append(out, ClosedPositionResponse{
			Symbol:      p.Symbol,
			ClosePrice:  p.AveragePrice.String(),
			RealizedPnL: p.PnL.String(),
		})
	}
	s.respondJSON(w, http.StatusOK, FlattenResponse{AccountID: r.PathValue("id"), Closed: out})
}

// handlePaperAlert submits an alert directly into the orchestrator
// pipeline for paper-trading use from the operator UI, bypassing the
// webhook's HMAC/rate-limit authentication (§6.3): this endpoint is only
// ever reachable via the gateway's own internal API surface.
func (s *Server) handlePaperAlert(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 64*1024))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	a, err := alert.Parse(body)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.orchestrator == nil {
		s.respondError(w, http.StatusServiceUnavailable, "orchestrator not wired")
		return
	}
	evt := s.orchestrator.Handle(r.Context(), a)
	resp := ExecutionEventResponse{
		AlertID:    evt.AlertID,
		AccountID:  evt.AccountID,
		Status:     string(evt.Status),
		Kind:       string(evt.Kind),
		Reason:     evt.Reason,
		OccurredAt: evt.OccurredAt,
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// handlePaperCancelOrder always reports a conflict: the simulator fills
// synchronously inside ExecuteAlert (§4.5), so by the time an order_id
// exists it has already settled. The endpoint exists so API clients get
// a clear rejection reason instead of a 404.
func (s *Server) handlePaperCancelOrder(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	for _, sim := range s.paperAccounts {
		for _, o := range sim.RecentOrders(500) {
			if o.OrderID == id {
				s.respondError(w, http.StatusConflict, "order already settled, cannot cancel")
				return
			}
		}
	}
	s.respondError(w, http.StatusNotFound, "unknown order")
}
