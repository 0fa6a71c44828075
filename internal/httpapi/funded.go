package httpapi

import (
	"net/http"
	"time"

	"github.com/nitinkhare/tradegateway/internal/alert"
	"github.com/nitinkhare/tradegateway/internal/analytics"
	"github.com/nitinkhare/tradegateway/internal/risk"
	"github.com/nitinkhare/tradegateway/internal/storage"
)

// toPerformanceResponse renders an analytics.PerformanceReport computed
// from an account's fill history. Returns nil if there is no history to
// report on, so callers can omit the field entirely.
func toPerformanceResponse(report *analytics.PerformanceReport) *PerformanceResponse {
	if report == nil || report.TotalFills == 0 {
		return nil
	}
	bySymbol := make(map[string]SymbolPerfResponse, len(report.SymbolReports))
	for sym, sr := range report.SymbolReports {
		bySymbol[sym] = SymbolPerfResponse{
			TotalFills: sr.TotalFills,
			WinRate:    sr.WinRate,
			TotalPnL:   sr.TotalPnL,
		}
	}
	return &PerformanceResponse{
		TotalFills:     report.TotalFills,
		WinRate:        report.WinRate,
		TotalPnL:       report.TotalPnL,
		AveragePnL:     report.AveragePnL,
		ProfitFactor:   report.ProfitFactor,
		MaxDrawdown:    report.MaxDrawdown,
		MaxDrawdownPct: report.MaxDrawdownPct,
		SharpeRatio:    report.SharpeRatio,
		BySymbol:       bySymbol,
	}
}

// toFundedAccountResponse renders one FundedRules snapshot for §6.2's
// list/detail endpoints.
func toFundedAccountResponse(r risk.FundedRules) FundedAccountResponse {
	status := "active"
	switch {
	case r.State == risk.RuleStateViolated:
		status = "violated"
	case r.Paused:
		status = "paused"
	}
	return FundedAccountResponse{
		AccountID:        r.AccountID,
		Status:           status,
		RiskLevel:        string(r.RiskLevel()),
		MaxDailyLoss:     r.MaxDailyLoss.String(),
		TrailingDrawdown: r.TrailingDrawdown.String(),
		MaxContracts:     r.MaxContracts,
		CurrentDailyPnL:  r.CurrentDailyPnL.String(),
		CurrentDrawdown:  r.CurrentDrawdown.String(),
		TodayTradeCount:  r.TodayTradeCount,
	}
}

func (s *Server) handleFundedList(w http.ResponseWriter, r *http.Request) {
	if s.funded == nil {
		s.respondJSON(w, http.StatusOK, []FundedAccountResponse{})
		return
	}
	rules := s.funded.List()
	out := make([]FundedAccountResponse, 0, len(rules))
	for _, rr := range rules {
		out = append(out, toFundedAccountResponse(rr))
	}
	s.respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleFundedDetail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if s.funded == nil {
		s.respondError(w, http.StatusNotFound, "no funded accounts configured")
		return
	}
	rules, ok := s.funded.Rules(id)
	if !ok {
		s.respondError(w, http.StatusNotFound, "unknown funded account")
		return
	}
	s.respondJSON(w, http.StatusOK, toFundedAccountResponse(rules))
}

func (s *Server) handleFundedMetrics(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if s.funded == nil {
		s.respondError(w, http.StatusNotFound, "no funded accounts configured")
		return
	}
	rules, ok := s.funded.Rules(id)
	if !ok {
		s.respondError(w, http.StatusNotFound, "unknown funded account")
		return
	}

	dailyLossPct := 0.0
	if !rules.MaxDailyLoss.IsZero() && rules.CurrentDailyPnL.IsNegative() {
		ratio, _ := rules.CurrentDailyPnL.Neg().Div(rules.MaxDailyLoss).Float64()
		dailyLossPct = ratio * 100
	}
	drawdownPct := 0.0
	if !rules.TrailingDrawdown.IsZero() {
		ratio, _ := rules.CurrentDrawdown.Div(rules.TrailingDrawdown).Float64()
		drawdownPct = ratio * 100
	}

	var violations []ViolationResponse
	var performance *PerformanceResponse
	if s.store != nil {
		records, err := s.store.GetViolations(r.Context(), id, false)
		if err != nil {
			s.logger.Printf("httpapi: get violations for %s: %v", id, err)
		}
		violations = make([]ViolationResponse, 0, len(records))
		for _, v := range records {
			violations = append(violations, toViolationResponse(v))
		}

		fills, err := s.store.GetFillsByAccount(r.Context(), id, time.Time{}, time.Now())
		if err != nil {
			s.logger.Printf("httpapi: get fills for %s: %v", id, err)
		} else {
			performance = toPerformanceResponse(analytics.Analyze(fills))
		}
	}

	s.respondJSON(w, http.StatusOK, FundedMetricsResponse{
		AccountID:        id,
		DailyLossPct:     dailyLossPct,
		DrawdownPct:      drawdownPct,
		RiskLevel:        string(rules.RiskLevel()),
		CanTrade:         rules.CanTrade(),
		ActiveViolations: violations,
		Performance:      performance,
	})
}

func (s *Server) handleFundedFlatten(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	adapter, ok := s.fundedBrokers[id]
	if !ok {
		s.respondError(w, http.StatusNotFound, "unknown funded account")
		return
	}

	ctx := r.Context()
	positions, err := adapter.GetPositions(ctx, id)
	if err != nil {
		s.respondError(w, http.StatusBadGateway, "fetch positions: "+err.Error())
		return
	}

	closed := make([]ClosedPositionResponse, 0, len(positions))
	for _, p := range positions {
		if p.Quantity == 0 {
			continue
		}
		action := alert.ActionSell
		qty := p.Quantity
		if qty < 0 {
			action = alert.ActionBuy
			qty = -qty
		}
		closeAlert := &alert.Alert{
			Symbol:       p.Symbol,
			Action:       action,
			Quantity:     qty,
			OrderType:    alert.OrderTypeMarket,
			AccountGroup: id,
		}
		result, err := adapter.ExecuteAlert(ctx, closeAlert)
		if err != nil {
			s.respondError(w, http.StatusBadGateway, "flatten "+p.Symbol+": "+err.Error())
			return
		}
		if !result.Success || result.Fill == nil {
			s.respondError(w, http.StatusBadGateway, "flatten "+p.Symbol+": "+result.RejectionReason)
			return
		}
		closed = append(closed, ClosedPositionResponse{
			Symbol:      p.Symbol,
			ClosedQty:   qty,
			ClosePrice:  result.Fill.Price.String(),
			RealizedPnL: result.Fill.RealizedPnL.String(),
		})
	}

	s.respondJSON(w, http.StatusOK, FlattenResponse{AccountID: id, Closed: closed})
}

func (s *Server) handleFundedPause(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if s.funded == nil {
		s.respondError(w, http.StatusNotFound, "no funded accounts configured")
		return
	}
	if err := s.funded.Pause(id); err != nil {
		s.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (s *Server) handleFundedResume(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if s.funded == nil {
		s.respondError(w, http.StatusNotFound, "no funded accounts configured")
		return
	}
	if err := s.funded.Resume(id); err != nil {
		s.respondError(w, http.StatusConflict, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "active"})
}

func toViolationResponse(v storage.ViolationRecord) ViolationResponse {
	return ViolationResponse{
		ID:           v.ID,
		AccountID:    v.AccountID,
		Kind:         v.Kind,
		Severity:     v.Severity,
		Value:        v.Value.String(),
		Limit:        v.Limit.String(),
		OccurredAt:   v.OccurredAt,
		Acknowledged: v.Acknowledged,
	}
}

func (s *Server) handleViolationsList(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.respondJSON(w, http.StatusOK, []ViolationResponse{})
		return
	}
	accountID := r.URL.Query().Get("account_id")
	includeAck := r.URL.Query().Get("include_acknowledged") == "true"
	records, err := s.store.GetViolations(r.Context(), accountID, includeAck)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "fetch violations: "+err.Error())
		return
	}
	out := make([]ViolationResponse, 0, len(records))
	for _, v := range records {
		out = append(out, toViolationResponse(v))
	}
	s.respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleAcknowledgeViolation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if s.store == nil {
		s.respondError(w, http.StatusNotFound, "no durable store configured")
		return
	}
	if err := s.store.AcknowledgeViolation(r.Context(), id); err != nil {
		s.respondError(w, http.StatusInternalServerError, "acknowledge violation: "+err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "acknowledged"})
}
