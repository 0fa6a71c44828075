package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/nitinkhare/tradegateway/internal/strategy"
)

func toStrategySummaryResponse(sum strategy.Summary) StrategySummaryResponse {
	return StrategySummaryResponse{
		StrategyID:        sum.StrategyID,
		Name:              sum.Name,
		Mode:              string(sum.Mode),
		MinWinRate:        sum.MinWinRate,
		SetSize:           sum.SetSize,
		CompletedSets:     sum.CompletedSets,
		CurrentSetTrades:  sum.CurrentSetTrades,
		CurrentSetWinRate: sum.CurrentSetWinRate,
		LifetimeWinRate:   sum.LifetimeWinRate,
		LifetimeTrades:    sum.LifetimeTrades,
	}
}

func (s *Server) handleStrategySummaries(w http.ResponseWriter, r *http.Request) {
	if s.tracker == nil {
		s.respondJSON(w, http.StatusOK, []StrategySummaryResponse{})
		return
	}
	ids := s.tracker.List()
	out := make([]StrategySummaryResponse, 0, len(ids))
	for _, id := range ids {
		sum, err := s.tracker.Summary(id)
		if err != nil {
			continue
		}
		out = append(out, toStrategySummaryResponse(sum))
	}
	s.respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleStrategyDetail(w http.ResponseWriter, r *http.Request) {
	if s.tracker == nil {
		s.respondError(w, http.StatusNotFound, "no strategy tracker configured")
		return
	}
	sum, err := s.tracker.Summary(r.PathValue("id"))
	if err != nil {
		s.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, toStrategySummaryResponse(sum))
}

func (s *Server) handleStrategySets(w http.ResponseWriter, r *http.Request) {
	if s.tracker == nil {
		s.respondError(w, http.StatusNotFound, "no strategy tracker configured")
		return
	}
	sets, err := s.tracker.Sets(r.PathValue("id"))
	if err != nil {
		s.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	out := make([]StrategySetResponse, 0, len(sets))
	for _, set := range sets {
		out = append(out, StrategySetResponse{
			Mode:    string(set.Mode),
			Trades:  set.Trades,
			WinRate: set.WinRate,
			Closed:  set.Closed,
		})
	}
	s.respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleStrategyTransitions(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.respondJSON(w, http.StatusOK, []ModeTransitionResponse{})
		return
	}
	records, err := s.store.GetModeTransitions(r.Context(), r.PathValue("id"))
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "fetch transitions: "+err.Error())
		return
	}
	out := make([]ModeTransitionResponse, 0, len(records))
	for _, m := range records {
		out = append(out, ModeTransitionResponse{
			StrategyID:     m.StrategyID,
			From:           m.From,
			To:             m.To,
			Reason:         m.Reason,
			WindowWinRates: m.WindowWinRates,
			OccurredAt:     m.OccurredAt,
		})
	}
	s.respondJSON(w, http.StatusOK, out)
}

type registerStrategyRequest struct {
	StrategyID  string  `json:"strategy_id"`
	Name        string  `json:"name"`
	MinWinRate  float64 `json:"min_win_rate"`
	SetSize     int     `json:"set_size"`
	InitialMode string  `json:"initial_mode"`
}

func (s *Server) handleStrategyRegister(w http.ResponseWriter, r *http.Request) {
	if s.tracker == nil {
		s.respondError(w, http.StatusServiceUnavailable, "no strategy tracker configured")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 4096))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	var req registerStrategyRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "parse body: "+err.Error())
		return
	}
	if req.StrategyID == "" {
		s.respondError(w, http.StatusBadRequest, "strategy_id is required")
		return
	}
	mode := strategy.ModeLive
	if req.InitialMode == string(strategy.ModePaper) {
		mode = strategy.ModePaper
	}
	s.tracker.Register(req.StrategyID, req.Name, req.MinWinRate, req.SetSize, mode)
	sum, _ := s.tracker.Summary(req.StrategyID)
	s.respondJSON(w, http.StatusOK, toStrategySummaryResponse(sum))
}

type setModeRequest struct {
	Mode   string `json:"mode"`
	Reason string `json:"reason"`
}

func (s *Server) handleStrategySetMode(w http.ResponseWriter, r *http.Request) {
	if s.tracker == nil {
		s.respondError(w, http.StatusServiceUnavailable, "no strategy tracker configured")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 4096))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	var req setModeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "parse body: "+err.Error())
		return
	}
	mode := strategy.Mode(req.Mode)
	if mode != strategy.ModeLive && mode != strategy.ModePaper {
		s.respondError(w, http.StatusBadRequest, "mode must be \"live\" or \"paper\"")
		return
	}
	transition, err := s.tracker.SetMode(r.PathValue("id"), mode, req.Reason)
	if err != nil {
		s.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	if transition == nil {
		sum, _ := s.tracker.Summary(r.PathValue("id"))
		s.respondJSON(w, http.StatusOK, toStrategySummaryResponse(sum))
		return
	}
	s.respondJSON(w, http.StatusOK, ModeTransitionResponse{
		StrategyID:     transition.StrategyID,
		From:           string(transition.From),
		To:             string(transition.To),
		Reason:         transition.Reason,
		WindowWinRates: transition.WindowWinRates,
		OccurredAt:     transition.OccurredAt,
	})
}

func (s *Server) handleStrategyAlertsList(w http.ResponseWriter, r *http.Request) {
	if s.webhook == nil {
		s.respondJSON(w, http.StatusOK, nil)
		return
	}
	s.respondJSON(w, http.StatusOK, s.webhook.RecentAlerts(100))
}

func (s *Server) handleStrategyAlertsClear(w http.ResponseWriter, r *http.Request) {
	if s.webhook == nil {
		s.respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
		return
	}
	s.webhook.ClearRecentAlerts()
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}
