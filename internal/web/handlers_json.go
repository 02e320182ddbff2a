package web

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/vitos/crypto_trend_breakout/internal/domain"
	"go.uber.org/zap"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

type statusResponse struct {
	Symbol       string            `json:"symbol"`
	ShuttingDown bool              `json:"shutting_down"`
	State        domain.TradeState `json:"state"`
}

func parseLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return defaultLimit
	}
	if n > maxLimit {
		return maxLimit
	}
	return n
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Symbol: s.symbol,
		State:  s.state.Snapshot(),
	}
	if s.shutdown != nil {
		resp.ShuttingDown = s.shutdown.ShuttingDown()
	}
	s.writeJSON(w, resp)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := s.tradeRepo.ListTrades(r.Context(), parseLimit(r))
	if err != nil {
		s.logger.Error("Failed to list trades", zap.Error(err))
		http.Error(w, "Failed to list trades", http.StatusInternalServerError)
		return
	}
	if trades == nil {
		trades = []*domain.Order{}
	}
	s.writeJSON(w, trades)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.tradeRepo.ListPositionHistory(r.Context(), parseLimit(r))
	if err != nil {
		s.logger.Error("Failed to list position history", zap.Error(err))
		http.Error(w, "Failed to list position history", http.StatusInternalServerError)
		return
	}
	if history == nil {
		history = []*domain.PositionHistory{}
	}
	s.writeJSON(w, history)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	logs, err := s.tradeRepo.ListTradeSessionLogs(r.Context(), parseLimit(r))
	if err != nil {
		s.logger.Error("Failed to list events", zap.Error(err))
		http.Error(w, "Failed to list events", http.StatusInternalServerError)
		return
	}
	if logs == nil {
		logs = []*domain.TradeSessionLog{}
	}
	s.writeJSON(w, logs)
}
