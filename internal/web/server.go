package web

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vitos/crypto_trend_breakout/internal/domain"
	"go.uber.org/zap"
)

// StateSource exposes read-only copies of the trading state.
type StateSource interface {
	Snapshot() domain.TradeState
}

// ShutdownProbe reports whether shutdown has begun.
type ShutdownProbe interface {
	ShuttingDown() bool
}

// Server is the read-only status surface.
type Server struct {
	router    *http.ServeMux
	server    *http.Server
	state     StateSource
	tradeRepo domain.TradeRepository
	shutdown  ShutdownProbe
	hub       *Hub
	symbol    string
	logger    *zap.Logger
}

func NewServer(
	port int,
	symbol string,
	state StateSource,
	tradeRepo domain.TradeRepository,
	shutdown ShutdownProbe,
	hub *Hub,
	logger *zap.Logger,
) *Server {
	s := &Server{
		router:    http.NewServeMux(),
		state:     state,
		tradeRepo: tradeRepo,
		shutdown:  shutdown,
		hub:       hub,
		symbol:    symbol,
		logger:    logger,
	}
	s.routes()
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.router,
	}
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("GET /status", s.handleStatus)
	s.router.HandleFunc("GET /trades", s.handleTrades)
	s.router.HandleFunc("GET /history", s.handleHistory)
	s.router.HandleFunc("GET /events", s.handleEvents)
	s.router.Handle("GET /metrics", promhttp.Handler())
	if s.hub != nil {
		s.router.HandleFunc("GET /ws", s.hub.ServeWS)
	}
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Info("Starting web server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
