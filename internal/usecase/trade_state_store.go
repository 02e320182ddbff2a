package usecase

import (
	"errors"
	"sync"
	"time"

	"github.com/vitos/crypto_trend_breakout/internal/domain"
	"github.com/vitos/crypto_trend_breakout/internal/infrastructure/metrics"
)

var ErrAlreadyInPosition = errors.New("position already open")

// TradeStateStore owns the single TradeState of the process.
// All mutation goes through its methods; readers get copies.
type TradeStateStore struct {
	mu    sync.Mutex
	state domain.TradeState
	loc   *time.Location
}

func NewTradeStateStore(now time.Time, loc *time.Location) *TradeStateStore {
	if loc == nil {
		loc = time.UTC
	}
	return &TradeStateStore{
		state: domain.TradeState{LastResetTime: now},
		loc:   loc,
	}
}

func (s *TradeStateStore) Snapshot() domain.TradeState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *TradeStateStore) InTrade() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.InTrade
}

func (s *TradeStateStore) PanicMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.PanicMode
}

// OpenPosition records a filled entry. countTrade is false when adopting a position
// found on the venue at startup.
func (s *TradeStateStore) OpenPosition(side domain.Side, entry, stopLoss, takeProfit, qty float64, orderID string, at time.Time, countTrade bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.InTrade {
		return ErrAlreadyInPosition
	}

	next := s.state
	next.InTrade = true
	next.PositionSide = side
	next.EntryPrice = entry
	next.StopLossPrice = stopLoss
	next.TakeProfitPrice = takeProfit
	next.Quantity = qty
	next.EntryOrderID = orderID
	next.OpenedAt = at
	if countTrade {
		next.DailyTradeCount++
		next.LastTradeTime = at
	}
	if err := next.CheckInvariants(); err != nil {
		return err
	}

	s.state = next
	metrics.SetInPosition(true)
	metrics.DailyTrades.Set(float64(s.state.DailyTradeCount))
	return nil
}

// ClosePosition clears the position fields and returns the state as it was before
// the close. ok is false when there was nothing to close.
func (s *TradeStateStore) ClosePosition() (prev domain.TradeState, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.InTrade {
		return s.state, false
	}
	prev = s.state
	s.state.InTrade = false
	s.state.PositionSide = ""
	s.state.EntryPrice = 0
	s.state.StopLossPrice = 0
	s.state.TakeProfitPrice = 0
	s.state.Quantity = 0
	s.state.EntryOrderID = ""
	s.state.OpenedAt = time.Time{}
	metrics.SetInPosition(false)
	return prev, true
}

// ResetIfNewDay zeroes the daily counters when now falls on a later calendar day than
// the last reset. A clock that moved backwards never triggers a reset.
func (s *TradeStateStore) ResetIfNewDay(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !dayOf(now, s.loc).After(dayOf(s.state.LastResetTime, s.loc)) {
		return false
	}
	s.state.DailyRealizedLoss = 0
	s.state.DailyTradeCount = 0
	s.state.DailyClosedTrades = 0
	s.state.LastResetTime = now
	metrics.DailyRealizedLoss.Set(0)
	metrics.DailyTrades.Set(0)
	return true
}

// RecordOutcome counts a closed trade; only losses feed the daily loss accumulator.
func (s *TradeStateStore) RecordOutcome(realizedPnL float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.DailyClosedTrades++
	if realizedPnL < 0 {
		s.state.DailyRealizedLoss += -realizedPnL
	}
	metrics.DailyRealizedLoss.Set(s.state.DailyRealizedLoss)
}

// LatchPanic sets the sticky panic flag. It reports whether this call set it.
func (s *TradeStateStore) LatchPanic(reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.PanicMode {
		return false
	}
	s.state.PanicMode = true
	s.state.PanicReason = reason
	metrics.SetPanicMode(true)
	return true
}

func dayOf(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
