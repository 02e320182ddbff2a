package usecase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/crypto_trend_breakout/internal/domain"
)

func TestTradeStateStore_OpenAndClose(t *testing.T) {
	s := NewTradeStateStore(testNow, time.UTC)

	require.NoError(t, s.OpenPosition(domain.SideLong, 100, 97.3, 108.1, 0.5, "o-1", testNow, true))
	state := s.Snapshot()
	assert.True(t, state.InTrade)
	assert.Equal(t, 1, state.DailyTradeCount)
	assert.Equal(t, testNow, state.LastTradeTime)

	err := s.OpenPosition(domain.SideLong, 100, 97.3, 108.1, 0.5, "o-2", testNow, true)
	assert.ErrorIs(t, err, ErrAlreadyInPosition)

	prev, ok := s.ClosePosition()
	require.True(t, ok)
	assert.Equal(t, "o-1", prev.EntryOrderID)

	state = s.Snapshot()
	assert.False(t, state.InTrade)
	assert.NoError(t, state.CheckInvariants())
	assert.Equal(t, 1, state.DailyTradeCount, "closing keeps the daily count")

	_, ok = s.ClosePosition()
	assert.False(t, ok)
}

func TestTradeStateStore_OpenRejectsBadLevels(t *testing.T) {
	s := NewTradeStateStore(testNow, time.UTC)

	err := s.OpenPosition(domain.SideLong, 100, 101, 108, 0.5, "o-1", testNow, true)
	require.Error(t, err)
	assert.False(t, s.InTrade())
	assert.Equal(t, 0, s.Snapshot().DailyTradeCount)
}

func TestTradeStateStore_AdoptDoesNotCount(t *testing.T) {
	s := NewTradeStateStore(testNow, time.UTC)

	require.NoError(t, s.OpenPosition(domain.SideLong, 100, 97.3, 108.1, 0.5, "", testNow, false))
	assert.True(t, s.InTrade())
	assert.Equal(t, 0, s.Snapshot().DailyTradeCount)
}

func TestTradeStateStore_RecordOutcomeOnlyAddsLosses(t *testing.T) {
	s := NewTradeStateStore(testNow, time.UTC)

	s.RecordOutcome(-5)
	s.RecordOutcome(12)
	s.RecordOutcome(-2.5)

	state := s.Snapshot()
	assert.InDelta(t, 7.5, state.DailyRealizedLoss, 1e-9)
	assert.Equal(t, 3, state.DailyClosedTrades)
}

func TestTradeStateStore_ResetIfNewDay(t *testing.T) {
	s := NewTradeStateStore(testNow, time.UTC)
	require.NoError(t, s.OpenPosition(domain.SideLong, 100, 97.3, 108.1, 0.5, "o-1", testNow, true))
	s.RecordOutcome(-4)

	assert.False(t, s.ResetIfNewDay(testNow.Add(11*time.Hour)), "same calendar day")
	assert.False(t, s.ResetIfNewDay(testNow.Add(-48*time.Hour)), "clock moved backwards")

	next := time.Date(2024, 3, 11, 0, 1, 0, 0, time.UTC)
	require.True(t, s.ResetIfNewDay(next))

	state := s.Snapshot()
	assert.Zero(t, state.DailyTradeCount)
	assert.Zero(t, state.DailyRealizedLoss)
	assert.Zero(t, state.DailyClosedTrades)
	assert.Equal(t, next, state.LastResetTime)
	assert.True(t, state.InTrade, "an open position survives the reset")

	assert.False(t, s.ResetIfNewDay(next.Add(time.Hour)))
}

func TestTradeStateStore_ResetUsesConfiguredZone(t *testing.T) {
	est := time.FixedZone("EST", -5*60*60)
	s := NewTradeStateStore(testNow, est)

	// 02:00 UTC on the 11th is still the 10th in EST.
	assert.False(t, s.ResetIfNewDay(time.Date(2024, 3, 11, 2, 0, 0, 0, time.UTC)))
	assert.True(t, s.ResetIfNewDay(time.Date(2024, 3, 11, 6, 0, 0, 0, time.UTC)))
}

func TestTradeStateStore_PanicLatchIsSticky(t *testing.T) {
	s := NewTradeStateStore(testNow, time.UTC)

	assert.True(t, s.LatchPanic("drop"))
	assert.False(t, s.LatchPanic("again"))
	assert.True(t, s.ResetIfNewDay(testNow.Add(48*time.Hour)))

	state := s.Snapshot()
	assert.True(t, state.PanicMode)
	assert.Equal(t, "drop", state.PanicReason)
}
