package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/crypto_trend_breakout/internal/domain"
	"go.uber.org/zap"
)

type recordingPublisher struct {
	events []*domain.TradeSessionLog
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, ev *domain.TradeSessionLog) error {
	p.events = append(p.events, ev)
	return p.err
}

type failingRepo struct {
	memRepo
}

func (r *failingRepo) SaveTradeSessionLog(ctx context.Context, l *domain.TradeSessionLog) error {
	return errors.New("disk full")
}

func TestEventJournal_RecordFillsDefaultsAndFansOut(t *testing.T) {
	repo := &memRepo{}
	pub := &recordingPublisher{}
	j := NewEventJournal(repo, "ETH/USD", zap.NewNop(), pub)
	j.timeNow = func() time.Time { return testNow }

	j.Record(context.Background(), &domain.TradeSessionLog{Event: domain.EventPanic, Reason: "drop"})

	require.Len(t, repo.events, 1)
	ev := repo.events[0]
	assert.Equal(t, testNow, ev.Time)
	assert.Equal(t, "ETH/USD", ev.Symbol)
	require.Len(t, pub.events, 1)
	assert.Same(t, ev, pub.events[0])
}

func TestEventJournal_SinkFailuresAreSwallowed(t *testing.T) {
	bad := &recordingPublisher{err: errors.New("nats down")}
	good := &recordingPublisher{}
	j := NewEventJournal(&failingRepo{}, "ETH/USD", zap.NewNop(), bad, good)

	assert.NotPanics(t, func() {
		j.Record(context.Background(), &domain.TradeSessionLog{Event: domain.EventShutdown})
	})
	assert.Len(t, bad.events, 1)
	assert.Len(t, good.events, 1, "a failing publisher does not stop the rest")
}

func TestEventJournal_NilIsNoop(t *testing.T) {
	var j *EventJournal
	assert.NotPanics(t, func() {
		j.Record(context.Background(), &domain.TradeSessionLog{Event: domain.EventError})
		j.SaveTrade(context.Background(), &domain.Order{ID: "x"})
		j.SavePositionHistory(context.Background(), &domain.PositionHistory{})
	})
}
