package usecase

import (
	"context"
	"time"

	"github.com/vitos/crypto_trend_breakout/internal/domain"
	"go.uber.org/zap"
)

// EventJournal writes lifecycle events to the trade repository and fans them out to
// publishers. Sink failures are logged and never propagate into trading decisions.
type EventJournal struct {
	repo       domain.TradeRepository
	publishers []domain.EventPublisher
	symbol     string
	logger     *zap.Logger
	timeNow    func() time.Time
}

func NewEventJournal(repo domain.TradeRepository, symbol string, logger *zap.Logger, publishers ...domain.EventPublisher) *EventJournal {
	return &EventJournal{
		repo:       repo,
		publishers: publishers,
		symbol:     symbol,
		logger:     logger,
		timeNow:    time.Now,
	}
}

func (j *EventJournal) Record(ctx context.Context, ev *domain.TradeSessionLog) {
	if j == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = j.timeNow()
	}
	if ev.Symbol == "" {
		ev.Symbol = j.symbol
	}

	if j.repo != nil {
		if err := j.repo.SaveTradeSessionLog(ctx, ev); err != nil {
			j.logger.Warn("Failed to journal event", zap.String("event", string(ev.Event)), zap.Error(err))
		}
	}
	for _, p := range j.publishers {
		if err := p.Publish(ctx, ev); err != nil {
			j.logger.Warn("Failed to publish event", zap.String("event", string(ev.Event)), zap.Error(err))
		}
	}
}

func (j *EventJournal) SaveTrade(ctx context.Context, order *domain.Order) {
	if j == nil || j.repo == nil {
		return
	}
	if err := j.repo.SaveTrade(ctx, order); err != nil {
		j.logger.Warn("Failed to save trade", zap.String("order_id", order.ID), zap.Error(err))
	}
}

func (j *EventJournal) SavePositionHistory(ctx context.Context, h *domain.PositionHistory) {
	if j == nil || j.repo == nil {
		return
	}
	if err := j.repo.SavePositionHistory(ctx, h); err != nil {
		j.logger.Warn("Failed to save position history", zap.Error(err))
	}
}
