package usecase

import (
	"context"
	"time"

	"github.com/vitos/crypto_trend_breakout/internal/domain"
	"go.uber.org/zap"
)

const (
	warmupAttempts = 3
	warmupDelay    = 5 * time.Second
)

// Scheduler aligns the run loop to candle closes.
type Scheduler struct {
	exchange  domain.Exchange
	timeframe time.Duration
	lead      time.Duration // wake this early to warm up the venue connection
	settle    time.Duration // wait this long past the boundary so the candle is final
	logger    *zap.Logger

	timeNow func() time.Time
}

func NewScheduler(exchange domain.Exchange, timeframe, lead, settle time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		exchange:  exchange,
		timeframe: timeframe,
		lead:      lead,
		settle:    settle,
		logger:    logger,
		timeNow:   time.Now,
	}
}

// NextCandleBoundary is the first multiple of tf since the Unix epoch strictly after
// now. Kraken aligns candles the same way, so weekly candles open on Thursday.
func NextCandleBoundary(now time.Time, tf time.Duration) time.Time {
	step := int64(tf)
	n := now.UnixNano()
	return time.Unix(0, n-n%step+step).In(now.Location())
}

// Wait blocks for d or until ctx is done. It reports whether the full duration elapsed.
func (s *Scheduler) Wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	return sleepCtx(ctx, d)
}

// WaitForNextCandle sleeps until the next candle has closed. Returns false if
// interrupted.
func (s *Scheduler) WaitForNextCandle(ctx context.Context) bool {
	now := s.timeNow()
	boundary := NextCandleBoundary(now, s.timeframe)
	s.logger.Info("Waiting for next candle",
		zap.Time("boundary", boundary),
		zap.Duration("in", boundary.Sub(now)))

	if wake := boundary.Add(-s.lead); s.lead > 0 && wake.After(now) {
		if !s.Wait(ctx, wake.Sub(now)) {
			return false
		}
		s.Warmup(ctx)
	}
	return s.Wait(ctx, boundary.Add(s.settle).Sub(s.timeNow()))
}

// Warmup pings the venue ahead of the candle close. Failures are logged only; the
// iteration itself surfaces a dead connection.
func (s *Scheduler) Warmup(ctx context.Context) bool {
	for attempt := 1; attempt <= warmupAttempts; attempt++ {
		err := s.exchange.Ping(ctx)
		if err == nil {
			s.logger.Debug("Venue connection warm", zap.Int("attempt", attempt))
			return true
		}
		s.logger.Warn("Venue ping failed", zap.Int("attempt", attempt), zap.Error(err))
		if attempt < warmupAttempts && !s.Wait(ctx, warmupDelay) {
			return false
		}
	}
	return false
}
