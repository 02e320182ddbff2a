package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vitos/crypto_trend_breakout/internal/domain"
	"github.com/vitos/crypto_trend_breakout/internal/infrastructure/metrics"
	"go.uber.org/zap"
)

type TraderConfig struct {
	Symbol          string
	QuoteCurrency   string
	Timeframe       time.Duration
	CandleLimit     int
	MinCandles      int
	Size            float64
	SizeUnit        string
	QtyDecimals     int32
	MonitorInterval time.Duration
	ErrorBackoff    time.Duration
}

// Trader is the run loop: wait for a candle, validate, evaluate, gate, execute.
type Trader struct {
	exchange  domain.Exchange
	evaluator domain.SignalEvaluator
	store     *TradeStateStore
	risk      *RiskManager
	executor  *OrderExecutor
	scheduler *Scheduler
	journal   *EventJournal
	cfg       TraderConfig
	logger    *zap.Logger

	timeNow func() time.Time
}

func NewTrader(
	exchange domain.Exchange,
	evaluator domain.SignalEvaluator,
	store *TradeStateStore,
	risk *RiskManager,
	executor *OrderExecutor,
	scheduler *Scheduler,
	journal *EventJournal,
	cfg TraderConfig,
	logger *zap.Logger,
) *Trader {
	return &Trader{
		exchange:  exchange,
		evaluator: evaluator,
		store:     store,
		risk:      risk,
		executor:  executor,
		scheduler: scheduler,
		journal:   journal,
		cfg:       cfg,
		logger:    logger,
		timeNow:   time.Now,
	}
}

// CheckStartup verifies credentials and connectivity with a balance fetch.
func (t *Trader) CheckStartup(ctx context.Context) error {
	balances, err := t.exchange.GetBalance(ctx)
	if err != nil {
		return fmt.Errorf("startup balance check: %w", err)
	}
	t.logger.Info("Venue reachable",
		zap.String("exchange", t.exchange.Name()),
		zap.Float64(t.cfg.QuoteCurrency, balances[t.cfg.QuoteCurrency]))
	return nil
}

// adoptTolerance lets a holding slightly below one order's quantity, after fees taken
// in the base asset, still count as the bot's position.
const adoptTolerance = 0.01

// Reconcile adopts a position already open on the venue so a restart never
// doubles exposure. At most one trade's quantity is adopted; holdings smaller than
// that are left alone.
func (t *Trader) Reconcile(ctx context.Context) error {
	positions, err := t.exchange.GetOpenPositions(ctx, t.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("reconcile positions: %w", err)
	}
	for _, p := range positions {
		if p.Size <= 0 {
			continue
		}
		adopt := *p
		if want := PositionSize(t.cfg.Size, t.cfg.SizeUnit, p.EntryPrice, t.cfg.QtyDecimals); want > 0 {
			if p.Size < want*(1-adoptTolerance) {
				t.logger.Info("Venue holding is smaller than one trade, not adopting",
					zap.String("symbol", t.cfg.Symbol),
					zap.Float64("size", p.Size),
					zap.Float64("trade_size", want))
				continue
			}
			adopt.Size = min(p.Size, want)
		}
		return t.executor.AdoptPosition(ctx, &adopt)
	}
	t.logger.Info("No open venue position", zap.String("symbol", t.cfg.Symbol))
	return nil
}

// Run loops until ctx is canceled, then flattens any open position.
func (t *Trader) Run(ctx context.Context) {
	t.logger.Info("Trader started",
		zap.String("symbol", t.cfg.Symbol),
		zap.Duration("timeframe", t.cfg.Timeframe))

	for {
		t.risk.ResetIfNewDay(ctx, t.timeNow())

		var ok bool
		if t.store.InTrade() {
			ok = t.scheduler.Wait(ctx, t.cfg.MonitorInterval)
		} else {
			ok = t.scheduler.WaitForNextCandle(ctx)
		}
		if !ok || ctx.Err() != nil {
			break
		}

		// Venue calls inside an iteration are not interrupted by shutdown.
		err := t.RunIteration(context.WithoutCancel(ctx))
		if err == nil {
			continue
		}

		kind := domain.KindOf(err)
		metrics.IterationErrors.WithLabelValues(kind.String()).Inc()
		if kind == domain.KindValidation {
			t.logger.Warn("Skipping iteration", zap.Error(err))
			continue
		}
		t.logger.Error("Iteration failed, backing off",
			zap.String("kind", kind.String()),
			zap.Duration("backoff", t.cfg.ErrorBackoff),
			zap.Error(err))
		t.journal.Record(ctx, &domain.TradeSessionLog{Event: domain.EventError, Reason: kind.String(), Detail: err.Error()})
		if !t.scheduler.Wait(ctx, t.cfg.ErrorBackoff) {
			break
		}
	}

	t.logger.Info("Trader stopping")
	flattenCtx, cancel := context.WithTimeout(context.Background(), shutdownFlattenTimeout)
	defer cancel()
	if err := t.executor.FlattenAll(flattenCtx, ExitShutdown); err != nil {
		t.logger.Error("Failed to flatten on exit", zap.Error(err))
	}
}

// RunIteration performs one decision cycle.
func (t *Trader) RunIteration(ctx context.Context) error {
	candles, err := t.exchange.GetCandles(ctx, t.cfg.Symbol, t.cfg.Timeframe, t.cfg.CandleLimit)
	if err != nil {
		return err
	}
	if err := domain.ValidateCandles(candles, t.cfg.MinCandles); err != nil {
		return err
	}
	last := candles[len(candles)-1]

	if t.risk.ObservePrice(ctx, last.Close) {
		return nil
	}

	if t.store.InTrade() {
		return t.manageOpenPosition(ctx, last.Close)
	}

	signal, err := t.evaluator.Evaluate(candles)
	if err != nil {
		return err
	}
	t.logger.Debug("Signal evaluated",
		zap.String("side", string(signal.Side)),
		zap.Float64("price", signal.Price),
		zap.Float64("adx", signal.Strength))
	if !signal.Entry() {
		return nil
	}
	t.logger.Info("Breakout signal",
		zap.String("symbol", t.cfg.Symbol),
		zap.String("side", string(signal.Side)),
		zap.Float64("price", signal.Price),
		zap.Float64("adx", signal.Strength))

	t.risk.ResetIfNewDay(ctx, t.timeNow())
	decision := t.risk.CheckPreTradeGates(ctx, signal.Price)
	if !decision.Allowed {
		return nil
	}

	qty := PositionSize(t.cfg.Size, t.cfg.SizeUnit, signal.Price, t.cfg.QtyDecimals)
	opened, err := t.executor.ExecuteEntry(ctx, signal.Side, signal.Price, qty)
	if errors.Is(err, ErrShortDisabled) || errors.Is(err, ErrAlreadyInPosition) {
		t.logger.Warn("Entry skipped", zap.Error(err))
		return nil
	}
	if err != nil {
		return err
	}
	if !opened {
		t.logger.Info("Entry not filled, staying flat", zap.String("symbol", t.cfg.Symbol))
	}
	return nil
}

func (t *Trader) manageOpenPosition(ctx context.Context, fallback float64) error {
	price := fallback
	ticker, err := t.exchange.GetTicker(ctx, t.cfg.Symbol)
	if err != nil {
		return err
	}
	if ticker.Last > 0 {
		price = ticker.Last
	}
	reason, err := t.executor.CheckExitConditions(ctx, price)
	if err != nil {
		return err
	}
	if reason != ExitNone {
		t.logger.Info("Position exited", zap.String("reason", string(reason)), zap.Float64("price", price))
	}
	return nil
}
