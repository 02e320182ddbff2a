package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vitos/crypto_trend_breakout/internal/domain"
	"github.com/vitos/crypto_trend_breakout/internal/infrastructure/metrics"
	"go.uber.org/zap"
)

type ExitReason string

const (
	ExitNone                ExitReason = ""
	ExitStoppedOut          ExitReason = "stopped_out"
	ExitTookProfit          ExitReason = "took_profit"
	ExitFlattenedExternally ExitReason = "flattened_externally"
	ExitShutdown            ExitReason = "shutdown"
	ExitPanic               ExitReason = "panic"
)

type FillOutcome string

const (
	FillFilled   FillOutcome = "filled"
	FillTimedOut FillOutcome = "timed_out"
	FillCanceled FillOutcome = "canceled"
)

// Exit modes. "local" compares the price to SL/TP and closes with a market order.
// "venue" additionally treats a missing venue position as closed externally.
const (
	ExitModeLocal = "local"
	ExitModeVenue = "venue"
)

var ErrShortDisabled = errors.New("short entries are disabled")

// OutcomeRecorder receives the realized PnL of every closed position.
type OutcomeRecorder interface {
	RecordTradeOutcome(realizedPnL float64)
}

type ExecutorConfig struct {
	Symbol          string
	StopLossPct     float64
	RiskRewardRatio float64
	OrderTimeout    time.Duration
	PollInterval    time.Duration
	ExitMode        string
	AllowShort      bool
}

// OrderExecutor places entry orders, waits for their fill and manages the exit of
// the resulting position. It is the only writer of position fields in TradeState.
type OrderExecutor struct {
	exchange domain.Exchange
	store    *TradeStateStore
	outcomes OutcomeRecorder
	journal  *EventJournal
	cfg      ExecutorConfig
	logger   *zap.Logger

	// mu serializes fills, exit checks and flattening.
	mu sync.Mutex

	timeNow func() time.Time
	sleep   func(ctx context.Context, d time.Duration) bool
}

func NewOrderExecutor(exchange domain.Exchange, store *TradeStateStore, outcomes OutcomeRecorder, journal *EventJournal, cfg ExecutorConfig, logger *zap.Logger) *OrderExecutor {
	return &OrderExecutor{
		exchange: exchange,
		store:    store,
		outcomes: outcomes,
		journal:  journal,
		cfg:      cfg,
		logger:   logger,
		timeNow:  time.Now,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// SubmitEntry places a limit order at price for qty on the given side.
func (e *OrderExecutor) SubmitEntry(ctx context.Context, side domain.Side, price, qty float64) (*domain.Order, error) {
	if side == domain.SideShort && !e.cfg.AllowShort {
		return nil, ErrShortDisabled
	}
	if price <= 0 {
		return nil, domain.NewVenueError(domain.KindValidation, "submit_entry", fmt.Errorf("%w: %f", domain.ErrInvalidPrice, price))
	}
	if qty <= 0 {
		return nil, domain.NewVenueError(domain.KindValidation, "submit_entry", fmt.Errorf("invalid quantity: %f", qty))
	}
	if e.store.InTrade() {
		return nil, ErrAlreadyInPosition
	}

	req := &domain.Order{
		ClientID:  uuid.NewString(),
		Exchange:  e.exchange.Name(),
		Symbol:    e.cfg.Symbol,
		Side:      side.EntryOrderSide(),
		Type:      domain.OrderTypeLimit,
		Size:      qty,
		Price:     price,
		CreatedAt: e.timeNow(),
	}
	order, err := e.exchange.PlaceOrder(ctx, req)
	if err != nil {
		e.logger.Error("Entry order rejected",
			zap.String("symbol", e.cfg.Symbol),
			zap.String("side", string(req.Side)),
			zap.Float64("price", price),
			zap.Float64("qty", qty),
			zap.Error(err))
		return nil, err
	}
	if order.ClientID == "" {
		order.ClientID = req.ClientID
	}
	metrics.OrdersPlaced.WithLabelValues(string(domain.OrderTypeLimit), string(req.Side)).Inc()
	e.logger.Info("Entry order submitted",
		zap.String("symbol", e.cfg.Symbol),
		zap.String("order_id", order.ID),
		zap.String("client_id", order.ClientID),
		zap.String("side", string(req.Side)),
		zap.Float64("price", price),
		zap.Float64("qty", qty))
	e.journal.Record(ctx, &domain.TradeSessionLog{
		Event:    domain.EventOrderSubmit,
		Reason:   string(side),
		Price:    price,
		Quantity: qty,
		OrderID:  order.ID,
	})
	return order, nil
}

// AwaitFill polls the order until it fills, is canceled, or the timeout elapses.
// On timeout the order is canceled; a cancel failure is logged and the outcome stays
// TimedOut.
func (e *OrderExecutor) AwaitFill(ctx context.Context, order *domain.Order, timeout time.Duration) (FillOutcome, *domain.Order) {
	deadline := e.timeNow().Add(timeout)
	last := order

	for {
		current, err := e.exchange.GetOrder(ctx, e.cfg.Symbol, order.ID)
		if err != nil {
			e.logger.Warn("Failed to poll order status", zap.String("order_id", order.ID), zap.Error(err))
		} else {
			last = current
			switch current.Status {
			case domain.OrderStatusClosed:
				return FillFilled, current
			case domain.OrderStatusCanceled:
				e.logger.Warn("Entry order canceled by venue", zap.String("order_id", order.ID))
				return FillCanceled, current
			}
		}

		if !e.timeNow().Before(deadline) {
			break
		}
		if !e.sleep(ctx, e.cfg.PollInterval) {
			break
		}
	}

	if err := e.exchange.CancelOrder(ctx, e.cfg.Symbol, order.ID); err != nil {
		e.logger.Warn("Failed to cancel unfilled order", zap.String("order_id", order.ID), zap.Error(err))
	} else {
		e.logger.Info("Unfilled order canceled", zap.String("order_id", order.ID), zap.Duration("timeout", timeout))
	}
	return FillTimedOut, last
}

// OnFilled transitions TradeState to in-trade using the fill price.
func (e *OrderExecutor) OnFilled(ctx context.Context, side domain.Side, order *domain.Order) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry := order.AvgPrice
	if entry <= 0 {
		entry = order.Price
	}
	qty := order.FilledSize
	if qty <= 0 {
		qty = order.Size
	}
	sl, tp := DeriveProtectiveLevels(entry, e.cfg.StopLossPct, e.cfg.RiskRewardRatio, side)
	now := e.timeNow()

	if err := e.store.OpenPosition(side, entry, sl, tp, qty, order.ID, now, true); err != nil {
		return err
	}

	e.logger.Info("Position opened",
		zap.String("symbol", e.cfg.Symbol),
		zap.String("side", string(side)),
		zap.Float64("entry", entry),
		zap.Float64("stop_loss", sl),
		zap.Float64("take_profit", tp),
		zap.Float64("qty", qty))
	e.journal.Record(ctx, &domain.TradeSessionLog{
		Time:     now,
		Event:    domain.EventPositionOpen,
		Reason:   string(side),
		Price:    entry,
		Quantity: qty,
		OrderID:  order.ID,
		Detail:   fmt.Sprintf("sl=%f tp=%f", sl, tp),
	})
	order.Reason = "entry"
	e.journal.SaveTrade(ctx, order)
	return nil
}

// ExecuteEntry submits, waits and transitions. It returns true only when a position
// was opened.
func (e *OrderExecutor) ExecuteEntry(ctx context.Context, side domain.Side, price, qty float64) (bool, error) {
	order, err := e.SubmitEntry(ctx, side, price, qty)
	if err != nil {
		return false, err
	}

	outcome, final := e.AwaitFill(ctx, order, e.cfg.OrderTimeout)
	metrics.EntryOutcomes.WithLabelValues(string(outcome)).Inc()
	if outcome != FillFilled {
		e.journal.Record(ctx, &domain.TradeSessionLog{
			Event:   domain.EventOrderTimeout,
			Reason:  string(outcome),
			Price:   price,
			OrderID: order.ID,
		})
		return false, nil
	}

	e.journal.Record(ctx, &domain.TradeSessionLog{
		Event:    domain.EventOrderFilled,
		Price:    final.AvgPrice,
		Quantity: final.FilledSize,
		OrderID:  final.ID,
	})
	if err := e.OnFilled(ctx, side, final); err != nil {
		return false, err
	}
	return true, nil
}

// AdoptPosition installs a position found on the venue at startup. It does not count
// toward the daily trade limit.
func (e *OrderExecutor) AdoptPosition(ctx context.Context, pos *domain.Position) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if pos == nil || pos.Size <= 0 || pos.EntryPrice <= 0 {
		return nil
	}
	sl, tp := DeriveProtectiveLevels(pos.EntryPrice, e.cfg.StopLossPct, e.cfg.RiskRewardRatio, pos.Side)
	if err := e.store.OpenPosition(pos.Side, pos.EntryPrice, sl, tp, pos.Size, "", e.timeNow(), false); err != nil {
		return err
	}
	e.logger.Warn("Adopted existing venue position",
		zap.String("symbol", pos.Symbol),
		zap.String("side", string(pos.Side)),
		zap.Float64("entry", pos.EntryPrice),
		zap.Float64("size", pos.Size),
		zap.Float64("stop_loss", sl),
		zap.Float64("take_profit", tp))
	e.journal.Record(ctx, &domain.TradeSessionLog{
		Event:    domain.EventPositionOpen,
		Reason:   "adopted",
		Price:    pos.EntryPrice,
		Quantity: pos.Size,
	})
	return nil
}

// CheckExitConditions closes the open position when price has crossed a protective
// level. It returns ExitNone when the position stays open or there is none.
func (e *OrderExecutor) CheckExitConditions(ctx context.Context, price float64) (ExitReason, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	state := e.store.Snapshot()
	if !state.InTrade {
		return ExitNone, nil
	}

	if e.cfg.ExitMode == ExitModeVenue {
		open, err := e.venueHasPosition(ctx, state.PositionSide)
		if err != nil {
			return ExitNone, err
		}
		if !open {
			exitPrice := price
			if exitPrice <= 0 {
				exitPrice = state.StopLossPrice
			}
			e.finishClose(ctx, state, exitPrice, ExitFlattenedExternally, nil)
			return ExitFlattenedExternally, nil
		}
	}

	if price <= 0 {
		return ExitNone, domain.NewVenueError(domain.KindValidation, "check_exit", fmt.Errorf("%w: %f", domain.ErrInvalidPrice, price))
	}

	var reason ExitReason
	switch state.PositionSide {
	case domain.SideShort:
		if price >= state.StopLossPrice {
			reason = ExitStoppedOut
		} else if price <= state.TakeProfitPrice {
			reason = ExitTookProfit
		}
	default:
		if price <= state.StopLossPrice {
			reason = ExitStoppedOut
		} else if price >= state.TakeProfitPrice {
			reason = ExitTookProfit
		}
	}
	if reason == ExitNone {
		return ExitNone, nil
	}
	if err := e.closePosition(ctx, state, price, reason); err != nil {
		return ExitNone, err
	}
	return reason, nil
}

func (e *OrderExecutor) venueHasPosition(ctx context.Context, side domain.Side) (bool, error) {
	positions, err := e.exchange.GetOpenPositions(ctx, e.cfg.Symbol)
	if err != nil {
		return false, err
	}
	for _, p := range positions {
		if p.Side == side && p.Size > 0 {
			return true, nil
		}
	}
	return false, nil
}

// FlattenAll closes any open position with a market order. Safe to call repeatedly.
func (e *OrderExecutor) FlattenAll(ctx context.Context, reason ExitReason) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	state := e.store.Snapshot()
	if !state.InTrade {
		return nil
	}

	price := state.EntryPrice
	if t, err := e.exchange.GetTicker(ctx, e.cfg.Symbol); err != nil {
		e.logger.Warn("Ticker unavailable while flattening, using entry price", zap.Error(err))
	} else if t.Last > 0 {
		price = t.Last
	}
	return e.closePosition(ctx, state, price, reason)
}

// closePosition sends the market close. TradeState is untouched if the venue rejects it.
func (e *OrderExecutor) closePosition(ctx context.Context, state domain.TradeState, price float64, reason ExitReason) error {
	side := state.PositionSide.CloseOrderSide()
	order, err := e.exchange.PlaceOrder(ctx, &domain.Order{
		ClientID:  uuid.NewString(),
		Exchange:  e.exchange.Name(),
		Symbol:    e.cfg.Symbol,
		Side:      side,
		Type:      domain.OrderTypeMarket,
		Size:      state.Quantity,
		Price:     price,
		Reason:    string(reason),
		CreatedAt: e.timeNow(),
	})
	if err != nil {
		e.logger.Error("Failed to close position",
			zap.String("symbol", e.cfg.Symbol),
			zap.String("reason", string(reason)),
			zap.Float64("qty", state.Quantity),
			zap.Error(err))
		return err
	}
	metrics.OrdersPlaced.WithLabelValues(string(domain.OrderTypeMarket), string(side)).Inc()

	exitPrice := price
	if order.AvgPrice > 0 {
		exitPrice = order.AvgPrice
	}
	e.finishClose(ctx, state, exitPrice, reason, order)
	return nil
}

func (e *OrderExecutor) finishClose(ctx context.Context, state domain.TradeState, exitPrice float64, reason ExitReason, order *domain.Order) {
	if _, ok := e.store.ClosePosition(); !ok {
		return
	}
	pnl := RealizedPnL(state.PositionSide, state.EntryPrice, exitPrice, state.Quantity)
	if e.outcomes != nil {
		e.outcomes.RecordTradeOutcome(pnl)
	}
	metrics.Exits.WithLabelValues(string(reason)).Inc()

	now := e.timeNow()
	e.logger.Info("Position closed",
		zap.String("symbol", e.cfg.Symbol),
		zap.String("reason", string(reason)),
		zap.Float64("entry", state.EntryPrice),
		zap.Float64("exit", exitPrice),
		zap.Float64("qty", state.Quantity),
		zap.Float64("realized_pnl", pnl))

	var orderID string
	if order != nil {
		orderID = order.ID
		order.RealizedPnL = pnl
		e.journal.SaveTrade(ctx, order)
	}
	e.journal.SavePositionHistory(ctx, &domain.PositionHistory{
		Exchange:    e.exchange.Name(),
		Symbol:      e.cfg.Symbol,
		Side:        state.PositionSide,
		Size:        state.Quantity,
		EntryPrice:  state.EntryPrice,
		ExitPrice:   exitPrice,
		RealizedPnL: pnl,
		Reason:      string(reason),
		OpenedAt:    state.OpenedAt,
		ClosedAt:    now,
	})
	e.journal.Record(ctx, &domain.TradeSessionLog{
		Time:     now,
		Event:    domain.EventPositionClose,
		Reason:   string(reason),
		Price:    exitPrice,
		Quantity: state.Quantity,
		OrderID:  orderID,
		Detail:   fmt.Sprintf("pnl=%f", pnl),
	})
}
