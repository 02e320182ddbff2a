package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vitos/crypto_trend_breakout/internal/domain"
	"github.com/vitos/crypto_trend_breakout/internal/infrastructure/metrics"
	"go.uber.org/zap"
)

type DenyReason string

const (
	DenyNone                DenyReason = ""
	DenyPanicMode           DenyReason = "panic_mode"
	DenyMaxTrades           DenyReason = "max_daily_trades"
	DenyDailyLoss           DenyReason = "max_daily_loss"
	DenyInvalidPrice        DenyReason = "invalid_price"
	DenySlippage            DenyReason = "slippage"
	DenyInsufficientBalance DenyReason = "insufficient_balance"
	DenyAuthError           DenyReason = "auth_error"
	DenyVenueError          DenyReason = "venue_error"
)

type GateDecision struct {
	Allowed     bool
	Reason      DenyReason
	Detail      string
	LivePrice   float64
	Slippage    float64
	FreeBalance float64
}

func allow(d GateDecision) GateDecision {
	d.Allowed = true
	d.Reason = DenyNone
	return d
}

func deny(reason DenyReason, detail string) GateDecision {
	return GateDecision{Reason: reason, Detail: detail}
}

// Flattener closes any open position. Implemented by OrderExecutor.
type Flattener interface {
	FlattenAll(ctx context.Context, reason ExitReason) error
}

type RiskLimits struct {
	Symbol          string
	QuoteCurrency   string
	MaxTradesPerDay int
	MaxDailyLoss    float64
	MaxSlippage     float64
	MinBalance      float64
	PanicDropPct    float64 // 0 disables the sudden-drop breaker
}

// RiskManager owns the daily limits, the slippage and balance gates and the panic latch.
type RiskManager struct {
	store     *TradeStateStore
	exchange  domain.Exchange
	flattener Flattener
	journal   *EventJournal
	limits    RiskLimits
	logger    *zap.Logger

	lastPrice float64
}

func NewRiskManager(store *TradeStateStore, exchange domain.Exchange, journal *EventJournal, limits RiskLimits, logger *zap.Logger) *RiskManager {
	return &RiskManager{
		store:    store,
		exchange: exchange,
		journal:  journal,
		limits:   limits,
		logger:   logger,
	}
}

func (r *RiskManager) SetFlattener(f Flattener) {
	r.flattener = f
}

// ResetIfNewDay must run before every gate evaluation.
func (r *RiskManager) ResetIfNewDay(ctx context.Context, now time.Time) bool {
	if !r.store.ResetIfNewDay(now) {
		return false
	}
	r.logger.Info("Daily metrics reset", zap.Time("at", now))
	r.journal.Record(ctx, &domain.TradeSessionLog{Time: now, Event: domain.EventDailyReset})
	return true
}

// CheckPreTradeGates evaluates the gates in order and stops at the first failure.
// A deny has no side effects on TradeState.
func (r *RiskManager) CheckPreTradeGates(ctx context.Context, candidatePrice float64) GateDecision {
	d := r.evaluateGates(ctx, candidatePrice)

	result := "allow"
	if !d.Allowed {
		result = "deny"
	}
	metrics.GateDecisions.WithLabelValues(result, string(d.Reason)).Inc()

	fields := []zap.Field{
		zap.String("symbol", r.limits.Symbol),
		zap.Float64("candidate_price", candidatePrice),
		zap.Float64("live_price", d.LivePrice),
		zap.Float64("slippage", d.Slippage),
		zap.Float64("free_balance", d.FreeBalance),
	}
	if d.Allowed {
		r.logger.Info("Pre-trade gates passed", fields...)
	} else {
		r.logger.Warn("Pre-trade gate denied entry", append(fields, zap.String("reason", string(d.Reason)), zap.String("detail", d.Detail))...)
	}
	r.journal.Record(ctx, &domain.TradeSessionLog{
		Event:  domain.EventGateDecision,
		Reason: fmt.Sprintf("%s%s", result, reasonSuffix(d.Reason)),
		Price:  candidatePrice,
		Detail: d.Detail,
	})
	return d
}

func reasonSuffix(r DenyReason) string {
	if r == DenyNone {
		return ""
	}
	return ":" + string(r)
}

func (r *RiskManager) evaluateGates(ctx context.Context, candidatePrice float64) GateDecision {
	state := r.store.Snapshot()

	if state.PanicMode {
		return deny(DenyPanicMode, state.PanicReason)
	}
	if state.DailyTradeCount >= r.limits.MaxTradesPerDay {
		return deny(DenyMaxTrades, fmt.Sprintf("%d trades today, limit %d", state.DailyTradeCount, r.limits.MaxTradesPerDay))
	}
	if state.DailyRealizedLoss >= r.limits.MaxDailyLoss {
		return deny(DenyDailyLoss, fmt.Sprintf("lost %.2f today, limit %.2f", state.DailyRealizedLoss, r.limits.MaxDailyLoss))
	}
	if candidatePrice <= 0 {
		return deny(DenyInvalidPrice, fmt.Sprintf("candidate price %f", candidatePrice))
	}

	var d GateDecision
	ticker, err := r.exchange.GetTicker(ctx, r.limits.Symbol)
	if err != nil {
		return venueDeny(err)
	}
	if ticker.Last <= 0 {
		return deny(DenyInvalidPrice, fmt.Sprintf("live price %f", ticker.Last))
	}
	slip := Slippage(ticker.Last, candidatePrice)
	d.LivePrice = ticker.Last
	d.Slippage = slip.InexactFloat64()
	if slip.GreaterThan(decimal.NewFromFloat(r.limits.MaxSlippage)) {
		d.Reason, d.Detail = DenySlippage, fmt.Sprintf("slippage %s > %v", slip.StringFixed(6), r.limits.MaxSlippage)
		return d
	}

	balances, err := r.exchange.GetBalance(ctx)
	if err != nil {
		vd := venueDeny(err)
		vd.LivePrice, vd.Slippage = d.LivePrice, d.Slippage
		return vd
	}
	d.FreeBalance = balances[r.limits.QuoteCurrency]
	if d.FreeBalance < r.limits.MinBalance {
		d.Reason, d.Detail = DenyInsufficientBalance, fmt.Sprintf("%s %.2f < %.2f", r.limits.QuoteCurrency, d.FreeBalance, r.limits.MinBalance)
		return d
	}
	return allow(d)
}

func venueDeny(err error) GateDecision {
	switch domain.KindOf(err) {
	case domain.KindAuthentication:
		return deny(DenyAuthError, err.Error())
	case domain.KindInsufficientBalance:
		return deny(DenyInsufficientBalance, err.Error())
	default:
		return deny(DenyVenueError, err.Error())
	}
}

// RecordTradeOutcome counts a closed trade. Gains never reduce the loss accumulator.
func (r *RiskManager) RecordTradeOutcome(realizedPnL float64) {
	r.store.RecordOutcome(realizedPnL)
	state := r.store.Snapshot()
	r.logger.Info("Trade outcome recorded",
		zap.Float64("realized_pnl", realizedPnL),
		zap.Float64("daily_realized_loss", state.DailyRealizedLoss),
		zap.Int("daily_closed_trades", state.DailyClosedTrades))
}

// ObservePrice feeds the sudden-drop breaker. It reports whether this observation
// triggered panic mode.
func (r *RiskManager) ObservePrice(ctx context.Context, price float64) bool {
	if price <= 0 {
		return false
	}
	prev := r.lastPrice
	r.lastPrice = price
	if r.limits.PanicDropPct <= 0 || prev <= 0 || price >= prev {
		return false
	}

	drop := decimal.NewFromFloat(prev).Sub(decimal.NewFromFloat(price)).Div(decimal.NewFromFloat(prev))
	if !drop.GreaterThan(decimal.NewFromFloat(r.limits.PanicDropPct)) {
		return false
	}
	r.TriggerPanic(ctx, fmt.Sprintf("price dropped %s%% (%f -> %f)", drop.Mul(decimal.NewFromInt(100)).StringFixed(2), prev, price))
	return true
}

// TriggerPanic latches panic mode for the rest of the run and flattens.
func (r *RiskManager) TriggerPanic(ctx context.Context, reason string) {
	if r.store.LatchPanic(reason) {
		r.logger.Error("PANIC: mode latched, no new entries until restart",
			zap.String("symbol", r.limits.Symbol),
			zap.String("reason", reason))
		r.journal.Record(ctx, &domain.TradeSessionLog{Event: domain.EventPanic, Reason: reason})
	}
	if r.flattener == nil {
		return
	}
	if err := r.flattener.FlattenAll(ctx, ExitPanic); err != nil {
		r.logger.Error("PANIC: flatten failed", zap.Error(err))
	}
}
