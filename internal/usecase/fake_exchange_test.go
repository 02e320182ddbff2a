package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vitos/crypto_trend_breakout/internal/domain"
	"go.uber.org/zap"
)

// fakeExchange is a scriptable in-memory venue.
type fakeExchange struct {
	mu sync.Mutex

	candles    []domain.Candle
	candlesErr error
	ticker     domain.Ticker
	tickerErr  error
	balances   map[string]float64
	balanceErr error
	positions  []*domain.Position
	placeErr   error

	// orderStatus is returned by GetOrder; empty means closed (filled).
	orderStatus domain.OrderStatus

	placed       []*domain.Order
	canceled     []string
	getOrderHits int
	tickerCalls  int
	balanceCalls int
	pingErrs     []error
	pings        int
}

func newFakeExchange() *fakeExchange {
	return &fakeExchange{
		ticker:   domain.Ticker{Symbol: "ETH/USD", Bid: 100, Ask: 100, Last: 100},
		balances: map[string]float64{"USD": 1000},
	}
}

func (f *fakeExchange) Name() string { return "fake" }

func (f *fakeExchange) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pings++
	if len(f.pingErrs) > 0 {
		err := f.pingErrs[0]
		f.pingErrs = f.pingErrs[1:]
		return err
	}
	return nil
}

func (f *fakeExchange) GetCandles(ctx context.Context, symbol string, tf time.Duration, limit int) ([]domain.Candle, error) {
	return f.candles, f.candlesErr
}

func (f *fakeExchange) GetTicker(ctx context.Context, symbol string) (*domain.Ticker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tickerCalls++
	if f.tickerErr != nil {
		return nil, f.tickerErr
	}
	t := f.ticker
	return &t, nil
}

func (f *fakeExchange) GetBalance(ctx context.Context) (map[string]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balanceCalls++
	return f.balances, f.balanceErr
}

func (f *fakeExchange) PlaceOrder(ctx context.Context, o *domain.Order) (*domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.placeErr != nil {
		return nil, f.placeErr
	}
	cp := *o
	cp.ID = fmt.Sprintf("ord-%d", len(f.placed)+1)
	cp.Status = domain.OrderStatusOpen
	if o.Type == domain.OrderTypeMarket {
		cp.Status = domain.OrderStatusClosed
		cp.FilledSize = o.Size
		cp.AvgPrice = o.Price
	}
	f.placed = append(f.placed, &cp)
	out := cp
	return &out, nil
}

func (f *fakeExchange) GetOrder(ctx context.Context, symbol, id string) (*domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getOrderHits++
	for _, o := range f.placed {
		if o.ID != id {
			continue
		}
		cp := *o
		switch f.orderStatus {
		case "", domain.OrderStatusClosed:
			cp.Status = domain.OrderStatusClosed
			cp.FilledSize = cp.Size
			cp.AvgPrice = cp.Price
		default:
			cp.Status = f.orderStatus
		}
		return &cp, nil
	}
	return nil, domain.NewVenueError(domain.KindExchange, "get_order", fmt.Errorf("unknown order %s", id))
}

func (f *fakeExchange) CancelOrder(ctx context.Context, symbol, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled = append(f.canceled, id)
	return nil
}

func (f *fakeExchange) GetOpenPositions(ctx context.Context, symbol string) ([]*domain.Position, error) {
	return f.positions, nil
}

func (f *fakeExchange) marketOrders() []*domain.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Order
	for _, o := range f.placed {
		if o.Type == domain.OrderTypeMarket {
			out = append(out, o)
		}
	}
	return out
}

// memRepo records journal writes.
type memRepo struct {
	mu      sync.Mutex
	trades  []*domain.Order
	history []*domain.PositionHistory
	events  []*domain.TradeSessionLog
}

func (r *memRepo) SaveTrade(ctx context.Context, o *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trades = append(r.trades, o)
	return nil
}

func (r *memRepo) ListTrades(ctx context.Context, limit int) ([]*domain.Order, error) {
	return r.trades, nil
}

func (r *memRepo) SavePositionHistory(ctx context.Context, h *domain.PositionHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, h)
	return nil
}

func (r *memRepo) ListPositionHistory(ctx context.Context, limit int) ([]*domain.PositionHistory, error) {
	return r.history, nil
}

func (r *memRepo) SaveTradeSessionLog(ctx context.Context, l *domain.TradeSessionLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, l)
	return nil
}

func (r *memRepo) ListTradeSessionLogs(ctx context.Context, limit int) ([]*domain.TradeSessionLog, error) {
	return r.events, nil
}

func (r *memRepo) count(ev domain.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Event == ev {
			n++
		}
	}
	return n
}

var testNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

type harness struct {
	ex       *fakeExchange
	repo     *memRepo
	store    *TradeStateStore
	journal  *EventJournal
	risk     *RiskManager
	executor *OrderExecutor
}

func defaultLimits() RiskLimits {
	return RiskLimits{
		Symbol:          "ETH/USD",
		QuoteCurrency:   "USD",
		MaxTradesPerDay: 3,
		MaxDailyLoss:    20,
		MaxSlippage:     0.002,
		MinBalance:      10,
	}
}

func defaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		Symbol:          "ETH/USD",
		StopLossPct:     0.027,
		RiskRewardRatio: 3,
		OrderTimeout:    60 * time.Second,
		PollInterval:    2 * time.Second,
		ExitMode:        ExitModeLocal,
	}
}

func newHarness(limits RiskLimits, cfg ExecutorConfig) *harness {
	h := &harness{ex: newFakeExchange(), repo: &memRepo{}}
	logger := zap.NewNop()
	h.store = NewTradeStateStore(testNow, time.UTC)
	h.journal = NewEventJournal(h.repo, "ETH/USD", logger)
	h.journal.timeNow = func() time.Time { return testNow }
	h.risk = NewRiskManager(h.store, h.ex, h.journal, limits, logger)
	h.executor = NewOrderExecutor(h.ex, h.store, h.risk, h.journal, cfg, logger)
	h.risk.SetFlattener(h.executor)

	// Virtual clock: sleeping advances time instead of blocking.
	clock := testNow
	h.executor.timeNow = func() time.Time { return clock }
	h.executor.sleep = func(ctx context.Context, d time.Duration) bool {
		clock = clock.Add(d)
		return ctx.Err() == nil
	}
	return h
}
