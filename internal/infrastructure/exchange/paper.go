package exchange

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vitos/crypto_trend_breakout/internal/domain"
)

// MarketData is the read-only half of a venue.
type MarketData interface {
	Ping(ctx context.Context) error
	GetCandles(ctx context.Context, symbol string, timeframe time.Duration, limit int) ([]domain.Candle, error)
	GetTicker(ctx context.Context, symbol string) (*domain.Ticker, error)
}

// PaperAdapter simulates order handling and balances in memory on top of real
// market data. Limit orders fill when the last price crosses them, or on the first
// status query when fillImmediately is set.
type PaperAdapter struct {
	market          MarketData
	fillImmediately bool

	mu       sync.Mutex
	balances map[string]decimal.Decimal
	orders   map[string]*domain.Order
	position *domain.Position
	timeNow  func() time.Time
}

func NewPaperAdapter(market MarketData, balances map[string]float64, fillImmediately bool) *PaperAdapter {
	b := make(map[string]decimal.Decimal, len(balances))
	for asset, v := range balances {
		b[strings.ToUpper(asset)] = decimal.NewFromFloat(v)
	}
	return &PaperAdapter{
		market:          market,
		fillImmediately: fillImmediately,
		balances:        b,
		orders:          make(map[string]*domain.Order),
		timeNow:         time.Now,
	}
}

func (p *PaperAdapter) Name() string { return "paper" }

func (p *PaperAdapter) Ping(ctx context.Context) error {
	return p.market.Ping(ctx)
}

func (p *PaperAdapter) GetCandles(ctx context.Context, symbol string, timeframe time.Duration, limit int) ([]domain.Candle, error) {
	return p.market.GetCandles(ctx, symbol, timeframe, limit)
}

func (p *PaperAdapter) GetTicker(ctx context.Context, symbol string) (*domain.Ticker, error) {
	return p.market.GetTicker(ctx, symbol)
}

func (p *PaperAdapter) GetBalance(ctx context.Context) (map[string]float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]float64, len(p.balances))
	for asset, v := range p.balances {
		out[asset] = v.InexactFloat64()
	}
	return out, nil
}

func splitSymbol(symbol string) (base, quote string) {
	parts := strings.SplitN(strings.ToUpper(symbol), "/", 2)
	if len(parts) != 2 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}

func (p *PaperAdapter) PlaceOrder(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	if order.Size <= 0 {
		return nil, domain.NewVenueError(domain.KindValidation, "place_order", fmt.Errorf("invalid volume %f", order.Size))
	}
	if order.Type == domain.OrderTypeLimit && order.Price <= 0 {
		return nil, domain.NewVenueError(domain.KindValidation, "place_order", fmt.Errorf("%w: %f", domain.ErrInvalidPrice, order.Price))
	}

	price := order.Price
	if order.Type == domain.OrderTypeMarket {
		t, err := p.market.GetTicker(ctx, order.Symbol)
		if err != nil {
			return nil, err
		}
		price = t.Last
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkFunds(order, price); err != nil {
		return nil, err
	}

	placed := *order
	placed.ID = uuid.NewString()
	placed.Exchange = p.Name()
	placed.Status = domain.OrderStatusOpen
	if placed.CreatedAt.IsZero() {
		placed.CreatedAt = p.timeNow()
	}
	p.orders[placed.ID] = &placed

	if order.Type == domain.OrderTypeMarket {
		p.fill(&placed, price)
	}
	out := placed
	return &out, nil
}

// checkFunds rejects buys the quote balance cannot cover. Sells are not checked so
// a short can be opened and a long can always be closed.
func (p *PaperAdapter) checkFunds(order *domain.Order, price float64) error {
	if order.Side != domain.OrderSideBuy {
		return nil
	}
	_, quote := splitSymbol(order.Symbol)
	cost := decimal.NewFromFloat(order.Size).Mul(decimal.NewFromFloat(price))
	if p.balances[quote].LessThan(cost) {
		return domain.NewVenueError(domain.KindInsufficientBalance, "place_order",
			fmt.Errorf("need %s %s, have %s", cost.StringFixed(2), quote, p.balances[quote].StringFixed(2)))
	}
	return nil
}

// fill settles the order at price and updates balances and the net position.
func (p *PaperAdapter) fill(o *domain.Order, price float64) {
	base, quote := splitSymbol(o.Symbol)
	qty := decimal.NewFromFloat(o.Size)
	notional := qty.Mul(decimal.NewFromFloat(price))

	if o.Side == domain.OrderSideBuy {
		p.balances[quote] = p.balances[quote].Sub(notional)
		p.balances[base] = p.balances[base].Add(qty)
	} else {
		p.balances[quote] = p.balances[quote].Add(notional)
		p.balances[base] = p.balances[base].Sub(qty)
	}

	o.Status = domain.OrderStatusClosed
	o.FilledSize = o.Size
	o.AvgPrice = price
	p.applyToPosition(o.Symbol, o.Side, qty, decimal.NewFromFloat(price))
}

func (p *PaperAdapter) applyToPosition(symbol string, side domain.OrderSide, qty, price decimal.Decimal) {
	signed := qty
	if side == domain.OrderSideSell {
		signed = qty.Neg()
	}

	var net, entry decimal.Decimal
	if p.position != nil {
		net = decimal.NewFromFloat(p.position.Size)
		if p.position.Side == domain.SideShort {
			net = net.Neg()
		}
		entry = decimal.NewFromFloat(p.position.EntryPrice)
	}

	next := net.Add(signed)
	switch {
	case next.IsZero():
		p.position = nil
		return
	case net.IsZero() || net.Sign() != next.Sign():
		// Opened or flipped: the remainder is priced at this fill.
		entry = price
	case net.Sign() == signed.Sign():
		// Added to the same side: weighted average entry.
		entry = entry.Mul(net.Abs()).Add(price.Mul(qty)).Div(next.Abs())
	}

	s := domain.SideLong
	if next.IsNegative() {
		s = domain.SideShort
	}
	p.position = &domain.Position{
		Exchange:   p.Name(),
		Symbol:     symbol,
		Side:       s,
		Size:       next.Abs().InexactFloat64(),
		EntryPrice: entry.InexactFloat64(),
	}
}

func (p *PaperAdapter) GetOrder(ctx context.Context, symbol, orderID string) (*domain.Order, error) {
	p.mu.Lock()
	o, ok := p.orders[orderID]
	if !ok {
		p.mu.Unlock()
		return nil, domain.NewVenueError(domain.KindExchange, "get_order", fmt.Errorf("order %s not found", orderID))
	}
	pending := o.Status == domain.OrderStatusOpen
	p.mu.Unlock()

	if pending {
		if err := p.tryFill(ctx, orderID); err != nil {
			return nil, err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	out := *p.orders[orderID]
	return &out, nil
}

func (p *PaperAdapter) tryFill(ctx context.Context, orderID string) error {
	var last float64
	if !p.fillImmediately {
		p.mu.Lock()
		symbol := p.orders[orderID].Symbol
		p.mu.Unlock()
		t, err := p.market.GetTicker(ctx, symbol)
		if err != nil {
			return err
		}
		last = t.Last
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	o := p.orders[orderID]
	if o.Status != domain.OrderStatusOpen {
		return nil
	}
	crossed := p.fillImmediately ||
		(o.Side == domain.OrderSideBuy && last > 0 && last <= o.Price) ||
		(o.Side == domain.OrderSideSell && last >= o.Price)
	if crossed {
		p.fill(o, o.Price)
	}
	return nil
}

func (p *PaperAdapter) CancelOrder(ctx context.Context, symbol, orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[orderID]
	if !ok {
		return domain.NewVenueError(domain.KindExchange, "cancel_order", fmt.Errorf("order %s not found", orderID))
	}
	if o.Status == domain.OrderStatusOpen {
		o.Status = domain.OrderStatusCanceled
	}
	return nil
}

func (p *PaperAdapter) GetOpenPositions(ctx context.Context, symbol string) ([]*domain.Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.position == nil || !strings.EqualFold(p.position.Symbol, symbol) {
		return nil, nil
	}
	pos := *p.position
	return []*domain.Position{&pos}, nil
}
