package exchange

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/crypto_trend_breakout/internal/domain"
)

type staticMarket struct {
	last float64
}

func (m *staticMarket) Ping(ctx context.Context) error { return nil }

func (m *staticMarket) GetCandles(ctx context.Context, symbol string, tf time.Duration, limit int) ([]domain.Candle, error) {
	return nil, nil
}

func (m *staticMarket) GetTicker(ctx context.Context, symbol string) (*domain.Ticker, error) {
	return &domain.Ticker{Symbol: symbol, Bid: m.last, Ask: m.last, Last: m.last}, nil
}

func TestPaper_LimitFillsWhenPriceCrosses(t *testing.T) {
	market := &staticMarket{last: 3010}
	p := NewPaperAdapter(market, map[string]float64{"USD": 1000}, false)
	ctx := context.Background()

	o, err := p.PlaceOrder(ctx, &domain.Order{Symbol: "ETH/USD", Side: domain.OrderSideBuy, Type: domain.OrderTypeLimit, Size: 0.1, Price: 3000})
	require.NoError(t, err)
	assert.NotEmpty(t, o.ID)

	got, err := p.GetOrder(ctx, "ETH/USD", o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusOpen, got.Status)

	market.last = 2999
	got, err = p.GetOrder(ctx, "ETH/USD", o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusClosed, got.Status)
	assert.Equal(t, 3000.0, got.AvgPrice)

	bal, _ := p.GetBalance(ctx)
	assert.InDelta(t, 700, bal["USD"], 1e-9)
	assert.InDelta(t, 0.1, bal["ETH"], 1e-12)

	positions, err := p.GetOpenPositions(ctx, "ETH/USD")
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, domain.SideLong, positions[0].Side)
	assert.Equal(t, 3000.0, positions[0].EntryPrice)
}

func TestPaper_MarketCloseFlattensPosition(t *testing.T) {
	market := &staticMarket{last: 3000}
	p := NewPaperAdapter(market, map[string]float64{"USD": 1000}, true)
	ctx := context.Background()

	o, err := p.PlaceOrder(ctx, &domain.Order{Symbol: "ETH/USD", Side: domain.OrderSideBuy, Type: domain.OrderTypeLimit, Size: 0.1, Price: 3000})
	require.NoError(t, err)
	_, err = p.GetOrder(ctx, "ETH/USD", o.ID)
	require.NoError(t, err)

	market.last = 3100
	closeOrder, err := p.PlaceOrder(ctx, &domain.Order{Symbol: "ETH/USD", Side: domain.OrderSideSell, Type: domain.OrderTypeMarket, Size: 0.1})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusClosed, closeOrder.Status)
	assert.Equal(t, 3100.0, closeOrder.AvgPrice)

	positions, _ := p.GetOpenPositions(ctx, "ETH/USD")
	assert.Empty(t, positions)
	bal, _ := p.GetBalance(ctx)
	assert.InDelta(t, 1010, bal["USD"], 1e-9)
}

func TestPaper_InsufficientFunds(t *testing.T) {
	p := NewPaperAdapter(&staticMarket{last: 3000}, map[string]float64{"USD": 100}, true)

	_, err := p.PlaceOrder(context.Background(), &domain.Order{Symbol: "ETH/USD", Side: domain.OrderSideBuy, Type: domain.OrderTypeLimit, Size: 1, Price: 3000})

	assert.Equal(t, domain.KindInsufficientBalance, domain.KindOf(err))
}

func TestPaper_CancelOpenOrder(t *testing.T) {
	market := &staticMarket{last: 3100}
	p := NewPaperAdapter(market, map[string]float64{"USD": 1000}, false)
	ctx := context.Background()

	o, err := p.PlaceOrder(ctx, &domain.Order{Symbol: "ETH/USD", Side: domain.OrderSideBuy, Type: domain.OrderTypeLimit, Size: 0.1, Price: 3000})
	require.NoError(t, err)
	require.NoError(t, p.CancelOrder(ctx, "ETH/USD", o.ID))

	market.last = 2900
	got, err := p.GetOrder(ctx, "ETH/USD", o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCanceled, got.Status)
	bal, _ := p.GetBalance(ctx)
	assert.Equal(t, 1000.0, bal["USD"])
}

func TestPaper_AveragesEntryOnAdd(t *testing.T) {
	market := &staticMarket{last: 3000}
	p := NewPaperAdapter(market, map[string]float64{"USD": 10000}, true)
	ctx := context.Background()

	_, err := p.PlaceOrder(ctx, &domain.Order{Symbol: "ETH/USD", Side: domain.OrderSideBuy, Type: domain.OrderTypeMarket, Size: 1})
	require.NoError(t, err)
	market.last = 3200
	_, err = p.PlaceOrder(ctx, &domain.Order{Symbol: "ETH/USD", Side: domain.OrderSideBuy, Type: domain.OrderTypeMarket, Size: 1})
	require.NoError(t, err)

	positions, _ := p.GetOpenPositions(ctx, "ETH/USD")
	require.Len(t, positions, 1)
	assert.InDelta(t, 3100, positions[0].EntryPrice, 1e-9)
	assert.InDelta(t, 2, positions[0].Size, 1e-12)
}
