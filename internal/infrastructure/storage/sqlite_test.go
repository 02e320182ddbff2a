package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/crypto_trend_breakout/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_Trades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveTrade(ctx, &domain.Order{
		ID: "O1", ClientID: "c1", Exchange: "kraken", Symbol: "ETH/USD", Side: domain.OrderSideBuy,
		Type: domain.OrderTypeLimit, Status: domain.OrderStatusClosed, Size: 0.002, Price: 3000,
		FilledSize: 0.002, AvgPrice: 2999.5, Reason: "entry", CreatedAt: at,
	}))
	require.NoError(t, s.SaveTrade(ctx, &domain.Order{
		ID: "O2", Exchange: "kraken", Symbol: "ETH/USD", Side: domain.OrderSideSell,
		Type: domain.OrderTypeMarket, Status: domain.OrderStatusClosed, Size: 0.002, Price: 2919,
		RealizedPnL: -0.161, Reason: "stopped_out", CreatedAt: at.Add(time.Hour),
	}))

	trades, err := s.ListTrades(ctx, 10)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "O2", trades[0].ID, "newest first")
	assert.Equal(t, domain.OrderTypeMarket, trades[0].Type)
	assert.Equal(t, -0.161, trades[0].RealizedPnL)
	assert.Equal(t, "c1", trades[1].ClientID)
	assert.True(t, trades[1].CreatedAt.Equal(at))

	limited, err := s.ListTrades(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSQLiteStore_PositionHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	opened := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	h := &domain.PositionHistory{
		Exchange: "paper", Symbol: "ETH/USD", Side: domain.SideLong, Size: 0.002,
		EntryPrice: 3000, ExitPrice: 3243, RealizedPnL: 0.486, Reason: "took_profit",
		OpenedAt: opened, ClosedAt: opened.Add(8 * time.Hour),
	}
	require.NoError(t, s.SavePositionHistory(ctx, h))
	assert.NotZero(t, h.ID)

	got, err := s.ListPositionHistory(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.SideLong, got[0].Side)
	assert.Equal(t, 3243.0, got[0].ExitPrice)
	assert.True(t, got[0].ClosedAt.Equal(opened.Add(8*time.Hour)))
}

func TestSQLiteStore_TradeSessionLog(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, ev := range []domain.EventType{domain.EventGateDecision, domain.EventOrderSubmit, domain.EventPanic} {
		require.NoError(t, s.SaveTradeSessionLog(ctx, &domain.TradeSessionLog{
			Time: time.Now().UTC(), Symbol: "ETH/USD", Event: ev, Reason: "r",
		}))
	}

	logs, err := s.ListTradeSessionLogs(ctx, 2)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, domain.EventPanic, logs[0].Event)
	assert.Equal(t, domain.EventOrderSubmit, logs[1].Event)
}

func TestSQLiteStore_SchemaIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.initSchema())
}
