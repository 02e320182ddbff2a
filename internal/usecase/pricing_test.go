package usecase_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vitos/crypto_trend_breakout/internal/domain"
	"github.com/vitos/crypto_trend_breakout/internal/usecase"
)

func TestDeriveProtectiveLevels(t *testing.T) {
	tests := []struct {
		name           string
		entry, pct, rr float64
		side           domain.Side
		wantSL, wantTP float64
	}{
		{"long", 2000, 0.03, 2, domain.SideLong, 1940, 2120},
		{"long default config", 3000, 0.027, 3, domain.SideLong, 2919, 3243},
		{"short mirrored", 2000, 0.03, 2, domain.SideShort, 2060, 1880},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sl, tp := usecase.DeriveProtectiveLevels(tt.entry, tt.pct, tt.rr, tt.side)
			assert.InDelta(t, tt.wantSL, sl, 1e-9)
			assert.InDelta(t, tt.wantTP, tp, 1e-9)
		})
	}
}

func TestSlippage(t *testing.T) {
	assert.Equal(t, "0.003", usecase.Slippage(100.3, 100).String())
	assert.Equal(t, "0.001", usecase.Slippage(99.9, 100).String())
	assert.True(t, usecase.Slippage(100, 100).IsZero())
}

func TestPositionSize(t *testing.T) {
	assert.Equal(t, 0.002, usecase.PositionSize(0.002, "base", 3000, 8))
	assert.Equal(t, 0.00333333, usecase.PositionSize(10, "quote", 3000, 8))
	assert.Zero(t, usecase.PositionSize(10, "quote", 0, 8))
}

func TestRealizedPnL(t *testing.T) {
	assert.InDelta(t, -0.162, usecase.RealizedPnL(domain.SideLong, 3000, 2919, 0.002), 1e-12)
	assert.InDelta(t, 0.486, usecase.RealizedPnL(domain.SideLong, 3000, 3243, 0.002), 1e-12)
	assert.InDelta(t, 20, usecase.RealizedPnL(domain.SideShort, 2000, 1980, 1), 1e-12)
}
