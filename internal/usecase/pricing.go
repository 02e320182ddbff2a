package usecase

import (
	"github.com/shopspring/decimal"
	"github.com/vitos/crypto_trend_breakout/internal/domain"
)

// DeriveProtectiveLevels returns the stop-loss and take-profit prices for an entry.
// Long: SL = entry*(1-pct), TP = entry*(1+pct*rr). Short is mirrored.
func DeriveProtectiveLevels(entryPrice, stopLossPct, riskRewardRatio float64, side domain.Side) (stopLoss, takeProfit float64) {
	entry := decimal.NewFromFloat(entryPrice)
	pct := decimal.NewFromFloat(stopLossPct)
	reward := pct.Mul(decimal.NewFromFloat(riskRewardRatio))
	one := decimal.NewFromInt(1)

	if side == domain.SideShort {
		return entry.Mul(one.Add(pct)).InexactFloat64(), entry.Mul(one.Sub(reward)).InexactFloat64()
	}
	return entry.Mul(one.Sub(pct)).InexactFloat64(), entry.Mul(one.Add(reward)).InexactFloat64()
}

// Slippage is |live-intended|/intended. intended must be positive.
func Slippage(livePrice, intendedPrice float64) decimal.Decimal {
	live := decimal.NewFromFloat(livePrice)
	intended := decimal.NewFromFloat(intendedPrice)
	return live.Sub(intended).Abs().Div(intended)
}

// PositionSize converts the configured trade size into a base-asset quantity.
// unit "quote" treats size as notional and divides by price.
func PositionSize(size float64, unit string, price float64, decimals int32) float64 {
	qty := decimal.NewFromFloat(size)
	if unit == "quote" {
		if price <= 0 {
			return 0
		}
		qty = qty.Div(decimal.NewFromFloat(price))
	}
	return qty.Round(decimals).InexactFloat64()
}

// RealizedPnL for closing qty of a position opened at entry.
func RealizedPnL(side domain.Side, entryPrice, exitPrice, qty float64) float64 {
	diff := decimal.NewFromFloat(exitPrice).Sub(decimal.NewFromFloat(entryPrice))
	if side == domain.SideShort {
		diff = diff.Neg()
	}
	return diff.Mul(decimal.NewFromFloat(qty)).InexactFloat64()
}
