package usecase

import (
	"fmt"
	"math"

	"github.com/vitos/crypto_trend_breakout/internal/domain"
)

// BreakoutEvaluator signals an entry when the close crosses above the high of the
// candle `lookback` bars earlier while ADX sits inside the configured band.
type BreakoutEvaluator struct {
	ADXPeriod  int
	ADXLow     float64
	ADXHigh    float64
	Lookback   int
	AllowShort bool
}

func NewBreakoutEvaluator(adxPeriod int, adxLow, adxHigh float64, lookback int, allowShort bool) *BreakoutEvaluator {
	return &BreakoutEvaluator{
		ADXPeriod:  adxPeriod,
		ADXLow:     adxLow,
		ADXHigh:    adxHigh,
		Lookback:   lookback,
		AllowShort: allowShort,
	}
}

func (e *BreakoutEvaluator) MinCandles() int {
	n := 2 * e.ADXPeriod
	if m := e.Lookback + 2; m > n {
		n = m
	}
	return n
}

// Evaluate expects a validated, chronologically ordered window.
func (e *BreakoutEvaluator) Evaluate(candles []domain.Candle) (domain.Signal, error) {
	if len(candles) < e.MinCandles() {
		return domain.Signal{}, fmt.Errorf("%w: have %d, need %d", domain.ErrInsufficientCandles, len(candles), e.MinCandles())
	}

	adx := ADX(candles, e.ADXPeriod)
	last := candles[len(candles)-1]
	if !(e.ADXLow < adx && adx < e.ADXHigh) {
		return domain.Signal{Price: last.Close, Strength: adx}, nil
	}

	n := len(candles)
	prev := candles[n-2]
	refPrev := candles[n-2-e.Lookback]
	refLast := candles[n-1-e.Lookback]

	// Crossover: close was below the shifted high and is now above it.
	if prev.Close < refPrev.High && last.Close > refLast.High {
		return domain.Signal{Side: domain.SideLong, Price: last.Close, Strength: adx}, nil
	}
	if e.AllowShort && prev.Close > refPrev.Low && last.Close < refLast.Low {
		return domain.Signal{Side: domain.SideShort, Price: last.Close, Strength: adx}, nil
	}
	return domain.Signal{Price: last.Close, Strength: adx}, nil
}

// ADX returns Wilder's Average Directional Index at the last candle.
// It needs at least 2*period candles and returns 0 otherwise.
func ADX(candles []domain.Candle, period int) float64 {
	if period <= 0 || len(candles) < 2*period {
		return 0
	}
	p := float64(period)

	var trS, plusS, minusS float64
	var adx float64
	dxCount := 0

	for i := 1; i < len(candles); i++ {
		cur, prev := candles[i], candles[i-1]
		tr := math.Max(cur.High-cur.Low, math.Max(math.Abs(cur.High-prev.Close), math.Abs(cur.Low-prev.Close)))
		up := cur.High - prev.High
		down := prev.Low - cur.Low
		var plusDM, minusDM float64
		if up > down && up > 0 {
			plusDM = up
		}
		if down > up && down > 0 {
			minusDM = down
		}

		if i <= period {
			trS += tr
			plusS += plusDM
			minusS += minusDM
			if i < period {
				continue
			}
		} else {
			trS = trS - trS/p + tr
			plusS = plusS - plusS/p + plusDM
			minusS = minusS - minusS/p + minusDM
		}

		var dx float64
		if trS > 0 {
			plusDI := 100 * plusS / trS
			minusDI := 100 * minusS / trS
			if sum := plusDI + minusDI; sum > 0 {
				dx = 100 * math.Abs(plusDI-minusDI) / sum
			}
		}

		dxCount++
		switch {
		case dxCount < period:
			adx += dx
		case dxCount == period:
			adx = (adx + dx) / p
		default:
			adx = (adx*(p-1) + dx) / p
		}
	}
	return adx
}
