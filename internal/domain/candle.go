package domain

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrInsufficientCandles = errors.New("insufficient candles")
	ErrInvalidCandles      = errors.New("invalid candles")
)

type Candle struct {
	Time   int64   `json:"time"` // open time, unix seconds
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Validate checks that the candle is complete and internally consistent.
func (c Candle) Validate() error {
	for _, v := range []float64{c.Open, c.High, c.Low, c.Close, c.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("candle %d: non-finite value", c.Time)
		}
	}
	if c.Time <= 0 {
		return fmt.Errorf("candle: missing timestamp")
	}
	if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
		return fmt.Errorf("candle %d: missing price", c.Time)
	}
	if c.Volume < 0 {
		return fmt.Errorf("candle %d: negative volume", c.Time)
	}
	if c.High < c.Low {
		return fmt.Errorf("candle %d: high %f < low %f", c.Time, c.High, c.Low)
	}
	if c.Open < c.Low || c.Open > c.High || c.Close < c.Low || c.Close > c.High {
		return fmt.Errorf("candle %d: open/close outside [low, high]", c.Time)
	}
	return nil
}

// ValidateCandles rejects the whole window if any candle is malformed, timestamps are not
// strictly increasing, or fewer than min candles are present. Windows are never repaired.
func ValidateCandles(candles []Candle, min int) error {
	if len(candles) < min {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientCandles, len(candles), min)
	}
	var bad int
	var first error
	for i, c := range candles {
		err := c.Validate()
		if err == nil && i > 0 && c.Time <= candles[i-1].Time {
			err = fmt.Errorf("candle %d: timestamp not after %d", c.Time, candles[i-1].Time)
		}
		if err != nil {
			bad++
			if first == nil {
				first = err
			}
		}
	}
	if bad > 0 {
		return fmt.Errorf("%w: %d bad candles, first: %v", ErrInvalidCandles, bad, first)
	}
	return nil
}
