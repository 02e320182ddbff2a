package domain

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func validCandle(ts int64) Candle {
	return Candle{Time: ts, Open: 100, High: 105, Low: 95, Close: 102, Volume: 10}
}

func TestCandleValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Candle)
		wantErr bool
	}{
		{"valid", func(c *Candle) {}, false},
		{"zero volume is fine", func(c *Candle) { c.Volume = 0 }, false},
		{"high below low", func(c *Candle) { c.High = 90 }, true},
		{"missing timestamp", func(c *Candle) { c.Time = 0 }, true},
		{"zero close", func(c *Candle) { c.Close = 0 }, true},
		{"NaN open", func(c *Candle) { c.Open = math.NaN() }, true},
		{"infinite high", func(c *Candle) { c.High = math.Inf(1) }, true},
		{"negative volume", func(c *Candle) { c.Volume = -1 }, true},
		{"close above high", func(c *Candle) { c.Close = 106 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validCandle(1)
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateCandles(t *testing.T) {
	window := []Candle{validCandle(1), validCandle(2), validCandle(3)}
	assert.NoError(t, ValidateCandles(window, 3))

	err := ValidateCandles(window, 4)
	assert.ErrorIs(t, err, ErrInsufficientCandles)

	bad := []Candle{validCandle(1), validCandle(2), validCandle(3)}
	bad[1].High = 1
	assert.ErrorIs(t, ValidateCandles(bad, 3), ErrInvalidCandles)

	unordered := []Candle{validCandle(1), validCandle(3), validCandle(2)}
	assert.ErrorIs(t, ValidateCandles(unordered, 3), ErrInvalidCandles)

	dup := []Candle{validCandle(1), validCandle(1), validCandle(2)}
	assert.ErrorIs(t, ValidateCandles(dup, 3), ErrInvalidCandles)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindAuthentication, KindOf(NewVenueError(KindAuthentication, "balance", errors.New("EAPI:Invalid key"))))
	wrapped := errors.Join(errors.New("context"), NewVenueError(KindNetwork, "ticker", errors.New("timeout")))
	assert.Equal(t, KindNetwork, KindOf(wrapped))
	assert.Equal(t, KindValidation, KindOf(ValidateCandles(nil, 1)))
	assert.Equal(t, KindExchange, KindOf(errors.New("boom")))
	assert.Equal(t, "insufficient_balance", KindInsufficientBalance.String())
}

func TestTradeStateInvariants(t *testing.T) {
	assert.NoError(t, TradeState{}.CheckInvariants())
	assert.NoError(t, TradeState{InTrade: true, PositionSide: SideLong, EntryPrice: 100, StopLossPrice: 97, TakeProfitPrice: 109}.CheckInvariants())
	assert.NoError(t, TradeState{InTrade: true, PositionSide: SideShort, EntryPrice: 100, StopLossPrice: 103, TakeProfitPrice: 91}.CheckInvariants())
	assert.Error(t, TradeState{InTrade: true, PositionSide: SideLong, EntryPrice: 100, StopLossPrice: 103, TakeProfitPrice: 109}.CheckInvariants())
	assert.Error(t, TradeState{EntryPrice: 100}.CheckInvariants())
}
