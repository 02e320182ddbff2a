package domain

// Ticker is the best bid/ask and last traded price for a symbol.
type Ticker struct {
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Last   float64 `json:"last"`
}

// Signal is the output of a SignalEvaluator.
type Signal struct {
	Side     Side    `json:"side"` // empty when there is no entry
	Price    float64 `json:"price"`
	Strength float64 `json:"strength"`
}

func (s Signal) Entry() bool {
	return s.Side != ""
}
