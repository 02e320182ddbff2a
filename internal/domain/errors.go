package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed set of failure classes the core makes decisions on.
type ErrorKind int

const (
	KindExchange ErrorKind = iota
	KindValidation
	KindNetwork
	KindAuthentication
	KindInsufficientBalance
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNetwork:
		return "network"
	case KindAuthentication:
		return "authentication"
	case KindInsufficientBalance:
		return "insufficient_balance"
	default:
		return "exchange"
	}
}

// VenueError wraps a failure with the operation and its kind.
type VenueError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *VenueError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *VenueError) Unwrap() error {
	return e.Err
}

func NewVenueError(kind ErrorKind, op string, err error) *VenueError {
	return &VenueError{Kind: kind, Op: op, Err: err}
}

// KindOf classifies err. Candle validation sentinels are KindValidation; anything
// unrecognised is treated as a generic exchange error.
func KindOf(err error) ErrorKind {
	var ve *VenueError
	if errors.As(err, &ve) {
		return ve.Kind
	}
	if errors.Is(err, ErrInvalidCandles) || errors.Is(err, ErrInsufficientCandles) || errors.Is(err, ErrInvalidPrice) {
		return KindValidation
	}
	return KindExchange
}

// ErrInvalidPrice is returned when a price cannot be trusted (<= 0).
var ErrInvalidPrice = errors.New("invalid price")
