package fees

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidSize signals a non-positive file size.
	ErrInvalidSize = errors.New("fees: file size must be a positive number of bytes")
	// ErrInvalidConfig signals a non-positive fee parameter.
	ErrInvalidConfig = errors.New("fees: fee configuration must be positive")
)

// Quote is a hosting-fee quotation. Every monetary field is derived from
// the single RateUsed snapshot; a quote is attached to exactly one file
// record and never recomputed afterwards.
type Quote struct {
	SizeBytes    int64
	FiatAmount   decimal.Decimal
	CoinAmount   decimal.Decimal
	SmallestUnit decimal.Decimal
	RateUsed     decimal.Decimal
	QuotedAt     time.Time
}

// Quoter produces hosting-fee quotes. The production implementation prices
// against the live exchange rate; a fixed implementation short-circuits to
// a nominal fee for test deployments. The strategy is chosen once at
// wiring time.
type Quoter interface {
	Quote(ctx context.Context, sizeBytes int64) (Quote, error)
}

// RateSource supplies the current fiat-per-coin exchange rate.
type RateSource interface {
	Rate(ctx context.Context) (decimal.Decimal, error)
}
