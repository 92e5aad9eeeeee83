package fees

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Amounts are rounded to 8 decimal places, half away from zero, matching
// the smallest-unit precision of the settlement coin.
const roundPlaces = 8

var mebibyte = decimal.NewFromInt(1 << 20)

// CalculatorOptions parameterise fee computation.
type CalculatorOptions struct {
	// PerMb is the fiat fee charged per megabyte.
	PerMb decimal.Decimal
	// FloorMb is the minimum billable size in megabytes. Files smaller
	// than the floor are billed as if they were exactly FloorMb large.
	// This is deliberate business policy, not a conversion artifact.
	FloorMb decimal.Decimal
	// UnitsPerCoin is the number of smallest units per whole coin.
	UnitsPerCoin decimal.Decimal
}

// Calculator prices hosting against the live exchange rate. It owns no
// state; each quote is a pure computation over one rate snapshot.
type Calculator struct {
	opts  CalculatorOptions
	rates RateSource
}

// NewCalculator validates the fee parameters and builds a calculator.
func NewCalculator(opts CalculatorOptions, rates RateSource) (*Calculator, error) {
	if opts.PerMb.Sign() <= 0 || opts.UnitsPerCoin.Sign() <= 0 {
		return nil, ErrInvalidConfig
	}
	if opts.FloorMb.Sign() < 0 {
		return nil, ErrInvalidConfig
	}
	return &Calculator{opts: opts, rates: rates}, nil
}

// Quote computes the hosting fee for a file of sizeBytes. Rate-feed
// failures from the RateSource are propagated verbatim so callers can
// distinguish an unavailable price from bad input; no partial quote is
// ever returned.
func (c *Calculator) Quote(ctx context.Context, sizeBytes int64) (Quote, error) {
	if sizeBytes <= 0 {
		return Quote{}, ErrInvalidSize
	}

	sizeMb := decimal.NewFromInt(sizeBytes).Div(mebibyte)

	billableMb := sizeMb
	if billableMb.LessThan(c.opts.FloorMb) {
		billableMb = c.opts.FloorMb
	}
	fiat := billableMb.Mul(c.opts.PerMb)

	rate, err := c.rates.Rate(ctx)
	if err != nil {
		return Quote{}, err
	}

	coin := fiat.Div(rate).Round(roundPlaces)
	smallestUnit := coin.Mul(c.opts.UnitsPerCoin).Round(roundPlaces)

	return Quote{
		SizeBytes:    sizeBytes,
		FiatAmount:   fiat,
		CoinAmount:   coin,
		SmallestUnit: smallestUnit,
		RateUsed:     rate,
		QuotedAt:     time.Now().UTC(),
	}, nil
}

var _ Quoter = (*Calculator)(nil)
