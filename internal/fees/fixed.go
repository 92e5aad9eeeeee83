package fees

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// FixedQuoter returns a configured nominal fee regardless of size. It is
// the bypass strategy used by test deployments so that file admission does
// not depend on a reachable price feed.
type FixedQuoter struct {
	smallestUnit decimal.Decimal
}

// NewFixedQuoter builds a fixed-fee quoter.
func NewFixedQuoter(smallestUnit decimal.Decimal) (*FixedQuoter, error) {
	if smallestUnit.Sign() <= 0 {
		return nil, ErrInvalidConfig
	}
	return &FixedQuoter{smallestUnit: smallestUnit}, nil
}

// Quote returns the fixed nominal fee. Size validation still applies so
// the two strategies reject the same bad input.
func (f *FixedQuoter) Quote(ctx context.Context, sizeBytes int64) (Quote, error) {
	if sizeBytes <= 0 {
		return Quote{}, ErrInvalidSize
	}
	return Quote{
		SizeBytes:    sizeBytes,
		SmallestUnit: f.smallestUnit,
		QuotedAt:     time.Now().UTC(),
	}, nil
}

var _ Quoter = (*FixedQuoter)(nil)
