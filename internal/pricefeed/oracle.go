package pricefeed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// ErrPriceUnavailable signals that no feed answered and the cached rate is
// older than the staleness window. Fee quoting fails when this surfaces.
var ErrPriceUnavailable = errors.New("pricefeed: exchange rate unavailable")

// OracleOptions tune cache behaviour.
type OracleOptions struct {
	// CacheTTL is how long a fetched rate is served without refetching.
	CacheTTL time.Duration
	// StalenessWindow is the maximum age of a cached rate that may still
	// be served when every feed is failing.
	StalenessWindow time.Duration
}

// Oracle exposes the current exchange rate with a bounded-staleness cache.
// Concurrent callers that miss the cache share a single outbound fetch.
type Oracle struct {
	fetcher RateFetcher
	opts    OracleOptions
	logger  zerolog.Logger

	flight singleflight.Group

	mu       sync.RWMutex
	cached   decimal.Decimal
	cachedAt time.Time
}

// NewOracle constructs a price oracle on top of a rate fetcher.
func NewOracle(fetcher RateFetcher, opts OracleOptions, logger zerolog.Logger) *Oracle {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 30 * time.Second
	}
	if opts.StalenessWindow <= 0 {
		opts.StalenessWindow = 5 * time.Minute
	}
	return &Oracle{
		fetcher: fetcher,
		opts:    opts,
		logger:  logger.With().Str("component", "price_oracle").Logger(),
	}
}

// Rate returns the current fiat-per-coin rate. A rate fetched within the
// cache TTL is returned as-is; otherwise a refresh is attempted and, on
// failure, the cached rate is served while it is within the staleness
// window.
func (o *Oracle) Rate(ctx context.Context) (decimal.Decimal, error) {
	if rate, ok := o.cachedWithin(o.opts.CacheTTL); ok {
		return rate, nil
	}

	v, err, _ := o.flight.Do("rate", func() (interface{}, error) {
		rate, fetchErr := o.fetcher.FetchRate(ctx)
		if fetchErr != nil {
			return decimal.Decimal{}, fetchErr
		}
		o.store(rate)
		return rate, nil
	})
	if err == nil {
		return v.(decimal.Decimal), nil
	}

	if rate, ok := o.cachedWithin(o.opts.StalenessWindow); ok {
		o.logger.Warn().Err(err).Msg("price feed down, serving cached rate")
		return rate, nil
	}

	return decimal.Decimal{}, fmt.Errorf("%w: %s", ErrPriceUnavailable, err)
}

func (o *Oracle) cachedWithin(window time.Duration) (decimal.Decimal, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.cachedAt.IsZero() || time.Since(o.cachedAt) >= window {
		return decimal.Decimal{}, false
	}
	return o.cached, true
}

func (o *Oracle) store(rate decimal.Decimal) {
	o.mu.Lock()
	o.cached = rate
	o.cachedAt = time.Now()
	o.mu.Unlock()
}
