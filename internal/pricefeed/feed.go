package pricefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// RateFetcher retrieves the current fiat-per-coin exchange rate.
type RateFetcher interface {
	FetchRate(ctx context.Context) (decimal.Decimal, error)
}

// FeedOptions parameterise the HTTP spot-price fetcher.
type FeedOptions struct {
	Endpoints []string
	Timeout   time.Duration
	UserAgent string
}

// Feed queries one or more spot-price endpoints in order and returns the
// first successful reading. Endpoints are expected to answer with the
// exchange spot shape: {"data":{"amount":"<decimal>"}}.
type Feed struct {
	opts   FeedOptions
	logger zerolog.Logger
	client *http.Client
}

// NewFeed constructs a spot-price fetcher.
func NewFeed(opts FeedOptions, logger zerolog.Logger) *Feed {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Feed{
		opts:   opts,
		logger: logger.With().Str("component", "price_feed").Logger(),
		client: &http.Client{Timeout: timeout},
	}
}

// FetchRate walks the configured endpoints and returns the first rate that
// parses to a positive decimal.
func (f *Feed) FetchRate(ctx context.Context) (decimal.Decimal, error) {
	if len(f.opts.Endpoints) == 0 {
		return decimal.Decimal{}, errors.New("no price feed endpoints configured")
	}

	var lastErr error
	for _, endpoint := range f.opts.Endpoints {
		rate, err := f.fetchOne(ctx, endpoint)
		if err != nil {
			f.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("price feed endpoint failed")
			lastErr = err
			continue
		}
		return rate, nil
	}

	return decimal.Decimal{}, fmt.Errorf("all price feed endpoints failed: %w", lastErr)
}

func (f *Feed) fetchOne(ctx context.Context, endpoint string) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Decimal{}, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(f.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return decimal.Decimal{}, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Decimal{}, err
	}

	if resp.StatusCode != http.StatusOK {
		return decimal.Decimal{}, fmt.Errorf("price feed error (%d): %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var spot spotResponse
	if err := json.Unmarshal(payload, &spot); err != nil {
		return decimal.Decimal{}, fmt.Errorf("decode spot response: %w", err)
	}

	rate, err := decimal.NewFromString(spot.Data.Amount)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse spot amount %q: %w", spot.Data.Amount, err)
	}
	if rate.Sign() <= 0 {
		return decimal.Decimal{}, fmt.Errorf("spot amount must be positive, got %s", rate)
	}

	return rate, nil
}

type spotResponse struct {
	Data struct {
		Base     string `json:"base"`
		Currency string `json:"currency"`
		Amount   string `json:"amount"`
	} `json:"data"`
}

var _ RateFetcher = (*Feed)(nil)
