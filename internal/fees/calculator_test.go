package fees

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"hostpay/internal/pricefeed"
)

type staticRateSource struct {
	rate decimal.Decimal
	err  error
}

func (s *staticRateSource) Rate(ctx context.Context) (decimal.Decimal, error) {
	if s.err != nil {
		return decimal.Decimal{}, s.err
	}
	return s.rate, nil
}

func testCalculator(t *testing.T, rate decimal.Decimal) *Calculator {
	t.Helper()
	c, err := NewCalculator(CalculatorOptions{
		PerMb:        decimal.RequireFromString("0.01"),
		FloorMb:      decimal.NewFromInt(10),
		UnitsPerCoin: decimal.NewFromInt(100_000_000),
	}, &staticRateSource{rate: rate})
	if err != nil {
		t.Fatalf("new calculator: %v", err)
	}
	return c
}

func TestQuoteMinimumFeeFloor(t *testing.T) {
	c := testCalculator(t, decimal.NewFromInt(300))
	floorFiat := decimal.RequireFromString("0.1")

	for _, size := range []int64{1, 1024, 1 << 20, 5 * (1 << 20), 10 * (1 << 20)} {
		quote, err := c.Quote(context.Background(), size)
		if err != nil {
			t.Fatalf("quote(%d): %v", size, err)
		}
		if !quote.FiatAmount.Equal(floorFiat) {
			t.Fatalf("size %d is under the floor, expected fiat 0.1, got %s", size, quote.FiatAmount)
		}
	}
}

func TestQuoteAboveFloorIsProportionalAndMonotonic(t *testing.T) {
	c := testCalculator(t, decimal.NewFromInt(300))

	prev := decimal.Zero
	for _, mb := range []int64{11, 20, 100, 1024} {
		size := mb * (1 << 20)
		quote, err := c.Quote(context.Background(), size)
		if err != nil {
			t.Fatalf("quote(%d): %v", size, err)
		}

		expected := decimal.NewFromInt(mb).Mul(decimal.RequireFromString("0.01"))
		if !quote.FiatAmount.Equal(expected) {
			t.Fatalf("size %dMB: expected fiat %s, got %s", mb, expected, quote.FiatAmount)
		}
		if !quote.FiatAmount.GreaterThan(prev) {
			t.Fatalf("fee must grow with size: %s then %s", prev, quote.FiatAmount)
		}
		prev = quote.FiatAmount
	}
}

func TestQuoteExactScenario(t *testing.T) {
	// 5 MB, 0.01 USD/MB, 300 USD/coin, 1e8 units/coin.
	c := testCalculator(t, decimal.NewFromInt(300))

	quote, err := c.Quote(context.Background(), 5*(1<<20))
	if err != nil {
		t.Fatalf("quote: %v", err)
	}

	if !quote.FiatAmount.Equal(decimal.RequireFromString("0.1")) {
		t.Fatalf("fiat: expected 0.10, got %s", quote.FiatAmount)
	}
	if !quote.CoinAmount.Equal(decimal.RequireFromString("0.00033333")) {
		t.Fatalf("coin: expected 0.00033333, got %s", quote.CoinAmount)
	}
	if !quote.SmallestUnit.Equal(decimal.NewFromInt(33333)) {
		t.Fatalf("smallest unit: expected 33333, got %s", quote.SmallestUnit)
	}
	if !quote.RateUsed.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("rate snapshot: expected 300, got %s", quote.RateUsed)
	}
}

func TestQuoteAmountsShareOneRateSnapshot(t *testing.T) {
	c := testCalculator(t, decimal.RequireFromString("287.5"))

	quote, err := c.Quote(context.Background(), 42*(1<<20))
	if err != nil {
		t.Fatalf("quote: %v", err)
	}

	recomputedCoin := quote.FiatAmount.Div(quote.RateUsed).Round(8)
	if !quote.CoinAmount.Equal(recomputedCoin) {
		t.Fatalf("coin amount diverges from rate snapshot: %s vs %s", quote.CoinAmount, recomputedCoin)
	}
	recomputedUnits := quote.CoinAmount.Mul(decimal.NewFromInt(100_000_000)).Round(8)
	if !quote.SmallestUnit.Equal(recomputedUnits) {
		t.Fatalf("smallest unit diverges from coin amount: %s vs %s", quote.SmallestUnit, recomputedUnits)
	}
}

func TestQuoteRejectsInvalidSize(t *testing.T) {
	c := testCalculator(t, decimal.NewFromInt(300))

	for _, size := range []int64{0, -1, -1024} {
		if _, err := c.Quote(context.Background(), size); !errors.Is(err, ErrInvalidSize) {
			t.Fatalf("size %d: expected ErrInvalidSize, got %v", size, err)
		}
	}
}

func TestQuotePropagatesPriceUnavailable(t *testing.T) {
	c, err := NewCalculator(CalculatorOptions{
		PerMb:        decimal.RequireFromString("0.01"),
		FloorMb:      decimal.NewFromInt(10),
		UnitsPerCoin: decimal.NewFromInt(100_000_000),
	}, &staticRateSource{err: pricefeed.ErrPriceUnavailable})
	if err != nil {
		t.Fatalf("new calculator: %v", err)
	}

	_, err = c.Quote(context.Background(), 1<<20)
	if !errors.Is(err, pricefeed.ErrPriceUnavailable) {
		t.Fatalf("expected ErrPriceUnavailable verbatim, got %v", err)
	}
}

func TestNewCalculatorRejectsBadConfig(t *testing.T) {
	_, err := NewCalculator(CalculatorOptions{
		PerMb:        decimal.Zero,
		UnitsPerCoin: decimal.NewFromInt(1),
	}, &staticRateSource{rate: decimal.NewFromInt(1)})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestFixedQuoter(t *testing.T) {
	q, err := NewFixedQuoter(decimal.NewFromInt(1))
	if err != nil {
		t.Fatalf("new fixed quoter: %v", err)
	}

	quote, err := q.Quote(context.Background(), 123)
	if err != nil {
		t.Fatalf("fixed quote: %v", err)
	}
	if !quote.SmallestUnit.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("expected nominal fee 1, got %s", quote.SmallestUnit)
	}

	if _, err := q.Quote(context.Background(), 0); !errors.Is(err, ErrInvalidSize) {
		t.Fatalf("fixed quoter must validate size, got %v", err)
	}
}
