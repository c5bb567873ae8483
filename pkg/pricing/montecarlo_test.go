package pricing

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParams_Validate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Params)
		expectError bool
	}{
		{
			name:        "defaults are valid",
			mutate:      func(p *Params) {},
			expectError: false,
		},
		{
			name:        "zero spot",
			mutate:      func(p *Params) { p.Spot = 0 },
			expectError: true,
		},
		{
			name:        "negative strike",
			mutate:      func(p *Params) { p.Strike = -10 },
			expectError: true,
		},
		{
			name:        "negative sigma",
			mutate:      func(p *Params) { p.Sigma = -0.1 },
			expectError: true,
		},
		{
			name:        "zero sigma is allowed",
			mutate:      func(p *Params) { p.Sigma = 0 },
			expectError: false,
		},
		{
			name:        "zero days",
			mutate:      func(p *Params) { p.Days = 0 },
			expectError: true,
		},
		{
			name:        "zero paths",
			mutate:      func(p *Params) { p.Paths = 0 },
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mutate(&p)
			err := p.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPrice_Deterministic(t *testing.T) {
	p := DefaultParams()
	p.Paths = 2000
	p.Days = 50

	first, err := Price(p, rand.New(rand.NewSource(42)))
	require.NoError(t, err)

	second, err := Price(p, rand.New(rand.NewSource(42)))
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestPrice_ZeroVolatility(t *testing.T) {
	// With sigma = 0 the terminal price is exactly S*exp(r), so all four
	// prices have closed forms.
	p := Params{Spot: 100, Strike: 100, Sigma: 0, Rate: 0.05, Days: 100, Paths: 10}

	quote, err := Price(p, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	discount := math.Exp(-p.Rate)
	terminal := p.Spot * math.Exp(p.Rate)
	assert.InDelta(t, discount*math.Max(terminal-p.Strike, 0), quote.EuroCall, 1e-9)
	assert.InDelta(t, 0.0, quote.EuroPut, 1e-9)

	// Average of S*exp(r*j/days) over steps j=1..days
	var sum float64
	for j := 1; j <= p.Days; j++ {
		sum += p.Spot * math.Exp(p.Rate*float64(j)/float64(p.Days))
	}
	average := sum / float64(p.Days)
	assert.InDelta(t, discount*math.Max(average-p.Strike, 0), quote.AsianCall, 1e-9)
	assert.InDelta(t, 0.0, quote.AsianPut, 1e-9)
}

func TestPrice_PutCallParity(t *testing.T) {
	// Call and put are computed from the same simulated paths, so the parity
	// C - P = exp(-r)*(E[S_T] - K) holds exactly; E[S_T]*exp(-r) tracks spot
	// up to Monte-Carlo noise.
	p := DefaultParams()
	p.Paths = 50000
	p.Days = 100

	quote, err := Price(p, rand.New(rand.NewSource(7)))
	require.NoError(t, err)

	expected := p.Spot - p.Strike*math.Exp(-p.Rate)
	assert.InDelta(t, expected, quote.EuroCall-quote.EuroPut, 1.5)
}

func TestPrice_NonNegative(t *testing.T) {
	p := DefaultParams()
	p.Paths = 1000
	p.Days = 30

	for _, strike := range []float64{60, 100, 140} {
		quote, err := Price(p.WithStrike(strike), rand.New(rand.NewSource(3)))
		require.NoError(t, err)

		assert.GreaterOrEqual(t, quote.EuroCall, 0.0)
		assert.GreaterOrEqual(t, quote.EuroPut, 0.0)
		assert.GreaterOrEqual(t, quote.AsianCall, 0.0)
		assert.GreaterOrEqual(t, quote.AsianPut, 0.0)
	}
}

func TestPrice_StrikeMonotonicity(t *testing.T) {
	// Same seed for each strike: call prices decrease and put prices
	// increase as the strike rises.
	p := DefaultParams()
	p.Paths = 5000
	p.Days = 50

	var prevCall, prevPut float64
	for i, strike := range []float64{80, 100, 120} {
		quote, err := Price(p.WithStrike(strike), rand.New(rand.NewSource(11)))
		require.NoError(t, err)

		if i > 0 {
			assert.LessOrEqual(t, quote.EuroCall, prevCall)
			assert.GreaterOrEqual(t, quote.EuroPut, prevPut)
		}
		prevCall, prevPut = quote.EuroCall, quote.EuroPut
	}
}

func TestUnit_ContextCancellation(t *testing.T) {
	p := DefaultParams()
	p.Paths = 1 << 20 // large enough to hit a context check

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Unit(p)(ctx, rand.New(rand.NewSource(5)))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUnit_InvalidParams(t *testing.T) {
	p := DefaultParams()
	p.Paths = 0

	_, err := Unit(p)(context.Background(), rand.New(rand.NewSource(5)))
	assert.Error(t, err)
}

func BenchmarkPrice(b *testing.B) {
	p := DefaultParams()
	p.Paths = 1000
	p.Days = 100
	rng := rand.New(rand.NewSource(1))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Price(p, rng)
	}
}
