package pricing

import (
	"context"
	"math"
	"math/rand"

	"github.com/montegrid/montegrid/pkg/types"
)

// ctxCheckInterval is the number of paths simulated between context checks.
const ctxCheckInterval = 1024

// Price runs the Monte-Carlo simulation and returns the four option prices.
// The result is deterministic given the state of rng. The rng must not be
// shared with concurrent callers.
func Price(p Params, rng *rand.Rand) (types.PriceQuote, error) {
	return price(context.Background(), p, rng)
}

// Unit wraps the pricing computation as a work unit function. The returned
// function checks for context cancellation between path batches.
func Unit(p Params) types.UnitFunc {
	return func(ctx context.Context, rng *rand.Rand) (types.PriceQuote, error) {
		return price(ctx, p, rng)
	}
}

func price(ctx context.Context, p Params, rng *rand.Rand) (types.PriceQuote, error) {
	if err := p.Validate(); err != nil {
		return types.PriceQuote{}, err
	}

	h := 1.0 / float64(p.Days)
	drift := math.Exp((p.Rate - 0.5*p.Sigma*p.Sigma) * h)
	volStep := p.Sigma * math.Sqrt(h)

	var (
		euroCallSum, euroPutSum   float64
		asianCallSum, asianPutSum float64
	)

	for i := 0; i < p.Paths; i++ {
		if i%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return types.PriceQuote{}, err
			}
		}

		price := p.Spot
		pathSum := 0.0
		for j := 0; j < p.Days; j++ {
			price *= drift * math.Exp(volStep*rng.NormFloat64())
			pathSum += price
		}
		average := pathSum / float64(p.Days)

		euroCallSum += math.Max(price-p.Strike, 0)
		euroPutSum += math.Max(p.Strike-price, 0)
		asianCallSum += math.Max(average-p.Strike, 0)
		asianPutSum += math.Max(p.Strike-average, 0)
	}

	discount := math.Exp(-p.Rate)
	n := float64(p.Paths)

	return types.PriceQuote{
		EuroCall:  discount * euroCallSum / n,
		EuroPut:   discount * euroPutSum / n,
		AsianCall: discount * asianCallSum / n,
		AsianPut:  discount * asianPutSum / n,
	}, nil
}
