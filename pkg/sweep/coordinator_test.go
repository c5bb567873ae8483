package sweep

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/montegrid/montegrid/pkg/grid"
	"github.com/montegrid/montegrid/pkg/pricing"
	"github.com/montegrid/montegrid/pkg/sched"
	"github.com/montegrid/montegrid/pkg/types"
)

// echoBuilder skips the Monte-Carlo run and echoes each cell's parameters,
// which makes the grid projection directly checkable.
func echoBuilder(p pricing.Params) types.UnitFunc {
	return func(ctx context.Context, rng *rand.Rand) (types.PriceQuote, error) {
		return types.PriceQuote{
			EuroCall:  p.Strike,
			EuroPut:   p.Sigma,
			AsianCall: p.Strike,
			AsianPut:  p.Sigma,
		}, nil
	}
}

func testCoordinator(t *testing.T, cfg *Config) *Coordinator {
	t.Helper()
	pool, err := sched.NewPool(&sched.PoolConfig{
		Workers:    3,
		MinWorkers: 1,
		MaxWorkers: 3,
		Seed:       1,
	})
	require.NoError(t, err)

	scfg := sched.DefaultConfig()
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	scfg.Logger = log

	s, err := sched.New(pool, scfg)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Stop() })

	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.Logger = log
	c, err := New(s, cfg)
	require.NoError(t, err)
	return c
}

func runCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestCoordinator_EchoSweep(t *testing.T) {
	c := testCoordinator(t, &Config{Builder: echoBuilder})

	strikes := []float64{90, 100, 110}
	sigmas := []float64{0.1, 0.25, 0.4}

	g, err := c.Run(runCtx(t), strikes, sigmas, pricing.DefaultParams())
	require.NoError(t, err)
	require.True(t, g.Complete())

	assert.Equal(t, types.PriceQuote{
		EuroCall:  90,
		EuroPut:   0.1,
		AsianCall: 90,
		AsianPut:  0.1,
	}, g.Cell(0, 0))

	for i, strike := range strikes {
		for j, sigma := range sigmas {
			q := g.Cell(i, j)
			assert.Equal(t, strike, q.EuroCall, "cell (%d,%d)", i, j)
			assert.Equal(t, sigma, q.EuroPut, "cell (%d,%d)", i, j)
		}
	}
}

func TestCoordinator_SingleFailure(t *testing.T) {
	cause := errors.New("cell exploded")
	builder := func(p pricing.Params) types.UnitFunc {
		if p.Strike == 100 && p.Sigma == 0.25 {
			return func(ctx context.Context, rng *rand.Rand) (types.PriceQuote, error) {
				return types.PriceQuote{}, cause
			}
		}
		return echoBuilder(p)
	}

	strikes := []float64{90, 100, 110}
	sigmas := []float64{0.1, 0.25, 0.4}

	t.Run("loud by default", func(t *testing.T) {
		c := testCoordinator(t, &Config{Builder: builder})

		_, err := c.Run(runCtx(t), strikes, sigmas, pricing.DefaultParams())
		var ige *grid.IncompleteGridError
		require.ErrorAs(t, err, &ige)
		assert.Len(t, ige.Cells, 1)
		assert.Equal(t, 9, ige.Total)
		assert.Equal(t, 1, ige.Cells[0].Row)
		assert.Equal(t, 1, ige.Cells[0].Col)
		assert.ErrorIs(t, ige.Cells[0].Err, cause)
	})

	t.Run("partial opt-in", func(t *testing.T) {
		c := testCoordinator(t, &Config{Builder: builder, Partial: true})

		g, err := c.Run(runCtx(t), strikes, sigmas, pricing.DefaultParams())
		require.NoError(t, err)
		assert.False(t, g.Complete())
		require.Len(t, g.Failed, 1)

		// the other eight cells are populated
		for i, strike := range strikes {
			for j := range sigmas {
				if i == 1 && j == 1 {
					continue
				}
				assert.Equal(t, strike, g.Cell(i, j).EuroCall)
			}
		}
	})
}

func TestCoordinator_EmptyAxes(t *testing.T) {
	c := testCoordinator(t, &Config{Builder: echoBuilder})

	_, err := c.Run(runCtx(t), nil, []float64{0.1}, pricing.DefaultParams())
	assert.Error(t, err)

	_, err = c.Run(runCtx(t), []float64{100}, nil, pricing.DefaultParams())
	assert.Error(t, err)
}

func TestCoordinator_InvalidCellParams(t *testing.T) {
	c := testCoordinator(t, &Config{Builder: echoBuilder})

	_, err := c.Run(runCtx(t), []float64{100, -5}, []float64{0.1}, pricing.DefaultParams())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cell (1,0)")
}

func TestCoordinator_ContextCancellation(t *testing.T) {
	stall := func(p pricing.Params) types.UnitFunc {
		return func(ctx context.Context, rng *rand.Rand) (types.PriceQuote, error) {
			<-ctx.Done()
			return types.PriceQuote{}, ctx.Err()
		}
	}
	c := testCoordinator(t, &Config{Builder: stall})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Run(ctx, []float64{100}, []float64{0.25}, pricing.DefaultParams())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCoordinator_RealPricer(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping Monte-Carlo sweep in short mode")
	}
	c := testCoordinator(t, nil)

	params := pricing.DefaultParams()
	params.Paths = 2000

	g, err := c.Run(runCtx(t), []float64{80, 100, 120}, []float64{0.1, 0.3}, params)
	require.NoError(t, err)
	require.True(t, g.Complete())

	// calls decrease in strike, puts increase
	for j := range g.Sigmas {
		assert.Greater(t, g.Cell(0, j).EuroCall, g.Cell(2, j).EuroCall)
		assert.Less(t, g.Cell(0, j).EuroPut, g.Cell(2, j).EuroPut)
	}
}

func TestNew_RequiresScheduler(t *testing.T) {
	_, err := New(nil, nil)
	assert.Error(t, err)
}
