// Package sweep provides the coordinator that turns a parameter grid into
// work units, runs them through the scheduler and assembles the result grid.
package sweep

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/montegrid/montegrid/pkg/grid"
	"github.com/montegrid/montegrid/pkg/pricing"
	"github.com/montegrid/montegrid/pkg/sched"
	"github.com/montegrid/montegrid/pkg/types"
)

// UnitBuilder produces the unit function for one grid cell's parameters.
// The default builder is pricing.Unit; tests substitute stubs.
type UnitBuilder func(pricing.Params) types.UnitFunc

// Config defines coordinator configuration.
type Config struct {
	// Partial makes Run return a partially filled grid instead of an
	// IncompleteGridError when some units fail
	Partial bool

	// Logger for structured logging (optional, defaults to the standard
	// logrus logger)
	Logger logrus.FieldLogger

	// Builder constructs unit functions (optional, defaults to
	// pricing.Unit)
	Builder UnitBuilder
}

// DefaultConfig returns the default coordinator configuration.
func DefaultConfig() *Config {
	return &Config{
		Logger:  logrus.StandardLogger(),
		Builder: pricing.Unit,
	}
}

// Coordinator drives grid sweeps over a running scheduler. It builds work
// units, submits them and waits; all computation happens in the workers.
type Coordinator struct {
	sched *sched.Scheduler
	cfg   *Config
	log   logrus.FieldLogger
}

// New creates a coordinator over the given scheduler.
func New(s *sched.Scheduler, cfg *Config) (*Coordinator, error) {
	if s == nil {
		return nil, fmt.Errorf("scheduler is required")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.Builder == nil {
		cfg.Builder = pricing.Unit
	}

	return &Coordinator{
		sched: s,
		cfg:   cfg,
		log:   cfg.Logger.WithField("component", "coordinator"),
	}, nil
}

// Run prices the full strikes x sigmas grid. Cell (i,j) uses base with
// Strike replaced by strikes[i] and Sigma by sigmas[j]. It blocks until
// every unit is terminal or ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context, strikes, sigmas []float64, base pricing.Params) (*grid.Grid, error) {
	if len(strikes) == 0 || len(sigmas) == 0 {
		return nil, fmt.Errorf("empty axes: %d strikes, %d sigmas", len(strikes), len(sigmas))
	}

	units := make([]*sched.WorkUnit, 0, len(strikes)*len(sigmas))
	for i, strike := range strikes {
		for j, sigma := range sigmas {
			p := base.WithStrike(strike).WithSigma(sigma)
			if err := p.Validate(); err != nil {
				return nil, fmt.Errorf("cell (%d,%d): %w", i, j, err)
			}
			units = append(units, sched.NewWorkUnit(c.sched.NextUnitID(), i, j, c.cfg.Builder(p)))
		}
	}

	runID := uuid.NewString()
	log := c.log.WithFields(logrus.Fields{
		"run":     runID,
		"strikes": len(strikes),
		"sigmas":  len(sigmas),
		"units":   len(units),
	})
	log.Info("sweep started")

	handles, err := c.sched.Submit(units)
	if err != nil {
		return nil, fmt.Errorf("submitting sweep %s: %w", runID, err)
	}

	table, err := c.sched.WaitAll(ctx, handles)
	if err != nil {
		return nil, fmt.Errorf("waiting for sweep %s: %w", runID, err)
	}

	var opts []grid.Option
	if c.cfg.Partial {
		opts = append(opts, grid.WithPartial())
	}
	g, err := grid.Assemble(strikes, sigmas, units, table, opts...)
	if err != nil {
		log.WithError(err).Warn("sweep incomplete")
		return nil, err
	}

	if !g.Complete() {
		log.WithField("failed", len(g.Failed)).Warn("sweep finished with failed cells")
	} else {
		log.Info("sweep finished")
	}
	return g, nil
}
