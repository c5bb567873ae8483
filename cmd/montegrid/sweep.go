package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/montegrid/montegrid/internal/config"
	"github.com/montegrid/montegrid/internal/metrics"
	"github.com/montegrid/montegrid/pkg/grid"
	"github.com/montegrid/montegrid/pkg/pricing"
	"github.com/montegrid/montegrid/pkg/sched"
	"github.com/montegrid/montegrid/pkg/sweep"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run a pricing sweep over the configured strike x volatility grid",
	RunE:  runSweep,
}

func init() {
	sweepCmd.Flags().IntVar(&workers, "workers", 0, "worker count (overrides config)")
	sweepCmd.Flags().IntVar(&paths, "paths", 0, "Monte-Carlo paths per cell (overrides config)")
	sweepCmd.Flags().BoolVar(&partial, "partial", false, "return a partial grid when cells fail")
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if workers > 0 {
		cfg.Pool.Workers = workers
		if workers > cfg.Pool.MaxWorkers {
			cfg.Pool.MaxWorkers = workers
		}
	}
	if paths > 0 {
		cfg.Pricing.Paths = paths
	}
	if partial {
		cfg.Sweep.Partial = true
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	log, err := setupLogger(cfg.LogLevel)
	if err != nil {
		return err
	}

	recorder, err := metrics.NewRecorder(prometheus.NewRegistry())
	if err != nil {
		return err
	}

	pool, err := sched.NewPool(&sched.PoolConfig{
		Workers:    cfg.Pool.Workers,
		MinWorkers: cfg.Pool.MinWorkers,
		MaxWorkers: cfg.Pool.MaxWorkers,
		Seed:       cfg.Pool.Seed,
	})
	if err != nil {
		return err
	}

	scfg := sched.DefaultConfig()
	scfg.RetryPolicy = cfg.RetryPolicy()
	scfg.Logger = log
	scfg.Metrics = recorder

	scheduler, err := sched.New(pool, scfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := scheduler.Stop(); err != nil {
			log.WithError(err).Warn("scheduler shutdown")
		}
	}()

	coord, err := sweep.New(scheduler, &sweep.Config{
		Partial: cfg.Sweep.Partial,
		Logger:  log,
	})
	if err != nil {
		return err
	}

	base := pricing.Params{
		Spot:  cfg.Pricing.Spot,
		Rate:  cfg.Pricing.Rate,
		Days:  cfg.Pricing.Days,
		Paths: cfg.Pricing.Paths,
		// per-cell values, replaced by the coordinator
		Strike: cfg.Sweep.Strikes[0],
		Sigma:  cfg.Sweep.Sigmas[0],
	}

	g, err := coord.Run(ctx, cfg.Sweep.Strikes, cfg.Sweep.Sigmas, base)
	if err != nil {
		return err
	}

	printGrid(cmd, g)
	printLatency(cmd, recorder)
	return nil
}

func printGrid(cmd *cobra.Command, g *grid.Grid) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)

	fmt.Fprint(w, "strike\\sigma")
	for _, sigma := range g.Sigmas {
		fmt.Fprintf(w, "\t%.2f", sigma)
	}
	fmt.Fprintln(w)

	for i, strike := range g.Strikes {
		fmt.Fprintf(w, "%.2f", strike)
		for j := range g.Sigmas {
			q := g.Cell(i, j)
			fmt.Fprintf(w, "\tC=%.2f P=%.2f AC=%.2f AP=%.2f",
				q.EuroCall, q.EuroPut, q.AsianCall, q.AsianPut)
		}
		fmt.Fprintln(w)
	}
	w.Flush()

	for _, cell := range g.Failed {
		fmt.Fprintf(cmd.OutOrStdout(), "failed cell (%d,%d): %v\n", cell.Row, cell.Col, cell.Err)
	}
}

func printLatency(cmd *cobra.Command, r *metrics.Recorder) {
	lat := r.Latency()
	if lat.Count == 0 {
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\n%d units, latency p50=%s p90=%s p99=%s max=%s\n",
		lat.Count, lat.P50, lat.P90, lat.P99, lat.Max)
}
