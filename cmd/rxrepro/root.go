package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/fogfactory/rxpool"
	"github.com/fogfactory/rxpool/benchmark"
)

type options struct {
	events     int
	target     int
	workers    int
	workDelay  time.Duration
	timeout    time.Duration
	naive      bool
	cpuProfile string
	logLevel   string
}

// NewRootCmd builds the rxrepro command.
func NewRootCmd() *cobra.Command {
	opts := options{}
	cmd := &cobra.Command{
		Use:   "rxrepro",
		Short: "Reproduce the multi-stream completion race on a worker pool",
		Long: `rxrepro publishes events into a stream, processes each of them on a worker pool,
sums the processed events and waits until every stream involved has completed.

With --naive, the aggregation only completes the stream it observes and the run hangs.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.events, "events", "n", rxpool.DefaultEventCount, "number of events to publish")
	cmd.Flags().IntVarP(&opts.target, "target", "t", rxpool.DefaultEventCount, "number of processed events to wait for")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 0, "worker count (default: 2 x CPUs, at least 2)")
	cmd.Flags().DurationVar(&opts.workDelay, "work-delay", 0, "time spent by every unit of work")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "abort the run after this duration (0: wait forever)")
	cmd.Flags().BoolVar(&opts.naive, "naive", false, "complete only the observed stream (reproduces the hang)")
	cmd.Flags().StringVar(&opts.cpuProfile, "cpuprofile", "", "write a CPU profile to this file or directory")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn, error")

	return cmd
}

func run(cmd *cobra.Command, opts options) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(opts.logLevel)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", opts.logLevel, err)
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	pool, err := rxpool.NewWorkerPool(rxpool.WithSize(opts.workers), rxpool.WithLogger(logger))
	if err != nil {
		return err
	}
	defer func() {
		if err := pool.Stop(); err != nil {
			logger.Warn("stopping worker pool", "error", err)
		}
	}()
	if err := pool.WaitReady(ctx); err != nil {
		return fmt.Errorf("waiting for workers: %w", err)
	}

	pipeline, err := rxpool.NewPipeline(rxpool.NewCoordinator(pool), rxpool.PipelineConfig{
		Events:    opts.events,
		Target:    opts.target,
		WorkDelay: opts.workDelay,
		Naive:     opts.naive,
		Output:    cmd.OutOrStdout(),
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	runPipeline := func() error {
		_, err := pipeline.Run(ctx)
		return err
	}
	if opts.cpuProfile == "" {
		return runPipeline()
	}
	path, err := benchmark.Profile(opts.cpuProfile, opts.events, pool.Size(), runPipeline)
	if path != "" {
		logger.Info("cpu profile written", "path", path)
	}
	return err
}
