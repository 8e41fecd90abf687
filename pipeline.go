package rxpool

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"
)

// DefaultEventCount is the number of events pushed by a default pipeline run, and its default target.
const DefaultEventCount = 500

// PipelineConfig configures a Pipeline run.
type PipelineConfig struct {
	// Events is the number of events published into the input stream.
	Events int
	// Target is the number of processed events the aggregation waits for.
	Target int
	// WorkDelay is slept by every unit of work before publishing.
	WorkDelay time.Duration
	// Naive completes only the stream the aggregation observes instead of broadcasting to every sibling.
	// The barrier then never releases: this reproduces the completion hang.
	Naive bool
	// Output receives the progress lines. Nil discards them.
	Output io.Writer
	Logger *slog.Logger
}

// Result summarizes a successful run.
type Result struct {
	Total    int
	Duration time.Duration
}

// Pipeline pushes events through a picture stream, fans each one out on a Coordinator into a processed stream,
// sums the processed events and waits for the picture, processed and finished streams to complete.
type Pipeline struct {
	coord  *Coordinator
	cfg    PipelineConfig
	out    io.Writer
	logger *slog.Logger
}

// NewPipeline validates cfg and binds a Pipeline to coord.
func NewPipeline(coord *Coordinator, cfg PipelineConfig) (*Pipeline, error) {
	if cfg.Target < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTarget, cfg.Target)
	}
	if cfg.Events < 0 {
		return nil, fmt.Errorf("negative event count: %d", cfg.Events)
	}
	out := cfg.Output
	if out == nil {
		out = io.Discard
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		coord:  coord,
		cfg:    cfg,
		out:    &lineWriter{w: out},
		logger: logger.With("component", "pipeline"),
	}, nil
}

// Run publishes the events and blocks until every stream completed, a stream failed or ctx is done.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	start := time.Now()

	picture := NewSubject[int]()
	processed := NewSubject[int]()
	finished := NewSubject[int]()

	done := NewBroadcast(processed)
	if !p.cfg.Naive {
		done.Add(picture)
		done.Add(finished)
	}

	agg, err := NewAggregation(p.cfg.Target, 0, func(sum, v int) int { return sum + v })
	if err != nil {
		return Result{}, err
	}
	agg.OnStep(func(_ int, sum int) {
		fmt.Fprintf(p.out, "Got event %d\n", sum)
	}).Attach(processed, done)

	fanOut := NewFanOut(p.coord, picture, processed, AsWork(func(v int) int {
		if p.cfg.WorkDelay > 0 {
			time.Sleep(p.cfg.WorkDelay)
		}
		return v
	}))
	defer fanOut.Stop()

	p.logger.Debug("publishing events", "events", p.cfg.Events, "target", p.cfg.Target, "naive", p.cfg.Naive)
	for range lo.Range(p.cfg.Events) {
		fmt.Fprintln(p.out, "Sending event")
		picture.OnNext(1)
	}

	if err := AwaitAll(ctx, picture, processed, finished); err != nil {
		cancelled := fanOut.CancelPending()
		p.logger.Warn("pipeline did not complete", "error", err, "processed", agg.Count(), "cancelled", cancelled)
		return Result{Total: agg.Total()}, err
	}

	res := Result{Total: agg.Total(), Duration: time.Since(start)}
	fmt.Fprintf(p.out, "Duration: %d\n", res.Duration.Round(time.Millisecond).Milliseconds())
	return res, nil
}

// lineWriter serializes writes coming from the driver and from workers.
type lineWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lineWriter) Write(b []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(b)
}
