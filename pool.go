package rxpool

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/samber/lo"
)

const (
	defaultReleaseTimeout = 5 * time.Second
	minSize               = 2
)

// DefaultSize returns the default worker count: twice the available CPUs, at least 2.
func DefaultSize() int {
	return max(minSize, 2*runtime.NumCPU())
}

type config struct {
	size           int
	logger         *slog.Logger
	releaseTimeout time.Duration
	antsOptions    []ants.Option
}

// Option configures a WorkerPool.
type Option func(*config)

// WithSize sets the number of workers. A size below 1 selects DefaultSize, and a size of 1 is raised to 2.
func WithSize(size int) Option {
	return func(c *config) { c.size = size }
}

// WithLogger sets the logger used for task failures and pool lifecycle messages.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithReleaseTimeout bounds how long Stop waits for running tasks.
func WithReleaseTimeout(d time.Duration) Option {
	return func(c *config) { c.releaseTimeout = d }
}

// WithAntsOptions passes options to the underlying ants pool. They are applied after the pool's own options.
func WithAntsOptions(opts ...ants.Option) Option {
	return func(c *config) { c.antsOptions = append(c.antsOptions, opts...) }
}

// WorkerPool runs submitted tasks on a fixed set of worker goroutines fed from a shared unbounded queue.
//
// Submit never blocks: tasks are queued and a dispatcher hands them to the ants pool, waiting for a free
// worker when all of them are busy. Workers are kept alive while idle until Stop is called.
type WorkerPool struct {
	pool   *ants.Pool
	size   int
	logger *slog.Logger

	releaseTimeout time.Duration

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []task
	closed bool

	ready  chan struct{}
	quit   chan struct{}
	exited chan struct{}

	stopped  atomic.Bool
	failures atomic.Int64
}

// NewWorkerPool builds and starts a WorkerPool. Workers warm up in the background, see Ready.
func NewWorkerPool(opts ...Option) (*WorkerPool, error) {
	cfg := lo.Reduce(opts, func(c config, opt Option, _ int) config {
		opt(&c)
		return c
	}, config{releaseTimeout: defaultReleaseTimeout})
	if cfg.size < 1 {
		cfg.size = DefaultSize()
	}
	cfg.size = max(minSize, cfg.size)
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	p := &WorkerPool{
		size:           cfg.size,
		logger:         cfg.logger.With("component", "worker_pool"),
		releaseTimeout: cfg.releaseTimeout,
		ready:          make(chan struct{}),
		quit:           make(chan struct{}),
		exited:         make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.mu)

	antsOpts := append([]ants.Option{
		ants.WithDisablePurge(true), // idle workers are the keep-alive token
		ants.WithPanicHandler(p.recoverTask),
		ants.WithLogger(antsLogger{p.logger}),
	}, cfg.antsOptions...)

	pool, err := ants.NewPool(cfg.size, antsOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating worker pool of size %d: %w", cfg.size, err)
	}
	p.pool = pool

	go p.dispatch()
	return p, nil
}

// task is a unit of work; drop, when set, is called instead of run if Stop discards the task before it started.
type task struct {
	run  func()
	drop func()
}

func (t task) discard() {
	if t.drop != nil {
		t.drop()
	}
}

// Submit enqueues a task. It returns immediately, or ErrPoolClosed once the pool is stopped.
func (p *WorkerPool) Submit(run func()) error {
	return p.submit(task{run: run})
}

func (p *WorkerPool) submit(t task) error {
	if t.run == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}
	p.queue = append(p.queue, t)
	p.cond.Signal()
	return nil
}

// Ready is closed once every worker goroutine has started.
func (p *WorkerPool) Ready() <-chan struct{} {
	return p.ready
}

// WaitReady blocks until the workers have started, the pool is stopped or ctx is done.
func (p *WorkerPool) WaitReady(ctx context.Context) error {
	select {
	case <-p.ready:
		return nil
	default:
	}
	select {
	case <-p.ready:
		return nil
	case <-p.quit:
		return ErrPoolClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop rejects new submissions, drops queued tasks that have not started and waits for running ones.
// Calling Stop more than once is a no-op.
func (p *WorkerPool) Stop() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.stopped.Store(true)
	dropped := p.queue
	p.queue = nil
	close(p.quit)
	p.cond.Broadcast()
	p.mu.Unlock()

	if len(dropped) > 0 {
		p.logger.Warn("dropped queued tasks on stop", "count", len(dropped))
		for _, t := range dropped {
			t.discard()
		}
	}
	err := p.pool.ReleaseTimeout(p.releaseTimeout)
	<-p.exited
	if err != nil {
		return fmt.Errorf("stopping worker pool: %w", err)
	}
	p.logger.Debug("worker pool stopped")
	return nil
}

// Size returns the number of workers.
func (p *WorkerPool) Size() int { return p.size }

// Queued returns the number of tasks waiting for a worker.
func (p *WorkerPool) Queued() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Alive returns the number of worker goroutines alive, idle or busy.
func (p *WorkerPool) Alive() int { return p.pool.Running() }

// Failures returns how many tasks panicked since the pool was built.
func (p *WorkerPool) Failures() int64 { return p.failures.Load() }

func (p *WorkerPool) dispatch() {
	defer close(p.exited)
	if !p.warmUp() {
		return
	}
	p.logger.Debug("worker pool ready", "size", p.size)
	for {
		t, ok := p.next()
		if !ok {
			return
		}
		if err := p.pool.Submit(func() {
			if p.stopped.Load() {
				t.discard() // not started before Stop: dropped like the queued ones
				return
			}
			t.run()
		}); err != nil {
			// Only happens when the ants pool is released under us.
			p.logger.Warn("dropping task", "error", err)
			t.discard()
			return
		}
	}
}

// warmUp starts every worker with a task that blocks until all of them run, then closes ready.
func (p *WorkerPool) warmUp() bool {
	var started sync.WaitGroup
	started.Add(p.size)
	for i := 0; i < p.size; i++ {
		if err := p.pool.Submit(func() {
			started.Done()
			started.Wait()
		}); err != nil {
			for ; i < p.size; i++ {
				started.Done()
			}
			return false
		}
	}
	started.Wait()
	close(p.ready)
	return true
}

func (p *WorkerPool) next() (task, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.queue) == 0 && !p.closed {
		p.cond.Wait()
	}
	if p.closed {
		return task{}, false
	}
	t := p.queue[0]
	p.queue[0] = task{}
	p.queue = p.queue[1:]
	return t, true
}

func (p *WorkerPool) recoverTask(v any) {
	p.failures.Add(1)
	p.logger.Error("task failed", "error", &TaskFailure{Cause: v})
}

// antsLogger routes ants messages to slog.
type antsLogger struct {
	logger *slog.Logger
}

func (l antsLogger) Printf(format string, args ...any) {
	l.logger.Info(fmt.Sprintf(format, args...), "source", "ants")
}
