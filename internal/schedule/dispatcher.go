package schedule

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

var (
	ErrQueueFull   = errors.New("job queue full")
	ErrQueueClosed = errors.New("job queue closed")
)

// Handler runs one queued job.
type Handler func(ctx context.Context, kind, jobID string) error

type task struct {
	kind  string
	jobID string
}

// Dispatcher runs submitted jobs on a fixed set of workers. Every run gets its
// own context, so a finished or failing request never cancels a job.
type Dispatcher struct {
	handler Handler
	workers int
	timeout time.Duration

	ch   chan task
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool

	root   context.Context
	cancel context.CancelFunc
}

type Option func(*Dispatcher)

func WithWorkers(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.ch = make(chan task, n)
		}
	}
}

// WithRunTimeout bounds a single run. Zero means no bound.
func WithRunTimeout(t time.Duration) Option {
	return func(d *Dispatcher) {
		if t > 0 {
			d.timeout = t
		}
	}
}

func NewDispatcher(handler Handler, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		handler: handler,
		workers: 2,
		ch:      make(chan task, 64),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Start launches the workers. Runs derive from ctx, so cancelling it
// interrupts jobs in flight.
func (d *Dispatcher) Start(ctx context.Context) {
	d.once.Do(func() {
		if ctx == nil {
			ctx = context.Background()
		}
		d.root, d.cancel = context.WithCancel(ctx)
		for i := 0; i < d.workers; i++ {
			d.wg.Add(1)
			go d.work(i + 1)
		}
	})
}

func (d *Dispatcher) work(workerID int) {
	defer d.wg.Done()
	logutil.GetLogger(d.root).Debug("worker started", zap.Int("worker_id", workerID))
	for t := range d.ch {
		d.runOne(workerID, t)
	}
	logutil.GetLogger(d.root).Debug("worker stopped", zap.Int("worker_id", workerID))
}

func (d *Dispatcher) runOne(workerID int, t task) {
	logger := logutil.GetLogger(d.root).With(zap.Int("worker_id", workerID))
	ctx, cancel := d.root, context.CancelFunc(func() {})
	if d.timeout > 0 {
		ctx, cancel = context.WithTimeout(d.root, d.timeout)
	}
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("job panicked", zap.String("kind", t.kind), zap.String("job_id", t.jobID), zap.Any("panic", r))
		}
	}()
	start := time.Now()
	if err := d.handler(ctx, t.kind, t.jobID); err != nil {
		logger.Error("job run failed", zap.String("kind", t.kind), zap.String("job_id", t.jobID),
			zap.Duration("duration", time.Since(start)), zap.Error(err))
		return
	}
	logger.Info("job run finished", zap.String("kind", t.kind), zap.String("job_id", t.jobID),
		zap.Duration("duration", time.Since(start)))
}

// Submit queues a job without blocking. A full queue is reported to the
// caller instead of stalling the request that created the job.
func (d *Dispatcher) Submit(kind, jobID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrQueueClosed
	}
	select {
	case d.ch <- task{kind: kind, jobID: jobID}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop refuses new work and waits for queued jobs to drain. When ctx ends
// first the remaining runs are cancelled and awaited.
func (d *Dispatcher) Stop(ctx context.Context) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.ch)
	d.mu.Unlock()
	if d.cancel == nil {
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		d.wg.Wait()
	}()
	logger := logutil.GetLogger(ctx)
	select {
	case <-done:
		logger.Info("job queue drained")
	case <-ctx.Done():
		logger.Warn("job queue drain interrupted, cancelling running jobs")
		d.cancel()
		<-done
	}
	d.cancel()
}
