package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultConcurrency = 8
	DefaultTimeout     = 15 * time.Second
)

type call struct {
	op string
	fn func(ctx context.Context) error
}

// queue holds the calls of one key. It is only touched inside the queues
// map's Compute for that key.
type queue struct {
	calls   []call
	running bool
}

// Dispatcher runs side effects (rendering, persistence writes) after a state
// transition has committed. Calls are fire-and-forget: failures are logged and
// never retried.
type Dispatcher struct {
	sem     *semaphore.Weighted
	timeout time.Duration
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	queues  *xsync.MapOf[string, *queue]
}

// New creates a dispatcher allowing at most concurrency external calls in flight.
func New(concurrency int64, timeout time.Duration) *Dispatcher {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		sem:     semaphore.NewWeighted(concurrency),
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
		queues:  xsync.NewMapOf[string, *queue](),
	}
}

// Go schedules fn in the background. op names the call in logs.
func (d *Dispatcher) Go(op string, fn func(ctx context.Context) error) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.run(op, fn)
	}()
}

// GoOrdered is Go for calls that must reach the outside world in the order
// they were made, such as successive writes of one order record. Calls
// sharing a key run one at a time in submission order; different keys run
// independently.
func (d *Dispatcher) GoOrdered(key, op string, fn func(ctx context.Context) error) {
	d.wg.Add(1)

	start := false
	d.queues.Compute(key, func(q *queue, loaded bool) (*queue, bool) {
		if !loaded {
			q = &queue{}
		}
		q.calls = append(q.calls, call{op: op, fn: fn})
		if !q.running {
			q.running = true
			start = true
		}
		return q, false
	})
	if start {
		go d.drain(key)
	}
}

func (d *Dispatcher) drain(key string) {
	for {
		var next call
		done := false
		d.queues.Compute(key, func(q *queue, loaded bool) (*queue, bool) {
			if !loaded || len(q.calls) == 0 {
				done = true
				return q, true
			}
			next = q.calls[0]
			q.calls = q.calls[1:]
			return q, false
		})
		if done {
			return
		}
		d.run(next.op, next.fn)
		d.wg.Done()
	}
}

func (d *Dispatcher) run(op string, fn func(ctx context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("External call panicked",
				slog.String("type", "error"),
				slog.String("operation", op),
				slog.Any("panic", r))
		}
	}()

	if err := d.sem.Acquire(d.ctx, 1); err != nil {
		slog.Warn("External call dropped",
			slog.String("operation", op),
			slog.String("reason", "dispatcher closed"))
		return
	}
	defer d.sem.Release(1)

	ctx, cancel := context.WithTimeout(d.ctx, d.timeout)
	defer cancel()

	start := time.Now()
	if err := fn(ctx); err != nil {
		slog.Error("External call failed",
			slog.String("type", "error"),
			slog.String("operation", op),
			slog.Duration("took", time.Since(start)),
			slog.Any("error", err))
	}
}

// Wait blocks until every dispatched call has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close waits for in-flight calls up to timeout, then cancels the rest.
func (d *Dispatcher) Close(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		slog.Warn("Timeout waiting for external calls", slog.Duration("timeout", timeout))
	}
	d.cancel()
}
