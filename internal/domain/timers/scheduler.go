package timers

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// Kind identifies what a timer is for.
type Kind int

const (
	Tick Kind = iota
	Reminder
	Expire
)

func (k Kind) String() string {
	switch k {
	case Tick:
		return "tick"
	case Reminder:
		return "reminder"
	case Expire:
		return "expire"
	default:
		return "unknown"
	}
}

const defaultCallbackTimeout = 30 * time.Second

// Handle references one scheduled timer.
type Handle struct {
	ID       uint64
	EntityID string
	Kind     Kind
}

// Callback runs when a timer fires. The context is cancelled on Shutdown.
type Callback func(ctx context.Context)

// Scheduler fires delayed callbacks bound to an entity id. It only tracks
// identifiers; the entities themselves live elsewhere.
type Scheduler struct {
	entities        *xsync.MapOf[string, map[uint64]*time.Timer]
	seq             atomic.Uint64
	ctx             context.Context
	cancel          context.CancelFunc
	callbackTimeout time.Duration
	observer        atomic.Pointer[func(kind Kind, dropped bool)]
}

// NewScheduler creates an idle scheduler.
func NewScheduler() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		entities:        xsync.NewMapOf[string, map[uint64]*time.Timer](),
		ctx:             ctx,
		cancel:          cancel,
		callbackTimeout: defaultCallbackTimeout,
	}
}

// SetObserver installs a hook called for every fire. dropped is true when the
// timer had already been cancelled.
func (s *Scheduler) SetObserver(fn func(kind Kind, dropped bool)) {
	s.observer.Store(&fn)
}

// Schedule arms a timer for entityID.
func (s *Scheduler) Schedule(entityID string, delay time.Duration, kind Kind, fn Callback) Handle {
	h := Handle{ID: s.seq.Add(1), EntityID: entityID, Kind: kind}

	// The timer is created inside Compute so an immediate fire blocks on the
	// bucket lock until the handle is registered.
	s.entities.Compute(entityID, func(set map[uint64]*time.Timer, loaded bool) (map[uint64]*time.Timer, bool) {
		if !loaded || set == nil {
			set = make(map[uint64]*time.Timer)
		}
		set[h.ID] = time.AfterFunc(delay, func() { s.fire(h, fn) })
		return set, false
	})

	return h
}

// Cancel stops a single timer. It reports whether the timer was still pending.
func (s *Scheduler) Cancel(h Handle) bool {
	t, ok := s.untrack(h)
	if ok {
		t.Stop()
	}
	return ok
}

// CancelAll stops every outstanding timer for entityID and returns how many
// were pending. Safe to call repeatedly or for unknown entities.
func (s *Scheduler) CancelAll(entityID string) int {
	set, ok := s.entities.LoadAndDelete(entityID)
	if !ok {
		return 0
	}
	for _, t := range set {
		t.Stop()
	}
	return len(set)
}

// Pending returns the number of timers armed for entityID.
func (s *Scheduler) Pending(entityID string) int {
	n := 0
	s.entities.Compute(entityID, func(set map[uint64]*time.Timer, loaded bool) (map[uint64]*time.Timer, bool) {
		n = len(set)
		return set, !loaded
	})
	return n
}

// Shutdown stops all timers and cancels running callbacks.
func (s *Scheduler) Shutdown() {
	s.cancel()

	var count int
	s.entities.Range(func(entityID string, _ map[uint64]*time.Timer) bool {
		count += s.CancelAll(entityID)
		return true
	})

	slog.Info("Timer scheduler shutdown completed",
		slog.String("type", "sys"),
		slog.Int("cancelled_timers", count))
}

func (s *Scheduler) untrack(h Handle) (*time.Timer, bool) {
	var (
		t     *time.Timer
		found bool
	)
	s.entities.Compute(h.EntityID, func(set map[uint64]*time.Timer, loaded bool) (map[uint64]*time.Timer, bool) {
		if !loaded {
			return nil, true
		}
		if t, found = set[h.ID]; found {
			delete(set, h.ID)
		}
		return set, len(set) == 0
	})
	return t, found
}

func (s *Scheduler) fire(h Handle, fn Callback) {
	_, live := s.untrack(h)
	s.observe(h.Kind, !live)
	if !live || s.ctx.Err() != nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Timer callback panicked",
				slog.String("type", "error"),
				slog.String("entity_id", h.EntityID),
				slog.String("kind", h.Kind.String()),
				slog.Any("panic", r))
		}
	}()

	ctx, cancel := context.WithTimeout(s.ctx, s.callbackTimeout)
	defer cancel()
	fn(ctx)
}

func (s *Scheduler) observe(kind Kind, dropped bool) {
	if fn := s.observer.Load(); fn != nil {
		(*fn)(kind, dropped)
	}
}
