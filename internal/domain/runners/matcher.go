package runners

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/disgoorg/karma-runner/internal/domain/dispatch"
	"github.com/disgoorg/karma-runner/internal/domain/orders"
	"github.com/disgoorg/karma-runner/internal/domain/timers"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
)

type offerEntry struct {
	mu     sync.Mutex
	offer  Offer
	closed bool
}

// Matcher tracks runner offers and pairs each with at most one requester.
// State changes for one runner are serialized on that runner's entry.
type Matcher struct {
	offers    *xsync.MapOf[string, *offerEntry]
	scheduler *timers.Scheduler
	repo      Repository
	renderer  Renderer
	dispatch  *dispatch.Dispatcher
	tick      time.Duration
	now       func() time.Time
}

func NewMatcher(scheduler *timers.Scheduler, repo Repository, renderer Renderer, d *dispatch.Dispatcher, tick time.Duration) *Matcher {
	if tick <= 0 {
		tick = time.Minute
	}
	return &Matcher{
		offers:    xsync.NewMapOf[string, *offerEntry](),
		scheduler: scheduler,
		repo:      repo,
		renderer:  renderer,
		dispatch:  d,
		tick:      tick,
		now:       time.Now,
	}
}

// Open announces that runnerID can fetch the given categories for minutes.
// A consumed offer from the same runner is replaced.
func (m *Matcher) Open(ctx context.Context, runnerID string, capabilities []orders.Category, minutes int) (*Offer, error) {
	if minutes <= 0 || len(capabilities) == 0 {
		return nil, ErrInvalidOffer
	}

	offer := Offer{
		ID:               uuid.NewString(),
		RunnerID:         runnerID,
		AvailableMinutes: minutes,
		RemainingMinutes: minutes,
		Capabilities:     append([]orders.Category(nil), capabilities...),
		OpenedAt:         m.now(),
	}

	var err error
	m.offers.Compute(runnerID, func(old *offerEntry, loaded bool) (*offerEntry, bool) {
		if loaded {
			old.mu.Lock()
			open := !old.closed && !old.offer.Consumed()
			old.mu.Unlock()
			if open {
				err = ErrAlreadyOpen
				return old, false
			}
		}
		return &offerEntry{offer: offer}, false
	})
	if err != nil {
		return nil, err
	}

	m.arm(offer)
	m.dispatch.Go("offer.append", func(ctx context.Context) error {
		return m.repo.AppendOffer(ctx, runnerID, offer.Capabilities, minutes)
	})

	slog.Info("Runner offer opened",
		slog.String("type", "runner"),
		slog.String("runner_id", runnerID),
		slog.String("offer_id", offer.ID),
		slog.Int("minutes", minutes))
	return &offer, nil
}

// Match consumes the runner's open offer on behalf of requesterID. Of any
// number of concurrent attempts at most one succeeds; the rest get
// ErrAlreadyMatched.
func (m *Matcher) Match(runnerID, requesterID string) (*Offer, error) {
	return m.MatchOffer(runnerID, "", requesterID)
}

// MatchOffer is Match restricted to a specific offer id. An empty offerID
// matches whatever offer the runner has.
func (m *Matcher) MatchOffer(runnerID, offerID, requesterID string) (*Offer, error) {
	e, ok := m.offers.Load(runnerID)
	if !ok {
		return nil, ErrNotFound
	}

	e.mu.Lock()
	if e.closed || (offerID != "" && e.offer.ID != offerID) {
		e.mu.Unlock()
		return nil, ErrNotFound
	}
	if e.offer.Consumed() {
		e.mu.Unlock()
		return nil, ErrAlreadyMatched
	}
	e.offer.MatchedRequesterID = requesterID
	e.offer.MatchedAt = m.now()
	offer := e.offer
	e.mu.Unlock()

	m.scheduler.CancelAll(entityKey(offer.ID))
	m.render(offer, EventMatched)

	slog.Info("Runner offer matched",
		slog.String("type", "runner"),
		slog.String("runner_id", runnerID),
		slog.String("offer_id", offer.ID),
		slog.String("requester_id", requesterID))
	return &offer, nil
}

// Withdraw removes the runner's open offer. It is a no-op when the offer is
// consumed or absent.
func (m *Matcher) Withdraw(runnerID string) bool {
	return m.close(runnerID, "", EventWithdrawn)
}

// Offer returns a snapshot of the runner's current offer, consumed or not.
func (m *Matcher) Offer(runnerID string) (Offer, bool) {
	e, ok := m.offers.Load(runnerID)
	if !ok {
		return Offer{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return Offer{}, false
	}
	return e.offer, true
}

// OpenOffers returns snapshots of every unconsumed offer.
func (m *Matcher) OpenOffers() []Offer {
	var out []Offer
	m.offers.Range(func(_ string, e *offerEntry) bool {
		e.mu.Lock()
		if !e.closed && !e.offer.Consumed() {
			out = append(out, e.offer)
		}
		e.mu.Unlock()
		return true
	})
	return out
}

// AttachMessage records where the transport displayed the offer.
func (m *Matcher) AttachMessage(runnerID, offerID string, ref orders.MessageRef) error {
	e, ok := m.offers.Load(runnerID)
	if !ok {
		return ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.offer.ID != offerID {
		return ErrNotFound
	}
	e.offer.Message = ref
	return nil
}

func (m *Matcher) close(runnerID, offerID string, event Event) bool {
	e, ok := m.offers.Load(runnerID)
	if !ok {
		return false
	}

	e.mu.Lock()
	if e.closed || e.offer.Consumed() || (offerID != "" && e.offer.ID != offerID) {
		e.mu.Unlock()
		return false
	}
	e.closed = true
	offer := e.offer
	e.mu.Unlock()

	m.offers.Compute(runnerID, func(cur *offerEntry, loaded bool) (*offerEntry, bool) {
		return cur, !loaded || cur == e
	})
	m.scheduler.CancelAll(entityKey(offer.ID))
	m.render(offer, event)

	slog.Info("Runner offer closed",
		slog.String("type", "runner"),
		slog.String("runner_id", runnerID),
		slog.String("offer_id", offer.ID),
		slog.String("reason", string(event)))
	return true
}

func (m *Matcher) arm(offer Offer) {
	key := entityKey(offer.ID)
	m.scheduler.Schedule(key, m.tick, timers.Tick, func(ctx context.Context) {
		m.onTick(offer.RunnerID, offer.ID)
	})
	m.scheduler.Schedule(key, time.Duration(offer.AvailableMinutes)*m.tick, timers.Expire, func(ctx context.Context) {
		m.close(offer.RunnerID, offer.ID, EventExpired)
	})
}

func (m *Matcher) onTick(runnerID, offerID string) {
	e, ok := m.offers.Load(runnerID)
	if !ok {
		return
	}

	e.mu.Lock()
	if e.closed || e.offer.Consumed() || e.offer.ID != offerID {
		e.mu.Unlock()
		return
	}
	if e.offer.RemainingMinutes <= 1 {
		e.mu.Unlock()
		m.close(runnerID, offerID, EventExpired)
		return
	}
	e.offer.RemainingMinutes--
	offer := e.offer
	// reschedule while holding the entry so a concurrent close cannot miss it
	m.scheduler.Schedule(entityKey(offerID), m.tick, timers.Tick, func(ctx context.Context) {
		m.onTick(runnerID, offerID)
	})
	e.mu.Unlock()

	m.render(offer, EventTick)
}

func (m *Matcher) render(offer Offer, event Event) {
	m.dispatch.GoOrdered(entityKey(offer.ID), fmt.Sprintf("offer.render.%s", event), func(ctx context.Context) error {
		return m.renderer.RenderOffer(ctx, View{Offer: offer}, event)
	})
}

func entityKey(offerID string) string {
	return "offer:" + offerID
}
