package runners

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/disgoorg/karma-runner/internal/domain/dispatch"
	"github.com/disgoorg/karma-runner/internal/domain/orders"
	"github.com/disgoorg/karma-runner/internal/domain/timers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRenderer struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingRenderer) RenderOffer(_ context.Context, _ View, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingRenderer) seen(event Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e == event {
			return true
		}
	}
	return false
}

type countingRepo struct {
	appended atomic.Int32
}

func (r *countingRepo) AppendOffer(context.Context, string, []orders.Category, int) error {
	r.appended.Add(1)
	return nil
}

func newTestMatcher(t *testing.T, tick time.Duration) (*Matcher, *recordingRenderer, *countingRepo, *timers.Scheduler) {
	scheduler := timers.NewScheduler()
	d := dispatch.New(4, time.Second)
	renderer := &recordingRenderer{}
	repo := &countingRepo{}
	t.Cleanup(func() {
		scheduler.Shutdown()
		d.Close(time.Second)
	})
	return NewMatcher(scheduler, repo, renderer, d, tick), renderer, repo, scheduler
}

var waterAndDrip = []orders.Category{orders.CategoryWater, orders.CategoryDrip}

func TestMatcher_OpenRejectsSecondOpenOffer(t *testing.T) {
	m, _, repo, _ := newTestMatcher(t, time.Hour)
	ctx := context.Background()

	offer, err := m.Open(ctx, "runner", waterAndDrip, 15)
	require.NoError(t, err)
	assert.Equal(t, 15, offer.RemainingMinutes)
	assert.True(t, offer.Can(orders.CategoryDrip))
	assert.False(t, offer.Can(orders.CategoryEspresso))

	_, err = m.Open(ctx, "runner", waterAndDrip, 5)
	assert.ErrorIs(t, err, ErrAlreadyOpen)

	_, err = m.Open(ctx, "runner", nil, 5)
	assert.ErrorIs(t, err, ErrInvalidOffer)

	require.Eventually(t, func() bool { return repo.appended.Load() == 1 }, time.Second, time.Millisecond)
}

func TestMatcher_ConcurrentMatchOnlyOneWins(t *testing.T) {
	m, renderer, _, scheduler := newTestMatcher(t, time.Hour)
	offer, err := m.Open(context.Background(), "runner", waterAndDrip, 15)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var wins, matched atomic.Int32
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := m.Match("runner", "requester")
			switch {
			case err == nil:
				wins.Add(1)
			case assert.ErrorIs(t, err, ErrAlreadyMatched):
				matched.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(31), matched.Load())
	assert.Equal(t, 0, scheduler.Pending(entityKey(offer.ID)))
	require.Eventually(t, func() bool { return renderer.seen(EventMatched) }, time.Second, time.Millisecond)

	got, ok := m.Offer("runner")
	require.True(t, ok)
	assert.Equal(t, "requester", got.MatchedRequesterID)
}

func TestMatcher_MatchUnknownRunner(t *testing.T) {
	m, _, _, _ := newTestMatcher(t, time.Hour)
	_, err := m.Match("ghost", "requester")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMatcher_MatchOfferChecksID(t *testing.T) {
	m, _, _, _ := newTestMatcher(t, time.Hour)
	offer, err := m.Open(context.Background(), "runner", waterAndDrip, 15)
	require.NoError(t, err)

	_, err = m.MatchOffer("runner", "stale-offer", "requester")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = m.MatchOffer("runner", offer.ID, "requester")
	assert.NoError(t, err)
}

func TestMatcher_Withdraw(t *testing.T) {
	m, renderer, _, _ := newTestMatcher(t, time.Hour)
	ctx := context.Background()

	assert.False(t, m.Withdraw("runner"), "absent offer")

	_, err := m.Open(ctx, "runner", waterAndDrip, 15)
	require.NoError(t, err)
	assert.True(t, m.Withdraw("runner"))
	assert.False(t, m.Withdraw("runner"))

	_, ok := m.Offer("runner")
	assert.False(t, ok)
	require.Eventually(t, func() bool { return renderer.seen(EventWithdrawn) }, time.Second, time.Millisecond)

	_, err = m.Open(ctx, "runner", waterAndDrip, 15)
	require.NoError(t, err)
	_, err = m.Match("runner", "requester")
	require.NoError(t, err)
	assert.False(t, m.Withdraw("runner"), "consumed offer cannot be withdrawn")

	_, err = m.Open(ctx, "runner", waterAndDrip, 10)
	assert.NoError(t, err, "consumed offer is replaced")
}

func TestMatcher_OfferCountsDownAndExpires(t *testing.T) {
	m, renderer, _, scheduler := newTestMatcher(t, 5*time.Millisecond)

	offer, err := m.Open(context.Background(), "runner", waterAndDrip, 3)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return renderer.seen(EventTick) }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		_, ok := m.Offer("runner")
		return !ok
	}, time.Second, time.Millisecond)

	require.Eventually(t, func() bool { return renderer.seen(EventExpired) }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return scheduler.Pending(entityKey(offer.ID)) == 0 }, time.Second, time.Millisecond)
	assert.Empty(t, m.OpenOffers())
}
