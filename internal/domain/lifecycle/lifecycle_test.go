package lifecycle

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/disgoorg/karma-runner/internal/domain/karma"
	"github.com/disgoorg/karma-runner/internal/domain/orders"
	"github.com/disgoorg/karma-runner/internal/domain/runners"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// slow keeps timers out of the way of tests that drive transitions by hand.
var slow = Config{ClaimWindow: 10, TickInterval: time.Hour}

func dripFor(requester string) PlaceRequest {
	return PlaceRequest{RequesterID: requester, Drink: "drip coffee", Location: "4th floor kitchen"}
}

func TestLifecycle_PlaceClaimDeliver(t *testing.T) {
	h := newHarness(t, slow, map[string]int64{"A": 5, "B": 0})
	h.lc.SetBonusFunc(func() int64 { return 2 })
	ctx := context.Background()

	o, err := h.lc.Place(ctx, dripFor("A"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), h.balance(t, "A"))
	assert.Equal(t, orders.StatusPending, o.Status)
	assert.Equal(t, 10, o.RemainingMinutes)
	assert.Equal(t, int64(2), o.KarmaCost)
	assert.Equal(t, orders.InitiatedByRequester, o.InitiatedBy)
	assert.Equal(t, "A", o.RecipientID)
	assert.Equal(t, 3, h.scheduler.Pending(entityKey(o.ID)), "tick, reminder and expire armed")

	claimed, err := h.lc.Claim(ctx, o.ID, "B")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusClaimed, claimed.Status)
	assert.Equal(t, "B", claimed.RunnerID)
	assert.False(t, claimed.ClaimedAt.IsZero())
	assert.Equal(t, 0, h.scheduler.Pending(entityKey(o.ID)))

	delivered, err := h.lc.Deliver(ctx, o.ID, "B")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusDelivered, delivered.Status)
	assert.Equal(t, int64(2), delivered.BonusMultiplier)
	assert.False(t, delivered.DeliveredAt.Before(delivered.ClaimedAt))

	assert.Equal(t, int64(4), h.balance(t, "B"))
	assert.Equal(t, int64(3), h.balance(t, "A"))

	_, err = h.lc.Get(o.ID)
	assert.ErrorIs(t, err, ErrNotFound, "terminal orders leave memory")

	h.drain()
	assert.Equal(t, orders.StatusDelivered, h.orders.status(o.ID))
	assert.Equal(t, 1, h.renderer.count(o.ID, EventClaimed))
	assert.Equal(t, 1, h.renderer.count(o.ID, EventDelivered))

	found, err := h.lc.Find(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusDelivered, found.Status)
}

func TestLifecycle_PlaceInsufficientFunds(t *testing.T) {
	h := newHarness(t, slow, map[string]int64{"A": 1})

	_, err := h.lc.Place(context.Background(), dripFor("A"))
	require.ErrorIs(t, err, karma.ErrInsufficientFunds)
	assert.True(t, IsRejection(err))
	assert.Equal(t, int64(1), h.balance(t, "A"))
	assert.Equal(t, 0, h.store.Len())
}

func TestLifecycle_PlaceRejectsBlockedAndUnknownDrinks(t *testing.T) {
	h := newHarness(t, slow, map[string]int64{"A": 5})
	ctx := context.Background()

	_, err := h.lc.Place(ctx, PlaceRequest{RequesterID: "A", Drink: "double espresso"})
	assert.ErrorIs(t, err, ErrCategoryBlocked)

	_, err = h.lc.Place(ctx, PlaceRequest{RequesterID: "A", Drink: "zzz"})
	assert.ErrorIs(t, err, ErrUnknownDrink)

	_, err = h.lc.Place(ctx, PlaceRequest{RequesterID: "A", Drink: "the usual", Category: orders.CategoryEspresso})
	assert.ErrorIs(t, err, ErrCategoryBlocked)

	o, err := h.lc.Place(ctx, PlaceRequest{RequesterID: "A", Drink: "the usual", Category: orders.CategoryWater,
		Notes: "room temperature in the blue bottle by the window"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), o.KarmaCost)
	assert.Len(t, []rune(o.Notes), orders.MaxNotesLength)
	assert.Equal(t, int64(4), h.balance(t, "A"))
}

func TestLifecycle_CancelClaimedOrderIsRejected(t *testing.T) {
	h := newHarness(t, slow, map[string]int64{"A": 5})
	ctx := context.Background()

	o, err := h.lc.Place(ctx, dripFor("A"))
	require.NoError(t, err)
	_, err = h.lc.Claim(ctx, o.ID, "B")
	require.NoError(t, err)

	_, err = h.lc.Cancel(ctx, o.ID, "A")
	require.ErrorIs(t, err, ErrAlreadyClaimed)
	assert.True(t, IsRejection(err))

	h.drain()
	assert.Equal(t, int64(3), h.balance(t, "A"), "no refund")
	got, err := h.lc.Get(o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusClaimed, got.Status)
}

func TestLifecycle_CancelRefundsRequester(t *testing.T) {
	h := newHarness(t, slow, map[string]int64{"A": 5})
	ctx := context.Background()

	o, err := h.lc.Place(ctx, dripFor("A"))
	require.NoError(t, err)

	_, err = h.lc.Cancel(ctx, o.ID, "B")
	assert.ErrorIs(t, err, ErrWrongActor)

	canceled, err := h.lc.Cancel(ctx, o.ID, "A")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCanceled, canceled.Status)
	assert.Equal(t, int64(5), h.balance(t, "A"))
	assert.Equal(t, 0, h.scheduler.Pending(entityKey(o.ID)))

	_, err = h.lc.Cancel(ctx, o.ID, "A")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int64(5), h.balance(t, "A"))

	h.drain()
	assert.Equal(t, orders.StatusCanceled, h.orders.status(o.ID))
}

func TestLifecycle_RejectedTransitions(t *testing.T) {
	h := newHarness(t, slow, map[string]int64{"A": 5})
	ctx := context.Background()

	o, err := h.lc.Place(ctx, dripFor("A"))
	require.NoError(t, err)

	_, err = h.lc.Deliver(ctx, o.ID, "B")
	assert.ErrorIs(t, err, ErrNotClaimed)
	_, err = h.lc.Claim(ctx, o.ID, "A")
	assert.ErrorIs(t, err, ErrSelfClaim)

	_, err = h.lc.Claim(ctx, o.ID, "B")
	require.NoError(t, err)
	_, err = h.lc.Claim(ctx, o.ID, "C")
	assert.ErrorIs(t, err, ErrAlreadyClaimed)
	_, err = h.lc.Deliver(ctx, o.ID, "C")
	assert.ErrorIs(t, err, ErrWrongActor)
	_, err = h.lc.Expire(ctx, o.ID)
	assert.True(t, IsRejection(err))

	got, err := h.lc.Get(o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusClaimed, got.Status)
	assert.Equal(t, "B", got.RunnerID)

	_, err = h.lc.Claim(ctx, "missing", "B")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLifecycle_ConcurrentClaimsOneWinner(t *testing.T) {
	h := newHarness(t, slow, map[string]int64{"A": 5})
	ctx := context.Background()

	o, err := h.lc.Place(ctx, dripFor("A"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	var wins atomic.Int32
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(runner string) {
			defer wg.Done()
			if _, err := h.lc.Claim(ctx, o.ID, runner); err == nil {
				wins.Add(1)
			}
		}(string(rune('a' + i)))
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestLifecycle_ExpireTwiceRefundsOnce(t *testing.T) {
	h := newHarness(t, slow, map[string]int64{"A": 5})
	ctx := context.Background()

	o, err := h.lc.Place(ctx, dripFor("A"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	var applied atomic.Int32
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.lc.Expire(ctx, o.ID); err == nil {
				applied.Add(1)
			} else {
				assert.True(t, IsRejection(err))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), applied.Load())
	assert.Equal(t, int64(5), h.balance(t, "A"))
}

func TestLifecycle_CancelRacingExpireRefundsOnce(t *testing.T) {
	h := newHarness(t, slow, map[string]int64{"A": 10})
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		o, err := h.lc.Place(ctx, dripFor("A"))
		require.NoError(t, err)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = h.lc.Cancel(ctx, o.ID, "A")
		}()
		go func() {
			defer wg.Done()
			_, _ = h.lc.Expire(ctx, o.ID)
		}()
		wg.Wait()
		require.Equal(t, int64(10), h.balance(t, "A"))
	}
}

func TestLifecycle_UnclaimedOrderExpires(t *testing.T) {
	h := newHarness(t, Config{ClaimWindow: 10, TickInterval: 5 * time.Millisecond}, map[string]int64{"A": 5})
	ctx := context.Background()

	o, err := h.lc.Place(ctx, dripFor("A"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), h.balance(t, "A"))

	require.Eventually(t, func() bool {
		_, err := h.lc.Get(o.ID)
		return err != nil
	}, 2*time.Second, time.Millisecond)

	require.Eventually(t, func() bool { return h.balance(t, "A") == 5 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return h.scheduler.Pending(entityKey(o.ID)) == 0 }, time.Second, time.Millisecond)

	h.drain()
	assert.Equal(t, orders.StatusExpired, h.orders.status(o.ID))
	assert.Equal(t, 1, h.renderer.count(o.ID, EventExpired))
	assert.Positive(t, h.renderer.count(o.ID, EventTick))
	assert.Equal(t, 1, h.renderer.count(o.ID, EventReminder))

	// nothing fires after expiry
	seen := h.renderer.total(o.ID)
	time.Sleep(30 * time.Millisecond)
	h.drain()
	assert.Equal(t, seen, h.renderer.total(o.ID))
	assert.Equal(t, int64(5), h.balance(t, "A"))
}

func TestLifecycle_TicksCountDown(t *testing.T) {
	h := newHarness(t, Config{ClaimWindow: 10, TickInterval: 20 * time.Millisecond}, map[string]int64{"A": 5})

	o, err := h.lc.Place(context.Background(), dripFor("A"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := h.lc.Get(o.ID)
		return err == nil && got.RemainingMinutes <= 8
	}, 2*time.Second, time.Millisecond)
}

func TestLifecycle_ClaimSilencesTimers(t *testing.T) {
	h := newHarness(t, Config{ClaimWindow: 4, TickInterval: 10 * time.Millisecond}, map[string]int64{"A": 5})
	ctx := context.Background()

	o, err := h.lc.Place(ctx, dripFor("A"))
	require.NoError(t, err)
	_, err = h.lc.Claim(ctx, o.ID, "B")
	require.NoError(t, err)

	time.Sleep(80 * time.Millisecond)
	h.drain()

	got, err := h.lc.Get(o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusClaimed, got.Status)
	assert.Equal(t, 0, h.renderer.count(o.ID, EventExpired))
	assert.Equal(t, int64(3), h.balance(t, "A"))
}

func TestLifecycle_SweepExpired(t *testing.T) {
	h := newHarness(t, slow, map[string]int64{"A": 5})
	ctx := context.Background()

	h.lc.now = func() time.Time { return time.Now().Add(-11 * time.Hour) }
	stale, err := h.lc.Place(ctx, dripFor("A"))
	require.NoError(t, err)
	h.lc.now = time.Now
	fresh, err := h.lc.Place(ctx, PlaceRequest{RequesterID: "A", Drink: "water"})
	require.NoError(t, err)

	assert.Equal(t, 1, h.lc.SweepExpired(ctx))
	assert.Equal(t, 0, h.lc.SweepExpired(ctx))

	_, err = h.lc.Get(stale.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = h.lc.Get(fresh.ID)
	assert.NoError(t, err)
	assert.Equal(t, int64(4), h.balance(t, "A"))
}

func TestLifecycle_PlaceWithRunner(t *testing.T) {
	h := newHarness(t, slow, map[string]int64{"A": 5, "C": 5, "R": 0})
	h.lc.SetBonusFunc(func() int64 { return 1 })
	ctx := context.Background()

	_, err := h.lc.PlaceWithRunner(ctx, dripFor("A"), "R", "")
	assert.ErrorIs(t, err, ErrOfferContextMissing)

	offer, err := h.matcher.Open(ctx, "R", []orders.Category{orders.CategoryDrip}, 15)
	require.NoError(t, err)

	_, err = h.lc.PlaceWithRunner(ctx, dripFor("A"), "R", "some-other-offer")
	assert.ErrorIs(t, err, ErrOfferContextMissing)
	_, err = h.lc.PlaceWithRunner(ctx, PlaceRequest{RequesterID: "A", Drink: "water"}, "R", offer.ID)
	assert.ErrorIs(t, err, ErrCapabilityMismatch)
	_, err = h.lc.PlaceWithRunner(ctx, dripFor("R"), "R", offer.ID)
	assert.ErrorIs(t, err, ErrSelfClaim)
	assert.Equal(t, int64(5), h.balance(t, "A"), "rejections do not debit")

	o, err := h.lc.PlaceWithRunner(ctx, dripFor("A"), "R", offer.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusClaimed, o.Status)
	assert.Equal(t, "R", o.RunnerID)
	assert.Equal(t, offer.ID, o.OfferID)
	assert.Equal(t, orders.InitiatedByRunner, o.InitiatedBy)
	assert.Equal(t, 0, h.scheduler.Pending(entityKey(o.ID)), "no pending-phase timers")
	assert.Equal(t, int64(3), h.balance(t, "A"))

	_, err = h.lc.PlaceWithRunner(ctx, dripFor("C"), "R", offer.ID)
	assert.ErrorIs(t, err, runners.ErrAlreadyMatched)
	assert.Equal(t, int64(5), h.balance(t, "C"))

	_, err = h.lc.Deliver(ctx, o.ID, "R")
	require.NoError(t, err)
	assert.Equal(t, int64(2), h.balance(t, "R"))
}

func TestLifecycle_ConcurrentRunnerOrdersOneMatch(t *testing.T) {
	users := map[string]int64{}
	for i := 0; i < 8; i++ {
		users[string(rune('a'+i))] = 5
	}
	h := newHarness(t, slow, users)
	ctx := context.Background()

	offer, err := h.matcher.Open(ctx, "R", []orders.Category{orders.CategoryDrip}, 15)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var wins atomic.Int32
	for requester := range users {
		wg.Add(1)
		go func(requester string) {
			defer wg.Done()
			if _, err := h.lc.PlaceWithRunner(ctx, dripFor(requester), "R", offer.ID); err == nil {
				wins.Add(1)
			}
		}(requester)
	}
	wg.Wait()
	h.drain()

	assert.Equal(t, int32(1), wins.Load())
	var total int64
	for requester := range users {
		total += h.balance(t, requester)
	}
	assert.Equal(t, int64(8*5-2), total, "losers are refunded")
}

func TestLifecycle_AttachMessage(t *testing.T) {
	h := newHarness(t, slow, map[string]int64{"A": 5})
	ctx := context.Background()

	o, err := h.lc.Place(ctx, dripFor("A"))
	require.NoError(t, err)

	ref := orders.MessageRef{ChannelID: 1, MessageID: 2}
	require.NoError(t, h.lc.AttachMessage(o.ID, ref))
	got, err := h.lc.Get(o.ID)
	require.NoError(t, err)
	assert.Equal(t, ref, got.Message)

	assert.ErrorIs(t, h.lc.AttachMessage("missing", ref), ErrNotFound)
}

func TestLifecycle_AttachMessageAfterClaimRenders(t *testing.T) {
	h := newHarness(t, slow, map[string]int64{"A": 5})
	ctx := context.Background()

	o, err := h.lc.Place(ctx, dripFor("A"))
	require.NoError(t, err)
	_, err = h.lc.Claim(ctx, o.ID, "B")
	require.NoError(t, err)

	ref := orders.MessageRef{ChannelID: 1, MessageID: 2}
	require.NoError(t, h.lc.AttachMessage(o.ID, ref))
	h.drain()

	h.renderer.mu.Lock()
	defer h.renderer.mu.Unlock()
	var withRef []rendered
	for _, r := range h.renderer.events {
		if r.id == o.ID && r.view.Message == ref {
			withRef = append(withRef, r)
		}
	}
	require.Len(t, withRef, 1)
	assert.Equal(t, EventClaimed, withRef[0].event)
	assert.Equal(t, orders.StatusClaimed, withRef[0].view.Status)
}

func TestLifecycle_AttachMessageWhilePendingDoesNotRender(t *testing.T) {
	h := newHarness(t, slow, map[string]int64{"A": 5})
	ctx := context.Background()

	o, err := h.lc.Place(ctx, dripFor("A"))
	require.NoError(t, err)
	h.drain()
	before := h.renderer.total(o.ID)

	require.NoError(t, h.lc.AttachMessage(o.ID, orders.MessageRef{ChannelID: 1, MessageID: 2}))
	h.drain()
	assert.Equal(t, before, h.renderer.total(o.ID))
}

func TestLifecycle_RunnerOfferedEspresso(t *testing.T) {
	h := newHarness(t, slow, map[string]int64{"A": 5, "R": 0})
	h.lc.SetBonusFunc(func() int64 { return 1 })
	ctx := context.Background()

	latte := PlaceRequest{RequesterID: "A", Drink: "latte", Location: "desk 12"}

	drip, err := h.matcher.Open(ctx, "D", []orders.Category{orders.CategoryDrip}, 15)
	require.NoError(t, err)
	_, err = h.lc.PlaceWithRunner(ctx, latte, "D", drip.ID)
	assert.ErrorIs(t, err, ErrCapabilityMismatch)

	offer, err := h.matcher.Open(ctx, "R", []orders.Category{orders.CategoryEspresso}, 15)
	require.NoError(t, err)
	o, err := h.lc.PlaceWithRunner(ctx, latte, "R", offer.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.CategoryEspresso, o.Category)
	assert.Equal(t, int64(3), o.KarmaCost)
	assert.Equal(t, int64(2), h.balance(t, "A"))

	_, err = h.lc.Place(ctx, latte)
	assert.ErrorIs(t, err, ErrCategoryBlocked, "open intake still refuses espresso")

	_, err = h.lc.Deliver(ctx, o.ID, "R")
	require.NoError(t, err)
	assert.Equal(t, int64(3), h.balance(t, "R"))
}

func TestDefaultBonus(t *testing.T) {
	for i := 0; i < 200; i++ {
		b := DefaultBonus()
		assert.GreaterOrEqual(t, b, int64(1))
		assert.LessOrEqual(t, b, int64(3))
	}
}
