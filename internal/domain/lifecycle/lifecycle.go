package lifecycle

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/disgoorg/karma-runner/internal/domain/dispatch"
	"github.com/disgoorg/karma-runner/internal/domain/karma"
	"github.com/disgoorg/karma-runner/internal/domain/orders"
	"github.com/disgoorg/karma-runner/internal/domain/runners"
	"github.com/disgoorg/karma-runner/internal/domain/timers"
)

const (
	DefaultClaimWindow  = 10
	DefaultTickInterval = time.Minute
)

var (
	ErrNotFound            = orders.ErrNotFound
	ErrNotPending          = errors.New("order is no longer pending")
	ErrAlreadyClaimed      = errors.New("order has already been claimed")
	ErrNotClaimed          = errors.New("order has not been claimed yet")
	ErrWrongActor          = errors.New("you are not allowed to do that with this order")
	ErrSelfClaim           = errors.New("you cannot run your own order")
	ErrUnknownDrink        = errors.New("drink could not be matched to a category")
	ErrCategoryBlocked     = errors.New("drink category is not accepted right now")
	ErrOfferContextMissing = errors.New("runner offer could not be found, please try again")
	ErrCapabilityMismatch  = errors.New("runner does not make this kind of drink")
)

var rejections = []error{
	ErrNotFound,
	ErrNotPending,
	ErrAlreadyClaimed,
	ErrNotClaimed,
	ErrWrongActor,
	ErrSelfClaim,
	ErrUnknownDrink,
	ErrCategoryBlocked,
	ErrOfferContextMissing,
	ErrCapabilityMismatch,
	karma.ErrInsufficientFunds,
	runners.ErrAlreadyMatched,
	runners.ErrAlreadyOpen,
	runners.ErrInvalidOffer,
}

// IsRejection reports whether err is a validation outcome meant for the user
// rather than a failure.
func IsRejection(err error) bool {
	for _, r := range rejections {
		if errors.Is(err, r) {
			return true
		}
	}
	return false
}

// Event says why an order is being rendered.
type Event string

const (
	EventTick      Event = "tick"
	EventReminder  Event = "reminder"
	EventClaimed   Event = "claimed"
	EventDelivered Event = "delivered"
	EventCanceled  Event = "canceled"
	EventExpired   Event = "expired"
)

// Renderer updates the message displaying an order. Creation is rendered by
// the caller of Place, which then reports the message via AttachMessage.
type Renderer interface {
	RenderOrder(ctx context.Context, view orders.View, event Event) error
}

// Recorder observes lifecycle activity.
type Recorder interface {
	OrderPlaced(category orders.Category, initiator orders.Initiator)
	OrderTransitioned(from, to orders.Status)
	KarmaMoved(reason string, amount int64)
	TimerFired(kind timers.Kind, stale bool)
}

type nopRecorder struct{}

func (nopRecorder) OrderPlaced(orders.Category, orders.Initiator)  {}
func (nopRecorder) OrderTransitioned(orders.Status, orders.Status) {}
func (nopRecorder) KarmaMoved(string, int64)                       {}
func (nopRecorder) TimerFired(timers.Kind, bool)                   {}

// BonusFunc picks the delivery bonus multiplier. Results below 1 are raised to 1.
type BonusFunc func() int64

// DefaultBonus draws a multiplier with weights 70/25/5 for 1x/2x/3x.
func DefaultBonus() int64 {
	switch n := rand.Intn(100); {
	case n < 70:
		return 1
	case n < 95:
		return 2
	default:
		return 3
	}
}

type Config struct {
	// ClaimWindow is how many ticks a pending order waits for a runner.
	ClaimWindow  int
	TickInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.ClaimWindow <= 0 {
		c.ClaimWindow = DefaultClaimWindow
	}
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	return c
}

// PlaceRequest is the intake form of an order. Category overrides the
// category derived from Drink when set.
type PlaceRequest struct {
	RequesterID string
	RecipientID string
	Drink       string
	Category    orders.Category
	Location    string
	Notes       string
}

// Lifecycle is the order state machine. It commits every transition inside
// the order's critical section, then moves karma, then hands rendering and
// persistence to the dispatcher.
type Lifecycle struct {
	cfg       Config
	store     *orders.Store
	ledger    *karma.Ledger
	matcher   *runners.Matcher
	scheduler *timers.Scheduler
	repo      orders.Repository
	renderer  Renderer
	dispatch  *dispatch.Dispatcher

	bonus    BonusFunc
	recorder Recorder
	now      func() time.Time
}

func New(
	cfg Config,
	store *orders.Store,
	ledger *karma.Ledger,
	matcher *runners.Matcher,
	scheduler *timers.Scheduler,
	repo orders.Repository,
	renderer Renderer,
	d *dispatch.Dispatcher,
) *Lifecycle {
	return &Lifecycle{
		cfg:       cfg.withDefaults(),
		store:     store,
		ledger:    ledger,
		matcher:   matcher,
		scheduler: scheduler,
		repo:      repo,
		renderer:  renderer,
		dispatch:  d,
		bonus:     DefaultBonus,
		recorder:  nopRecorder{},
		now:       time.Now,
	}
}

func (l *Lifecycle) SetBonusFunc(fn BonusFunc) {
	if fn == nil {
		fn = DefaultBonus
	}
	l.bonus = fn
}

func (l *Lifecycle) SetRecorder(r Recorder) {
	if r == nil {
		r = nopRecorder{}
	}
	l.recorder = r
}

func (l *Lifecycle) Config() Config {
	return l.cfg
}

// Get returns a snapshot of a live order.
func (l *Lifecycle) Get(id string) (*orders.Order, error) {
	o, err := l.store.Get(id)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// Find returns a live order or, failing that, the persisted record, which may
// be slightly stale.
func (l *Lifecycle) Find(ctx context.Context, id string) (*orders.Order, error) {
	if o, err := l.store.Get(id); err == nil {
		return &o, nil
	}
	o, err := l.repo.FetchOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, ErrNotFound
	}
	return o, nil
}

// Active returns every live order.
func (l *Lifecycle) Active() []orders.Order {
	return l.store.Active()
}

func (l *Lifecycle) view(o orders.Order) orders.View {
	return orders.View{Order: o, ClaimWindow: l.cfg.ClaimWindow}
}

func (l *Lifecycle) render(o orders.Order, event Event) {
	view := l.view(o)
	l.dispatch.GoOrdered("render:"+o.ID, "order.render."+string(event), func(ctx context.Context) error {
		return l.renderer.RenderOrder(ctx, view, event)
	})
}

// eventFor maps a status to the event that produced it.
func eventFor(status orders.Status) Event {
	switch status {
	case orders.StatusClaimed:
		return EventClaimed
	case orders.StatusDelivered:
		return EventDelivered
	case orders.StatusCanceled:
		return EventCanceled
	case orders.StatusExpired:
		return EventExpired
	}
	return EventTick
}

func (l *Lifecycle) persist(o orders.Order, patch orders.Patch) {
	l.dispatch.GoOrdered("persist:"+o.ID, "order.update", func(ctx context.Context) error {
		return l.repo.UpdateOrder(ctx, o.ID, patch)
	})
}

func entityKey(orderID string) string {
	return "order:" + orderID
}

// notBefore keeps lifecycle timestamps monotonic.
func notBefore(t, floor time.Time) time.Time {
	if t.Before(floor) {
		return floor
	}
	return t
}
