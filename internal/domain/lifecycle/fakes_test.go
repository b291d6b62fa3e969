package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/karma-runner/internal/domain/dispatch"
	"github.com/disgoorg/karma-runner/internal/domain/karma"
	"github.com/disgoorg/karma-runner/internal/domain/orders"
	"github.com/disgoorg/karma-runner/internal/domain/runners"
	"github.com/disgoorg/karma-runner/internal/domain/timers"
)

type memBalances struct {
	mu       sync.Mutex
	balances map[string]int64
}

func (m *memBalances) GetBalance(_ context.Context, userID string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.balances[userID]
	return b, ok, nil
}

func (m *memBalances) SetBalance(_ context.Context, userID string, balance int64, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[userID] = balance
	return nil
}

func (m *memBalances) TopBalances(context.Context, int) ([]karma.Account, error) {
	return nil, nil
}

type memOrders struct {
	mu     sync.Mutex
	orders map[string]orders.Order
}

func (m *memOrders) AppendOrder(_ context.Context, o orders.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
	return nil
}

func (m *memOrders) UpdateOrder(_ context.Context, id string, p orders.Patch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := m.orders[id]
	if p.Status != nil {
		o.Status = *p.Status
	}
	if p.RunnerID != nil {
		o.RunnerID = *p.RunnerID
	}
	if p.BonusMultiplier != nil {
		o.BonusMultiplier = *p.BonusMultiplier
	}
	if p.Message != nil {
		o.Message = *p.Message
	}
	m.orders[id] = o
	return nil
}

func (m *memOrders) FetchOrder(_ context.Context, id string) (*orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (m *memOrders) status(id string) orders.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders[id].Status
}

type rendered struct {
	id    string
	event Event
	view  orders.View
}

type memRenderer struct {
	mu     sync.Mutex
	events []rendered
}

func (r *memRenderer) RenderOrder(_ context.Context, view orders.View, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, rendered{id: view.ID, event: event, view: view})
	return nil
}

func (r *memRenderer) RenderOffer(context.Context, runners.View, runners.Event) error {
	return nil
}

func (r *memRenderer) count(id string, event Event) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.id == id && e.event == event {
			n++
		}
	}
	return n
}

func (r *memRenderer) total(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.id == id {
			n++
		}
	}
	return n
}

type offerLog struct{}

func (offerLog) AppendOffer(context.Context, string, []orders.Category, int) error { return nil }

type harness struct {
	lc        *Lifecycle
	ledger    *karma.Ledger
	matcher   *runners.Matcher
	scheduler *timers.Scheduler
	dispatch  *dispatch.Dispatcher
	store     *orders.Store
	orders    *memOrders
	renderer  *memRenderer
}

func newHarness(t *testing.T, cfg Config, balances map[string]int64) *harness {
	t.Helper()
	if balances == nil {
		balances = map[string]int64{}
	}
	scheduler := timers.NewScheduler()
	d := dispatch.New(8, time.Second)
	store := orders.NewStore()
	ledger := karma.NewLedger(&memBalances{balances: balances}, nil, karma.DefaultStartingBalance)
	renderer := &memRenderer{}
	repo := &memOrders{orders: map[string]orders.Order{}}
	matcher := runners.NewMatcher(scheduler, offerLog{}, renderer, d, cfg.TickInterval)

	h := &harness{
		lc:        New(cfg, store, ledger, matcher, scheduler, repo, renderer, d),
		ledger:    ledger,
		matcher:   matcher,
		scheduler: scheduler,
		dispatch:  d,
		store:     store,
		orders:    repo,
		renderer:  renderer,
	}
	t.Cleanup(func() {
		scheduler.Shutdown()
		d.Close(time.Second)
		ledger.Wait()
	})
	return h
}

func (h *harness) balance(t *testing.T, userID string) int64 {
	t.Helper()
	acc, err := h.ledger.Balance(context.Background(), userID)
	if err != nil {
		t.Fatalf("balance %s: %v", userID, err)
	}
	return acc.Balance
}

// drain waits for every dispatched render and persistence call.
func (h *harness) drain() {
	h.dispatch.Wait()
	h.ledger.Wait()
}
