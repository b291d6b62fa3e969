package orders

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

var (
	ErrNotFound  = errors.New("order not found")
	ErrDuplicate = errors.New("order already exists")
)

type entry struct {
	mu      sync.Mutex
	order   Order
	removed bool
}

// Store is the registry of live orders. Each order has its own lock, so
// unrelated orders never contend. Orders leave the store on terminal
// transitions.
type Store struct {
	entries *xsync.MapOf[string, *entry]
	// due indexes pending orders by expiration deadline
	due *xsync.MapOf[string, time.Time]
}

func NewStore() *Store {
	return &Store{
		entries: xsync.NewMapOf[string, *entry](),
		due:     xsync.NewMapOf[string, time.Time](),
	}
}

// Insert adds a new order. A non-zero deadline registers it as awaiting
// expiration.
func (s *Store) Insert(o Order, deadline time.Time) error {
	if _, loaded := s.entries.LoadOrStore(o.ID, &entry{order: o}); loaded {
		return ErrDuplicate
	}
	if !deadline.IsZero() && o.Status == StatusPending {
		s.due.Store(o.ID, deadline)
	}
	return nil
}

// Get returns a snapshot of the order.
func (s *Store) Get(id string) (Order, error) {
	e, ok := s.entries.Load(id)
	if !ok {
		return Order{}, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return Order{}, ErrNotFound
	}
	return e.order, nil
}

// Update runs fn inside the order's critical section. fn works on a copy;
// the copy is committed only if fn returns nil. When remove is true the
// committed order also leaves the store. The committed snapshot is returned.
func (s *Store) Update(id string, fn func(o *Order) (remove bool, err error)) (Order, error) {
	e, ok := s.entries.Load(id)
	if !ok {
		return Order{}, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return Order{}, ErrNotFound
	}

	next := e.order
	remove, err := fn(&next)
	if err != nil {
		return e.order, err
	}
	e.order = next

	if next.Status != StatusPending {
		s.due.Delete(id)
	}
	if remove {
		e.removed = true
		s.entries.Delete(id)
		s.due.Delete(id)
	}
	return next, nil
}

// Active returns snapshots of every live order, oldest first.
func (s *Store) Active() []Order {
	var out []Order
	s.entries.Range(func(_ string, e *entry) bool {
		e.mu.Lock()
		if !e.removed {
			out = append(out, e.order)
		}
		e.mu.Unlock()
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Due returns the ids of pending orders whose deadline is not after now.
func (s *Store) Due(now time.Time) []string {
	var ids []string
	s.due.Range(func(id string, deadline time.Time) bool {
		if !deadline.After(now) {
			ids = append(ids, id)
		}
		return true
	})
	return ids
}

func (s *Store) Len() int {
	return s.entries.Size()
}
