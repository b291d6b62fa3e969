package orders

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingOrder(id string, created time.Time) Order {
	return Order{ID: id, RequesterID: "a", Status: StatusPending, KarmaCost: 2, CreatedAt: created}
}

func TestStore_InsertGet(t *testing.T) {
	s := NewStore()
	now := time.Now()

	require.NoError(t, s.Insert(pendingOrder("1", now), now.Add(time.Minute)))
	assert.ErrorIs(t, s.Insert(pendingOrder("1", now), time.Time{}), ErrDuplicate)

	got, err := s.Get("1")
	require.NoError(t, err)
	assert.Equal(t, "a", got.RequesterID)

	_, err = s.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, s.Len())
}

func TestStore_UpdateRollsBackOnError(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Insert(pendingOrder("1", time.Now()), time.Time{}))

	boom := errors.New("boom")
	_, err := s.Update("1", func(o *Order) (bool, error) {
		o.Status = StatusClaimed
		return false, boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.Get("1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
}

func TestStore_UpdateRemove(t *testing.T) {
	s := NewStore()
	now := time.Now()
	require.NoError(t, s.Insert(pendingOrder("1", now), now))

	got, err := s.Update("1", func(o *Order) (bool, error) {
		o.Status = StatusCanceled
		return true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, got.Status)

	_, err = s.Get("1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Update("1", func(o *Order) (bool, error) { return false, nil })
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, s.Due(now.Add(time.Hour)))
}

func TestStore_Due(t *testing.T) {
	s := NewStore()
	now := time.Now()
	require.NoError(t, s.Insert(pendingOrder("late", now), now.Add(-time.Second)))
	require.NoError(t, s.Insert(pendingOrder("early", now), now.Add(time.Hour)))
	require.NoError(t, s.Insert(pendingOrder("untracked", now), time.Time{}))

	assert.Equal(t, []string{"late"}, s.Due(now))

	_, err := s.Update("late", func(o *Order) (bool, error) {
		o.Status = StatusClaimed
		return false, nil
	})
	require.NoError(t, err)
	assert.Empty(t, s.Due(now))
}

func TestStore_ActiveSortedByCreation(t *testing.T) {
	s := NewStore()
	now := time.Now()
	require.NoError(t, s.Insert(pendingOrder("2", now.Add(time.Second)), time.Time{}))
	require.NoError(t, s.Insert(pendingOrder("1", now), time.Time{}))

	active := s.Active()
	require.Len(t, active, 2)
	assert.Equal(t, "1", active[0].ID)
	assert.Equal(t, "2", active[1].ID)
}

func TestStore_UpdateSerializesPerOrder(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Insert(pendingOrder("1", time.Now()), time.Time{}))

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Update("1", func(o *Order) (bool, error) {
				if o.Status != StatusPending {
					return false, errors.New("taken")
				}
				o.Status = StatusClaimed
				return false, nil
			})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		drink string
		want  Category
		ok    bool
	}{
		{"Water", CategoryWater, true},
		{"sparkling water, no ice", CategoryWater, true},
		{"green tea", CategoryDrip, true},
		{"large drip coffee", CategoryDrip, true},
		{"oat milk latte", CategoryEspresso, true},
		{"double espresso", CategoryEspresso, true},
		{"capp", CategoryEspresso, true},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := Classify(tt.drink)
		assert.Equal(t, tt.ok, ok, tt.drink)
		assert.Equal(t, tt.want, got, tt.drink)
	}
}

func TestTruncateNotes(t *testing.T) {
	assert.Equal(t, "short", TruncateNotes("short"))
	long := "extra hot, oat milk, two sugars and a lid please"
	assert.Len(t, []rune(TruncateNotes(long)), MaxNotesLength)
	assert.Len(t, []rune(TruncateNotes("ééééééééééééééééééééééééééééééééééé")), MaxNotesLength)
}
