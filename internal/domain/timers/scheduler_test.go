package timers

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_FiresCallback(t *testing.T) {
	s := NewScheduler()
	defer s.Shutdown()

	fired := make(chan Kind, 1)
	s.Schedule("order-1", 5*time.Millisecond, Reminder, func(ctx context.Context) {
		fired <- Reminder
	})

	select {
	case k := <-fired:
		assert.Equal(t, Reminder, k)
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
	require.Eventually(t, func() bool { return s.Pending("order-1") == 0 }, time.Second, time.Millisecond)
}

func TestScheduler_CancelAllSilencesEntity(t *testing.T) {
	s := NewScheduler()
	defer s.Shutdown()

	var calls atomic.Int32
	for _, k := range []Kind{Tick, Reminder, Expire} {
		s.Schedule("order-1", 20*time.Millisecond, k, func(ctx context.Context) { calls.Add(1) })
	}
	other := make(chan struct{})
	s.Schedule("order-2", 20*time.Millisecond, Expire, func(ctx context.Context) { close(other) })

	assert.Equal(t, 3, s.Pending("order-1"))
	assert.Equal(t, 3, s.CancelAll("order-1"))
	assert.Equal(t, 0, s.CancelAll("order-1"), "second cancel is a no-op")
	assert.Equal(t, 0, s.CancelAll("missing"))

	select {
	case <-other:
	case <-time.After(time.Second):
		t.Fatal("unrelated entity was cancelled")
	}
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}

func TestScheduler_CancelSingleHandle(t *testing.T) {
	s := NewScheduler()
	defer s.Shutdown()

	var tick, expire atomic.Bool
	h := s.Schedule("order-1", 10*time.Millisecond, Tick, func(ctx context.Context) { tick.Store(true) })
	s.Schedule("order-1", 10*time.Millisecond, Expire, func(ctx context.Context) { expire.Store(true) })

	assert.True(t, s.Cancel(h))
	assert.False(t, s.Cancel(h))

	require.Eventually(t, expire.Load, time.Second, time.Millisecond)
	assert.False(t, tick.Load())
}

func TestScheduler_ObserverSeesFires(t *testing.T) {
	s := NewScheduler()
	defer s.Shutdown()

	var fired atomic.Int32
	s.SetObserver(func(kind Kind, dropped bool) {
		if !dropped {
			fired.Add(1)
		}
	})

	s.Schedule("order-1", time.Millisecond, Tick, func(ctx context.Context) {})
	s.Schedule("order-1", time.Millisecond, Expire, func(ctx context.Context) {})

	require.Eventually(t, func() bool { return fired.Load() == 2 }, time.Second, time.Millisecond)
}

func TestScheduler_ShutdownStopsEverything(t *testing.T) {
	s := NewScheduler()

	var calls atomic.Int32
	s.Schedule("a", 20*time.Millisecond, Tick, func(ctx context.Context) { calls.Add(1) })
	s.Schedule("b", 20*time.Millisecond, Expire, func(ctx context.Context) { calls.Add(1) })
	s.Shutdown()

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
	assert.Equal(t, 0, s.Pending("a"))
}

func TestKind_String(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{Tick, "tick"},
		{Reminder, "reminder"},
		{Expire, "expire"},
		{Kind(42), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.kind.String())
		})
	}
}
