package utils

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartTickerRunsUntilShutdown(t *testing.T) {
	bpm := NewBackgroundProcessManager()

	var runs atomic.Int32
	bpm.StartTicker("sweep", "expire overdue orders", 2*time.Millisecond, func(context.Context) error {
		if runs.Add(1) == 1 {
			return errors.New("first run fails")
		}
		return nil
	})

	require.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, time.Millisecond)
	assert.Equal(t, 1, bpm.GetProcessCount())

	require.NoError(t, bpm.Shutdown(time.Second))
	assert.Zero(t, bpm.GetProcessCount())
}

func TestStartProcessReplacesSameName(t *testing.T) {
	bpm := NewBackgroundProcessManager()
	defer bpm.Shutdown(time.Second)

	firstDone := make(chan struct{})
	bpm.StartProcess("http", "first", func(ctx context.Context) {
		<-ctx.Done()
		close(firstDone)
	})
	bpm.StartProcess("http", "second", func(ctx context.Context) {
		<-ctx.Done()
	})

	select {
	case <-firstDone:
	case <-time.After(time.Second):
		t.Fatal("first process was not stopped")
	}

	procs := bpm.ListProcesses()
	require.Len(t, procs, 1)
	assert.Equal(t, "second", procs[0].Description)
}

func TestPanickingProcessIsContained(t *testing.T) {
	bpm := NewBackgroundProcessManager()
	bpm.StartProcess("boom", "panics", func(context.Context) {
		panic("boom")
	})

	require.Eventually(t, func() bool { return bpm.GetProcessCount() == 0 }, time.Second, time.Millisecond)
	require.NoError(t, bpm.Shutdown(time.Second))
}
