package utils

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// BackgroundProcessManager owns the bot's long running goroutines: the expiry
// sweep, the order archive and the HTTP server.
type BackgroundProcessManager struct {
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	processes map[string]*ProcessInfo
	mu        sync.RWMutex
}

type ProcessInfo struct {
	Name        string
	Description string
	StartedAt   time.Time
	cancel      context.CancelFunc
}

func NewBackgroundProcessManager() *BackgroundProcessManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &BackgroundProcessManager{
		ctx:       ctx,
		cancel:    cancel,
		processes: make(map[string]*ProcessInfo),
	}
}

// StartProcess registers and starts a background process. A process with the
// same name is stopped first.
func (bpm *BackgroundProcessManager) StartProcess(name, description string, fn func(ctx context.Context)) {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	if _, exists := bpm.processes[name]; exists {
		slog.Warn("Process already exists, stopping existing one",
			slog.String("type", "sys"),
			slog.String("process", name))
		bpm.stopProcessLocked(name)
	}

	processCtx, processCancel := context.WithCancel(bpm.ctx)
	info := &ProcessInfo{
		Name:        name,
		Description: description,
		StartedAt:   time.Now(),
		cancel:      processCancel,
	}
	bpm.processes[name] = info

	bpm.wg.Add(1)
	go func() {
		defer bpm.wg.Done()
		defer bpm.forget(name, info)
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Background process panic",
					slog.String("type", "error"),
					slog.String("process", name),
					slog.Any("panic", r))
			}
		}()

		slog.Info("Starting background process",
			slog.String("type", "sys"),
			slog.String("process", name),
			slog.String("description", description))

		fn(processCtx)

		slog.Info("Background process ended",
			slog.String("type", "sys"),
			slog.String("process", name))
	}()
}

// StartTicker runs fn every interval until the process is stopped. A failing
// run is logged and the next tick proceeds.
func (bpm *BackgroundProcessManager) StartTicker(name, description string, interval time.Duration, fn func(ctx context.Context) error) {
	bpm.StartProcess(name, description, func(ctx context.Context) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := fn(ctx); err != nil {
					slog.Error("Background run failed",
						slog.String("type", "error"),
						slog.String("process", name),
						slog.Any("error", err))
				}
			case <-ctx.Done():
				return
			}
		}
	})
}

func (bpm *BackgroundProcessManager) forget(name string, info *ProcessInfo) {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()
	if bpm.processes[name] == info {
		delete(bpm.processes, name)
	}
}

// StopProcess stops a specific background process
func (bpm *BackgroundProcessManager) StopProcess(name string) {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()
	bpm.stopProcessLocked(name)
}

func (bpm *BackgroundProcessManager) stopProcessLocked(name string) {
	if process, exists := bpm.processes[name]; exists {
		process.cancel()
		delete(bpm.processes, name)
		slog.Info("Stopped background process",
			slog.String("type", "sys"),
			slog.String("process", name))
	}
}

// Shutdown cancels every process and waits up to timeout for them to return.
func (bpm *BackgroundProcessManager) Shutdown(timeout time.Duration) error {
	slog.Info("Shutting down background processes",
		slog.String("type", "sys"),
		slog.Int("process_count", bpm.GetProcessCount()))

	bpm.cancel()

	done := make(chan struct{})
	go func() {
		bpm.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("All background processes stopped gracefully", slog.String("type", "sys"))
		return nil
	case <-time.After(timeout):
		slog.Warn("Timeout waiting for background processes to stop",
			slog.String("type", "sys"),
			slog.Duration("timeout", timeout))
		return context.DeadlineExceeded
	}
}

func (bpm *BackgroundProcessManager) GetProcessCount() int {
	bpm.mu.RLock()
	defer bpm.mu.RUnlock()
	return len(bpm.processes)
}

// ListProcesses returns the running processes sorted by name.
func (bpm *BackgroundProcessManager) ListProcesses() []ProcessInfo {
	bpm.mu.RLock()
	defer bpm.mu.RUnlock()

	processes := make([]ProcessInfo, 0, len(bpm.processes))
	for _, process := range bpm.processes {
		processes = append(processes, *process)
	}
	sort.Slice(processes, func(i, j int) bool { return processes[i].Name < processes[j].Name })
	return processes
}

func (bpm *BackgroundProcessManager) Context() context.Context {
	return bpm.ctx
}
