package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Janitor periodically expires idle sessions.
type Janitor struct {
	manager  *Manager
	interval time.Duration
	maxAge   time.Duration
	// OnSweep, when set, receives the session count after each sweep.
	OnSweep func(remaining int)

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewJanitor creates a janitor that sweeps every interval.
func NewJanitor(m *Manager, interval, maxAge time.Duration) *Janitor {
	return &Janitor{manager: m, interval: interval, maxAge: maxAge}
}

// Start launches the sweep loop. Calling Start twice is a no-op.
func (j *Janitor) Start() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	j.cancel = cancel
	j.wg.Add(1)

	go func() {
		defer j.wg.Done()
		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				j.Sweep()
			}
		}
	}()

	j.manager.logger.Info("Session janitor started",
		zap.Duration("interval", j.interval),
		zap.Duration("max_age", j.maxAge),
	)
}

// Sweep runs one cleanup pass.
func (j *Janitor) Sweep() int {
	removed := j.manager.Cleanup(j.maxAge)
	if j.OnSweep != nil {
		j.OnSweep(j.manager.Len())
	}
	return removed
}

// Stop ends the loop and waits for it to exit.
func (j *Janitor) Stop() {
	j.mu.Lock()
	cancel := j.cancel
	j.cancel = nil
	j.mu.Unlock()

	if cancel != nil {
		cancel()
		j.wg.Wait()
	}
}
