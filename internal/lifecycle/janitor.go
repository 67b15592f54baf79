package lifecycle

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

type janitor struct {
	mu    sync.Mutex
	sched gocron.Scheduler
}

// StartJanitor runs Sweep every interval until Close.
func (m *Manager) StartJanitor(interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("janitor interval must be positive")
	}
	m.janitor.mu.Lock()
	defer m.janitor.mu.Unlock()
	if m.janitor.sched != nil {
		return nil
	}
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if n := m.Sweep(m.now()); n > 0 {
				m.log.Info("lifecycle_sweep", zap.Int("forfeited", n))
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return fmt.Errorf("schedule sweep: %w", err)
	}
	sched.Start()
	m.janitor.sched = sched
	m.log.Info("lifecycle_janitor_start", zap.Duration("interval", interval), zap.Duration("idle_timeout", m.cfg.IdleTimeout))
	return nil
}

func (m *Manager) stopJanitor() {
	m.janitor.mu.Lock()
	defer m.janitor.mu.Unlock()
	if m.janitor.sched == nil {
		return
	}
	if err := m.janitor.sched.Shutdown(); err != nil {
		m.log.Warn("lifecycle_janitor_shutdown_error", zap.Error(err))
	}
	m.janitor.sched = nil
}
