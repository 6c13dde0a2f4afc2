package shell

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "apptcal/internal/log"
)

const refreshTimeout = 30 * time.Second

type refresher struct {
	mu   sync.Mutex
	cron *cron.Cron
}

// StartAutoRefresh re-fetches calendar_data on a cron schedule. An empty
// schedule is a no-op. Overlapping runs are allowed; the store keeps whichever
// response lands last.
func (s *Shell) StartAutoRefresh(ctx context.Context, schedule string) error {
	if schedule == "" {
		appLog.Info("auto-refresh disabled")
		return nil
	}

	c := cron.New(cron.WithLocation(s.loc))
	_, err := c.AddFunc(schedule, func() {
		rctx, cancel := context.WithTimeout(ctx, refreshTimeout)
		defer cancel()
		if err := s.Refresh(rctx); err != nil {
			appLog.Error("scheduled refresh failed", err, "schedule", schedule)
		}
	})
	if err != nil {
		return fmt.Errorf("shell: refresh schedule %q: %w", schedule, err)
	}

	s.Stop()
	s.refresher.mu.Lock()
	s.refresher.cron = c
	s.refresher.mu.Unlock()
	c.Start()
	appLog.Info("auto-refresh started", "schedule", schedule)
	return nil
}

// Stop halts auto-refresh and waits for a running refresh to finish.
func (s *Shell) Stop() {
	r := &s.refresher
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
	r.cron = nil
	appLog.Info("auto-refresh stopped")
}
