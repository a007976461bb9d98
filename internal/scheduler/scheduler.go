// Package scheduler drives periodic housekeeping: inactivity-triggered
// summarization, pending-record expiry, and staff session purging.
package scheduler

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"kiosk-orchestrator-service/internal/observability/metrics"
	"kiosk-orchestrator-service/internal/orchestrator"
	"kiosk-orchestrator-service/internal/staff"
	"kiosk-orchestrator-service/internal/store"
)

// Scheduler owns the periodic tick loop.
type Scheduler struct {
	interval time.Duration
	orch     *orchestrator.Orchestrator
	store    *store.Store
	staff    *staff.Registry
	metrics  *metrics.Metrics
	log      zerolog.Logger

	started  bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// New creates a scheduler; Start launches the loop.
func New(interval time.Duration, orch *orchestrator.Orchestrator, st *store.Store, reg *staff.Registry, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		interval: interval,
		orch:     orch,
		store:    st,
		staff:    reg,
		metrics:  metrics.DefaultMetrics,
		log:      logger.With().Str("component", "scheduler").Logger(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the tick loop in a goroutine. The loop holds no process
// resources of its own, so it never delays shutdown beyond Stop.
func (s *Scheduler) Start() {
	s.started = true
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Tick()
			case <-s.stop:
				return
			}
		}
	}()
}

// Stop terminates the loop and waits for the in-flight tick. Idempotent.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	if s.started {
		<-s.done
	}
}

// Tick performs one housekeeping pass. Exported so tests can drive the
// scheduler deterministically without the timer.
func (s *Scheduler) Tick() {
	s.orch.CheckInactivity()

	changed := false
	if n, err := s.store.HousekeepExpired(); err != nil {
		s.log.Error().Err(err).Msg("Pending item housekeeping failed")
	} else if n > 0 {
		s.metrics.PendingExpired.WithLabelValues("item").Add(float64(n))
		changed = true
	}

	if n, err := s.store.HousekeepExpiredSessionSummaries(); err != nil {
		s.log.Error().Err(err).Msg("Session summary housekeeping failed")
	} else if n > 0 {
		s.metrics.PendingExpired.WithLabelValues("session_summary").Add(float64(n))
		changed = true
	}

	if changed {
		s.orch.NotifyPendingChanged()
	}

	if n := s.staff.Purge(); n > 0 {
		s.log.Debug().Int("count", n).Msg("Expired staff sessions purged")
	}
}
