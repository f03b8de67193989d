package generation

import (
	"context"
	"errors"
	"time"

	"voicestudio/internal/domain"
)

const stalledMessage = "generation stalled: no progress reported"

// WatchdogConfig bounds how long a job may go without a progress report.
type WatchdogConfig struct {
	Interval     time.Duration
	StallTimeout time.Duration
}

// Watchdog force-settles jobs whose worker went silent. Queued jobs may wait
// indefinitely for capacity and are only touched when a cancel is pending.
type Watchdog struct {
	manager *Manager
	cfg     WatchdogConfig
}

// NewWatchdog creates a watchdog over m.
func NewWatchdog(m *Manager, cfg WatchdogConfig) *Watchdog {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.StallTimeout <= 0 {
		cfg.StallTimeout = 10 * time.Minute
	}
	return &Watchdog{manager: m, cfg: cfg}
}

// Run sweeps on every interval until ctx is cancelled.
func (w *Watchdog) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()
	w.manager.logger.Info().Dur("stall_timeout", w.cfg.StallTimeout).Msg("watchdog: started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.Sweep(ctx); err != nil {
				w.manager.logger.Error().Err(err).Msg("watchdog: sweep failed")
			}
		}
	}
}

// Sweep settles every stalled job once and returns how many were changed.
func (w *Watchdog) Sweep(ctx context.Context) (int, error) {
	jobs, err := w.manager.jobs.ListByStatus(ctx, domain.NonTerminalStatuses...)
	if err != nil {
		return 0, err
	}
	deadline := w.manager.now().Add(-w.cfg.StallTimeout)
	settled := 0
	for _, job := range jobs {
		if !job.UpdatedAt.Before(deadline) {
			continue
		}
		var update domain.ProgressUpdate
		switch {
		case job.CancelRequested:
			update = domain.ProgressUpdate{Status: domain.JobStatusCancelled}
		case job.Status == domain.JobStatusQueued:
			continue
		default:
			update = domain.ProgressUpdate{Status: domain.JobStatusFailed, ErrorMessage: stalledMessage}
		}
		if _, err := w.manager.settleStalled(ctx, job.ID, deadline, update); err != nil {
			if errors.Is(err, errNotStalled) || errors.Is(err, domain.ErrStaleTransition) {
				continue
			}
			w.manager.logger.Error().Err(err).Str("job_id", job.ID).Msg("watchdog: settle failed")
			continue
		}
		settled++
		w.manager.logger.Warn().
			Str("job_id", job.ID).
			Str("from", string(job.Status)).
			Str("to", string(update.Status)).
			Msg("watchdog: settled stalled job")
	}
	return settled, nil
}

var errNotStalled = errors.New("job reported progress since the sweep started")

// settleStalled re-checks staleness under the job lock so a report that
// raced the sweep wins.
func (m *Manager) settleStalled(ctx context.Context, jobID string, deadline time.Time, update domain.ProgressUpdate) (*domain.GenerationJob, error) {
	return m.mutate(ctx, jobID, func(job *domain.GenerationJob) error {
		if !job.UpdatedAt.Before(deadline) {
			return errNotStalled
		}
		return job.Apply(update, m.now())
	})
}
