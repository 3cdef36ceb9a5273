package cron

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/docuquery/docuquery/services"
)

// Manager schedules the background maintenance jobs: retention cleanup of
// terminal jobs and the stale SSE connection sweep.
type Manager struct {
	cron   *cron.Cron
	orch   *services.Orchestrator
	sse    *services.SSEManager
	logger *slog.Logger

	// RetentionHours controls how old a terminal job must be before the
	// hourly cleanup removes it
	RetentionHours int
}

// NewManager creates the cron manager
func NewManager(orch *services.Orchestrator, sse *services.SSEManager, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cron:           cron.New(),
		orch:           orch,
		sse:            sse,
		logger:         logger.With("component", "cron"),
		RetentionHours: 24,
	}
}

// Start registers and starts all scheduled jobs
func (m *Manager) Start() error {
	// Hourly: remove terminal jobs past retention
	if _, err := m.cron.AddFunc("@hourly", func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		removed, err := m.orch.CleanupOlderThan(ctx, m.RetentionHours)
		if err != nil {
			m.logger.Warn("retention cleanup failed", "err", err)
			return
		}
		m.logger.Info("retention cleanup ran", "removed", removed)
	}); err != nil {
		return err
	}

	// Every minute: drop stale SSE connections
	if _, err := m.cron.AddFunc("* * * * *", func() {
		m.sse.SweepStale()
	}); err != nil {
		return err
	}

	m.cron.Start()
	m.logger.Info("cron jobs started")
	return nil
}

// Stop stops the scheduler and waits for running jobs to finish
func (m *Manager) Stop() {
	ctx := m.cron.Stop()
	<-ctx.Done()
	m.logger.Info("cron jobs stopped")
}
