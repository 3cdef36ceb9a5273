package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/docuquery/docuquery/model"
	"github.com/docuquery/docuquery/utils/metrics"
)

// Orchestrator owns the job lifecycle: creation under admission control,
// observable updates, subscription fan-out and cleanup.
type Orchestrator struct {
	store         *JobStore
	maxConcurrent int
	logger        *slog.Logger
	registry      *metrics.Registry
}

// NewOrchestrator creates an orchestrator with the given concurrency ceiling
func NewOrchestrator(store *JobStore, maxConcurrent int, registry *metrics.Registry, logger *slog.Logger) *Orchestrator {
	if maxConcurrent <= 0 {
		maxConcurrent = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	if registry == nil {
		registry = metrics.New()
	}
	return &Orchestrator{
		store:         store,
		maxConcurrent: maxConcurrent,
		logger:        logger.With("component", "orchestrator"),
		registry:      registry,
	}
}

// Create admits a new job unless the active set is at the ceiling.
// The record and its active-set membership are written atomically.
func (o *Orchestrator) Create(ctx context.Context, timeoutSeconds, maxRetries int, metadata map[string]string) (*model.Job, error) {
	active, err := o.store.ActiveCount(ctx)
	if err != nil {
		return nil, err
	}
	if active >= o.maxConcurrent {
		return nil, fmt.Errorf("%w: %d jobs active (limit %d)", model.ErrAdmissionDenied, active, o.maxConcurrent)
	}

	now := nowSeconds()
	job := &model.Job{
		JobID:          uuid.NewString(),
		Status:         model.JobStatusQueued,
		Stage:          model.StageInitialized,
		Progress:       0,
		Message:        "Job queued",
		CreatedAt:      now,
		UpdatedAt:      now,
		MaxRetries:     maxRetries,
		TimeoutSeconds: timeoutSeconds,
		Metadata:       metadata,
	}

	if _, err := o.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	o.registry.Counter("jobs_created_total").Inc()
	o.registry.Gauge("jobs_active").Set(int64(active + 1))
	o.logger.Info("job created", "job_id", job.JobID, "timeout_s", timeoutSeconds)
	return job, nil
}

// Get returns the job record or model.ErrNotFound
func (o *Orchestrator) Get(ctx context.Context, jobID string) (*model.Job, error) {
	return o.store.GetJob(ctx, jobID)
}

// Update applies an allowed-field patch, refreshes updated_at and publishes
// job_updated atomically with the state write. Transitions out of a
// terminal status are rejected.
func (o *Orchestrator) Update(ctx context.Context, jobID string, patch model.JobPatch) (bool, error) {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return false, err
	}

	if patch.Status != nil {
		if !job.Status.CanTransitionTo(*patch.Status) {
			o.logger.Warn("rejected status transition", "job_id", jobID, "from", job.Status, "to", *patch.Status)
			return false, nil
		}
		job.Status = *patch.Status
	}
	if patch.Stage != nil {
		job.Stage = *patch.Stage
	}
	if patch.Progress != nil {
		job.Progress = clampProgress(*patch.Progress)
	}
	if patch.Message != nil {
		job.Message = *patch.Message
	}
	if patch.ChunksCreated != nil {
		job.ChunksCreated = *patch.ChunksCreated
	}
	if patch.RetryCount != nil {
		job.RetryCount = *patch.RetryCount
	}
	if len(patch.Metadata) > 0 {
		if job.Metadata == nil {
			job.Metadata = make(map[string]string, len(patch.Metadata))
		}
		for k, v := range patch.Metadata {
			job.Metadata[k] = v
		}
	}
	job.UpdatedAt = nowSeconds()

	if _, err := o.store.UpdateJob(ctx, job); err != nil {
		return false, err
	}
	return true, nil
}

// ListActive returns the most-recently-updated active jobs, garbage
// collecting active-set entries whose record expired.
func (o *Orchestrator) ListActive(ctx context.Context, limit int) ([]*model.Job, error) {
	ids, err := o.store.ActiveJobIDs(ctx)
	if err != nil {
		return nil, err
	}

	jobs := make([]*model.Job, 0, len(ids))
	for _, id := range ids {
		job, err := o.store.GetJob(ctx, id)
		if err != nil {
			// record expired; drop the dangling active-set entry
			if rmErr := o.store.RemoveFromActive(ctx, id); rmErr != nil {
				o.logger.Warn("failed to gc active-set entry", "job_id", id, "err", rmErr)
			}
			continue
		}
		jobs = append(jobs, job)
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].UpdatedAt > jobs[j].UpdatedAt
	})
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	o.registry.Gauge("jobs_active").Set(int64(len(jobs)))
	return jobs, nil
}

// Subscribe yields events published after subscription. The stream closes
// after a terminal job_updated event. The returned cancel func must be
// called to release the underlying pub/sub listener.
func (o *Orchestrator) Subscribe(ctx context.Context, jobID string) (<-chan model.JobEvent, func(), error) {
	sub := o.store.Subscribe(ctx, jobID)

	// Force the subscription onto the wire before returning so callers
	// don't miss events published immediately after Subscribe.
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, nil, fmt.Errorf("%w: subscribe: %v", model.ErrStoreUnavailable, err)
	}

	out := make(chan model.JobEvent, 16)
	done := make(chan struct{})
	cancel := func() {
		close(done)
		sub.Close()
	}

	go func() {
		defer close(out)
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev model.JobEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					o.logger.Warn("undecodable job event", "job_id", jobID, "err", err)
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				case <-done:
					return
				}
				if ev.Type == model.EventJobUpdated && ev.Status.Terminal() {
					return
				}
			}
		}
	}()

	return out, cancel, nil
}

// History returns the job's bounded event history, oldest first
func (o *Orchestrator) History(ctx context.Context, jobID string) ([]model.JobEvent, error) {
	return o.store.History(ctx, jobID)
}

// Cleanup removes the record, history and active-set membership
func (o *Orchestrator) Cleanup(ctx context.Context, jobID string) (bool, error) {
	if _, err := o.store.GetJob(ctx, jobID); err != nil {
		return false, err
	}
	if err := o.store.DeleteJob(ctx, jobID); err != nil {
		return false, err
	}
	o.logger.Info("job cleaned up", "job_id", jobID)
	return true, nil
}

// CleanupOlderThan removes terminal jobs whose updated_at is older than the
// threshold. Returns the number of jobs removed.
func (o *Orchestrator) CleanupOlderThan(ctx context.Context, hours int) (int, error) {
	keys, err := o.store.JobKeys(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := nowSeconds() - float64(hours)*3600
	removed := 0
	for _, key := range keys {
		jobID := strings.TrimPrefix(key, "job:")
		job, err := o.store.GetJob(ctx, jobID)
		if err != nil {
			continue
		}
		if job.Status.Terminal() && job.UpdatedAt < cutoff {
			if err := o.store.DeleteJob(ctx, jobID); err != nil {
				o.logger.Warn("cleanup failed", "job_id", jobID, "err", err)
				continue
			}
			removed++
		}
	}
	if removed > 0 {
		o.logger.Info("retention cleanup", "removed", removed, "older_than_h", hours)
	}
	return removed, nil
}

// Health reports store reachability, latency and the active job count
func (o *Orchestrator) Health(ctx context.Context) *model.HealthStatus {
	status := &model.HealthStatus{Status: "ok"}

	ping, err := o.store.Ping(ctx)
	if err != nil {
		status.Status = "degraded"
		o.logger.Warn("store ping failed", "err", err, "breaker", o.store.BreakerState().String())
		return status
	}
	status.PingMs = float64(ping.Microseconds()) / 1000

	if mem, err := o.store.MemoryUsed(ctx); err == nil {
		status.MemoryUsed = mem
	}
	if n, err := o.store.ActiveCount(ctx); err == nil {
		status.ActiveJobs = n
	}
	return status
}

func nowSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

func clampProgress(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
