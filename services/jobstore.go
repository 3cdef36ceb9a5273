package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/docuquery/docuquery/model"
	"github.com/docuquery/docuquery/utils/cache"
	"github.com/docuquery/docuquery/utils/resilience"
)

// JobStore is the durable record of job state in Redis plus the per-job
// event channel and bounded replay history. Every call except Subscribe goes
// through a circuit breaker; while the breaker is open, calls fail fast with
// model.ErrStoreUnavailable.
type JobStore struct {
	cache   *cache.RedisCache
	breaker *resilience.Breaker
	logger  *slog.Logger
}

// NewJobStore creates a job store over the given Redis cache
func NewJobStore(redisCache *cache.RedisCache, breaker *resilience.Breaker, logger *slog.Logger) *JobStore {
	if breaker == nil {
		breaker = resilience.NewBreaker(resilience.BreakerOpts{
			FailThreshold:   3,
			RecoveryTimeout: 30 * time.Second,
		})
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &JobStore{cache: redisCache, breaker: breaker, logger: logger.With("component", "jobstore")}
}

// BreakerState exposes the breaker state for health reporting
func (s *JobStore) BreakerState() resilience.State {
	return s.breaker.State()
}

func (s *JobStore) guard(ctx context.Context, op func(context.Context) error) error {
	err := s.breaker.Call(ctx, op)
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return fmt.Errorf("%w: circuit open", model.ErrStoreUnavailable)
	}
	return err
}

// recordTTL keeps terminal state readable for late observers
func recordTTL(j *model.Job) time.Duration {
	return time.Duration(j.TimeoutSeconds+model.JobRecordExtraTTLSeconds) * time.Second
}

// nextEventID allocates the next monotonic event id for a job
func (s *JobStore) nextEventID(ctx context.Context, jobID string) (string, error) {
	seqKey := fmt.Sprintf(model.RedisKeyJobEventSeq, jobID)
	var seq int64
	err := s.guard(ctx, func(ctx context.Context) error {
		var err error
		seq, err = s.cache.Incr(ctx, seqKey)
		if err != nil {
			return err
		}
		return s.cache.Expire(ctx, seqKey, model.EventHistoryTTLSeconds*time.Second)
	})
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(seq, 10), nil
}

// appendEventPipe adds history append + publish commands to an open pipeline
func appendEventPipe(pipe redis.Pipeliner, ctx context.Context, ev *model.JobEvent) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	historyKey := fmt.Sprintf(model.RedisKeyJobHistory, ev.JobID)
	channel := fmt.Sprintf(model.RedisKeyJobEvents, ev.JobID)

	pipe.RPush(ctx, historyKey, raw)
	pipe.LTrim(ctx, historyKey, -model.EventHistoryMaxLen, -1)
	pipe.Expire(ctx, historyKey, model.EventHistoryTTLSeconds*time.Second)
	pipe.Publish(ctx, channel, raw)
	return nil
}

// CreateJob writes the record, joins the active set and publishes
// job_created in a single atomic batch.
func (s *JobStore) CreateJob(ctx context.Context, job *model.Job) (*model.JobEvent, error) {
	eventID, err := s.nextEventID(ctx, job.JobID)
	if err != nil {
		return nil, err
	}
	ev := eventFromJob(model.EventJobCreated, job, eventID)

	err = s.guard(ctx, func(ctx context.Context) error {
		pipe := s.cache.TxPipeline()
		jobKey := fmt.Sprintf(model.RedisKeyJob, job.JobID)
		pipe.HSet(ctx, jobKey, job.ToFields())
		pipe.Expire(ctx, jobKey, recordTTL(job))
		pipe.SAdd(ctx, model.RedisKeyActiveJobs, job.JobID)
		if err := appendEventPipe(pipe, ctx, ev); err != nil {
			return err
		}
		_, err := pipe.Exec(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// UpdateJob writes the patched record and publishes job_updated atomically
// with the state write. Terminal updates leave the active set.
func (s *JobStore) UpdateJob(ctx context.Context, job *model.Job) (*model.JobEvent, error) {
	eventID, err := s.nextEventID(ctx, job.JobID)
	if err != nil {
		return nil, err
	}
	ev := eventFromJob(model.EventJobUpdated, job, eventID)

	err = s.guard(ctx, func(ctx context.Context) error {
		pipe := s.cache.TxPipeline()
		jobKey := fmt.Sprintf(model.RedisKeyJob, job.JobID)
		pipe.HSet(ctx, jobKey, job.ToFields())
		pipe.Expire(ctx, jobKey, recordTTL(job))
		if job.Status.Terminal() {
			pipe.SRem(ctx, model.RedisKeyActiveJobs, job.JobID)
		}
		if err := appendEventPipe(pipe, ctx, ev); err != nil {
			return err
		}
		_, err := pipe.Exec(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// GetJob reads a job record; model.ErrNotFound when missing or expired
func (s *JobStore) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	var fields map[string]string
	err := s.guard(ctx, func(ctx context.Context) error {
		var err error
		fields, err = s.cache.HGetAll(ctx, fmt.Sprintf(model.RedisKeyJob, jobID))
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: job %s", model.ErrNotFound, jobID)
	}
	return model.JobFromFields(fields), nil
}

// DeleteJob removes the record, its event history and the active-set entry
func (s *JobStore) DeleteJob(ctx context.Context, jobID string) error {
	return s.guard(ctx, func(ctx context.Context) error {
		pipe := s.cache.TxPipeline()
		pipe.Del(ctx,
			fmt.Sprintf(model.RedisKeyJob, jobID),
			fmt.Sprintf(model.RedisKeyJobHistory, jobID),
			fmt.Sprintf(model.RedisKeyJobEventSeq, jobID),
		)
		pipe.SRem(ctx, model.RedisKeyActiveJobs, jobID)
		_, err := pipe.Exec(ctx)
		return err
	})
}

// ActiveJobIDs returns the members of the active set
func (s *JobStore) ActiveJobIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.guard(ctx, func(ctx context.Context) error {
		var err error
		ids, err = s.cache.SMembers(ctx, model.RedisKeyActiveJobs)
		return err
	})
	return ids, err
}

// ActiveCount returns the size of the active set
func (s *JobStore) ActiveCount(ctx context.Context) (int, error) {
	var n int64
	err := s.guard(ctx, func(ctx context.Context) error {
		var err error
		n, err = s.cache.SCard(ctx, model.RedisKeyActiveJobs)
		return err
	})
	return int(n), err
}

// RemoveFromActive drops a stale id from the active set
func (s *JobStore) RemoveFromActive(ctx context.Context, jobID string) error {
	return s.guard(ctx, func(ctx context.Context) error {
		return s.cache.SRem(ctx, model.RedisKeyActiveJobs, jobID)
	})
}

// History returns the bounded replay list, oldest first
func (s *JobStore) History(ctx context.Context, jobID string) ([]model.JobEvent, error) {
	var raw []string
	err := s.guard(ctx, func(ctx context.Context) error {
		var err error
		raw, err = s.cache.LRange(ctx, fmt.Sprintf(model.RedisKeyJobHistory, jobID), 0, -1)
		return err
	})
	if err != nil {
		return nil, err
	}

	events := make([]model.JobEvent, 0, len(raw))
	for _, r := range raw {
		var ev model.JobEvent
		if err := json.Unmarshal([]byte(r), &ev); err != nil {
			s.logger.Warn("skipping undecodable history entry", "job_id", jobID, "err", err)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// Subscribe opens the per-job event channel. The returned subscription is
// long-lived and owned by the caller; it bypasses the breaker.
func (s *JobStore) Subscribe(ctx context.Context, jobID string) *redis.PubSub {
	return s.cache.Subscribe(ctx, fmt.Sprintf(model.RedisKeyJobEvents, jobID))
}

// JobKeys lists all job record keys (used by retention cleanup)
func (s *JobStore) JobKeys(ctx context.Context) ([]string, error) {
	var keys []string
	err := s.guard(ctx, func(ctx context.Context) error {
		var err error
		keys, err = s.cache.Keys(ctx, "job:*")
		return err
	})
	if err != nil {
		return nil, err
	}
	out := keys[:0]
	for _, k := range keys {
		// skip event channels, history lists and seq counters
		if k != "jobs:active" && !strings.Contains(k, ":events:") {
			out = append(out, k)
		}
	}
	return out, nil
}

// Ping measures store round-trip latency
func (s *JobStore) Ping(ctx context.Context) (time.Duration, error) {
	var d time.Duration
	err := s.guard(ctx, func(ctx context.Context) error {
		var err error
		d, err = s.cache.PingLatency(ctx)
		return err
	})
	return d, err
}

// MemoryUsed reports the store's used memory in bytes
func (s *JobStore) MemoryUsed(ctx context.Context) (int64, error) {
	var n int64
	err := s.guard(ctx, func(ctx context.Context) error {
		var err error
		n, err = s.cache.MemoryUsed(ctx)
		return err
	})
	return n, err
}

func eventFromJob(eventType string, job *model.Job, eventID string) *model.JobEvent {
	return &model.JobEvent{
		Type:          eventType,
		JobID:         job.JobID,
		Status:        job.Status,
		Stage:         job.Stage,
		Progress:      job.Progress,
		Message:       job.Message,
		ChunksCreated: job.ChunksCreated,
		Timestamp:     float64(time.Now().UnixNano()) / 1e9,
		EventID:       eventID,
	}
}
