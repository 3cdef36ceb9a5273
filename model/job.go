package model

import (
	"encoding/json"
	"strconv"
)

// JobStatus represents the lifecycle status of an ingestion job
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSuccess   JobStatus = "success"
	JobStatusError     JobStatus = "error"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status is a final state
func (s JobStatus) Terminal() bool {
	return s == JobStatusSuccess || s == JobStatusError || s == JobStatusCancelled
}

// rank orders statuses for transition checks: queued < running < terminal
func (s JobStatus) rank() int {
	switch s {
	case JobStatusQueued:
		return 0
	case JobStatusRunning:
		return 1
	default:
		return 2
	}
}

// CanTransitionTo reports whether moving from s to next is a legal transition.
// Jobs never move backwards and never leave a terminal state.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	if s.Terminal() {
		return s == next
	}
	return next.rank() >= s.rank()
}

// Pipeline stage labels
const (
	StageInitialized = "initialized"
	StageFetching    = "fetching"
	StageChunking    = "chunking"
	StageEmbedding   = "embedding"
	StageStoring     = "storing"
	StageIndexing    = "indexing"
	StageCompleted   = "completed"
	StageError       = "error"
)

// Job represents the state of an ingestion job stored in Redis
type Job struct {
	JobID          string            `json:"job_id"`
	Status         JobStatus         `json:"status"`
	Stage          string            `json:"stage"`
	Progress       float64           `json:"progress"`
	Message        string            `json:"message"`
	ChunksCreated  int               `json:"chunks_created"`
	CreatedAt      float64           `json:"created_at"`
	UpdatedAt      float64           `json:"updated_at"`
	RetryCount     int               `json:"retry_count"`
	MaxRetries     int               `json:"max_retries"`
	TimeoutSeconds int               `json:"timeout_seconds"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// ToFields flattens a job into a Redis hash field map
func (j *Job) ToFields() map[string]interface{} {
	fields := map[string]interface{}{
		"job_id":          j.JobID,
		"status":          string(j.Status),
		"stage":           j.Stage,
		"progress":        strconv.FormatFloat(j.Progress, 'f', -1, 64),
		"message":         j.Message,
		"chunks_created":  strconv.Itoa(j.ChunksCreated),
		"created_at":      strconv.FormatFloat(j.CreatedAt, 'f', -1, 64),
		"updated_at":      strconv.FormatFloat(j.UpdatedAt, 'f', -1, 64),
		"retry_count":     strconv.Itoa(j.RetryCount),
		"max_retries":     strconv.Itoa(j.MaxRetries),
		"timeout_seconds": strconv.Itoa(j.TimeoutSeconds),
	}
	if len(j.Metadata) > 0 {
		if raw, err := json.Marshal(j.Metadata); err == nil {
			fields["metadata"] = string(raw)
		}
	}
	return fields
}

// JobFromFields rebuilds a job from a Redis hash field map
func JobFromFields(fields map[string]string) *Job {
	j := &Job{
		JobID:   fields["job_id"],
		Status:  JobStatus(fields["status"]),
		Stage:   fields["stage"],
		Message: fields["message"],
	}
	j.Progress, _ = strconv.ParseFloat(fields["progress"], 64)
	j.ChunksCreated, _ = strconv.Atoi(fields["chunks_created"])
	j.CreatedAt, _ = strconv.ParseFloat(fields["created_at"], 64)
	j.UpdatedAt, _ = strconv.ParseFloat(fields["updated_at"], 64)
	j.RetryCount, _ = strconv.Atoi(fields["retry_count"])
	j.MaxRetries, _ = strconv.Atoi(fields["max_retries"])
	j.TimeoutSeconds, _ = strconv.Atoi(fields["timeout_seconds"])
	if raw, ok := fields["metadata"]; ok && raw != "" {
		_ = json.Unmarshal([]byte(raw), &j.Metadata)
	}
	return j
}

// JobPatch carries the allowed-field updates applied by the orchestrator.
// Nil pointers leave the field untouched.
type JobPatch struct {
	Status        *JobStatus
	Stage         *string
	Progress      *float64
	Message       *string
	ChunksCreated *int
	RetryCount    *int
	Metadata      map[string]string
}

// Job event types
const (
	EventJobCreated  = "job_created"
	EventJobUpdated  = "job_updated"
	EventStreamError = "stream_error"
)

// JobEvent is published on the per-job channel and appended to history
type JobEvent struct {
	Type          string    `json:"type"`
	JobID         string    `json:"job_id"`
	Status        JobStatus `json:"status,omitempty"`
	Stage         string    `json:"stage,omitempty"`
	Progress      float64   `json:"progress"`
	Message       string    `json:"message,omitempty"`
	ChunksCreated int       `json:"chunks_created"`
	Timestamp     float64   `json:"timestamp"`
	EventID       string    `json:"event_id"`
}

// Redis key patterns for the job store
const (
	// RedisKeyJob stores the job record as a hash
	// Usage: fmt.Sprintf(RedisKeyJob, jobID)
	RedisKeyJob = "job:%s"

	// RedisKeyJobEvents is the pub/sub channel for job events
	RedisKeyJobEvents = "job:events:%s"

	// RedisKeyJobHistory is the bounded replay list of recent events
	RedisKeyJobHistory = "job:events:%s:history"

	// RedisKeyJobEventSeq is the per-job monotonic event counter
	RedisKeyJobEventSeq = "job:events:%s:seq"

	// RedisKeyActiveJobs is the set of job ids in {queued, running}
	RedisKeyActiveJobs = "jobs:active"
)

// History and record retention limits
const (
	EventHistoryMaxLen     = 100
	EventHistoryTTLSeconds = 3600
	// JobRecordExtraTTLSeconds is added to the job timeout so late observers
	// can still read the terminal state
	JobRecordExtraTTLSeconds = 3600
)
