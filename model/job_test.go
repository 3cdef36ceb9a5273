package model

import (
	"testing"
)

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to JobStatus
		want     bool
	}{
		{JobStatusQueued, JobStatusRunning, true},
		{JobStatusQueued, JobStatusError, true},
		{JobStatusRunning, JobStatusSuccess, true},
		{JobStatusRunning, JobStatusCancelled, true},
		{JobStatusRunning, JobStatusQueued, false},
		{JobStatusSuccess, JobStatusRunning, false},
		{JobStatusError, JobStatusQueued, false},
		{JobStatusCancelled, JobStatusSuccess, false},
		{JobStatusSuccess, JobStatusSuccess, true},
		{JobStatusRunning, JobStatusRunning, true},
	}

	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.want {
			t.Errorf("%s -> %s = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestTerminal(t *testing.T) {
	for _, s := range []JobStatus{JobStatusSuccess, JobStatusError, JobStatusCancelled} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []JobStatus{JobStatusQueued, JobStatusRunning} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestJobHashRoundTrip(t *testing.T) {
	job := &Job{
		JobID:          "j-1",
		Status:         JobStatusRunning,
		Stage:          StageEmbedding,
		Progress:       40.5,
		Message:        "Embedding 12 chunks",
		ChunksCreated:  12,
		CreatedAt:      1700000000.25,
		UpdatedAt:      1700000042.5,
		RetryCount:     1,
		MaxRetries:     3,
		TimeoutSeconds: 300,
		Metadata:       map[string]string{"source": "upload"},
	}

	fields := job.ToFields()
	strFields := make(map[string]string, len(fields))
	for k, v := range fields {
		strFields[k] = v.(string)
	}
	got := JobFromFields(strFields)

	if got.JobID != job.JobID || got.Status != job.Status || got.Stage != job.Stage {
		t.Errorf("identity fields lost: %+v", got)
	}
	if got.Progress != job.Progress || got.UpdatedAt != job.UpdatedAt {
		t.Errorf("numeric fields lost precision: %+v", got)
	}
	if got.Metadata["source"] != "upload" {
		t.Error("metadata lost")
	}
}
