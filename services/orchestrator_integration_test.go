package services

import (
	"context"
	"errors"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/docuquery/docuquery/model"
	"github.com/docuquery/docuquery/utils/cache"
)

// newIntegrationOrchestrator connects to a real Redis. These tests require:
//  1. RUN_INTEGRATION_TESTS=true
//  2. STORE_URL pointing at a disposable Redis database
func newIntegrationOrchestrator(t *testing.T, maxConcurrent int) *Orchestrator {
	t.Helper()
	if os.Getenv("RUN_INTEGRATION_TESTS") != "true" {
		t.Skip("Skipping integration test. Set RUN_INTEGRATION_TESTS=true to run")
	}

	storeURL := os.Getenv("STORE_URL")
	if storeURL == "" {
		storeURL = "redis://localhost:6379/15"
	}

	redisCache, err := cache.NewRedisCache(storeURL)
	if err != nil {
		t.Skipf("Redis not reachable at %s: %v", storeURL, err)
	}
	t.Cleanup(func() { redisCache.Close() })

	store := NewJobStore(redisCache, nil, nil)
	return NewOrchestrator(store, maxConcurrent, nil, nil)
}

func TestOrchestratorLifecycle(t *testing.T) {
	orch := newIntegrationOrchestrator(t, 10)
	ctx := context.Background()

	job, err := orch.Create(ctx, 300, 3, map[string]string{"origin": "test"})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { orch.Cleanup(ctx, job.JobID) })

	if job.Status != model.JobStatusQueued || job.Stage != model.StageInitialized {
		t.Errorf("fresh job state wrong: %+v", job)
	}

	running := model.JobStatusRunning
	stage := model.StageFetching
	progress := 10.0
	ok, err := orch.Update(ctx, job.JobID, model.JobPatch{Status: &running, Stage: &stage, Progress: &progress})
	if err != nil || !ok {
		t.Fatalf("update failed: ok=%v err=%v", ok, err)
	}

	got, err := orch.Get(ctx, job.JobID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.JobStatusRunning || got.Progress != 10.0 {
		t.Errorf("update not visible: %+v", got)
	}
	if got.UpdatedAt < got.CreatedAt {
		t.Error("updated_at must not precede created_at")
	}

	// terminal transition, then attempt to go backwards
	success := model.JobStatusSuccess
	done := 100.0
	if ok, err := orch.Update(ctx, job.JobID, model.JobPatch{Status: &success, Progress: &done}); err != nil || !ok {
		t.Fatalf("terminal update failed: %v", err)
	}
	queued := model.JobStatusQueued
	ok, err = orch.Update(ctx, job.JobID, model.JobPatch{Status: &queued})
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("terminal to non-terminal transition must be rejected")
	}

	history, err := orch.History(ctx, job.JobID)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) < 3 {
		t.Fatalf("expected created + 2 updates in history, got %d", len(history))
	}
	for i := 1; i < len(history); i++ {
		prev, _ := strconv.Atoi(history[i-1].EventID)
		cur, _ := strconv.Atoi(history[i].EventID)
		if cur <= prev {
			t.Error("event ids must be monotonic")
		}
	}
}

func TestOrchestratorAdmissionControl(t *testing.T) {
	orch := newIntegrationOrchestrator(t, 2)
	ctx := context.Background()

	var jobs []*model.Job
	t.Cleanup(func() {
		for _, j := range jobs {
			orch.Cleanup(ctx, j.JobID)
		}
	})

	for i := 0; i < 2; i++ {
		job, err := orch.Create(ctx, 60, 0, nil)
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		jobs = append(jobs, job)
	}

	if _, err := orch.Create(ctx, 60, 0, nil); !errors.Is(err, model.ErrAdmissionDenied) {
		t.Errorf("expected admission denial at the ceiling, got %v", err)
	}

	// a terminal update frees a slot
	done := model.JobStatusError
	msg := "gave up"
	if _, err := orch.Update(ctx, jobs[0].JobID, model.JobPatch{Status: &done, Message: &msg}); err != nil {
		t.Fatal(err)
	}
	job, err := orch.Create(ctx, 60, 0, nil)
	if err != nil {
		t.Errorf("slot not freed after terminal update: %v", err)
	} else {
		jobs = append(jobs, job)
	}
}

func TestOrchestratorSubscribeClosesOnTerminal(t *testing.T) {
	orch := newIntegrationOrchestrator(t, 10)
	ctx := context.Background()

	job, err := orch.Create(ctx, 60, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { orch.Cleanup(ctx, job.JobID) })

	events, unsubscribe, err := orch.Subscribe(ctx, job.JobID)
	if err != nil {
		t.Fatal(err)
	}
	defer unsubscribe()

	running := model.JobStatusRunning
	orch.Update(ctx, job.JobID, model.JobPatch{Status: &running})
	success := model.JobStatusSuccess
	orch.Update(ctx, job.JobID, model.JobPatch{Status: &success})

	deadline := time.After(5 * time.Second)
	var seen []model.JobEvent
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				if len(seen) < 2 {
					t.Fatalf("stream closed early: %d events", len(seen))
				}
				last := seen[len(seen)-1]
				if !last.Status.Terminal() {
					t.Error("stream must close on a terminal event")
				}
				return
			}
			seen = append(seen, ev)
		case <-deadline:
			t.Fatal("subscription never closed after terminal update")
		}
	}
}

func TestOrchestratorListActiveAndCleanup(t *testing.T) {
	orch := newIntegrationOrchestrator(t, 10)
	ctx := context.Background()

	job, err := orch.Create(ctx, 60, 0, nil)
	if err != nil {
		t.Fatal(err)
	}

	active, err := orch.ListActive(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, j := range active {
		if j.JobID == job.JobID {
			found = true
		}
	}
	if !found {
		t.Error("fresh job missing from active list")
	}

	ok, err := orch.Cleanup(ctx, job.JobID)
	if err != nil || !ok {
		t.Fatalf("cleanup failed: %v", err)
	}
	if _, err := orch.Get(ctx, job.JobID); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected not found after cleanup, got %v", err)
	}
}
