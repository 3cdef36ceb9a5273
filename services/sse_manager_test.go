package services

import (
	"testing"
	"time"
)

func TestSSEManagerLifecycle(t *testing.T) {
	m := NewSSEManager(30*time.Second, nil)

	conn := m.Register("", "job-1", "42")
	if conn.ConnectionID == "" {
		t.Fatal("connection id not assigned")
	}
	if conn.ClientID == "" {
		t.Error("client id should be generated when absent")
	}
	if conn.LastEventID != "42" {
		t.Error("last event id not recorded")
	}
	if m.Count() != 1 {
		t.Errorf("count = %d, want 1", m.Count())
	}

	m.Unregister(conn.ConnectionID)
	if m.Count() != 0 {
		t.Errorf("count after unregister = %d", m.Count())
	}
}

func TestSSEManagerSweepStale(t *testing.T) {
	m := NewSSEManager(10*time.Millisecond, nil)

	stale := m.Register("c1", "job-1", "")
	fresh := m.Register("c2", "job-2", "")

	time.Sleep(40 * time.Millisecond) // past 3x heartbeat
	m.Touch(fresh.ConnectionID)

	if removed := m.SweepStale(); removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if m.Count() != 1 {
		t.Errorf("count = %d, want 1", m.Count())
	}

	m.Touch(stale.ConnectionID) // no-op on a removed connection
	if m.Count() != 1 {
		t.Error("touch must not resurrect a swept connection")
	}
}
