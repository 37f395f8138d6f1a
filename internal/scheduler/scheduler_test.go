package scheduler

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestStartRequiresSweepFunction(t *testing.T) {
	s := New("@every 1m")
	if err := s.Start(); err == nil {
		t.Fatalf("expected error without sweep function")
	}
	if s.IsRunning() {
		t.Fatalf("scheduler should not be running")
	}
}

func TestStartRejectsBadSpec(t *testing.T) {
	s := New("every minute please")
	s.SetSweepFunction(func() int { return 0 })
	if err := s.Start(); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestSweepRuns(t *testing.T) {
	var calls atomic.Int32
	s := New("@every 1s")
	s.SetSweepFunction(func() int {
		calls.Add(1)
		return 1
	})
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !s.IsRunning() {
		t.Fatalf("scheduler should be running")
	}
	deadline := time.Now().Add(5 * time.Second)
	for calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	s.Stop()
	if calls.Load() == 0 {
		t.Fatalf("sweep was never triggered")
	}
}
