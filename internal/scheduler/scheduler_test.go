package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestAddJobRejectsBadSpec(t *testing.T) {
	s := New()
	defer s.Stop()
	if err := s.AddJob("broken", "not a cron spec", func(context.Context) error { return nil }); err == nil {
		t.Fatalf("expected error for invalid spec")
	}
	if s.IsRunning() {
		t.Fatalf("no entries expected")
	}
}

func TestJobRuns(t *testing.T) {
	s := New()
	ran := make(chan struct{}, 4)
	if err := s.AddJob("tick", "@every 1s", func(context.Context) error {
		ran <- struct{}{}
		return errors.New("failures are only logged")
	}); err != nil {
		t.Fatalf("add job: %v", err)
	}
	s.Start()
	defer s.Stop()

	if !s.IsRunning() {
		t.Fatalf("scheduler should report running")
	}
	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatalf("job did not run")
	}
}
