package cron

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/numberpool/pkg/logger"
)

type fakeLock struct {
	acquired bool
	released int
}

func (f *fakeLock) TryLock(context.Context) (UnlockFunc, bool, error) {
	if f.acquired {
		return nil, false, nil
	}
	f.acquired = true
	return func(context.Context) error {
		f.acquired = false
		f.released++
		return nil
	}, true, nil
}

type testJob struct {
	name string
	err  error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

func TestServiceRunCycleRunsAllJobsEvenOnFailure(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "cron-test"})
	registry := NewRegistry(&testJob{name: "success"}, &testJob{name: "fail", err: errors.New("boom")})
	service, err := NewService(ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     &fakeLock{},
		Interval: 0,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	ctx := context.Background()
	err = service.runCycle(ctx)
	if err == nil || !strings.Contains(err.Error(), "fail: boom") {
		t.Fatalf("expected failing job reported, got %v", err)
	}
	jobs := registry.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if success, ok := jobs[0].(*testJob); ok {
		if success.runs != 1 {
			t.Fatalf("expected success job to run once, ran %d", success.runs)
		}
	} else {
		t.Fatalf("first job type mismatch")
	}
	if failure, ok := jobs[1].(*testJob); ok {
		if failure.runs != 1 {
			t.Fatalf("expected failure job to run once, ran %d", failure.runs)
		}
	} else {
		t.Fatalf("second job type mismatch")
	}
}

func TestServiceSkipsCycleWhenLockHeld(t *testing.T) {
	job := &testJob{name: "sweep"}
	service, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test"}),
		Registry: NewRegistry(job),
		Lock:     &fakeLock{acquired: true},
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	if err := service.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("expected job skipped while another instance holds the lock")
	}
}

func TestServiceRetriesFailedPeriodicJobNextCycle(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	retention := &testJob{name: "retention", err: errors.New("db down")}
	registry := NewRegistry()
	registry.RegisterEvery(retention, 24*time.Hour)
	service, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test"}),
		Registry: registry,
		Lock:     &fakeLock{},
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	service.now = func() time.Time { return now }

	if err := service.runCycle(context.Background()); err == nil {
		t.Fatalf("expected failure")
	}
	retention.err = nil
	now = now.Add(time.Minute)
	if err := service.runCycle(context.Background()); err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	now = now.Add(time.Minute)
	if err := service.runCycle(context.Background()); err != nil {
		t.Fatalf("third cycle: %v", err)
	}
	if retention.runs != 2 {
		t.Fatalf("expected a retry then a skip, ran %d times", retention.runs)
	}
}

type blockingJob struct{ deadline bool }

func (b *blockingJob) Name() string { return "slow" }

func (b *blockingJob) Run(ctx context.Context) error {
	_, b.deadline = ctx.Deadline()
	return nil
}

func TestServiceAppliesJobTimeoutAndReleasesLock(t *testing.T) {
	job := &blockingJob{}
	lock := &fakeLock{}
	service, err := NewService(ServiceParams{
		Logger:     logger.New(logger.Options{ServiceName: "cron-test"}),
		Registry:   NewRegistry(job),
		Lock:       lock,
		JobTimeout: time.Minute,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	if err := service.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if !job.deadline {
		t.Fatal("expected job context to carry a deadline")
	}
	if lock.acquired || lock.released != 1 {
		t.Fatalf("expected lock released once, got %+v", lock)
	}
}

func TestServiceStopsCycleWhenContextCanceled(t *testing.T) {
	job := &testJob{name: "sweep"}
	lock := &fakeLock{}
	service, _ := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test"}),
		Registry: NewRegistry(job),
		Lock:     lock,
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := service.RunOnce(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if job.runs != 0 || lock.released != 1 {
		t.Fatalf("expected no runs and a released lock, runs=%d released=%d", job.runs, lock.released)
	}
}
