package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/interviewd-ai/interviewd-backend/pkg/logger"
)

type fakeExpirer struct {
	batches []int
	calls   int
	err     error
}

func (f *fakeExpirer) ExpireStale(_ context.Context, _ int) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	if f.calls >= len(f.batches) {
		return 0, nil
	}
	expired := f.batches[f.calls]
	f.calls++
	return expired, nil
}

func TestExpireInterviewsJobDrainsBatches(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "cron-test"})
	expirer := &fakeExpirer{batches: []int{expireBatchSize, expireBatchSize, 3}}
	job, err := NewExpireInterviewsJob(ExpireInterviewsJobParams{Logger: logg, Interviews: expirer})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run job: %v", err)
	}
	if expirer.calls != 3 {
		t.Fatalf("expected 3 batches, got %d", expirer.calls)
	}
}

func TestExpireInterviewsJobPropagatesError(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "cron-test"})
	expirer := &fakeExpirer{err: errors.New("db down")}
	job, err := NewExpireInterviewsJob(ExpireInterviewsJobParams{Logger: logg, Interviews: expirer})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewExpireInterviewsJobValidation(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "cron-test"})
	if _, err := NewExpireInterviewsJob(ExpireInterviewsJobParams{Logger: logg}); err == nil {
		t.Fatal("expected error without interview service")
	}
	if _, err := NewExpireInterviewsJob(ExpireInterviewsJobParams{Interviews: &fakeExpirer{}}); err == nil {
		t.Fatal("expected error without logger")
	}
}
