package cron

import (
	"context"
	"fmt"

	"github.com/interviewd-ai/interviewd-backend/pkg/logger"
)

const expireBatchSize = 200

type staleExpirer interface {
	ExpireStale(ctx context.Context, limit int) (int, error)
}

// ExpireInterviewsJobParams configure the stale link sweep.
type ExpireInterviewsJobParams struct {
	Logger     *logger.Logger
	Interviews staleExpirer
}

// NewExpireInterviewsJob builds the cron job that fails unredeemed interview
// links past their expiry and releases their quota holds.
func NewExpireInterviewsJob(params ExpireInterviewsJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Interviews == nil {
		return nil, fmt.Errorf("interview service required")
	}
	return &expireInterviewsJob{
		logg:       params.Logger,
		interviews: params.Interviews,
	}, nil
}

type expireInterviewsJob struct {
	logg       *logger.Logger
	interviews staleExpirer
}

func (j *expireInterviewsJob) Name() string { return "expire-interviews" }

func (j *expireInterviewsJob) Run(ctx context.Context) error {
	total := 0
	for {
		expired, err := j.interviews.ExpireStale(ctx, expireBatchSize)
		if err != nil {
			return fmt.Errorf("expire stale interviews: %w", err)
		}
		total += expired
		if expired < expireBatchSize {
			break
		}
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{"count": total})
	j.logg.Info(logCtx, "interview expiry sweep complete")
	return nil
}
