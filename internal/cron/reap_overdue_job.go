package cron

import (
	"context"
	"fmt"

	"github.com/interviewd-ai/interviewd-backend/pkg/logger"
)

const reapBatchSize = 200

type overdueReaper interface {
	ReapOverdue(ctx context.Context, limit int) (int, error)
}

// ReapOverdueJobParams configure the overdue session sweep.
type ReapOverdueJobParams struct {
	Logger     *logger.Logger
	Interviews overdueReaper
}

// NewReapOverdueJob builds the cron job that ends sessions whose booked time
// ran out without a room-finished webhook arriving. Each pass takes one
// batch; anything left over is picked up on the next tick.
func NewReapOverdueJob(params ReapOverdueJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Interviews == nil {
		return nil, fmt.Errorf("interview service required")
	}
	return &reapOverdueJob{
		logg:       params.Logger,
		interviews: params.Interviews,
	}, nil
}

type reapOverdueJob struct {
	logg       *logger.Logger
	interviews overdueReaper
}

func (j *reapOverdueJob) Name() string { return "reap-overdue" }

func (j *reapOverdueJob) Run(ctx context.Context) error {
	reaped, err := j.interviews.ReapOverdue(ctx, reapBatchSize)
	if err != nil {
		return fmt.Errorf("reap overdue interviews: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{"count": reaped})
	j.logg.Info(logCtx, "overdue session sweep complete")
	return nil
}
