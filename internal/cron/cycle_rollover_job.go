package cron

import (
	"context"
	"fmt"

	"github.com/interviewd-ai/interviewd-backend/pkg/logger"
)

const rolloverBatchSize = 500

type cycleRoller interface {
	RollElapsed(ctx context.Context, limit int) (int, error)
}

// CycleRolloverJobParams configure the billing cycle sweep.
type CycleRolloverJobParams struct {
	Logger *logger.Logger
	Quota  cycleRoller
}

// NewCycleRolloverJob builds the cron job that advances elapsed billing
// cycles for idle organizations. Active organizations roll lazily on their
// next reservation; this sweep keeps usage summaries honest for the rest.
func NewCycleRolloverJob(params CycleRolloverJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Quota == nil {
		return nil, fmt.Errorf("quota engine required")
	}
	return &cycleRolloverJob{
		logg:  params.Logger,
		quota: params.Quota,
	}, nil
}

type cycleRolloverJob struct {
	logg  *logger.Logger
	quota cycleRoller
}

func (j *cycleRolloverJob) Name() string { return "cycle-rollover" }

func (j *cycleRolloverJob) Run(ctx context.Context) error {
	total := 0
	for {
		rolled, err := j.quota.RollElapsed(ctx, rolloverBatchSize)
		if err != nil {
			return fmt.Errorf("roll elapsed cycles: %w", err)
		}
		total += rolled
		if rolled < rolloverBatchSize {
			break
		}
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{"count": total})
	j.logg.Info(logCtx, "billing cycle sweep complete")
	return nil
}
