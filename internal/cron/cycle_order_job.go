package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/cratebox/cratebox-backend/internal/cycles"
	"github.com/cratebox/cratebox-backend/pkg/db/models"
	"github.com/cratebox/cratebox-backend/pkg/logger"
)

const (
	defaultCycleLookaheadDays = 3
	defaultDueCycleBatch      = 50
)

type dueCycleReader interface {
	ListDueScheduled(ctx context.Context, by time.Time, limit int) ([]models.DeliveryCycle, error)
}

type cycleRunner interface {
	Run(ctx context.Context, cycleID uuid.UUID) (*cycles.Report, error)
}

// CycleOrderJobParams configure the recurring order generator job.
type CycleOrderJobParams struct {
	Logger        *logger.Logger
	Cycles        dueCycleReader
	Runner        cycleRunner
	LookaheadDays int
}

// NewCycleOrderJob builds the job that generates orders for every
// scheduled cycle delivering within the lookahead window.
func NewCycleOrderJob(params CycleOrderJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Cycles == nil {
		return nil, fmt.Errorf("cycle reader required")
	}
	if params.Runner == nil {
		return nil, fmt.Errorf("cycle runner required")
	}
	lookahead := params.LookaheadDays
	if lookahead <= 0 {
		lookahead = defaultCycleLookaheadDays
	}
	return &cycleOrderJob{
		logg:      params.Logger,
		cycles:    params.Cycles,
		runner:    params.Runner,
		lookahead: lookahead,
		now:       time.Now,
	}, nil
}

type cycleOrderJob struct {
	logg      *logger.Logger
	cycles    dueCycleReader
	runner    cycleRunner
	lookahead int
	now       func() time.Time
}

func (j *cycleOrderJob) Name() string { return "delivery-cycle-orders" }

func (j *cycleOrderJob) Run(ctx context.Context) error {
	horizon := j.now().UTC().Add(time.Duration(j.lookahead) * 24 * time.Hour)
	due, err := j.cycles.ListDueScheduled(ctx, horizon, defaultDueCycleBatch)
	if err != nil {
		return fmt.Errorf("query due cycles: %w", err)
	}
	if len(due) == 0 {
		j.logg.Info(ctx, "no delivery cycles due")
		return nil
	}

	var errs []error
	for _, cycle := range due {
		cycleCtx := j.logg.WithCycleID(ctx, cycle.ID.String())
		report, err := j.runner.Run(cycleCtx, cycle.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("cycle %s: %w", cycle.ID, err))
			continue
		}
		logCtx := j.logg.WithFields(cycleCtx, map[string]any{
			"generated": report.Generated,
			"skipped":   report.Skipped,
			"excluded":  report.Excluded,
			"errors":    len(report.Errors),
		})
		j.logg.Info(logCtx, "delivery cycle order generation complete")
		if len(report.Errors) > 0 {
			errs = append(errs, fmt.Errorf("cycle %s: %d subscriptions failed", cycle.ID, len(report.Errors)))
		}
	}
	return multierr.Combine(errs...)
}
