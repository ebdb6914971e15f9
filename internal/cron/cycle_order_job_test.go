package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/cratebox/cratebox-backend/internal/cycles"
	"github.com/cratebox/cratebox-backend/pkg/db/models"
)

type fakeDueCycleReader struct {
	cycles []models.DeliveryCycle
	err    error
	by     time.Time
}

func (f *fakeDueCycleReader) ListDueScheduled(_ context.Context, by time.Time, _ int) ([]models.DeliveryCycle, error) {
	f.by = by
	return f.cycles, f.err
}

type fakeCycleRunner struct {
	reports map[uuid.UUID]*cycles.Report
	errs    map[uuid.UUID]error
	ran     []uuid.UUID
}

func (f *fakeCycleRunner) Run(_ context.Context, cycleID uuid.UUID) (*cycles.Report, error) {
	f.ran = append(f.ran, cycleID)
	if err, ok := f.errs[cycleID]; ok {
		return nil, err
	}
	if report, ok := f.reports[cycleID]; ok {
		return report, nil
	}
	return &cycles.Report{CycleID: cycleID}, nil
}

func TestCycleOrderJobRunsEveryDueCycle(t *testing.T) {
	first := models.DeliveryCycle{ID: uuid.New()}
	second := models.DeliveryCycle{ID: uuid.New()}
	reader := &fakeDueCycleReader{cycles: []models.DeliveryCycle{first, second}}
	runner := &fakeCycleRunner{
		reports: map[uuid.UUID]*cycles.Report{
			first.ID:  {CycleID: first.ID, Generated: 12},
			second.ID: {CycleID: second.ID, Generated: 3},
		},
	}

	job, err := NewCycleOrderJob(CycleOrderJobParams{
		Logger: testLogger(),
		Cycles: reader,
		Runner: runner,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(runner.ran) != 2 {
		t.Fatalf("expected 2 cycle runs, got %d", len(runner.ran))
	}
}

func TestCycleOrderJobContinuesPastFailures(t *testing.T) {
	broken := models.DeliveryCycle{ID: uuid.New()}
	healthy := models.DeliveryCycle{ID: uuid.New()}
	reader := &fakeDueCycleReader{cycles: []models.DeliveryCycle{broken, healthy}}
	runner := &fakeCycleRunner{
		errs: map[uuid.UUID]error{broken.ID: errors.New("db down")},
	}

	job, err := NewCycleOrderJob(CycleOrderJobParams{
		Logger: testLogger(),
		Cycles: reader,
		Runner: runner,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	err = job.Run(context.Background())
	if err == nil {
		t.Fatal("expected combined error when a cycle fails")
	}
	if len(runner.ran) != 2 {
		t.Fatalf("a failing cycle must not stop the rest, ran %d", len(runner.ran))
	}
}

func TestCycleOrderJobLookaheadWindow(t *testing.T) {
	reader := &fakeDueCycleReader{}
	job, err := NewCycleOrderJob(CycleOrderJobParams{
		Logger:        testLogger(),
		Cycles:        reader,
		Runner:        &fakeCycleRunner{},
		LookaheadDays: 7,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	before := time.Now().UTC()
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	want := before.Add(7 * 24 * time.Hour)
	if reader.by.Before(want) {
		t.Fatalf("expected lookahead of at least 7 days, got %s", reader.by.Sub(before))
	}
}

func TestCycleOrderJobSurfacesSubscriptionErrors(t *testing.T) {
	cycle := models.DeliveryCycle{ID: uuid.New()}
	reader := &fakeDueCycleReader{cycles: []models.DeliveryCycle{cycle}}
	runner := &fakeCycleRunner{
		reports: map[uuid.UUID]*cycles.Report{
			cycle.ID: {
				CycleID:   cycle.ID,
				Generated: 5,
				Errors:    []cycles.SubscriptionError{{SubscriptionID: uuid.New(), Message: "pricing failed"}},
			},
		},
	}

	job, err := NewCycleOrderJob(CycleOrderJobParams{
		Logger: testLogger(),
		Cycles: reader,
		Runner: runner,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error when a run reports failed subscriptions")
	}
}
