package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"
)

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type fakeRetentionRepo struct {
	cutoff  time.Time
	deleted int64
	err     error
}

func (f *fakeRetentionRepo) DeletePublishedBefore(_ *gorm.DB, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return f.deleted, f.err
}

func TestOutboxRetentionJobCutoff(t *testing.T) {
	repo := &fakeRetentionRepo{deleted: 17}
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     testLogger(),
		DB:         fakeTxRunner{},
		Repository: repo,
		Retention:  14,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	before := time.Now().UTC()
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	want := before.Add(-14 * 24 * time.Hour)
	if repo.cutoff.After(want.Add(time.Minute)) || repo.cutoff.Before(want.Add(-time.Minute)) {
		t.Fatalf("cutoff %s not near expected %s", repo.cutoff, want)
	}
}

func TestOutboxRetentionJobPropagatesErrors(t *testing.T) {
	repo := &fakeRetentionRepo{err: errors.New("delete failed")}
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     testLogger(),
		DB:         fakeTxRunner{},
		Repository: repo,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error to surface")
	}
}
