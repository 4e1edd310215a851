// Package scheduler polls the store for due scheduled topics and hands each
// one to the pipeline coordinator.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/mtzanidakis/erevna/internal/config"
	"github.com/mtzanidakis/erevna/internal/pipeline"
	"github.com/mtzanidakis/erevna/internal/store"
)

// Runner is the subset of the coordinator the scheduler needs.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.RunReport, error)
}

type Scheduler struct {
	store        *store.Store
	runner       Runner
	pollInterval time.Duration
	reloadCh     chan struct{}
}

func New(s *store.Store, runner Runner, cfg config.SchedulerConfig) *Scheduler {
	return &Scheduler{
		store:        s,
		runner:       runner,
		pollInterval: cfg.PollInterval,
		reloadCh:     make(chan struct{}, 1),
	}
}

// UpdateInterval changes the poll interval and signals the run loop to reset
// its ticker.
func (s *Scheduler) UpdateInterval(pollInterval time.Duration) {
	s.pollInterval = pollInterval
	select {
	case s.reloadCh <- struct{}{}:
	default:
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	if s.pollInterval == 0 {
		s.pollInterval = 30 * time.Second
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	slog.Info("scheduler started", "poll_interval", s.pollInterval)

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped")
			return
		case <-s.reloadCh:
			ticker.Reset(s.pollInterval)
			slog.Info("scheduler config reloaded", "poll_interval", s.pollInterval)
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

func (s *Scheduler) poll(ctx context.Context) {
	topics, err := s.store.DueScheduledTopics(time.Now())
	if err != nil {
		slog.Error("failed to get due topics", "error", err)
		return
	}

	for _, topic := range topics {
		s.execute(ctx, topic)
	}
}

func (s *Scheduler) execute(ctx context.Context, t store.ScheduledTopic) {
	slog.Info("executing scheduled topic", "id", t.ID, "topic", t.Topic)

	report, err := s.runner.Run(ctx, pipeline.Request{
		Topic:      t.Topic,
		Query:      t.Query,
		MaxSources: t.MaxSources,
		Format:     t.Format,
	})

	var lastStatus, lastError string
	switch {
	case err != nil:
		lastStatus = pipeline.StatusFailure
		lastError = err.Error()
		slog.Error("scheduled run failed", "id", t.ID, "error", err)
	default:
		lastStatus = report.Status
	}

	nextRun := CalculateNextRun(t.Schedule)

	if err := s.store.MarkScheduledRun(t.ID, lastStatus, lastError, nextRun); err != nil {
		slog.Error("failed to update scheduled topic", "id", t.ID, "error", err)
	}
	if nextRun == nil {
		slog.Info("no next run, schedule finished", "id", t.ID, "topic", t.Topic)
	}
}
