package scheduler

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mtzanidakis/erevna/internal/config"
	"github.com/mtzanidakis/erevna/internal/pipeline"
	"github.com/mtzanidakis/erevna/internal/store"
)

func TestParseScheduleKinds(t *testing.T) {
	cron, err := ParseSchedule(`{"kind":"cron","cron_expr":"0 9 * * *"}`)
	if err != nil || cron.Kind != "cron" || cron.CronExpr != "0 9 * * *" {
		t.Errorf("cron schedule = %+v, %v", cron, err)
	}

	if _, err := ParseSchedule("not json"); err == nil {
		t.Error("bad json accepted")
	}
}

func TestCalculateNextRunInterval(t *testing.T) {
	before := time.Now()
	next := CalculateNextRun(`{"kind":"interval","interval_ms":60000}`)
	if next == nil {
		t.Fatal("interval schedule produced no next run")
	}
	if next.Before(before.Add(59*time.Second)) || next.After(before.Add(2*time.Minute)) {
		t.Errorf("next run = %s", next)
	}
}

func TestCalculateNextRunCron(t *testing.T) {
	next := CalculateNextRun(`{"kind":"cron","cron_expr":"* * * * *"}`)
	if next == nil {
		t.Fatal("cron schedule produced no next run")
	}
	if !next.After(time.Now().Add(-time.Second)) {
		t.Errorf("next run in the past: %s", next)
	}

	if CalculateNextRun(`{"kind":"cron","cron_expr":"garbage"}`) != nil {
		t.Error("bad cron expression produced a next run")
	}
}

func TestCalculateNextRunOnce(t *testing.T) {
	future := time.Now().Add(time.Hour).UnixMilli()
	next := CalculateNextRun(fmt.Sprintf(`{"kind":"once","at_ms":%d}`, future))
	if next == nil || next.UnixMilli() != future {
		t.Errorf("next run = %v", next)
	}

	past := time.Now().Add(-time.Hour).UnixMilli()
	if CalculateNextRun(fmt.Sprintf(`{"kind":"once","at_ms":%d}`, past)) != nil {
		t.Error("past one-off produced a next run")
	}
}

type countingRunner struct {
	runs   int32
	topics []string
}

func (r *countingRunner) Run(_ context.Context, req pipeline.Request) (*pipeline.RunReport, error) {
	atomic.AddInt32(&r.runs, 1)
	r.topics = append(r.topics, req.Topic)
	return &pipeline.RunReport{Status: pipeline.StatusSuccess}, nil
}

func TestPollExecutesDueTopics(t *testing.T) {
	st, err := store.New(config.StoreConfig{Path: filepath.Join(t.TempDir(), "s.db")})
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	due := time.Now().Add(-time.Minute)
	topic := &store.ScheduledTopic{
		Topic:     "solar trends",
		Schedule:  `{"kind":"interval","interval_ms":3600000}`,
		NextRunAt: &due,
	}
	if err := st.CreateScheduledTopic(topic); err != nil {
		t.Fatal(err)
	}

	notDue := time.Now().Add(time.Hour)
	if err := st.CreateScheduledTopic(&store.ScheduledTopic{
		Topic:     "later",
		Schedule:  `{"kind":"interval","interval_ms":3600000}`,
		NextRunAt: &notDue,
	}); err != nil {
		t.Fatal(err)
	}

	runner := &countingRunner{}
	sched := New(st, runner, config.SchedulerConfig{PollInterval: time.Minute})
	sched.poll(context.Background())

	if got := atomic.LoadInt32(&runner.runs); got != 1 {
		t.Fatalf("runs = %d, want 1", got)
	}
	if runner.topics[0] != "solar trends" {
		t.Errorf("ran topic %q", runner.topics[0])
	}

	// The interval schedule pushes next_run_at forward, so nothing is due now.
	updated, err := st.GetScheduledTopic(topic.ID)
	if err != nil {
		t.Fatal(err)
	}
	if updated.LastStatus != pipeline.StatusSuccess {
		t.Errorf("last status = %q", updated.LastStatus)
	}
	if updated.NextRunAt == nil || !updated.NextRunAt.After(time.Now()) {
		t.Errorf("next run not advanced: %v", updated.NextRunAt)
	}

	sched.poll(context.Background())
	if got := atomic.LoadInt32(&runner.runs); got != 1 {
		t.Errorf("topic re-ran before its next window: %d runs", got)
	}
}

func TestPollDeactivatesFinishedOneOff(t *testing.T) {
	st, err := store.New(config.StoreConfig{Path: filepath.Join(t.TempDir(), "s.db")})
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	due := time.Now().Add(-time.Minute)
	past := time.Now().Add(-time.Hour).UnixMilli()
	topic := &store.ScheduledTopic{
		Topic:     "one shot",
		Schedule:  fmt.Sprintf(`{"kind":"once","at_ms":%d}`, past),
		NextRunAt: &due,
	}
	if err := st.CreateScheduledTopic(topic); err != nil {
		t.Fatal(err)
	}

	sched := New(st, &countingRunner{}, config.SchedulerConfig{PollInterval: time.Minute})
	sched.poll(context.Background())

	updated, err := st.GetScheduledTopic(topic.ID)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != "done" {
		t.Errorf("one-off status = %q, want done", updated.Status)
	}
}
