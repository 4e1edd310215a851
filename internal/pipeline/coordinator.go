// Package pipeline runs the fixed research sequence: research, verification,
// synthesis, rendering. The coordinator owns admission control, per-stage
// timeouts and retries, and the persisted run transcript.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mtzanidakis/erevna/internal/config"
	"github.com/mtzanidakis/erevna/internal/errs"
	"github.com/mtzanidakis/erevna/internal/message"
	"github.com/mtzanidakis/erevna/internal/stage"
	"github.com/mtzanidakis/erevna/internal/store"
)

var validFormats = map[string]bool{"html": true, "markdown": true, "pdf": true}

type Coordinator struct {
	cfg      config.PipelineConfig
	adapters map[string]stage.Adapter
	store    *store.Store
	logger   *slog.Logger
	events   EventPublisher

	// Admission control across concurrent runs.
	sem chan struct{}

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	closed  bool
}

// Adapters bundles one adapter per stage.
type Adapters struct {
	Research     stage.Adapter
	Verification stage.Adapter
	Synthesis    stage.Adapter
	Rendering    stage.Adapter
}

// New builds a coordinator. The store may be nil (no persistence) and the
// event publisher may be nil (no events); both are optional wiring.
func New(cfg config.PipelineConfig, a Adapters, st *store.Store, logger *slog.Logger, events EventPublisher) *Coordinator {
	if cfg.MaxConcurrentTasks <= 0 {
		cfg.MaxConcurrentTasks = 3
	}
	if cfg.StageTimeout <= 0 {
		cfg.StageTimeout = 300 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		cfg: cfg,
		adapters: map[string]stage.Adapter{
			stage.Research:     a.Research,
			stage.StageVerification: a.Verification,
			stage.StageSynthesis:    a.Synthesis,
			stage.Rendering:    a.Rendering,
		},
		store:   st,
		logger:  logger,
		events:  events,
		sem:     make(chan struct{}, cfg.MaxConcurrentTasks),
		cancels: make(map[string]context.CancelFunc),
	}
}

// Run executes the full stage sequence for one request. Invalid requests fail
// before any stage executes. A stage failure does not abort the run: the
// remaining stages either run with what they have or report a missing input,
// and the report always carries one entry per stage.
func (c *Coordinator) Run(ctx context.Context, req Request) (*RunReport, error) {
	req.Topic = strings.TrimSpace(req.Topic)
	if req.Topic == "" {
		return nil, errs.Validationf("topic is required")
	}
	if req.Query == "" {
		req.Query = req.Topic
	}
	if req.MaxSources <= 0 {
		req.MaxSources = 5
	}
	if req.Format == "" {
		req.Format = "html"
	}
	req.Format = strings.ToLower(req.Format)
	if !validFormats[req.Format] {
		return nil, errs.Validationf("unsupported format %q (want html, markdown or pdf)", req.Format)
	}

	select {
	case c.sem <- struct{}{}:
		defer func() { <-c.sem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	runID := req.RunID
	if runID == "" {
		runID = uuid.New().String()
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, errs.Transient("coordinator shutting down", context.Canceled)
	}
	c.cancels[runID] = cancel
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.cancels, runID)
		c.mu.Unlock()
	}()

	report := &RunReport{
		RunID:     runID,
		Topic:     req.Topic,
		StartedAt: time.Now().UTC(),
		Steps:     make([]StepResult, 0, len(stage.Order)),
	}

	if c.store != nil {
		err := c.store.SaveResearchRun(&store.ResearchRun{
			ID: runID, Topic: req.Topic, Query: req.Query, Format: req.Format,
		})
		if err != nil {
			return nil, err
		}
	}

	c.logger.Info("run started", "run_id", runID, "topic", req.Topic, "format", req.Format)
	c.publish(runID, "run_started", map[string]any{"topic": req.Topic, "format": req.Format})

	var (
		results      []stage.SearchResult
		verification *stage.Verification
		synthesis    *stage.Synthesis
	)

	// research
	step, resp := c.runStage(runCtx, runID, stage.Research, stage.ResearchRequest{
		Topic: req.Topic, Query: req.Query, MaxResults: req.MaxSources,
	})
	if step.Status == StepCompleted {
		var r stage.ResearchResponse
		if err := resp.Decode(&r); err == nil {
			results = r.Results
		}
		c.persistSources(results)
	}
	report.Steps = append(report.Steps, step)

	// verification
	if report.Steps[0].Status == StepCompleted {
		step, resp = c.runStage(runCtx, runID, stage.StageVerification, stage.VerifyRequest{Results: results})
		if step.Status == StepCompleted {
			var r stage.VerifyResponse
			if err := resp.Decode(&r); err == nil {
				verification = r.Verification
			}
		}
	} else {
		step = skippedStep(stage.StageVerification, stage.Research)
	}
	report.Steps = append(report.Steps, step)

	// synthesis
	if report.Steps[0].Status == StepCompleted {
		step, resp = c.runStage(runCtx, runID, stage.StageSynthesis, stage.SynthesisRequest{
			Topic: req.Topic, Results: results, Verification: verification,
		})
		if step.Status == StepCompleted {
			var r stage.SynthesisResponse
			if err := resp.Decode(&r); err == nil {
				synthesis = r.Synthesis
			}
		}
	} else {
		step = skippedStep(stage.StageSynthesis, stage.Research)
	}
	report.Steps = append(report.Steps, step)

	// rendering
	if synthesis != nil {
		step, resp = c.runStage(runCtx, runID, stage.Rendering, stage.RenderRequest{
			Topic: req.Topic, Synthesis: synthesis, Format: req.Format,
		})
		if step.Status == StepCompleted {
			var r stage.RenderResponse
			if err := resp.Decode(&r); err == nil {
				report.Report = r.Report
			}
		}
	} else {
		step = skippedStep(stage.Rendering, stage.StageSynthesis)
	}
	report.Steps = append(report.Steps, step)

	completed := 0
	for _, s := range report.Steps {
		if s.Status == StepCompleted {
			completed++
		}
	}
	switch completed {
	case len(report.Steps):
		report.Status = StatusSuccess
	case 0:
		report.Status = StatusFailure
	default:
		report.Status = StatusPartial
	}
	report.CompletedAt = time.Now().UTC()

	if c.store != nil {
		if err := c.store.CompleteResearchRun(runID, report.Status, report.Steps); err != nil {
			c.logger.Error("persist run", "run_id", runID, "error", err)
		}
	}

	c.logger.Info("run finished", "run_id", runID, "status", report.Status,
		"duration", report.CompletedAt.Sub(report.StartedAt).Round(time.Millisecond))
	c.publish(runID, "run_completed", map[string]any{"status": report.Status})

	return report, nil
}

// runStage invokes one adapter with the configured timeout and retry policy
// and folds the outcome into a transcript entry.
func (c *Coordinator) runStage(ctx context.Context, runID, name string, payload any) (StepResult, *message.Envelope) {
	step := StepResult{Step: name, Agent: name}
	start := time.Now()

	req, err := message.FromRequest(payload)
	if err == nil {
		resp, invokeErr := invokeWithRetry(ctx, c.adapters[name], req,
			c.cfg.StageTimeoutFor(name), c.cfg.RetryAttempts+1, c.cfg.RetryBackoff)
		err = invokeErr
		if err == nil {
			step.Status = StepCompleted
			step.Result = resp.Payload
			step.Duration = time.Since(start).Seconds()
			c.logger.Info("stage completed", "run_id", runID, "stage", name,
				"duration", time.Since(start).Round(time.Millisecond))
			c.publish(runID, "stage_completed", map[string]any{"stage": name, "duration": step.Duration})
			return step, resp
		}
	}

	step.Status = StepError
	step.Error = err.Error()
	step.Duration = time.Since(start).Seconds()
	c.logger.Error("stage failed", "run_id", runID, "stage", name, "error", err)
	c.publish(runID, "stage_failed", map[string]any{"stage": name, "error": step.Error})
	return step, nil
}

func skippedStep(name, failedInput string) StepResult {
	return StepResult{
		Step:   name,
		Agent:  name,
		Status: StepError,
		Error:  fmt.Sprintf("missing input: %s stage did not complete", failedInput),
	}
}

// persistSources writes fresh research results through the deduplicating
// store. Duplicates are expected on repeat topics and only logged.
func (c *Coordinator) persistSources(results []stage.SearchResult) {
	if c.store == nil || len(results) == 0 {
		return
	}

	batch := make([]store.Source, 0, len(results))
	for _, r := range results {
		score := r.Confidence
		if score < 0 {
			score = 0
		}
		if score > 1 {
			score = 1
		}
		batch = append(batch, store.Source{
			URL:              r.URL,
			Title:            r.Title,
			Content:          r.Content,
			Domain:           r.Domain,
			PublishDate:      r.LastUpdated,
			CredibilityScore: score,
		})
	}

	res, err := c.store.AddSources(batch)
	if err != nil {
		c.logger.Error("persist sources", "error", err)
		return
	}
	c.logger.Info("sources persisted", "added", res.Added, "duplicates", res.Duplicates, "errors", res.Errors)
}

func (c *Coordinator) publish(runID, kind string, payload map[string]any) {
	if c.events == nil {
		return
	}
	c.events.PublishRunEvent(runID, kind, payload)
}

// Cleanup cancels every in-flight run and rejects new ones. Safe to call more
// than once.
func (c *Coordinator) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for id, cancel := range c.cancels {
		cancel()
		delete(c.cancels, id)
	}
}
