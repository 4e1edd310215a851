package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/mtzanidakis/erevna/internal/errs"
	"github.com/mtzanidakis/erevna/internal/message"
	"github.com/mtzanidakis/erevna/internal/stage"
)

// invokeWithTimeout races the adapter against the stage deadline. The result
// channel is buffered so a straggler that ignores its context cannot leak the
// goroutine past the send.
func invokeWithTimeout(ctx context.Context, a stage.Adapter, req *message.Envelope, timeout time.Duration) (*message.Envelope, error) {
	stageCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		resp *message.Envelope
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		resp, err := a.Invoke(stageCtx, req)
		done <- outcome{resp: resp, err: err}
	}()

	select {
	case out := <-done:
		return out.resp, out.err
	case <-stageCtx.Done():
		if ctx.Err() != nil {
			// Caller cancelled, not a stage timeout.
			return nil, ctx.Err()
		}
		return nil, errs.Transient(fmt.Sprintf("%s timed out after %s", a.Name(), timeout), stageCtx.Err())
	}
}

// invokeWithRetry re-invokes the adapter with identical input on transient
// failures only. Validation errors and other permanent failures surface on
// the first attempt.
func invokeWithRetry(ctx context.Context, a stage.Adapter, req *message.Envelope, timeout time.Duration, attempts int, backoff time.Duration) (*message.Envelope, error) {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := invokeWithTimeout(ctx, a, req, timeout)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !errs.Retryable(err) || attempt == attempts {
			break
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}
