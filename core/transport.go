package core

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// RetryConfig bounds the exponential backoff used for outbound POSTs
// (spec §7: TransientTransport is "retry with exponential backoff up to
// a bounded attempt count"; spec §4.1/§4.3/§4.5 apply the same rule to
// facility→validator, fog→leader, and TA→facility deliveries).
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// PostJSON POSTs body to url, retrying transient failures (a 5xx status
// or a transport error) with exponential backoff plus jitter, up to
// cfg.MaxAttempts. Any other response, 4xx included, is returned to the
// caller with a nil error. The final attempt's error is returned on
// total failure.
func PostJSON(ctx context.Context, client *http.Client, url string, body []byte, cfg RetryConfig) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(cfg.BaseDelay, attempt)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("post %s: %w", url, ctx.Err())
			case <-time.After(delay):
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("post %s: %w", url, err)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("%w: %v", ErrTransientTransport, err)
			continue
		}
		if resp.StatusCode >= 500 {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("%w: status %d", ErrTransientTransport, resp.StatusCode)
			continue
		}
		return resp, nil
	}
	return nil, lastErr
}

func backoffDelay(base time.Duration, attempt int) time.Duration {
	d := base << uint(attempt-1)
	jitter := time.Duration(rand.Int63n(int64(base) + 1))
	return d + jitter
}

// WorkerPool runs blocking CPU-bound jobs (signature verification,
// Lagrange reconstruction, averaging) off the accept loop, bounding
// concurrency to size (spec §5: "work that may block... runs on a
// worker pool to keep the accept loop responsive").
type WorkerPool struct {
	sem chan struct{}
}

// NewWorkerPool creates a pool allowing at most size concurrent jobs.
func NewWorkerPool(size int) *WorkerPool {
	if size < 1 {
		size = 1
	}
	return &WorkerPool{sem: make(chan struct{}, size)}
}

// Run executes fn on the pool, blocking until a slot is free or ctx is
// cancelled.
func (p *WorkerPool) Run(ctx context.Context, fn func() error) error {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-p.sem }()
	return fn()
}

// RunAll runs fns concurrently on the pool, returning the first error
// (if any) after all have completed, via errgroup.
func (p *WorkerPool) RunAll(ctx context.Context, fns ...func() error) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, fn := range fns {
		fn := fn
		g.Go(func() error {
			return p.Run(ctx, fn)
		})
	}
	return g.Wait()
}
