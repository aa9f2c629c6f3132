package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/marketplace-ledger/internal/metrics"
	"github.com/Checker-Finance/marketplace-ledger/internal/rate"
)

// Backoff returns the retry sleep duration for the given attempt number.
func Backoff(attempt int) time.Duration {
	switch attempt {
	case 0:
		return 100 * time.Millisecond
	case 1:
		return 250 * time.Millisecond
	default:
		return 500 * time.Millisecond
	}
}

// StatusError is returned for 4xx responses when no error handler is configured.
type StatusError struct {
	Target string
	Status int
	Body   []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned %d", e.Target, e.Status)
}

// Executor handles rate-limited, retrying HTTP execution with JSON decoding.
// Requests are retried on transport errors and 5xx responses, so callers must
// make them idempotent (e.g. with an idempotency key header).
type Executor struct {
	logger       *zap.Logger
	rateMgr      *rate.Manager
	http         *http.Client
	retryMax     int
	target       string
	errorHandler func(status int, body []byte) error
	sleep        func(ctx context.Context, d time.Duration) error
}

// New creates an Executor. errorHandler is called on 4xx failure responses to produce a
// target-specific error. If nil, a *StatusError is returned.
func New(
	logger *zap.Logger,
	rateMgr *rate.Manager,
	httpClient *http.Client,
	retryMax int,
	target string,
	errorHandler func(status int, body []byte) error,
) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Executor{
		logger:       logger,
		rateMgr:      rateMgr,
		http:         httpClient,
		retryMax:     retryMax,
		target:       target,
		errorHandler: errorHandler,
		sleep:        sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DoJSON executes req with rate limiting and retries, then JSON-decodes the response into out.
// rateLimitKey scopes the rate limiter.
func (e *Executor) DoJSON(ctx context.Context, req *http.Request, rateLimitKey string, out any) error {
	if e.rateMgr != nil {
		if err := e.rateMgr.Wait(ctx, rateLimitKey); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	endpoint := req.URL.Path
	var lastErr error
	for attempt := 0; attempt <= e.retryMax; attempt++ {
		if attempt > 0 {
			if err := e.sleep(ctx, Backoff(attempt-1)); err != nil {
				return fmt.Errorf("%s retry aborted: %w", e.target, err)
			}
			if err := rewind(req); err != nil {
				return err
			}
		}

		status, body, err := e.roundTrip(ctx, req)
		if err != nil {
			lastErr = err
			metrics.IncOutboundRequest(e.target, endpoint, req.Method, "transport_error")
			e.logger.Warn(e.target+".http_failed",
				zap.String("url", req.URL.String()),
				zap.Error(err),
				zap.Int("attempt", attempt))
			continue
		}
		metrics.IncOutboundRequest(e.target, endpoint, req.Method, strconv.Itoa(status))

		if status >= 500 {
			e.logger.Warn(e.target+".server_error",
				zap.Int("status", status),
				zap.String("url", req.URL.String()),
				zap.Int("attempt", attempt))
			lastErr = fmt.Errorf("%s server error: %d", e.target, status)
			continue
		}

		if status >= 400 {
			if e.errorHandler != nil {
				return e.errorHandler(status, body)
			}
			return &StatusError{Target: e.target, Status: status, Body: body}
		}

		if out != nil && len(body) > 0 {
			if err := json.Unmarshal(body, out); err != nil {
				e.logger.Warn(e.target+".decode_failed",
					zap.Error(err),
					zap.String("url", req.URL.String()))
				return fmt.Errorf("decode failed: %w", err)
			}
		}

		e.logger.Debug(e.target+".http_success",
			zap.String("url", req.URL.String()),
			zap.Int("status", status))
		return nil
	}

	return fmt.Errorf("%s request failed after %d attempts: %w", e.target, e.retryMax+1, lastErr)
}

func (e *Executor) roundTrip(ctx context.Context, req *http.Request) (int, []byte, error) {
	start := time.Now()
	defer metrics.ObserveDuration(metrics.OutboundRequestDuration, start, e.target, req.URL.Path, req.Method)

	resp, err := e.http.Do(req.WithContext(ctx))
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read body: %w", err)
	}
	return resp.StatusCode, body, nil
}

// rewind restores a consumed request body before a retry.
func rewind(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody {
		return nil
	}
	if req.GetBody == nil {
		return fmt.Errorf("request body cannot be replayed for retry")
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Errorf("rewind body: %w", err)
	}
	req.Body = body
	return nil
}
