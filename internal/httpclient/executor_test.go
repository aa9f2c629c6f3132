package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Checker-Finance/marketplace-ledger/internal/rate"
)

func newExec(retryMax int, client *http.Client) *Executor {
	e := New(zap.NewNop(), nil, client, retryMax, "test", nil)
	e.sleep = func(context.Context, time.Duration) error { return nil }
	return e
}

// countingHandler fails the first failCount calls with failStatus, then returns 200 with body.
func countingHandler(failCount int, failStatus int, successBody []byte) (http.Handler, *atomic.Int32) {
	var n atomic.Int32
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if int(n.Add(1)) <= failCount {
			w.WriteHeader(failStatus)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(successBody)
	}), &n
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, 100*time.Millisecond, Backoff(0))
	assert.Equal(t, 250*time.Millisecond, Backoff(1))
	assert.Equal(t, 500*time.Millisecond, Backoff(7))
}

func TestDoJSON_SuccessFirstAttempt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"result": "ok"})
	}))
	defer srv.Close()

	exec := newExec(2, srv.Client())
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)

	var out map[string]string
	require.NoError(t, exec.DoJSON(context.Background(), req, "k", &out))
	assert.Equal(t, "ok", out["result"])
}

func TestDoJSON_Retries5xxThenSucceeds(t *testing.T) {
	h, count := countingHandler(2, http.StatusBadGateway, []byte(`{"v":1}`))
	srv := httptest.NewServer(h)
	defer srv.Close()

	exec := newExec(2, srv.Client())
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)

	var out map[string]int
	require.NoError(t, exec.DoJSON(context.Background(), req, "k", &out))
	assert.EqualValues(t, 3, count.Load())
	assert.Equal(t, 1, out["v"])
}

func TestDoJSON_PostBodyResentOnRetry(t *testing.T) {
	var received []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		received = append(received, string(b))
		if len(received) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("{}"))
	}))
	defer srv.Close()

	exec := newExec(1, srv.Client())
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodPost, srv.URL, bytes.NewReader([]byte(`{"amount":"2.00"}`)))
	req.Header.Set("Content-Type", "application/json")

	require.NoError(t, exec.DoJSON(context.Background(), req, "k", nil))
	require.Len(t, received, 2)
	assert.JSONEq(t, `{"amount":"2.00"}`, received[1], "retry must re-send the full body")
}

func TestDoJSON_4xxNotRetried(t *testing.T) {
	var count atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		count.Add(1)
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"reason":"duplicate"}`))
	}))
	defer srv.Close()

	exec := newExec(2, srv.Client())
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)

	err := exec.DoJSON(context.Background(), req, "k", nil)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusConflict, se.Status)
	assert.JSONEq(t, `{"reason":"duplicate"}`, string(se.Body))
	assert.EqualValues(t, 1, count.Load(), "4xx must not be retried")
}

func TestDoJSON_ExhaustAllRetries(t *testing.T) {
	var count atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		count.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	exec := newExec(2, srv.Client())
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)

	err := exec.DoJSON(context.Background(), req, "k", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 3 attempts")
	assert.EqualValues(t, 3, count.Load(), "retryMax=2 means 3 total attempts")
}

func TestDoJSON_CustomErrorHandlerCalled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"code":"INVALID"}`))
	}))
	defer srv.Close()

	exec := New(zap.NewNop(), nil, srv.Client(), 2, "test", func(status int, body []byte) error {
		return fmt.Errorf("provider %d: %s", status, body)
	})
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodPost, srv.URL, nil)

	err := exec.DoJSON(context.Background(), req, "k", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
	assert.Contains(t, err.Error(), "INVALID")
}

func TestDoJSON_DecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not-json"))
	}))
	defer srv.Close()

	exec := newExec(0, srv.Client())
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)

	var out map[string]string
	err := exec.DoJSON(context.Background(), req, "k", &out)
	assert.ErrorContains(t, err, "decode failed")
}

func TestDoJSON_RateLimitWaitHonoursContext(t *testing.T) {
	mgr := rate.NewManager(rate.Config{RequestsPerSecond: 0, Burst: 1})
	mgr.GetLimiter("k").Allow()

	exec := New(zap.NewNop(), mgr, http.DefaultClient, 0, "test", nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, "http://127.0.0.1:1", nil)
	err := exec.DoJSON(ctx, req, "k", nil)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Contains(t, err.Error(), "rate limit wait")
}
