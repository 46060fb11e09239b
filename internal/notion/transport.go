package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/agentworkforce/pagesync/internal/metrics"
)

// Logger is the minimal logging capability accepted by transport-level
// components. A nil Logger disables output.
type Logger interface {
	Printf(format string, args ...any)
}

type TransportOptions struct {
	BaseURL     string
	Token       string
	APIVersion  string
	UserAgent   string
	HTTPClient  *http.Client
	RateLimit   float64 // requests per second
	RateBurst   int
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      bool
	Logger      Logger
	Metrics     metrics.Hook
}

// Transport issues every remote call made by pagesync: it acquires a
// rate-limiter slot, sends the request, and applies the retry policy.
// The diff executor and the upload orchestrator share one instance so all
// traffic is paced by the same bucket.
type Transport struct {
	baseURL     string
	token       string
	apiVersion  string
	userAgent   string
	httpClient  *http.Client
	bucket      *TokenBucket
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	jitter      bool
	logger      Logger
	metrics     metrics.Hook
}

func NewTransport(opts TransportOptions) (*Transport, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.notion.com/v1"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	apiVersion := strings.TrimSpace(opts.APIVersion)
	if apiVersion == "" {
		apiVersion = "2022-06-28"
	}
	rate := opts.RateLimit
	if rate <= 0 {
		rate = 3
	}
	burst := opts.RateBurst
	if burst <= 0 {
		burst = 10
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 4
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 200 * time.Millisecond
	}
	maxDelay := opts.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}
	bucket, err := NewTokenBucket(rate, burst)
	if err != nil {
		return nil, err
	}
	return &Transport{
		baseURL:     baseURL,
		token:       strings.TrimSpace(opts.Token),
		apiVersion:  apiVersion,
		userAgent:   strings.TrimSpace(opts.UserAgent),
		httpClient:  httpClient,
		bucket:      bucket,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
		jitter:      opts.Jitter,
		logger:      opts.Logger,
		metrics:     metrics.OrNoop(opts.Metrics),
	}, nil
}

// DoJSON executes method on path (relative to the base URL) with an optional
// JSON body, decoding a 2xx response into out when out is non-nil.
func (t *Transport) DoJSON(ctx context.Context, method, path string, body any, out any) error {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}
	payload, err := t.do(ctx, method, t.baseURL+path, path, bodyBytes, "application/json")
	if err != nil {
		return err
	}
	if out == nil || len(payload) == 0 {
		return nil
	}
	return json.Unmarshal(payload, out)
}

// DoRaw sends raw bytes to an absolute URL. Used for upload-part transfers,
// which target pre-signed URLs outside the API base. The call still goes
// through the shared bucket and retry policy.
func (t *Transport) DoRaw(ctx context.Context, method, url string, data []byte, contentType string) (json.RawMessage, error) {
	return t.do(ctx, method, url, url, data, contentType)
}

func (t *Transport) do(ctx context.Context, method, url, path string, body []byte, contentType string) (json.RawMessage, error) {
	var lastErr error
	lastStatus := 0
	attempts := 0

	for attempt := 0; attempt < t.maxAttempts; attempt++ {
		attempts = attempt + 1
		wait, err := t.bucket.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		if wait > 0 {
			t.metrics.Timing("pagesync.rate_limit_wait_ms", float64(wait.Milliseconds()), map[string]string{"method": method, "path": path})
		}

		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
		if err != nil {
			return nil, err
		}
		if t.token != "" {
			req.Header.Set("Authorization", "Bearer "+t.token)
		}
		req.Header.Set("Notion-Version", t.apiVersion)
		if body != nil {
			req.Header.Set("Content-Type", contentType)
		}
		if t.userAgent != "" {
			req.Header.Set("User-Agent", t.userAgent)
		}

		t0 := time.Now()
		resp, err := t.httpClient.Do(req)
		if err != nil {
			lastErr = err
			lastStatus = 0
			t.metrics.Increment("pagesync.requests_total", 1, map[string]string{"method": method, "path": path, "status": "error"})
			if !ShouldRetry(0, err, attempt, t.maxAttempts) {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				break
			}
			delay := Backoff(attempt, t.baseDelay, t.maxDelay, t.jitter, 0)
			t.logf("network error on %s %s (attempt %d): %v", method, path, attempt+1, err)
			t.metrics.Increment("pagesync.retries_total", 1, map[string]string{"method": method, "path": path, "reason": "network_error"})
			if waitErr := waitWithContext(ctx, delay); waitErr != nil {
				return nil, waitErr
			}
			continue
		}

		payload, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, readErr
		}
		lastStatus = resp.StatusCode
		lastErr = nil
		t.metrics.Increment("pagesync.requests_total", 1, map[string]string{"method": method, "path": path, "status": fmt.Sprintf("%d", resp.StatusCode)})
		t.metrics.Timing("pagesync.request_duration_ms", float64(time.Since(t0).Milliseconds()), map[string]string{"method": method, "path": path})

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			return payload, nil
		}

		if retryableStatuses[resp.StatusCode] {
			if !ShouldRetry(resp.StatusCode, nil, attempt, t.maxAttempts) {
				break
			}
			retryAfter := time.Duration(0)
			reason := "server_error"
			if resp.StatusCode == http.StatusTooManyRequests {
				retryAfter = ParseRetryAfter(resp.Header.Get("Retry-After"))
				reason = "rate_limited"
				t.metrics.Increment("pagesync.rate_limited_total", 1, map[string]string{"method": method, "path": path})
				t.logf("rate limited on %s %s (attempt %d, retry-after %s)", method, path, attempt+1, retryAfter)
			}
			delay := Backoff(attempt, t.baseDelay, t.maxDelay, t.jitter, retryAfter)
			t.metrics.Increment("pagesync.retries_total", 1, map[string]string{"method": method, "path": path, "reason": reason})
			if waitErr := waitWithContext(ctx, delay); waitErr != nil {
				return nil, waitErr
			}
			continue
		}

		return nil, decodeClientError(resp.StatusCode, path, payload)
	}

	return nil, &RetryExhaustedError{
		Attempts:   attempts,
		LastStatus: lastStatus,
		LastErr:    lastErr,
	}
}

func decodeClientError(status int, path string, payload []byte) error {
	var errPayload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(payload, &errPayload)
	if errPayload.Message == "" {
		errPayload.Message = strings.TrimSpace(string(payload))
		if len(errPayload.Message) > 500 {
			errPayload.Message = errPayload.Message[:500]
		}
	}
	if status == http.StatusConflict {
		return &ConflictError{Path: path}
	}
	return &APIError{
		StatusCode: status,
		Code:       errPayload.Code,
		Message:    errPayload.Message,
	}
}

func (t *Transport) logf(format string, args ...any) {
	if t.logger == nil {
		return
	}
	t.logger.Printf(format, args...)
}
