package resilience

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// HTTPClient calls an outbound API such as the payment provider with a
// per-attempt timeout, exponential retries and a circuit breaker.
//
// Only replayable requests are retried: safe methods, or writes that carry
// an Idempotency-Key header. Network errors, 429 and 5xx responses count as
// retryable; a Retry-After hint on 429/503 stretches the next wait.
type HTTPClient struct {
	Client      *http.Client
	Breaker     *Breaker
	Target      string
	BaseBackoff time.Duration
	MaxAttempts int
	Jitter      float64
	Timeout     time.Duration
}

// StatusError reports a retryable upstream status on the final attempt.
type StatusError struct {
	StatusCode int
	Status     string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("resilience: upstream responded %s", e.Status)
}

// Do sends req and returns the first non-retryable response. ErrOpenCircuit
// is returned without a network call while the breaker is open. A nil
// Breaker disables the circuit check.
func (cl HTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if cl.Client == nil {
		return nil, errors.New("resilience: http client not configured")
	}
	attempts := max(cl.MaxAttempts, 1)
	if !replayable(req) {
		attempts = 1
	}
	body, err := snapshotBody(req)
	if err != nil {
		return nil, err
	}

	hint := &hintedBackOff{next: cl.policy()}
	var resp *http.Response
	attempt := func() error {
		if cl.Breaker != nil && !cl.Breaker.Allow(ctx) {
			cl.count("rejected")
			return backoff.Permanent(ErrOpenCircuit)
		}
		out := req.Clone(ctx)
		if body != nil {
			out.Body = io.NopCloser(bytes.NewReader(body))
		}
		r, err := cl.send(ctx, out)
		if err != nil {
			cl.report(ctx, false)
			cl.count("error")
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		if !retryableStatus(r.StatusCode) {
			cl.report(ctx, true)
			cl.count("ok")
			resp = r
			return nil
		}
		// 429 counts as a success for the breaker
		cl.report(ctx, r.StatusCode == http.StatusTooManyRequests)
		cl.count("retryable_status")
		wait := retryAfter(r.Header.Get("Retry-After"))
		hint.after = wait
		_, _ = io.Copy(io.Discard, r.Body)
		_ = r.Body.Close()
		return &StatusError{StatusCode: r.StatusCode, Status: r.Status, RetryAfter: wait}
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(hint, uint64(attempts-1)), ctx)
	if err := backoff.Retry(attempt, policy); err != nil {
		return nil, err
	}
	return resp, nil
}

func (cl HTTPClient) policy() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if cl.BaseBackoff > 0 {
		b.InitialInterval = cl.BaseBackoff
	}
	if cl.Jitter >= 0 && cl.Jitter <= 1 {
		b.RandomizationFactor = cl.Jitter
	}
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func (cl HTTPClient) report(ctx context.Context, success bool) {
	if cl.Breaker != nil {
		cl.Breaker.Report(ctx, success)
	}
}

func (cl HTTPClient) count(outcome string) {
	target := cl.Target
	if target == "" {
		target = "default"
	}
	OutboundAttempts.WithLabelValues(target, outcome).Inc()
}

// send performs one attempt. The attempt timeout stays armed until the
// caller closes the response body.
func (cl HTTPClient) send(ctx context.Context, req *http.Request) (*http.Response, error) {
	if cl.Timeout <= 0 {
		return cl.Client.Do(req)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, cl.Timeout)
	resp, err := cl.Client.Do(req.WithContext(attemptCtx))
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

// hintedBackOff prefers an upstream Retry-After over the computed interval.
type hintedBackOff struct {
	next  backoff.BackOff
	after time.Duration
}

func (h *hintedBackOff) NextBackOff() time.Duration {
	d := h.next.NextBackOff()
	if d != backoff.Stop && h.after > d {
		d = h.after
	}
	h.after = 0
	return d
}

func (h *hintedBackOff) Reset() {
	h.after = 0
	h.next.Reset()
}

func replayable(req *http.Request) bool {
	switch req.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete:
		return true
	}
	return req.Header.Get("Idempotency-Key") != ""
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// retryAfter reads the delay-seconds form of Retry-After, capped at 30s.
func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return min(time.Duration(secs)*time.Second, 30*time.Second)
}

func snapshotBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("resilience: read request body: %w", err)
	}
	req.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}
