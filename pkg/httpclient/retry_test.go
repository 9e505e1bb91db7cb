package httpclient

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"
)

// stubTransport returns err from every round trip and counts calls.
type stubTransport struct {
	calls int32
	err   error
}

func (s *stubTransport) RoundTrip(*http.Request) (*http.Response, error) {
	atomic.AddInt32(&s.calls, 1)
	return nil, s.err
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func fastRetryConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryBackoff = 10 * time.Millisecond
	cfg.MaxBackoff = 50 * time.Millisecond
	return cfg
}

func TestRetryTransport_SuccessOnFirstAttempt(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	transport := newRetryTransport(http.DefaultTransport, fastRetryConfig())

	req, err := http.NewRequest("GET", server.URL, nil)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}

	resp, err := transport.RoundTrip(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

func TestRetryTransport_RetriesTransientStatus(t *testing.T) {
	for _, status := range []int{http.StatusInternalServerError, http.StatusBadGateway, http.StatusTooManyRequests, http.StatusRequestTimeout} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			var attempts int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if atomic.AddInt32(&attempts, 1) < 3 {
					w.WriteHeader(status)
					return
				}
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			transport := newRetryTransport(http.DefaultTransport, fastRetryConfig())
			req, _ := http.NewRequest("GET", server.URL, nil)

			resp, err := transport.RoundTrip(req)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				t.Errorf("expected status 200, got %d", resp.StatusCode)
			}
			if attempts != 3 {
				t.Errorf("expected 3 attempts, got %d", attempts)
			}
		})
	}
}

func TestRetryTransport_DoesNotRetryOn4xx(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			var attempts int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&attempts, 1)
				w.WriteHeader(status)
			}))
			defer server.Close()

			transport := newRetryTransport(http.DefaultTransport, fastRetryConfig())
			req, _ := http.NewRequest("GET", server.URL, nil)

			resp, err := transport.RoundTrip(req)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != status {
				t.Errorf("expected status %d, got %d", status, resp.StatusCode)
			}
			if attempts != 1 {
				t.Errorf("expected 1 attempt, got %d", attempts)
			}
		})
	}
}

func TestRetryTransport_MaxAttemptsExhausted(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, "maintenance")
	}))
	defer server.Close()

	cfg := fastRetryConfig()
	cfg.RetryAttempts = 3
	transport := newRetryTransport(http.DefaultTransport, cfg)

	req, _ := http.NewRequest("GET", server.URL, nil)
	resp, err := transport.RoundTrip(req)
	if err != nil {
		t.Fatalf("expected final response, got error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected final status 503, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "maintenance" {
		t.Errorf("expected last body to stay readable, got %q", body)
	}
	if attempts != 4 {
		t.Errorf("expected 4 attempts (1 + 3 retries), got %d", attempts)
	}
}

func TestRetryTransport_RespectsRetryAfterHeader(t *testing.T) {
	var attempts int32
	var lastAttemptTime time.Time
	var timeBetweenAttempts time.Duration

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempt := atomic.AddInt32(&attempts, 1)
		now := time.Now()
		if attempt > 1 {
			timeBetweenAttempts = now.Sub(lastAttemptTime)
		}
		lastAttemptTime = now

		if attempt < 2 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.RetryBackoff = 100 * time.Millisecond
	transport := newRetryTransport(http.DefaultTransport, cfg)

	req, _ := http.NewRequest("GET", server.URL, nil)
	resp, err := transport.RoundTrip(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	// The smaller of Retry-After (1s) and the computed backoff (~100ms) wins.
	if timeBetweenAttempts < 90*time.Millisecond || timeBetweenAttempts > 900*time.Millisecond {
		t.Errorf("expected ~100ms delay, got %v", timeBetweenAttempts)
	}
}

func TestRetryTransport_MethodPolicyOn5xx(t *testing.T) {
	tests := []struct {
		method           string
		expectedAttempts int32
	}{
		{"GET", 3},
		{"HEAD", 3},
		{"OPTIONS", 3},
		{"PUT", 3},
		{"DELETE", 3},
		{"POST", 1},
		{"PATCH", 1},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			var attempts int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&attempts, 1)
				w.WriteHeader(http.StatusInternalServerError)
			}))
			defer server.Close()

			cfg := fastRetryConfig()
			cfg.RetryAttempts = 2
			transport := newRetryTransport(http.DefaultTransport, cfg)

			req, _ := http.NewRequest(tt.method, server.URL, nil)
			resp, err := transport.RoundTrip(req)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			defer resp.Body.Close()

			if attempts != tt.expectedAttempts {
				t.Errorf("expected %d attempts for %s, got %d", tt.expectedAttempts, tt.method, attempts)
			}
		})
	}
}

func TestRetryTransport_PostRetriedOn429WithBodyReplay(t *testing.T) {
	var attempts int32
	var bodies []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(b))
		if atomic.AddInt32(&attempts, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	transport := newRetryTransport(http.DefaultTransport, fastRetryConfig())

	req, _ := http.NewRequest("POST", server.URL, strings.NewReader(`{"name":"wf"}`))
	resp, err := transport.RoundTrip(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Errorf("expected 201, got %d", resp.StatusCode)
	}
	if len(bodies) != 2 || bodies[0] != bodies[1] || bodies[1] != `{"name":"wf"}` {
		t.Errorf("expected identical replayed bodies, got %q", bodies)
	}
}

func TestRetryTransport_PostRetriedOnDialFailure(t *testing.T) {
	stub := &stubTransport{err: &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}}
	cfg := fastRetryConfig()
	cfg.RetryAttempts = 2
	transport := newRetryTransport(stub, cfg)

	req, _ := http.NewRequest("POST", "http://n8n.invalid/api/v1/workflows", strings.NewReader("{}"))
	_, err := transport.RoundTrip(req)
	if err == nil {
		t.Fatal("expected error")
	}
	if stub.calls != 3 {
		t.Errorf("expected 3 attempts for refused connection, got %d", stub.calls)
	}
}

func TestRetryTransport_PostNotRetriedOnTimeout(t *testing.T) {
	stub := &stubTransport{err: timeoutError{}}
	transport := newRetryTransport(stub, fastRetryConfig())

	req, _ := http.NewRequest("POST", "http://n8n.invalid/api/v1/workflows/1/execute", strings.NewReader("{}"))
	_, err := transport.RoundTrip(req)
	if err == nil {
		t.Fatal("expected error")
	}
	if stub.calls != 1 {
		t.Errorf("expected a single attempt for an ambiguous POST timeout, got %d", stub.calls)
	}
}

func TestRetryTransport_GetRetriedOnTimeout(t *testing.T) {
	stub := &stubTransport{err: timeoutError{}}
	cfg := fastRetryConfig()
	cfg.RetryAttempts = 1
	transport := newRetryTransport(stub, cfg)

	req, _ := http.NewRequest("GET", "http://n8n.invalid/api/v1/executions/1", nil)
	if _, err := transport.RoundTrip(req); err == nil {
		t.Fatal("expected error")
	}
	if stub.calls != 2 {
		t.Errorf("expected 2 attempts, got %d", stub.calls)
	}
}

func TestRetryTransport_AllowNonIdempotentRetry(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := fastRetryConfig()
	cfg.AllowNonIdempotentRetry = true
	transport := newRetryTransport(http.DefaultTransport, cfg)

	req, _ := http.NewRequest("POST", server.URL, nil)
	resp, err := transport.RoundTrip(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if attempts != 3 {
		t.Errorf("expected 3 attempts with AllowNonIdempotentRetry=true, got %d", attempts)
	}
}

func TestRetryTransport_ContextCancellation(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	transport := newRetryTransport(http.DefaultTransport, fastRetryConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, "GET", server.URL, nil)
	_, err := transport.RoundTrip(req)
	if err == nil {
		t.Fatal("expected error due to context cancellation")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded, got %v", err)
	}
	if atomic.LoadInt32(&attempts) > 1 {
		t.Errorf("expected 1 attempt, got %d", atomic.LoadInt32(&attempts))
	}
}

func TestCalculateBackoff(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RetryBackoff = 100 * time.Millisecond
	cfg.MaxBackoff = 10 * time.Second
	transport := newRetryTransport(http.DefaultTransport, cfg)

	tests := []struct {
		attempt     int
		minExpected time.Duration
		maxExpected time.Duration
	}{
		{1, 100 * time.Millisecond, 120 * time.Millisecond},
		{2, 200 * time.Millisecond, 240 * time.Millisecond},
		{3, 400 * time.Millisecond, 480 * time.Millisecond},
		{10, 10 * time.Second, 12 * time.Second},
	}

	for _, tt := range tests {
		backoff := transport.calculateBackoff(tt.attempt)
		if backoff < tt.minExpected || backoff > tt.maxExpected {
			t.Errorf("attempt %d: backoff %v not in range [%v, %v]",
				tt.attempt, backoff, tt.minExpected, tt.maxExpected)
		}
	}
}

func TestIsPreSendError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"dial op", &net.OpError{Op: "dial", Err: errors.New("refused")}, true},
		{"econnrefused", syscall.ECONNREFUSED, true},
		{"dns", &net.DNSError{Err: "no such host", Name: "n8n.invalid"}, true},
		{"read op", &net.OpError{Op: "read", Err: errors.New("reset")}, false},
		{"timeout", timeoutError{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isPreSendError(tt.err); got != tt.want {
				t.Errorf("isPreSendError() = %v, want %v", got, tt.want)
			}
		})
	}
}
