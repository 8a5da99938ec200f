package httpds

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"fuelimport/internal/datasource"
)

// noWait records backoff intervals instead of sleeping.
func noWait(got *[]time.Duration) func(context.Context, time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*got = append(*got, d)
		return ctx.Err()
	}
}

func TestNewClient_Defaults(t *testing.T) {
	t.Parallel()
	c := NewClient(Config{InsecureSkipVerify: true, MaxRetries: -1})
	if c.httpClient.Timeout != 60*time.Second || c.maxRetries != 0 {
		t.Fatalf("defaults got timeout=%v retries=%d", c.httpClient.Timeout, c.maxRetries)
	}
	tr, ok := c.httpClient.Transport.(*http.Transport)
	if !ok || tr.TLSClientConfig == nil || !tr.TLSClientConfig.InsecureSkipVerify {
		t.Fatalf("expected insecure TLS transport, got %T", c.httpClient.Transport)
	}
}

func TestGet_RetriesThenSucceeds(t *testing.T) {
	t.Parallel()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer t" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, "Placa,Data\n")
	}))
	defer srv.Close()

	c := NewClient(Config{MaxRetries: 3, InitialBackoff: 10 * time.Millisecond, Headers: http.Header{"Authorization": {"Bearer t"}}})
	var waits []time.Duration
	c.wait = noWait(&waits)

	b, err := datasource.ReadAll(context.Background(), NewRemote(c, srv.URL), 0)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(b) != "Placa,Data\n" {
		t.Fatalf("body got=%q", b)
	}
	if atomic.LoadInt32(&hits) != 3 || len(waits) != 2 || waits[0] != 10*time.Millisecond || waits[1] != 20*time.Millisecond {
		t.Fatalf("hits=%d waits=%v", hits, waits)
	}
}

func TestGet_StopsAfterMaxRetries(t *testing.T) {
	t.Parallel()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(Config{MaxRetries: 2})
	var waits []time.Duration
	c.wait = noWait(&waits)
	if _, err := c.Get(context.Background(), srv.URL); err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected retryable status error, got %v", err)
	}
	if atomic.LoadInt32(&hits) != 3 || len(waits) != 2 {
		t.Fatalf("hits=%d waits=%d", hits, len(waits))
	}
}

func TestGet_NonRetryableStatus(t *testing.T) {
	t.Parallel()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewClient(Config{MaxRetries: 5})
	c.wait = noWait(new([]time.Duration))
	if _, err := NewRemote(c, srv.URL).Open(context.Background()); err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected 404 error, got %v", err)
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("404 must not be retried, hits=%d", hits)
	}
}

func TestGet_Validation(t *testing.T) {
	t.Parallel()
	c := NewClient(Config{})
	if _, err := c.Get(context.Background(), ""); err == nil {
		t.Fatalf("empty url must fail")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Get(ctx, "http://example.invalid"); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestCustomTransport(t *testing.T) {
	t.Parallel()
	c := NewClient(Config{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader("ok")), Request: r}, nil
	})})
	resp, err := c.Get(context.Background(), "http://fleet.local/export.csv")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()
	if b, _ := io.ReadAll(resp.Body); string(b) != "ok" {
		t.Fatalf("body got=%q", b)
	}
}

func TestBackoffDuration(t *testing.T) {
	t.Parallel()
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{-1, 100 * time.Millisecond},
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, time.Second},
		{40, time.Second},
	}
	for _, c := range cases {
		if got := backoffDuration(100*time.Millisecond, c.attempt, time.Second); got != c.want {
			t.Fatalf("attempt %d got=%v want %v", c.attempt, got, c.want)
		}
	}
}

func TestIsRetryableStatus(t *testing.T) {
	t.Parallel()
	for code, want := range map[int]bool{200: false, 404: false, 429: true, 500: true, 503: true, 599: true, 600: false} {
		if got := isRetryableStatus(code); got != want {
			t.Fatalf("status %d got=%v want %v", code, got, want)
		}
	}
}

func TestWaitContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if err := waitContext(ctx, time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatalf("wait did not abort early")
	}
	if err := waitContext(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("wait: %v", err)
	}
}
