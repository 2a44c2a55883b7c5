package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	clierr "github.com/ggonzalez94/tokenmetrics-cli/internal/errors"
)

func newRecordingClient(maxRetries int) (*Client, *[]time.Duration) {
	client := New(2*time.Second, maxRetries, nil)
	delays := []time.Duration{}
	client.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return client, &delays
}

func statusServer(t *testing.T, status int, body string, count *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(count, 1)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDoJSONRetriesServerError(t *testing.T) {
	var count int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&count, 1)
		if n == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"x"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client, delays := newRecordingClient(3)
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	var out map[string]any
	if _, err := client.DoJSON(context.Background(), req, &out); err != nil {
		t.Fatalf("DoJSON failed: %v", err)
	}
	if out["ok"] != true {
		t.Fatalf("unexpected response: %#v", out)
	}
	if !reflect.DeepEqual(*delays, []time.Duration{time.Second}) {
		t.Fatalf("unexpected delays: %v", *delays)
	}
}

func TestDoSucceedsOnFirstAttempt(t *testing.T) {
	var count int32
	srv := statusServer(t, http.StatusOK, `[]`, &count)
	client, delays := newRecordingClient(5)

	resp, err := Get(context.Background(), client, srv.URL, nil)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK || string(resp.Body) != "[]" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if count != 1 || len(*delays) != 0 {
		t.Fatalf("expected one attempt without delay, got attempts=%d delays=%v", count, *delays)
	}
}

func TestDoUnauthorizedFailsFast(t *testing.T) {
	var count int32
	srv := statusServer(t, http.StatusUnauthorized, `{"message":"bad key"}`, &count)
	client, delays := newRecordingClient(3)

	_, err := Get(context.Background(), client, srv.URL, nil)
	if err == nil {
		t.Fatal("expected auth error")
	}
	if code := clierr.ExitCode(err); code != int(clierr.CodeAuth) {
		t.Fatalf("expected auth code, got %d (%v)", code, err)
	}
	if count != 1 || len(*delays) != 0 {
		t.Fatalf("expected a single attempt without delay, got attempts=%d delays=%v", count, *delays)
	}
}

func TestDoRateLimitedExhaustsWithLinearBackoff(t *testing.T) {
	var count int32
	srv := statusServer(t, http.StatusTooManyRequests, `slow down`, &count)
	client, delays := newRecordingClient(3)

	_, err := Get(context.Background(), client, srv.URL, nil)
	if code := clierr.ExitCode(err); code != int(clierr.CodeExhausted) {
		t.Fatalf("expected exhausted code, got %d (%v)", code, err)
	}
	if !clierr.HasCode(err, clierr.CodeRateLimited) {
		t.Fatalf("expected rate limited cause, got %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 attempts, got %d", count)
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if !reflect.DeepEqual(*delays, want) {
		t.Fatalf("unexpected delays: got %v want %v", *delays, want)
	}
}

func TestDoServerErrorsExhaustWithLinearBackoff(t *testing.T) {
	for _, status := range []int{500, 502, 503, 599} {
		var count int32
		srv := statusServer(t, status, `oops`, &count)
		client, delays := newRecordingClient(4)

		_, err := Get(context.Background(), client, srv.URL, nil)
		if code := clierr.ExitCode(err); code != int(clierr.CodeExhausted) {
			t.Fatalf("status %d: expected exhausted code, got %d (%v)", status, code, err)
		}
		if !clierr.HasCode(err, clierr.CodeUnavailable) {
			t.Fatalf("status %d: expected unavailable cause, got %v", status, err)
		}
		if count != 4 {
			t.Fatalf("status %d: expected 4 attempts, got %d", status, count)
		}
		want := []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}
		if !reflect.DeepEqual(*delays, want) {
			t.Fatalf("status %d: unexpected delays: got %v want %v", status, *delays, want)
		}
	}
}

func TestDoClientErrorIsNotRetried(t *testing.T) {
	var count int32
	srv := statusServer(t, http.StatusNotFound, `no such endpoint`, &count)
	client, delays := newRecordingClient(3)

	_, err := Get(context.Background(), client, srv.URL, nil)
	cErr, ok := clierr.As(err)
	if !ok || cErr.Code != clierr.CodeUpstream {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if cErr.HTTPStatus != http.StatusNotFound || cErr.Body != "no such endpoint" {
		t.Fatalf("expected status and body on error, got %+v", cErr)
	}
	if count != 1 || len(*delays) != 0 {
		t.Fatalf("expected single attempt, got attempts=%d delays=%v", count, *delays)
	}
}

func TestDoTransportFailureUsesExponentialBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	client, delays := newRecordingClient(4)
	_, err := Get(context.Background(), client, url, nil)
	if code := clierr.ExitCode(err); code != int(clierr.CodeExhausted) {
		t.Fatalf("expected exhausted code, got %d (%v)", code, err)
	}
	if !clierr.HasCode(err, clierr.CodeTransport) {
		t.Fatalf("expected transport cause, got %v", err)
	}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if !reflect.DeepEqual(*delays, want) {
		t.Fatalf("unexpected delays: got %v want %v", *delays, want)
	}
}

func TestDoAttemptTimeoutIsRetried(t *testing.T) {
	var count int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&count, 1) == 1 {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client, delays := newRecordingClient(2)
	client.attemptTimeout = 50 * time.Millisecond
	resp, err := Get(context.Background(), client, srv.URL, nil)
	if err != nil {
		t.Fatalf("expected success after timeout retry, got %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	if !reflect.DeepEqual(*delays, []time.Duration{time.Second}) {
		t.Fatalf("unexpected delays: %v", *delays)
	}
}

func TestDoStopsWhenContextCancelled(t *testing.T) {
	var count int32
	srv := statusServer(t, http.StatusServiceUnavailable, ``, &count)
	client := New(time.Second, 3, nil)

	ctx, cancel := context.WithCancel(context.Background())
	client.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}
	_, err := Get(ctx, client, srv.URL, nil)
	if code := clierr.ExitCode(err); code != int(clierr.CodeTransport) {
		t.Fatalf("expected transport code on cancellation, got %d (%v)", code, err)
	}
	if count != 1 {
		t.Fatalf("expected one attempt before cancellation, got %d", count)
	}
}

func TestGetSetsHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "k" {
			t.Errorf("missing api key header")
		}
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("unexpected accept header %q", r.Header.Get("Accept"))
		}
		if r.Header.Get("User-Agent") == "" {
			t.Errorf("missing user agent")
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client, _ := newRecordingClient(1)
	if _, err := Get(context.Background(), client, srv.URL, map[string]string{"x-api-key": "k"}); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
}

func TestNewClampsAttempts(t *testing.T) {
	if got := New(0, 0, nil).MaxAttempts(); got != 1 {
		t.Fatalf("expected at least one attempt, got %d", got)
	}
}
