package client

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"media-proxy-go/internal/config"
	"media-proxy-go/internal/metrics"
)

func newTestClient(t *testing.T, maxSize int64, timeout time.Duration, m *metrics.Metrics) *UpstreamClient {
	t.Helper()
	cfg := &config.Config{
		Fetch: config.FetchConfig{
			TimeoutMillis:   timeout.Milliseconds(),
			UserAgent:       "media-proxy-test/1.0",
			MaxSize:         maxSize,
			IdleConnections: 10,
		},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewUpstreamClient(cfg, logger, m)
}

func TestUpstreamClient_Fetch(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "image/png")
		w.Header().Add("Content-Disposition", `inline; filename="a.png"`)
		_, _ = w.Write([]byte("payload"))
	}))
	defer srv.Close()

	c := newTestClient(t, 1024, 5*time.Second, nil)
	res, err := c.Fetch(context.Background(), srv.URL+"/a.png")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if string(res.Body) != "payload" {
		t.Errorf("body = %q, want %q", res.Body, "payload")
	}
	if res.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if ct := res.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q, want %q", ct, "image/png")
	}
	if gotUA != "media-proxy-test/1.0" {
		t.Errorf("User-Agent = %q, want %q", gotUA, "media-proxy-test/1.0")
	}
}

func TestUpstreamClient_Fetch_ExactlyAtLimit(t *testing.T) {
	body := bytes.Repeat([]byte("x"), 100)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	c := newTestClient(t, 100, 5*time.Second, nil)
	res, err := c.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(res.Body) != 100 {
		t.Errorf("len(body) = %d, want 100", len(res.Body))
	}
}

func TestUpstreamClient_Fetch_DeclaredLengthTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(4096))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(bytes.Repeat([]byte("x"), 4096))
	}))
	defer srv.Close()

	m := metrics.New()
	c := newTestClient(t, 1024, 5*time.Second, m)
	_, err := c.Fetch(context.Background(), srv.URL)
	if !errors.Is(err, ErrSizeExceeded) {
		t.Fatalf("Fetch() error = %v, want ErrSizeExceeded", err)
	}

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() != "media_proxy_fetch_failures_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if lp.GetName() == "reason" && lp.GetValue() == "size_exceeded" {
					found = true
				}
			}
		}
	}
	if !found {
		t.Error("expected media_proxy_fetch_failures_total{reason=size_exceeded}")
	}
}

func TestUpstreamClient_Fetch_StreamedTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// No Content-Length: flush in pieces so the response is chunked.
		w.Header().Set("Content-Type", "image/gif")
		flusher := w.(http.Flusher)
		for range 8 {
			_, _ = w.Write(bytes.Repeat([]byte("y"), 512))
			flusher.Flush()
		}
	}))
	defer srv.Close()

	c := newTestClient(t, 1024, 5*time.Second, nil)
	res, err := c.Fetch(context.Background(), srv.URL)
	if !errors.Is(err, ErrSizeExceeded) {
		t.Fatalf("Fetch() error = %v, want ErrSizeExceeded", err)
	}
	if res == nil {
		t.Fatal("Fetch() result = nil, want headers on size failure")
	}
	if res.Body != nil {
		t.Errorf("Body = %d bytes, want none", len(res.Body))
	}
	if ct := res.Header.Get("Content-Type"); ct != "image/gif" {
		t.Errorf("Content-Type = %q, want %q", ct, "image/gif")
	}
}

func TestUpstreamClient_Fetch_InvalidURL(t *testing.T) {
	c := newTestClient(t, 1024, time.Second, nil)

	for _, raw := range []string{"", "not a url", "/relative/path", "ftp://example.com/a.png", "http://"} {
		t.Run(raw, func(t *testing.T) {
			_, err := c.Fetch(context.Background(), raw)
			var fe *FetchError
			if !errors.As(err, &fe) {
				t.Fatalf("Fetch(%q) error = %v, want *FetchError", raw, err)
			}
			if fe.Stage != StageConnect {
				t.Errorf("Stage = %q, want %q", fe.Stage, StageConnect)
			}
		})
	}
}

func TestUpstreamClient_Fetch_Unreachable(t *testing.T) {
	c := newTestClient(t, 1024, time.Second, nil)

	_, err := c.Fetch(context.Background(), "http://127.0.0.1:1/nonexistent")
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Stage != StageConnect {
		t.Fatalf("Fetch() error = %v, want connect-stage *FetchError", err)
	}
}

func TestUpstreamClient_Fetch_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, 1024, 50*time.Millisecond, nil)
	_, err := c.Fetch(context.Background(), srv.URL)
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Stage != StageConnect {
		t.Fatalf("Fetch() error = %v, want connect-stage *FetchError", err)
	}
}

func TestUpstreamClient_Fetch_BodyInterrupted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// Promise more than is sent, then drop the connection.
		w.Header().Set("Content-Length", "1000")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("short"))
		w.(http.Flusher).Flush()
		conn, _, err := w.(http.Hijacker).Hijack()
		if err == nil {
			_ = conn.Close()
		}
	}))
	defer srv.Close()

	c := newTestClient(t, 4096, 5*time.Second, nil)
	_, err := c.Fetch(context.Background(), srv.URL)
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("Fetch() error = %v, want *FetchError", err)
	}
	if fe.Stage != StageBody {
		t.Errorf("Stage = %q, want %q", fe.Stage, StageBody)
	}
}

func TestUpstreamClient_Fetch_CanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(5 * time.Second):
		case <-r.Context().Done():
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, 1024, 30*time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately

	_, err := c.Fetch(ctx, srv.URL+"/slow")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Fetch() error = %v, want context.Canceled", err)
	}
}
