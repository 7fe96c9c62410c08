// Package client provides the bounded upstream HTTP fetcher.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/miolini/datacounter"

	"media-proxy-go/internal/config"
	"media-proxy-go/internal/metrics"
	"media-proxy-go/internal/model"
)

const (
	// defaultSizeHint is used when upstream does not declare a Content-Length.
	defaultSizeHint = 2048
	// maxPrealloc bounds the buffer allocated up front from a declared length.
	maxPrealloc = 4 << 20
	chunkSize   = 32 << 10
)

// ErrSizeExceeded is returned when the declared or received body size is
// larger than the configured maximum.
var ErrSizeExceeded = errors.New("upstream response exceeds size limit")

// Stage identifies where an upstream fetch failed.
type Stage string

const (
	// StageConnect covers URL validation, dialing, and waiting for headers.
	StageConnect Stage = "connect"
	// StageBody covers streaming the response body.
	StageBody Stage = "body"
)

// FetchError is an upstream transport failure. It is never retried.
type FetchError struct {
	Stage Stage
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Stage, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// UpstreamClient retrieves remote media under a byte cap and a time cap.
type UpstreamClient struct {
	httpClient *http.Client
	userAgent  string
	maxSize    int64
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewUpstreamClient creates an UpstreamClient with connection pooling and timeouts.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
func NewUpstreamClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *UpstreamClient {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.Fetch.IdleConnections,
		MaxIdleConnsPerHost: cfg.Fetch.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &UpstreamClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.Fetch.Timeout(),
		},
		userAgent: cfg.Fetch.UserAgent,
		maxSize:   cfg.Fetch.MaxSize,
		logger:    logger.With("component", "upstream_client"),
		metrics:   m,
	}
}

// Fetch downloads rawURL into memory. The provided context controls the
// lifetime of the upstream request: when it is canceled (e.g. the caller
// disconnects), the fetch is aborted and the partial buffer released.
//
// The returned error is either ErrSizeExceeded (possibly wrapped) or a *FetchError.
// Once response headers have arrived, a failed fetch still returns a result
// carrying the status and headers but no body.
func (c *UpstreamClient) Fetch(ctx context.Context, rawURL string) (*model.FetchResult, error) {
	u, err := parseRemoteURL(rawURL)
	if err != nil {
		return nil, &FetchError{Stage: StageConnect, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return nil, &FetchError{Stage: StageConnect, Err: err}
	}
	req.Header.Set("User-Agent", c.userAgent)

	c.logger.Debug("upstream request", "url", u.Redacted())

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if c.metrics != nil {
		c.metrics.UpstreamDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		c.recordFailure("connect")
		return nil, &FetchError{Stage: StageConnect, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if c.metrics != nil {
		c.metrics.UpstreamResponses.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
	}

	res := &model.FetchResult{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
	}

	hint := resp.ContentLength
	if hint < 0 {
		hint = min(defaultSizeHint, c.maxSize)
	}
	if hint > c.maxSize {
		c.recordFailure("size_exceeded")
		return res, fmt.Errorf("%w: declared %d bytes, limit %d", ErrSizeExceeded, hint, c.maxSize)
	}

	body, err := c.readBody(resp.Body, hint)
	if err != nil {
		if errors.Is(err, ErrSizeExceeded) {
			c.recordFailure("size_exceeded")
		} else {
			c.recordFailure("body")
		}
		return res, err
	}

	if c.metrics != nil {
		c.metrics.UpstreamBytes.Observe(float64(len(body)))
	}

	res.Body = body
	return res, nil
}

// readBody streams r in chunks, failing as soon as the running total passes
// the size limit. The buffer never holds more than maxSize bytes.
func (c *UpstreamClient) readBody(r io.Reader, hint int64) ([]byte, error) {
	counter := datacounter.NewReaderCounter(r)
	buf := bytes.NewBuffer(make([]byte, 0, min(hint, maxPrealloc)))
	chunk := make([]byte, chunkSize)

	for {
		n, err := counter.Read(chunk)
		if total := counter.Count(); total > uint64(c.maxSize) {
			return nil, fmt.Errorf("%w: received %d bytes, limit %d", ErrSizeExceeded, total, c.maxSize)
		}
		buf.Write(chunk[:n])

		if errors.Is(err, io.EOF) {
			return buf.Bytes(), nil
		}
		if err != nil {
			return nil, &FetchError{Stage: StageBody, Err: err}
		}
	}
}

func (c *UpstreamClient) recordFailure(reason string) {
	if c.metrics != nil {
		c.metrics.FetchFailures.WithLabelValues(reason).Inc()
	}
}

// parseRemoteURL accepts only absolute http(s) URLs with a host.
func parseRemoteURL(rawURL string) (*url.URL, error) {
	if rawURL == "" {
		return nil, errors.New("empty url")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("url %q is not absolute", rawURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	return u, nil
}
