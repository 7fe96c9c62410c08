// Package service runs the media pipeline: fetch, sniff, route, encode and
// response assembly.
package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"media-proxy-go/internal/metrics"
	"media-proxy-go/internal/model"
	"media-proxy-go/internal/sniff"
	"media-proxy-go/internal/transcode"
)

// ErrMissingURL is returned when the request carries no url parameter.
var ErrMissingURL = errors.New("missing url query parameter")

// Fetcher retrieves a remote resource under the configured limits. A failure
// after the response headers arrived may come with a bodyless result.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*model.FetchResult, error)
}

// MediaService turns a remote URL into a response envelope.
type MediaService struct {
	fetcher    Fetcher
	transcoder *transcode.Transcoder
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewMediaService creates a MediaService. The metrics parameter is optional.
func NewMediaService(f Fetcher, t *transcode.Transcoder, logger *slog.Logger, m *metrics.Metrics) *MediaService {
	return &MediaService{
		fetcher:    f,
		transcoder: t,
		logger:     logger.With("component", "media_service"),
		metrics:    m,
	}
}

// Process runs the whole pipeline for one request. Soft codec failures are
// folded into the returned envelope with status 200. Hard failures return an
// error together with an envelope carrying the headers assembled so far; the
// caller decides the status and body.
func (s *MediaService) Process(ctx context.Context, params model.RequestParams) (*model.Envelope, error) {
	env := newEnvelope(params.URL)
	if params.URL == "" {
		return env, ErrMissingURL
	}

	res, err := s.fetcher.Fetch(ctx, params.URL)
	if res != nil {
		forward(env, res.Header)
	}
	if err != nil {
		return env, err
	}

	format := sniff.Detect(res.Body)
	decision := s.transcoder.Route(format, res.Body, params.Static)
	if decision.Fallback != nil {
		s.logger.Debug("animated container fell back to static",
			"url", params.URL,
			"format", format.String(),
			"err", decision.Fallback,
		)
	}

	switch decision.Kind {
	case transcode.Animated:
		return s.encodeAnimated(env, params.URL, res.Body, decision.Animation)
	case transcode.Static:
		return s.encodeStatic(env, params.URL, res.Body), nil
	default:
		s.logger.Debug("passing through unrecognized payload", "url", params.URL, "bytes", len(res.Body))
		s.recordOutcome("passthrough")
		passThrough(env, res.Body, HeaderCodecError, diagUnsupportedFormat)
		return env, nil
	}
}

func (s *MediaService) encodeStatic(env *model.Envelope, remoteURL string, body []byte) *model.Envelope {
	start := time.Now()
	out, err := s.transcoder.EncodeStatic(body)
	s.observe(transcode.Static, start)

	if err != nil {
		var ce *transcode.CodecError
		if !errors.As(err, &ce) {
			ce = &transcode.CodecError{Kind: transcode.EncodeError, Err: err}
		}
		s.logger.Warn("static transcode degraded",
			"url", remoteURL,
			"kind", string(ce.Kind),
			"err", ce.Err,
		)
		s.recordOutcome(outcomeFor(ce.Kind))
		passThrough(env, body, HeaderProxyError, codecDiagnostic(ce))
		return env
	}

	s.recordOutcome("static")
	transcoded(env, out)
	return env
}

func (s *MediaService) encodeAnimated(env *model.Envelope, remoteURL string, body []byte, anim *transcode.Animation) (*model.Envelope, error) {
	start := time.Now()
	out, err := s.transcoder.EncodeAnimated(anim.Width, anim.Height, anim.Frames)
	s.observe(transcode.Animated, start)

	if errors.Is(err, transcode.ErrNoFrames) {
		s.logger.Error("animated transcode produced no frames", "url", remoteURL)
		s.recordOutcome("no_frames")
		env.Status = http.StatusBadGateway
		env.Header.Set(HeaderProxyError, diagNoFrames)
		return env, err
	}

	var ce *transcode.CodecError
	if errors.As(err, &ce) {
		s.logger.Warn("animated transcode degraded",
			"url", remoteURL,
			"kind", string(ce.Kind),
			"err", ce.Err,
		)
		s.recordOutcome(outcomeFor(ce.Kind))
		passThrough(env, body, HeaderProxyError, codecDiagnostic(ce))
		return env, nil
	}
	if err != nil {
		return env, err
	}

	s.recordOutcome("animated")
	transcoded(env, out)
	return env, nil
}

func outcomeFor(kind transcode.CodecKind) string {
	if kind == transcode.DecodeError {
		return "decode_error"
	}
	return "encode_error"
}

func (s *MediaService) recordOutcome(outcome string) {
	if s.metrics != nil {
		s.metrics.TranscodeTotal.WithLabelValues(outcome).Inc()
	}
}

func (s *MediaService) observe(kind transcode.Kind, start time.Time) {
	if s.metrics != nil {
		s.metrics.TranscodeDuration.WithLabelValues(kind.String()).Observe(time.Since(start).Seconds())
	}
}
