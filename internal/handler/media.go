package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"media-proxy-go/internal/client"
	"media-proxy-go/internal/model"
	"media-proxy-go/internal/service"
	"media-proxy-go/internal/transcode"
)

// MediaHandler serves the media endpoint on every non-reserved path.
type MediaHandler struct {
	service *service.MediaService
	logger  *slog.Logger
}

// NewMediaHandler creates a MediaHandler.
func NewMediaHandler(svc *service.MediaService, logger *slog.Logger) *MediaHandler {
	return &MediaHandler{
		service: svc,
		logger:  logger.With("component", "media_handler"),
	}
}

// Handle fetches the resource named by the url query parameter and writes
// the assembled envelope. The request path is ignored.
func (h *MediaHandler) Handle(c echo.Context) error {
	req := c.Request()
	query := req.URL.Query()

	params := model.RequestParams{
		URL:    query.Get("url"),
		Static: model.ParseStaticFlag(query["static"]),
	}

	env, err := h.service.Process(req.Context(), params)
	if err != nil {
		return h.mapError(c, env, params.URL, err)
	}
	return writeEnvelope(c, env)
}

// mapError turns a hard pipeline failure into a response. Headers assembled
// before the failure are kept.
func (h *MediaHandler) mapError(c echo.Context, env *model.Envelope, remoteURL string, err error) error {
	if env == nil {
		env = &model.Envelope{Header: make(http.Header)}
	}
	env.Body = nil

	var fe *client.FetchError
	switch {
	case errors.Is(err, service.ErrMissingURL):
		env.Status = http.StatusBadRequest
		env.Body = []byte(err.Error())
	case errors.Is(err, client.ErrSizeExceeded):
		env.Status = http.StatusBadGateway
	case errors.Is(err, transcode.ErrNoFrames):
		env.Status = http.StatusBadGateway
	case errors.As(err, &fe) && fe.Stage == client.StageConnect:
		env.Status = http.StatusBadRequest
		env.Body = []byte(fe.Err.Error())
	case errors.As(err, &fe):
		env.Status = http.StatusBadGateway
		env.Body = []byte(fe.Err.Error())
	case errors.Is(err, context.Canceled):
		// The caller is gone; nothing useful can be written.
		env.Status = http.StatusBadGateway
	default:
		env.Status = http.StatusBadGateway
		env.Body = []byte("upstream request failed")
	}

	level := slog.LevelError
	if env.Status < http.StatusInternalServerError {
		level = slog.LevelWarn
	}
	h.logger.Log(c.Request().Context(), level, "media request failed",
		"url", remoteURL,
		"status", env.Status,
		"err", err,
	)

	if env.Body != nil {
		env.Header.Set(echo.HeaderContentType, echo.MIMETextPlainCharsetUTF8)
	}
	return writeEnvelope(c, env)
}

// writeEnvelope copies the envelope onto the response. Header values are
// added in order so repeated keys survive. When no Content-Type is present,
// sniffing by net/http is suppressed.
func writeEnvelope(c echo.Context, env *model.Envelope) error {
	res := c.Response()
	dst := res.Header()
	for key, vals := range env.Header {
		for _, v := range vals {
			dst.Add(key, v)
		}
	}
	if len(dst.Values(echo.HeaderContentType)) == 0 {
		dst[echo.HeaderContentType] = nil
	}
	dst.Set(echo.HeaderContentLength, strconv.Itoa(len(env.Body)))

	status := env.Status
	if status == 0 {
		status = http.StatusOK
	}
	res.WriteHeader(status)
	if len(env.Body) == 0 {
		return nil
	}
	_, err := res.Write(env.Body)
	return err
}
