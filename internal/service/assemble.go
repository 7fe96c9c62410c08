package service

import (
	"fmt"
	"net/http"
	"strings"

	"media-proxy-go/internal/model"
	"media-proxy-go/internal/transcode"
)

// ContentSecurityPolicy is attached to every media response.
const ContentSecurityPolicy = "default-src 'none'; img-src 'self'; media-src 'self'; style-src 'unsafe-inline'"

// Response header names set by the proxy.
const (
	HeaderRemoteURL  = "X-Remote-Url"
	HeaderCodecError = "X-Codec-Error"
	HeaderProxyError = "X-Proxy-Error"
)

// Diagnostic values that do not carry a cause.
const (
	diagUnsupportedFormat = "UnsupportedFormat"
	diagNoFrames          = "NoFrames"
)

const webpContentType = "image/webp"

// forwardedHeaders are the upstream response headers copied to the caller.
var forwardedHeaders = []string{"Content-Disposition", "Content-Type"}

// newEnvelope starts a response for remoteURL. The echo of the requested URL
// and the content security policy are present on every outcome.
func newEnvelope(remoteURL string) *model.Envelope {
	h := make(http.Header)
	if remoteURL != "" {
		h.Set(HeaderRemoteURL, sanitizeHeaderValue(remoteURL))
	}
	h.Set("Content-Security-Policy", ContentSecurityPolicy)
	return &model.Envelope{Status: http.StatusOK, Header: h}
}

// forward appends every upstream value of the whitelisted headers, in order.
func forward(env *model.Envelope, upstream http.Header) {
	for _, key := range forwardedHeaders {
		for _, v := range upstream.Values(key) {
			env.Header.Add(key, v)
		}
	}
}

// transcoded replaces the body with WebP output.
func transcoded(env *model.Envelope, body []byte) {
	env.Header.Del("Content-Type")
	env.Header.Set("Content-Type", webpContentType)
	env.Body = body
}

// passThrough returns the original bytes with a diagnostic header.
func passThrough(env *model.Envelope, body []byte, header, value string) {
	env.Header.Add(header, sanitizeHeaderValue(value))
	env.Body = body
}

// codecDiagnostic renders a soft codec failure as "<Kind>_<cause>".
func codecDiagnostic(ce *transcode.CodecError) string {
	return fmt.Sprintf("%s_%v", ce.Kind, ce.Err)
}

// sanitizeHeaderValue drops control characters so a cause or URL can be
// carried in a single header line.
func sanitizeHeaderValue(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return ' '
		}
		return r
	}, s)
}
