// Package model defines shared types for the proxy.
package model

import (
	"net/http"
	"strings"
)

// RequestParams are the query parameters of a media request.
type RequestParams struct {
	URL    string
	Static bool
}

// ParseStaticFlag interprets the optional "static" query value. Presence
// alone opts in; only explicit negatives opt out.
func ParseStaticFlag(values []string) bool {
	if len(values) == 0 {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(values[0])) {
	case "0", "false", "no", "off":
		return false
	default:
		return true
	}
}

// FetchResult is a fully buffered upstream response.
type FetchResult struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Envelope is the response handed back to the transport layer.
// Header values keep their insertion order per key.
type Envelope struct {
	Status int
	Header http.Header
	Body   []byte
}
