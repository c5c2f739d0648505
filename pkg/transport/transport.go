// Package transport issues the HTTP queries behind each check and returns the
// decoded JSON document. Authentication, TLS and request shaping live here so
// the verification engine only deals with documents.
package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/cgast/canarygate/pkg/spec"
)

// Transport performs a check's query and returns the decoded JSON body.
type Transport interface {
	Request(ctx context.Context, q spec.Query) (any, error)
	Close() error
}

// ErrNotRecorded is returned by a Replayer for a request absent from the cassette.
var ErrNotRecorded = errors.New("request not recorded")

// Error is a failed request: network failure, non-2xx status or a body that
// is not JSON.
type Error struct {
	Method     string
	URL        string
	StatusCode int    // 0 when no response was received
	Body       string // truncated response body, if any
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err == nil:
		return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s %s: HTTP %d: %v", e.Method, e.URL, e.StatusCode, e.Err)
	default:
		return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// truncate limits a string to maxLen bytes.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
