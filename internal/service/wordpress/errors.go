package wordpress

import (
	"errors"
	"fmt"
)

var (
	// ErrUpstreamUnavailable is returned when the WordPress API cannot be reached
	// or answers with a non-success status.
	ErrUpstreamUnavailable = errors.New("wordpress API unavailable")
	// ErrMalformedPayload marks a post (or page body) that cannot be mapped.
	ErrMalformedPayload = errors.New("malformed wordpress payload")
	// ErrNoUpstreamData is returned by an all-pages sync when the probe reports no pages.
	ErrNoUpstreamData = errors.New("no posts found in WordPress API")
)

// UpstreamError carries the status code of a failed page request.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("WordPress API returned status: %d", e.StatusCode)
	}
	return fmt.Sprintf("WordPress API returned status: %d: %s", e.StatusCode, e.Body)
}

func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstreamUnavailable
}
