package platform

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingImage is returned before any network call when a driver needs an image and the post has none.
	ErrMissingImage = errors.New("post has no image url")
	// ErrContainerTimeout means the platform never finished processing within the poll budget.
	ErrContainerTimeout = errors.New("media processing timed out")
	// ErrContainerFailed means the platform reported that processing failed.
	ErrContainerFailed = errors.New("media processing failed")
	// ErrUnsupportedChannel is returned by the Unsupported driver.
	ErrUnsupportedChannel = errors.New("channel not supported")
)

// APIError carries a non-success platform response with its raw body for diagnostics.
type APIError struct {
	Platform   string
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s failed (status %d): %s", e.Platform, e.Op, e.StatusCode, e.Body)
}

// PendingPublishError is returned when the platform accepted a publish request but did not
// confirm it within the poll budget. The post may still go live under PublishID.
type PendingPublishError struct {
	Platform  string
	PublishID string
	Err       error
}

func (e *PendingPublishError) Error() string {
	return fmt.Sprintf("%s publish %s: %v", e.Platform, e.PublishID, e.Err)
}

func (e *PendingPublishError) Unwrap() error { return e.Err }
