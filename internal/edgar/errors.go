package edgar

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// FetchError is a transient network or HTTP failure. Retried with backoff.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// FormatError means a payload is not structured the way the source
// promises (archive unreadable, header version mismatch, page not
// recognizable). Retrying will not change a malformed payload.
type FormatError struct {
	Subject string
	Err     error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("format %s: %v", e.Subject, e.Err)
	}
	return fmt.Sprintf("format %s: unrecognized", e.Subject)
}

func (e *FormatError) Unwrap() error { return e.Err }

// CrawlError means a filing's detail page could not be processed at all.
type CrawlError struct {
	Key FilingKey
	Err error
}

func (e *CrawlError) Error() string {
	return fmt.Sprintf("crawl %s: %v", e.Key, e.Err)
}

func (e *CrawlError) Unwrap() error { return e.Err }

// StateError is a state-store I/O failure. Fatal to the run: the
// durability contract cannot be honored once marking fails.
type StateError struct {
	Op  string
	Err error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("state %s: %v", e.Op, e.Err)
}

func (e *StateError) Unwrap() error { return e.Err }

// IsRetryable classifies an error for the scheduler's retry loop.
// Transient fetch failures and network timeouts retry; malformed
// payloads, cancellation, and state failures do not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var formatErr *FormatError
	if errors.As(err, &formatErr) {
		return false
	}
	var stateErr *StateError
	if errors.As(err, &stateErr) {
		return false
	}
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}
