package fetch

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotReleasable is returned (wrapped in *NotReleasableError) for DRAFT manifests.
var ErrNotReleasable = errors.New("manifest is not releasable")

// NotReleasableError reports a manifest whose version or digests are still
// placeholders.
type NotReleasableError struct {
	Package string
	Missing []string // os/arch keys of variants without a digest
}

func (e *NotReleasableError) Error() string {
	if len(e.Missing) == 0 {
		return fmt.Sprintf("%s: %v (no version)", e.Package, ErrNotReleasable)
	}
	return fmt.Sprintf("%s: %v (no digest for %s)", e.Package, ErrNotReleasable, strings.Join(e.Missing, ", "))
}

func (e *NotReleasableError) Unwrap() error {
	return ErrNotReleasable
}

// NetworkError reports a download that failed after all retries, or that
// failed with a status that is not worth retrying.
type NetworkError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("download %s failed after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// StatusError is an unexpected HTTP response status.
type StatusError struct {
	StatusCode int
	Status     string

	retryAfter error
}

func (e *StatusError) Error() string {
	return "unexpected status: " + e.Status
}

// Unwrap exposes a Retry-After hint to the retry loop.
func (e *StatusError) Unwrap() error {
	return e.retryAfter
}

// Transient reports whether the status is worth retrying.
func (e *StatusError) Transient() bool {
	return isTransientStatus(e.StatusCode)
}

// IntegrityError reports a digest mismatch. The downloaded bytes are discarded.
type IntegrityError struct {
	Package  string
	URL      string
	Expected string
	Actual   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity check failed for %s (%s):\n  expected sha256: %s\n  computed sha256: %s",
		e.Package, e.URL, e.Expected, e.Actual)
}

// SignatureError reports a detached signature that could not be verified.
type SignatureError struct {
	Package string
	URL     string
	Err     error
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("signature verification failed for %s (%s): %v", e.Package, e.URL, e.Err)
}

func (e *SignatureError) Unwrap() error {
	return e.Err
}
