package crawl

import (
	"errors"
	"fmt"
)

// Error kinds per SPEC_FULL.md §7. These are sentinels wrapped by errors.Is,
// not types to switch on — callers check `errors.Is(err, crawl.ErrX)`.
var (
	// ErrFetchRetryable marks network errors, 5xx, and 429/503 responses.
	ErrFetchRetryable = errors.New("fetch error: retryable")
	// ErrFetchFatal marks non-retryable HTTP 4xx (other than 429), invalid
	// responses, or extraction failures.
	ErrFetchFatal = errors.New("fetch error: fatal")
	// ErrPolicyBlocked marks a robots.txt denial.
	ErrPolicyBlocked = errors.New("blocked by robots policy")
	// ErrBudgetExhausted marks a job that has reached maxPages.
	ErrBudgetExhausted = errors.New("page budget exhausted")
	// ErrJobFatal marks an unrecoverable job-level failure.
	ErrJobFatal = errors.New("job-level fatal error")
	// ErrValidation marks a rejected user input; no state changes.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks a missing Job, Page, or other lookup.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition marks an illegal job status transition attempt
	// (e.g. pausing a job that isn't running).
	ErrInvalidTransition = errors.New("invalid status transition")
)

func errValidation(msg string) error {
	return fmt.Errorf("%s: %w", msg, ErrValidation)
}

func errValidationf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrValidation)
}
