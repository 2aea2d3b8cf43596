package index

import "errors"

// Orchestrator errors.
var (
	ErrAlreadyRunning = errors.New("indexing is already running")
	ErrNotRunning     = errors.New("indexing is not running")
	ErrOutOfScope     = errors.New("page is outside the configured sites")
)

// ErrStoppedByUser is the cancellation cause recorded on sites when indexing is stopped.
var ErrStoppedByUser = errors.New("indexing stopped by user")

// Query errors.
var (
	ErrEmptyQuery  = errors.New("empty search query")
	ErrUnknownSite = errors.New("site is not indexed")
)

// ErrFetchFailed marks a recoverable, per-URL fetch failure.
var ErrFetchFailed = errors.New("fetch failed")

// ErrStorage marks a failed index-store write; it aborts the enclosing task.
var ErrStorage = errors.New("storage failure")

// Store lookup errors.
var (
	ErrNotFound      = errors.New("record not found")
	ErrDuplicatePage = errors.New("page already exists for path")
)
