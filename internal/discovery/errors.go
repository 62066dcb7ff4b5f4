package discovery

import "errors"

var (
	// ErrNotFound is returned when a task or cache entry does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAuthRequired means no upstream credential is available.
	ErrAuthRequired = errors.New("upstream login required")
	// ErrAuthInvalid means the upstream credential failed its liveness probe.
	ErrAuthInvalid = errors.New("upstream session expired")
	// ErrInvalidArgument flags malformed caller input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNothingToExport is returned when a task has no articles to export.
	ErrNothingToExport = errors.New("no articles to export")
	// ErrCancelled is returned by pipeline stages that stopped on a cancel request.
	ErrCancelled = errors.New("task cancelled")
)
