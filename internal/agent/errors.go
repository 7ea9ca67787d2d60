package agent

import "errors"

var (
	// ErrEmptyPrompt is returned when a query is started without prompt text.
	ErrEmptyPrompt = errors.New("prompt is empty")

	// ErrBackendUnavailable reports that the backend process could not be
	// started, failed, or ended without a terminal result.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrCancelled ends a stream whose context was cancelled.
	ErrCancelled = errors.New("query cancelled")

	// ErrMalformedEvent marks a single backend line that could not be decoded.
	ErrMalformedEvent = errors.New("malformed backend event")
)
