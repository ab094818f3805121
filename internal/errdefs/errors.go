package errdefs

import "errors"

// Sentinel errors for the grading pipeline. Stage code wraps these with
// fmt.Errorf("...: %w", ...) so handlers can map them to HTTP statuses
// with errors.Is.
var (
	ErrConfiguration     = errors.New("configuration error")
	ErrValidation        = errors.New("validation error")
	ErrSessionNotFound   = errors.New("grading session not found")
	ErrSessionProcessing = errors.New("grading session already processing")
	ErrDownloadFailed    = errors.New("document download failed")
	ErrExtractionFailed  = errors.New("text extraction failed")
	ErrGradingFailed     = errors.New("grading failed")
	ErrPersistenceFailed = errors.New("persistence failed")
	ErrTimeout           = errors.New("external call timed out")
)
