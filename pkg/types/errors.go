package types

import (
	"errors"
	"fmt"
)

var (
	// ErrNoData means a series had no observations.
	ErrNoData = errors.New("no data")
	// ErrInsufficientData means a series failed the completeness gate.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrMethodSelection means no bucket matched the series median.
	ErrMethodSelection = errors.New("no method bucket matches median")
	// ErrInvalidBounds means the computed envelope was unusable.
	ErrInvalidBounds = errors.New("invalid bounds")
	// ErrPayloadRejected means a record failed structural validation.
	ErrPayloadRejected = errors.New("payload rejected")
	// ErrPermission means the remote account lacks a required authority.
	ErrPermission = errors.New("permission denied")
)

// UploadError is returned when at least one upload chunk failed permanently.
type UploadError struct {
	Op    string
	Chunk int
	Err   error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("%s: chunk %d: %v", e.Op, e.Chunk, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }
