package types

import (
	"errors"
	"fmt"
)

// Repository lifecycle errors.
var (
	ErrDetached        = errors.New("repository is detached")
	ErrAlreadyAttached = errors.New("repository is already attached")
)

// Store and entity errors.
var (
	ErrStoreNotFound    = errors.New("store not found")
	ErrNotFound         = errors.New("entity not found")
	ErrLinkNotFound     = errors.New("sync link not found")
	ErrInvalidID        = errors.New("invalid entity ID")
	ErrInvalidKind      = errors.New("invalid entity kind")
	ErrInvalidDirection = errors.New("invalid link direction")
	ErrInvalidData      = errors.New("invalid entity data")
	ErrInvalidStatus    = errors.New("invalid vehicle status")
)

// ErrorCode classifies a failure surfaced by the sync engine.
type ErrorCode string

const (
	// ErrCodeConfiguration is an unknown store or link endpoint. It is
	// fatal for the one operation and never retried.
	ErrCodeConfiguration ErrorCode = "configuration_error"

	// ErrCodePersistence is a backend read or write failure during a sync
	// attempt. It is recorded on the affected link only.
	ErrCodePersistence ErrorCode = "persistence_error"

	// ErrCodeValidation is an incomplete identity field. It is recorded as
	// an integrity shortfall; the write still completes.
	ErrCodeValidation ErrorCode = "validation_error"

	// ErrCodeSerialization is a malformed record payload.
	ErrCodeSerialization ErrorCode = "serialization_error"

	// ErrCodeMergeConflict is reserved. The engine resolves concurrent
	// writes by last-writer-wins and never raises it.
	ErrCodeMergeConflict ErrorCode = "merge_conflict"
)

// SyncError is the structured error returned by engine operations. Callers
// branch on Code with errors.As or the Is* helpers instead of matching
// message text.
type SyncError struct {
	Code  ErrorCode
	Op    string
	Store string
	Err   error
}

// Error implements the error interface.
func (e *SyncError) Error() string {
	if e.Store != "" {
		return fmt.Sprintf("%s: %s %s: %v", e.Code, e.Op, e.Store, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *SyncError) Unwrap() error {
	return e.Err
}

// NewSyncError wraps err with a code. The code is derived from err when
// code is empty.
func NewSyncError(code ErrorCode, op, store string, err error) *SyncError {
	if code == "" {
		code = Classify(err)
	}
	return &SyncError{Code: code, Op: op, Store: store, Err: err}
}

// Classify maps an error to its ErrorCode. A *SyncError keeps its own code;
// unknown stores and links are configuration errors; malformed data is a
// serialization error; everything else is a persistence error.
func Classify(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var se *SyncError
	if errors.As(err, &se) {
		return se.Code
	}
	switch {
	case errors.Is(err, ErrStoreNotFound), errors.Is(err, ErrLinkNotFound),
		errors.Is(err, ErrInvalidKind), errors.Is(err, ErrInvalidDirection):
		return ErrCodeConfiguration
	case errors.Is(err, ErrInvalidData), errors.Is(err, ErrInvalidID):
		return ErrCodeSerialization
	}
	return ErrCodePersistence
}

// IsConfiguration reports whether err is a configuration error.
func IsConfiguration(err error) bool {
	return err != nil && Classify(err) == ErrCodeConfiguration
}

// IsPersistence reports whether err is a persistence error.
func IsPersistence(err error) bool {
	return err != nil && Classify(err) == ErrCodePersistence
}

// IsSerialization reports whether err is a serialization error.
func IsSerialization(err error) bool {
	return err != nil && Classify(err) == ErrCodeSerialization
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool {
	return err != nil && Classify(err) == ErrCodeValidation
}
