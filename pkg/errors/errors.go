// Package errors defines the coded errors returned across prerender.
//
// Every failure that a caller may want to branch on carries a [Code]. The
// CLI prints [UserMessage], the HTTP server maps codes to status codes, and
// library callers test with [Is] or [Has].
//
// Three codes mean the build itself is broken and no fallback page can be
// served (see [IsInfrastructure]):
//
//   - UNSUPPORTED_FILESYSTEM: the output root is not backed by a real disk
//   - GRAPH_FETCH: a reference list could not be fetched during partitioning
//   - WRITE_FAILED: an artifact could not be written during emission
//
// Failed renders are not errors at all. They degrade to a fallback page in
// package pipeline.
//
//	err := errors.Wrap(errors.ErrCodeWriteFailed, cause, "write %s", path)
//	if errors.Has(err, errors.ErrCodeWriteFailed) {
//	    // the output directory is unusable
//	}
package errors

import (
	"errors"
	"fmt"
)

// Code identifies a class of failure.
type Code string

const (
	// Bad input from the caller, the manifest or the config file.
	ErrCodeInvalidInput    Code = "INVALID_INPUT"
	ErrCodeInvalidPath     Code = "INVALID_PATH"
	ErrCodeInvalidManifest Code = "INVALID_MANIFEST"
	ErrCodeInvalidConfig   Code = "INVALID_CONFIG"

	// Lookups.
	ErrCodeNotFound     Code = "NOT_FOUND"
	ErrCodeUnknownAsset Code = "UNKNOWN_ASSET"
	ErrCodeUnknownEntry Code = "UNKNOWN_ENTRY"

	// Broken build.
	ErrCodeUnsupportedFilesystem Code = "UNSUPPORTED_FILESYSTEM"
	ErrCodeGraphFetch            Code = "GRAPH_FETCH"
	ErrCodeWriteFailed           Code = "WRITE_FAILED"

	// Worker processes.
	ErrCodePoolClosed  Code = "POOL_CLOSED"
	ErrCodeWorkerSpawn Code = "WORKER_SPAWN"
	ErrCodeWorkerIO    Code = "WORKER_IO"

	ErrCodeInternal    Code = "INTERNAL_ERROR"
	ErrCodeUnsupported Code = "UNSUPPORTED"
)

// Error is a failure with a code, a message and an optional cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return string(e.Code) + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// New returns an *Error with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns an *Error with a formatted message around cause.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	e := New(code, format, args...)
	e.Cause = cause
	return e
}

// Is reports whether the outermost *Error in err's chain has code.
// Codes of nested causes are not consulted; use [Has] for that.
func Is(err error, code Code) bool {
	return GetCode(err) == code && code != ""
}

// Has reports whether any *Error in err's chain carries code.
func Has(err error, code Code) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Cause
	}
	return false
}

// GetCode returns the code of the outermost *Error in err's chain, or ""
// if there is none.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage renders err for humans: messages of the chain joined by
// ": ", without codes.
func UserMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return err.Error()
	}
	if e.Cause == nil {
		return e.Message
	}
	return e.Message + ": " + UserMessage(e.Cause)
}

// IsInfrastructure reports whether err means the build is broken rather
// than the input being bad.
func IsInfrastructure(err error) bool {
	return Has(err, ErrCodeUnsupportedFilesystem) ||
		Has(err, ErrCodeGraphFetch) ||
		Has(err, ErrCodeWriteFailed)
}
