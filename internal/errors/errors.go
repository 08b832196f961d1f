package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind represents the category of error
type Kind string

const (
	// KindNotFound means the identifier is absent from the cache or the remote side
	KindNotFound Kind = "not_found"
	// KindResolverUnavailable means the metadata service is unreachable or unauthorized
	KindResolverUnavailable Kind = "resolver_unavailable"
	// KindDownloadFailed means the external download tool did not produce audio
	KindDownloadFailed Kind = "download_failed"
	// KindToolMissing means an external executable is absent
	KindToolMissing Kind = "tool_missing"
	// KindPartialWrite means a cache entry has audio without sidecar or vice versa
	KindPartialWrite Kind = "partial_write"
	// KindPartialFailure means a multi-step filesystem operation failed midway
	KindPartialFailure Kind = "partial_failure"
	// KindProcessCrash means the player exited unexpectedly
	KindProcessCrash Kind = "process_crash"
	// KindInvalidState means a playback transition is not allowed from the current state
	KindInvalidState Kind = "invalid_state"
	// KindUnsupported means the backend lacks the requested capability
	KindUnsupported Kind = "unsupported"
	// KindValidation represents validation errors
	KindValidation Kind = "validation"
	// KindUnknown represents unknown errors
	KindUnknown Kind = "unknown"
)

// DownloadKind refines KindDownloadFailed.
type DownloadKind string

const (
	DownloadToolMissing DownloadKind = "tool_missing"
	DownloadNetwork     DownloadKind = "network"
	DownloadToolError   DownloadKind = "tool_error"
)

// AppError represents an application error with context
type AppError struct {
	Kind     Kind
	Download DownloadKind
	Message  string
	Cause    error
}

// Error implements the error interface
func (e *AppError) Error() string {
	kind := string(e.Kind)
	if e.Download != "" {
		kind = fmt.Sprintf("%s(%s)", e.Kind, e.Download)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", kind, e.Message)
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches another *AppError by kind, so sentinel values such as
// ErrNotFound work with errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Download == "" || t.Download == e.Download
}

// Sentinels for errors.Is comparisons.
var (
	ErrNotFound            = &AppError{Kind: KindNotFound}
	ErrResolverUnavailable = &AppError{Kind: KindResolverUnavailable}
	ErrDownloadFailed      = &AppError{Kind: KindDownloadFailed}
	ErrToolMissing         = &AppError{Kind: KindToolMissing}
	ErrPartialFailure      = &AppError{Kind: KindPartialFailure}
	ErrInvalidState        = &AppError{Kind: KindInvalidState}
	ErrUnsupported         = &AppError{Kind: KindUnsupported}
)

// NotFound creates a new not found error
func NotFound(format string, args ...any) *AppError {
	return &AppError{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// ResolverUnavailable creates a new resolver error
func ResolverUnavailable(message string, cause error) *AppError {
	return &AppError{Kind: KindResolverUnavailable, Message: message, Cause: cause}
}

// DownloadFailed creates a new download error of the given kind
func DownloadFailed(kind DownloadKind, message string, cause error) *AppError {
	return &AppError{Kind: KindDownloadFailed, Download: kind, Message: message, Cause: cause}
}

// ToolMissing reports an absent external executable.
func ToolMissing(tool string) *AppError {
	return &AppError{Kind: KindToolMissing, Message: fmt.Sprintf("%s not found in PATH", tool)}
}

// PartialWrite reports a half-present cache entry.
func PartialWrite(path string) *AppError {
	return &AppError{Kind: KindPartialWrite, Message: path}
}

// PartialFailure creates a new filesystem error that left nothing changed
func PartialFailure(message string, cause error) *AppError {
	return &AppError{Kind: KindPartialFailure, Message: message, Cause: cause}
}

// ProcessCrash reports an unexpected player exit.
func ProcessCrash(message string, cause error) *AppError {
	return &AppError{Kind: KindProcessCrash, Message: message, Cause: cause}
}

// InvalidState creates a new state machine error
func InvalidState(format string, args ...any) *AppError {
	return &AppError{Kind: KindInvalidState, Message: fmt.Sprintf(format, args...)}
}

// Unsupported creates a new capability error
func Unsupported(format string, args ...any) *AppError {
	return &AppError{Kind: KindUnsupported, Message: fmt.Sprintf(format, args...)}
}

// Validation creates a new validation error
func Validation(format string, args ...any) *AppError {
	return &AppError{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the error kind from an error chain
func KindOf(err error) Kind {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnknown
}

// DownloadKindOf returns the download failure kind, or "" when err is not a download failure.
func DownloadKindOf(err error) DownloadKind {
	var appErr *AppError
	if stderrors.As(err, &appErr) && appErr.Kind == KindDownloadFailed {
		return appErr.Download
	}
	return ""
}

// IsKind checks the kind of an error chain
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return IsKind(err, KindNotFound)
}
