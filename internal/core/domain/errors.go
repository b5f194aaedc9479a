package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates the input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrParserNotFound indicates no parser is registered for the platform
	ErrParserNotFound = errors.New("parser not found")

	// ErrUnsupportedPlatform indicates detection found no platform and none was declared
	ErrUnsupportedPlatform = errors.New("unsupported platform")

	// ErrMalformedContent indicates the chosen platform's validation rejected the content
	ErrMalformedContent = errors.New("malformed content")

	// ErrValidation indicates an unmapped role, missing field or bad timestamp
	ErrValidation = errors.New("validation error")

	// ErrMediaProcessing indicates a media sub-pipeline stage failed
	ErrMediaProcessing = errors.New("media processing error")

	// ErrAlreadyRunning indicates an import with the same fingerprint is in progress
	ErrAlreadyRunning = errors.New("import already running")

	// ErrTimeout indicates the import deadline elapsed
	ErrTimeout = errors.New("timeout")

	// ErrQuotaExceeded indicates the import quota hook rejected the user
	ErrQuotaExceeded = errors.New("import quota exceeded")

	// ErrStorage indicates the storage collaborator failed
	ErrStorage = errors.New("storage error")

	// ErrServiceUnavailable indicates an AI collaborator is not configured or unreachable
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrInvalidProvider indicates an AI provider that cannot serve the requested capability
	ErrInvalidProvider = errors.New("invalid AI provider")
)

// ErrorKind names an entry of the import error taxonomy
type ErrorKind string

const (
	KindUnsupportedPlatform ErrorKind = "unsupported_platform"
	KindMalformedContent    ErrorKind = "malformed_content"
	KindValidation          ErrorKind = "validation_error"
	KindMediaProcessing     ErrorKind = "media_processing_error"
	KindAlreadyRunning      ErrorKind = "already_running"
	KindTimeout             ErrorKind = "timeout"
	KindQuotaExceeded       ErrorKind = "quota_exceeded"
	KindStorage             ErrorKind = "storage_error"
)

var kindSentinels = map[ErrorKind]error{
	KindUnsupportedPlatform: ErrUnsupportedPlatform,
	KindMalformedContent:    ErrMalformedContent,
	KindValidation:          ErrValidation,
	KindMediaProcessing:     ErrMediaProcessing,
	KindAlreadyRunning:      ErrAlreadyRunning,
	KindTimeout:             ErrTimeout,
	KindQuotaExceeded:       ErrQuotaExceeded,
	KindStorage:             ErrStorage,
}

// Sentinel returns the sentinel error for the kind.
func (k ErrorKind) Sentinel() error {
	if err, ok := kindSentinels[k]; ok {
		return err
	}
	return nil
}

// ImportError is the terminal failure of an import job.
// errors.Is matches both the kind sentinel and the underlying cause.
type ImportError struct {
	Stage    ImportState
	Kind     ErrorKind
	Platform Platform
	Err      error
}

func (e *ImportError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "import failed at %s: %s", e.Stage, e.Kind)
	if e.Platform != "" {
		fmt.Fprintf(&b, " (platform %s)", e.Platform)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ImportError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s := e.Kind.Sentinel(); s != nil {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// ParseError reports a structural problem in platform content
type ParseError struct {
	Platform Platform
	Seq      int // -1 when not tied to a message
	Field    string
	Reason   string
}

func (e *ParseError) Error() string {
	if e.Seq >= 0 {
		return fmt.Sprintf("%s: message %d: %s: %s", e.Platform, e.Seq, e.Field, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", e.Platform, e.Field, e.Reason)
}

func (e *ParseError) Unwrap() error { return ErrValidation }

// ValidationError reports a message the normaliser could not map
type ValidationError struct {
	Platform Platform
	Seq      int // -1 when not tied to a message
	Reason   string
}

func (e *ValidationError) Error() string {
	if e.Seq < 0 {
		return fmt.Sprintf("%s: %s", e.Platform, e.Reason)
	}
	return fmt.Sprintf("%s: message %d: %s", e.Platform, e.Seq, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }
