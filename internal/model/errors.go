package model

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies an attempt failure
type ErrorKind string

const (
	ErrorMalformed         ErrorKind = "Malformed"
	ErrorResolution        ErrorKind = "ResolutionFailure"
	ErrorAuthRequired      ErrorKind = "AuthRequired"
	ErrorVipRequired       ErrorKind = "VipRequired"
	ErrorNetwork           ErrorKind = "NetworkFailure"
	ErrorRateLimited       ErrorKind = "RateLimited"
	ErrorTranscode         ErrorKind = "TranscodeFailure"
	ErrorDisk              ErrorKind = "DiskFailure"
	ErrorFormatUnavailable ErrorKind = "FormatUnavailable"
	ErrorCancelled         ErrorKind = "Cancelled"
)

// String returns the string representation of ErrorKind
func (k ErrorKind) String() string {
	return string(k)
}

// IsRetryable reports whether another attempt may succeed
func (k ErrorKind) IsRetryable() bool {
	switch k {
	case ErrorResolution, ErrorNetwork, ErrorRateLimited, ErrorTranscode:
		return true
	default:
		return false
	}
}

// IsAuthClass reports whether the failure means the session lacks an entitlement
func (k ErrorKind) IsAuthClass() bool {
	return k == ErrorAuthRequired || k == ErrorVipRequired
}

var (
	// ErrMalformed is matched by every resolver rejection
	ErrMalformed = &FetchError{Kind: ErrorMalformed, Message: "unrecognized url"}

	// ErrInvalidTransition is returned when a task state change is not allowed
	ErrInvalidTransition = errors.New("invalid task state transition")
)

// FetchError is a classified failure of a resolver or pipeline step
type FetchError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// NewError creates a classified error
func NewError(kind ErrorKind, format string, args ...any) *FetchError {
	return &FetchError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError classifies err under kind
func WrapError(kind ErrorKind, err error, message string) *FetchError {
	return &FetchError{Kind: kind, Message: message, Err: err}
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is matches any FetchError of the same kind
func (e *FetchError) Is(target error) bool {
	var t *FetchError
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// KindOf classifies err. Unclassified errors count as network failures.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, ErrMalformed) {
		return ErrorMalformed
	}
	if errors.Is(err, context.Canceled) {
		return ErrorCancelled
	}
	return ErrorNetwork
}
