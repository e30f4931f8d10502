package holvitypes

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind is the protocol's error taxonomy. Each kind maps to exactly one
// HTTP status; handlers serialize the kind name plus cause as a short text body.
type ErrorKind string

const (
	ErrPathNotAllowed          ErrorKind = "PathNotAllowed"
	ErrNonUnicodePath          ErrorKind = "NonUnicodePath"
	ErrAuthenticationHeader    ErrorKind = "AuthenticationHeaderError"
	ErrUserAuthentication      ErrorKind = "UserAuthenticationError"
	ErrObjectNotFound          ErrorKind = "ObjectNotFound"
	ErrRangeMalformed          ErrorKind = "RangeMalformed"
	ErrDigestMismatch          ErrorKind = "DigestMismatch"
	ErrRangeUnsatisfiable      ErrorKind = "RangeUnsatisfiable"
	ErrMultiRangeUnsupported   ErrorKind = "MultiRangeUnsupported"
	ErrCreatingDirectoryFailed ErrorKind = "CreatingDirectoryFailed"
	ErrWritingToFileFailed     ErrorKind = "WritingToFileFailed"
	ErrIOFailed                ErrorKind = "IOFailed"
	ErrInternal                ErrorKind = "InternalError"
)

func (k ErrorKind) HTTPStatus() int {
	switch k {
	case ErrPathNotAllowed, ErrNonUnicodePath, ErrAuthenticationHeader, ErrUserAuthentication:
		return http.StatusForbidden
	case ErrObjectNotFound:
		return http.StatusNotFound
	case ErrRangeMalformed, ErrDigestMismatch:
		return http.StatusBadRequest
	case ErrRangeUnsatisfiable:
		return http.StatusRequestedRangeNotSatisfiable
	case ErrMultiRangeUnsupported:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

type Error struct {
	Kind  ErrorKind
	cause error
}

func NewError(kind ErrorKind, cause error) *Error {
	return &Error{kind, cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.cause)
	}

	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// KindOf resolves any error to its protocol kind, defaulting to an internal
// error for causes that escaped kind assignment.
func KindOf(err error) ErrorKind {
	typed := &Error{}
	if errors.As(err, &typed) {
		return typed.Kind
	}

	return ErrInternal
}
