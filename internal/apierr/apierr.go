package apierr

import (
	"errors"
	"fmt"

	"github.com/containerd/errdefs"
)

// Code classifies a failed call to the subscription service.
type Code string

const (
	CodeNotFound  Code = "NOT_FOUND"
	CodeForbidden Code = "FORBIDDEN"
	CodeTransient Code = "TRANSIENT"
)

// Error is returned by the subscription service for failures the
// reconciler knows how to handle. Anything not wrapped in an Error is
// treated as fatal.
type Error struct {
	Code      Code
	Op        string
	Subreddit string
	Status    int
	Cause     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Op)
	if e.Subreddit != "" {
		msg += " r/" + e.Subreddit
	}
	if e.Status != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.Status)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap exposes both the cause and the matching errdefs class, so
// errors.Is(err, errdefs.ErrNotFound) holds for a CodeNotFound error.
func (e *Error) Unwrap() []error {
	errs := []error{class(e.Code)}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

func class(c Code) error {
	switch c {
	case CodeNotFound:
		return errdefs.ErrNotFound
	case CodeForbidden:
		return errdefs.ErrPermissionDenied
	default:
		return errdefs.ErrUnavailable
	}
}

func New(code Code, op, subreddit string, cause error) *Error {
	return &Error{Code: code, Op: op, Subreddit: subreddit, Cause: cause}
}

func NotFound(op, subreddit string, cause error) *Error {
	return New(CodeNotFound, op, subreddit, cause)
}

func Forbidden(op, subreddit string, cause error) *Error {
	return New(CodeForbidden, op, subreddit, cause)
}

func Transient(op, subreddit string, cause error) *Error {
	return New(CodeTransient, op, subreddit, cause)
}

// WithStatus records the HTTP status that produced the error.
func (e *Error) WithStatus(status int) *Error {
	e.Status = status
	return e
}

// CodeOf returns the code of the first Error in err's chain.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}

func IsNotFound(err error) bool {
	c, ok := CodeOf(err)
	return ok && c == CodeNotFound
}

func IsForbidden(err error) bool {
	c, ok := CodeOf(err)
	return ok && c == CodeForbidden
}

func IsTransient(err error) bool {
	c, ok := CodeOf(err)
	return ok && c == CodeTransient
}
