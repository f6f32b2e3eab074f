package room

import (
	"errors"
	"fmt"
)

// Kind classifies a room error for the caller deciding what to surface.
type Kind string

const (
	KindValidation Kind = "validation"
	KindAuthority  Kind = "authority"
	KindNotFound   Kind = "not_found"
	KindState      Kind = "state"
)

var (
	ErrValidation   = errors.New("validation failed")
	ErrAuthority    = errors.New("not permitted")
	ErrNotFound     = errors.New("not found")
	ErrInvalidPhase = errors.New("not allowed in the current phase")
)

// Error is returned by every room operation that refuses a request.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is lets callers match on the kind sentinels with errors.Is.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrValidation:
		return e.Kind == KindValidation
	case ErrAuthority:
		return e.Kind == KindAuthority
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrInvalidPhase:
		return e.Kind == KindState
	}
	return false
}

// KindOf returns the kind of err, or "" if it is not a room error.
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return ""
}

func validationf(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func authorityf(format string, args ...any) error {
	return &Error{Kind: KindAuthority, Message: fmt.Sprintf(format, args...)}
}

func notFoundf(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func phaseError(op string, phase Phase) error {
	return &Error{Kind: KindState, Message: fmt.Sprintf("cannot %s while room is %s", op, phase)}
}
