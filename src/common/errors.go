package common

import (
	"errors"
	"fmt"
)

// ErrKind classifies the failures a node can surface to its callers.
type ErrKind uint32

const (
	// NotFound is returned for an unknown username or an unknown request or
	// invite id.
	NotFound ErrKind = iota
	// AlreadyExists is returned when registering a username twice.
	AlreadyExists
	// DuplicateID is returned when inserting a request or invite whose id is
	// already pending for the same user.
	DuplicateID
	// DeliveryFailed is returned when a federation push could not be completed.
	DeliveryFailed
	// Malformed is returned when a payload or identity does not decode to the
	// expected entity.
	Malformed
	// Forbidden is returned when a caller may not act on a user.
	Forbidden
)

// String ...
func (k ErrKind) String() string {
	switch k {
	case NotFound:
		return "Not Found"
	case AlreadyExists:
		return "Already Exists"
	case DuplicateID:
		return "Duplicate ID"
	case DeliveryFailed:
		return "Delivery Failed"
	case Malformed:
		return "Malformed"
	case Forbidden:
		return "Forbidden"
	default:
		return "Unknown"
	}
}

// ParseErrKind is the inverse of ErrKind.String.
func ParseErrKind(s string) (ErrKind, bool) {
	for k := NotFound; k <= Forbidden; k++ {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}

// Err is the error type shared by the store, the node and the transports. It
// records the kind of failure, the type of data involved and the key that was
// being accessed.
type Err struct {
	dataType string
	kind     ErrKind
	key      string
	cause    error
}

// NewErr ...
func NewErr(dataType string, kind ErrKind, key string) Err {
	return Err{
		dataType: dataType,
		kind:     kind,
		key:      key,
	}
}

// WrapErr returns an Err of the given kind that also carries the underlying
// cause.
func WrapErr(dataType string, kind ErrKind, key string, cause error) Err {
	return Err{
		dataType: dataType,
		kind:     kind,
		key:      key,
		cause:    cause,
	}
}

// Kind ...
func (e Err) Kind() ErrKind {
	return e.kind
}

// Error ...
func (e Err) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s, %s, %s: %v", e.dataType, e.key, e.kind, e.cause)
	}
	return fmt.Sprintf("%s, %s, %s", e.dataType, e.key, e.kind)
}

// Unwrap ...
func (e Err) Unwrap() error {
	return e.cause
}

// Is checks that err, or any error it wraps, is an Err of the given kind.
func Is(err error, kind ErrKind) bool {
	var e Err
	return errors.As(err, &e) && e.kind == kind
}

// KindOf returns the kind of the first Err found in err's chain.
func KindOf(err error) (ErrKind, bool) {
	var e Err
	if errors.As(err, &e) {
		return e.kind, true
	}
	return 0, false
}
