package chat

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure. Every error crossing a package boundary
// in this module carries exactly one kind.
type Kind string

const (
	// KindPermission covers device or authorization denial.
	KindPermission Kind = "permission"
	// KindTransport covers network failures and non-2xx responses.
	KindTransport Kind = "transport"
	// KindApplication covers 2xx responses carrying an embedded error or an
	// empty result.
	KindApplication Kind = "application"
	// KindValidation covers caller mistakes caught before any network call.
	KindValidation Kind = "validation"
)

var (
	// ErrBusy is returned when a send is attempted while a turn is in flight.
	ErrBusy = errors.New("a turn is already in flight")

	// ErrNoSpeech signals that transcription found no usable speech.
	ErrNoSpeech = errors.New("no speech detected")
)

// Error is the normalized failure representation handed to the presentation
// layer.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Op
}

func (e *Error) Unwrap() error { return e.Err }

// E builds a classified error. Op names the failing operation, msg is the
// human-readable detail (may be empty), err is the underlying cause (may be
// nil).
func E(kind Kind, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: msg, Err: err}
}

// KindOf extracts the classification from err, or "" if err carries none.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
