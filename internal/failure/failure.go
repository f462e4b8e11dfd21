// Package failure classifies synthesis errors.
//
// Every error raised while loading manifests, translating policies, or
// building a plan is wrapped in an *Error carrying a Kind, so callers can
// branch on the class of failure without matching message text:
//
//	if failure.Is(err, failure.NetworkFailure) {
//	    ...
//	}
package failure

import (
	"errors"
	"fmt"
	"io/fs"
)

// Kind is the class of a synthesis failure.
type Kind int

const (
	// Unknown is reported for errors that were never classified.
	Unknown Kind = iota
	// FileNotFound means a manifest or policy path does not exist.
	FileNotFound
	// ParseError means a file or response body is not valid YAML/JSON, or is
	// missing a structural element such as a policy's Statement.
	ParseError
	// NetworkFailure means a remote policy or manifest could not be fetched.
	NetworkFailure
	// MissingRequiredField means a value the caller must supply was absent.
	MissingRequiredField
	// InvalidSpec means the caller supplied contradictory input, such as two
	// policy sources or two plan nodes with the same id.
	InvalidSpec
)

func (k Kind) String() string {
	switch k {
	case FileNotFound:
		return "file not found"
	case ParseError:
		return "parse error"
	case NetworkFailure:
		return "network failure"
	case MissingRequiredField:
		return "missing required field"
	case InvalidSpec:
		return "invalid spec"
	default:
		return "unknown"
	}
}

// Error is a classified synthesis error.
type Error struct {
	Kind Kind
	// Op names the operation that failed, e.g. "load manifest".
	Op string
	// Subject is the path, URL, or id the operation was working on.
	Subject string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Subject != "" {
		msg += " " + e.Subject
	}
	msg += ": " + e.Kind.String()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New wraps err with a kind. A nil err still produces an error.
func New(kind Kind, op, subject string, err error) error {
	return &Error{Kind: kind, Op: op, Subject: subject, Err: err}
}

// Newf is New with a formatted cause.
func Newf(kind Kind, op, subject, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Subject: subject, Err: fmt.Errorf(format, args...)}
}

// FromFS classifies an error returned by an io/fs or os call.
func FromFS(op, subject string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return New(FileNotFound, op, subject, err)
	}
	return New(Unknown, op, subject, err)
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Unknown
}

// Is reports whether any *Error in err's chain has the given kind.
func Is(err error, kind Kind) bool {
	for err != nil {
		var fe *Error
		if !errors.As(err, &fe) {
			return false
		}
		if fe.Kind == kind {
			return true
		}
		err = fe.Err
	}
	return false
}
