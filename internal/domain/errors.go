package domain

import (
	"errors"
	"fmt"
)

// Kind classifies failures. Every kind except KindStorage is scoped to a single row.
type Kind int

const (
	KindTransport Kind = iota
	KindInputInvalid
	KindServiceReported
	KindExtraction
	KindStorage
)

func (k Kind) String() string {
	switch k {
	case KindInputInvalid:
		return "input-invalid"
	case KindServiceReported:
		return "service-reported"
	case KindTransport:
		return "transport"
	case KindExtraction:
		return "extraction"
	case KindStorage:
		return "storage"
	default:
		return "unknown"
	}
}

// State maps a row-scoped kind to the state the row ends in.
func (k Kind) State() RunState {
	switch k {
	case KindInputInvalid:
		return StateSkippedInvalid
	case KindServiceReported:
		return StateFailed
	default:
		return StateErrorTransport
	}
}

// Error captures contextual information for scenario failures.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// E constructs an Error with the provided context.
func E(kind Kind, op, msg string, err error) error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

// KindOf returns the kind of the first Error in err's chain.
// Errors that carry no kind are treated as transport failures.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransport
}

// Message is the text recorded in a row's error column.
// Service-reported errors and validation reasons are stored verbatim.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if !errors.As(err, &e) {
		return "transport error: " + err.Error()
	}
	switch e.Kind {
	case KindServiceReported, KindInputInvalid:
		return e.Msg
	case KindExtraction:
		return "could not read results: " + err.Error()
	case KindStorage:
		return "storage error: " + err.Error()
	default:
		return "transport error: " + err.Error()
	}
}
