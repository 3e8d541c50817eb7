// Package fault holds the error kinds that cross component boundaries.
// Adapters flatten vendor errors into an *Error so callers only ever see a Kind.
package fault

import (
	"context"
	"errors"
	"fmt"
)

type Kind uint8

const (
	Unknown Kind = iota
	Transcription
	Completion
	SynthesisUnavailable
	Synthesis
	Delivery
)

func (k Kind) String() string {
	switch k {
	case Transcription:
		return "transcription"
	case Completion:
		return "completion"
	case SynthesisUnavailable:
		return "synthesis_unavailable"
	case Synthesis:
		return "synthesis"
	case Delivery:
		return "delivery"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind    Kind
	Op      string
	Detail  string
	Timeout bool
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg += ": " + e.Op
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrSynthesis) works
// regardless of Op and Detail.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrTranscription        = &Error{Kind: Transcription}
	ErrCompletion           = &Error{Kind: Completion}
	ErrSynthesisUnavailable = &Error{Kind: SynthesisUnavailable}
	ErrSynthesis            = &Error{Kind: Synthesis}
	ErrDelivery             = &Error{Kind: Delivery}
)

// New translates err into an *Error of the given kind. The original error is
// kept only as text. Deadline expiry is recorded so logs can tell it apart.
func New(kind Kind, op string, err error) *Error {
	e := &Error{Kind: kind, Op: op}
	if err != nil {
		e.Detail = err.Error()
		e.Timeout = errors.Is(err, context.DeadlineExceeded)
	}
	return e
}

func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Detail: fmt.Sprintf(format, args...)}
}

// TimedOut reports whether err is an *Error caused by deadline expiry.
func TimedOut(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Timeout
}

// KindOf reports the kind carried by err, or Unknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}
