// Package callerr classifies failures raised anywhere in the call stack so
// the session orchestrator can route them through a single handler.
//
// Packages keep their own sentinel errors and wrap them with a Kind at the
// boundary where the failure class is known (transport, engine, room, ...).
package callerr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	// KindTransport covers relay connect/send/receive failures.
	KindTransport
	// KindEngine covers media engine failures such as a rejected SDP.
	KindEngine
	// KindRoom covers roster failures such as exceeding capacity.
	KindRoom
	// KindAudio covers capture and playback device failures.
	KindAudio
	// KindProtocol covers malformed or semantically invalid signaling messages.
	KindProtocol
	// KindSignaling is an error reported by the relay itself.
	KindSignaling
	// KindState is returned when a user intent's precondition does not hold.
	KindState
	// KindReconnectExhausted is terminal: the reconnect budget is spent.
	KindReconnectExhausted
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindEngine:
		return "engine"
	case KindRoom:
		return "room"
	case KindAudio:
		return "audio"
	case KindProtocol:
		return "protocol"
	case KindSignaling:
		return "signaling"
	case KindState:
		return "state"
	case KindReconnectExhausted:
		return "reconnect_exhausted"
	default:
		return "unknown"
	}
}

// Error tags an underlying error with its Kind and the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap tags err with kind. A nil err yields nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func Transport(op string, err error) error { return Wrap(KindTransport, op, err) }
func Engine(op string, err error) error    { return Wrap(KindEngine, op, err) }
func Room(op string, err error) error      { return Wrap(KindRoom, op, err) }
func Audio(op string, err error) error     { return Wrap(KindAudio, op, err) }
func Protocol(op string, err error) error  { return Wrap(KindProtocol, op, err) }

// KindOf returns the Kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
