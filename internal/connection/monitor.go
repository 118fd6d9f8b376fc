// Package connection folds transport-layer callbacks into a single published
// connection status.
package connection

import (
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/eisenzopf/webrtc-client/internal/watch"
)

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Reconnecting:
		return "Reconnecting"
	case Failed:
		return "Failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status is an immutable snapshot. Monitor publishes a fresh copy on every
// change; readers never share a mutable instance.
type Status struct {
	State          State
	SignalingState webrtc.SignalingState
	ICEState       webrtc.ICEConnectionState
	PeerState      webrtc.PeerConnectionState
	// LastError is empty when no error is recorded.
	LastError string
}

func DefaultStatus() Status {
	return Status{
		State:          Disconnected,
		SignalingState: webrtc.SignalingStateStable,
		ICEState:       webrtc.ICEConnectionStateNew,
		PeerState:      webrtc.PeerConnectionStateNew,
	}
}

// Monitor is the only writer of Status. Everything else reads through
// Subscribe or Status.
type Monitor struct {
	status *watch.Value[Status]
}

func NewMonitor() *Monitor {
	return &Monitor{status: watch.New(DefaultStatus())}
}

func (m *Monitor) Status() Status {
	return m.status.Load()
}

func (m *Monitor) Subscribe() *watch.Subscription[Status] {
	return m.status.Subscribe()
}

func (m *Monitor) UpdateState(state State) {
	m.status.Update(func(s Status) Status {
		s.State = state
		return s
	})
}

func (m *Monitor) UpdateSignalingState(state webrtc.SignalingState) {
	m.status.Update(func(s Status) Status {
		s.SignalingState = state
		return s
	})
}

// UpdateICEState records the ICE sub-state and derives the top-level state
// from it. ICE is the primary driver of State.
func (m *Monitor) UpdateICEState(state webrtc.ICEConnectionState) {
	m.status.Update(func(s Status) Status {
		s.ICEState = state
		s.State = deriveState(s.State, state)
		return s
	})
}

func (m *Monitor) UpdatePeerState(state webrtc.PeerConnectionState) {
	m.status.Update(func(s Status) Status {
		s.PeerState = state
		return s
	})
}

// SetError forces State to Failed regardless of the current state and
// records msg.
func (m *Monitor) SetError(msg string) {
	m.status.Update(func(s Status) Status {
		s.LastError = msg
		s.State = Failed
		return s
	})
}

// ClearError drops the recorded error message without touching State.
func (m *Monitor) ClearError() {
	m.status.Update(func(s Status) Status {
		s.LastError = ""
		return s
	})
}

// Reset returns every field to its initial value, as after teardown of a
// media session.
func (m *Monitor) Reset() {
	m.status.Store(DefaultStatus())
}

func deriveState(current State, ice webrtc.ICEConnectionState) State {
	switch ice {
	case webrtc.ICEConnectionStateConnected:
		return Connected
	case webrtc.ICEConnectionStateFailed:
		return Failed
	case webrtc.ICEConnectionStateDisconnected:
		return Disconnected
	case webrtc.ICEConnectionStateChecking:
		return Connecting
	default:
		return current
	}
}
