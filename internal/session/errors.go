package session

import "errors"

var (
	ErrMaxAttemptsExceeded = errors.New("max reconnection attempts reached")

	ErrNotConnected     = errors.New("not connected to a relay")
	ErrAlreadyConnected = errors.New("already connected to a room")
	ErrNoPeerSelected   = errors.New("no peer selected")
	ErrCallInProgress   = errors.New("call already in progress")
	ErrNoActiveCall     = errors.New("no active call")
	ErrUnknownPeer      = errors.New("peer not in room")
	ErrStopped          = errors.New("orchestrator stopped")
	ErrRelayClosed      = errors.New("relay connection closed")
)
