package signaling

import "errors"

var (
	ErrUnknownMessageType = errors.New("signaling: unknown message type")
	ErrMalformedMessage   = errors.New("signaling: malformed message")
	ErrMissingField       = errors.New("signaling: missing required field")

	ErrSendClosed    = errors.New("signaling: send on closed client")
	ErrSendQueueFull = errors.New("signaling: send queue full")
)
