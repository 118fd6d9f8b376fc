// Package audio is the boundary between a call and the local sound devices.
//
// Capture devices hand over Opus-encoded frames that are written to the
// outbound track unchanged. Inbound RTP payloads are decoded to 48 kHz mono
// PCM and pulled by the playback device on a fixed cadence; when nothing is
// queued the device is given silence.
package audio

import (
	"context"
	"errors"
	"time"
)

const (
	SampleRate    = 48000
	FrameDuration = 20 * time.Millisecond
	// FrameSamples is the number of mono samples in one FrameDuration.
	FrameSamples = SampleRate / int(time.Second/FrameDuration)
)

var (
	ErrNoDevice     = errors.New("audio: no device available")
	ErrDeviceClosed = errors.New("audio: device closed")
)

// Frame is one encoded Opus frame.
type Frame struct {
	Data     []byte
	Duration time.Duration
}

// FrameSource yields captured frames. ReadFrame returns io.EOF when the
// device stops producing.
type FrameSource interface {
	ReadFrame(ctx context.Context) (Frame, error)
	Close() error
}

type CaptureDevice interface {
	Open(ctx context.Context) (FrameSource, error)
}

// FrameSink accepts outbound frames, typically a local media track.
type FrameSink interface {
	WriteFrame(Frame) error
}

// PlaybackDevice renders one frame of 48 kHz mono PCM.
type PlaybackDevice interface {
	Render(pcm []int16) error
}
