package audio

import (
	"context"
	"sync"
	"time"
)

// opusSilence is a 20 ms fullband CELT frame that decodes to silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// SilenceCapture is a capture device that produces Opus silence at real-time
// pace. It lets a headless client hold a call without a microphone.
type SilenceCapture struct{}

func (SilenceCapture) Open(context.Context) (FrameSource, error) {
	return &silenceSource{ticker: time.NewTicker(FrameDuration), closed: make(chan struct{})}, nil
}

type silenceSource struct {
	ticker *time.Ticker
	once   sync.Once
	closed chan struct{}
}

func (s *silenceSource) ReadFrame(ctx context.Context) (Frame, error) {
	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case <-s.closed:
		return Frame{}, ErrDeviceClosed
	case <-s.ticker.C:
		return Frame{Data: append([]byte(nil), opusSilence...), Duration: FrameDuration}, nil
	}
}

func (s *silenceSource) Close() error {
	s.once.Do(func() {
		s.ticker.Stop()
		close(s.closed)
	})
	return nil
}

// DiscardPlayback drops every frame.
type DiscardPlayback struct{}

func (DiscardPlayback) Render([]int16) error { return nil }
