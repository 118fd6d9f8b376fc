package audio

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/eisenzopf/webrtc-client/internal/callerr"
	"github.com/eisenzopf/webrtc-client/internal/metrics"
)

type CaptureOptions struct {
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
	// OnError is called once if the device or sink fails. It runs on the
	// capture goroutine and must not block.
	OnError func(error)
}

// Capture pumps frames from a capture device into a sink until stopped.
type Capture struct {
	src     FrameSource
	sink    FrameSink
	log     zerolog.Logger
	metrics *metrics.Metrics
	onError func(error)

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func StartCapture(ctx context.Context, dev CaptureDevice, sink FrameSink, opts CaptureOptions) (*Capture, error) {
	if dev == nil {
		return nil, callerr.Audio("open capture", ErrNoDevice)
	}
	src, err := dev.Open(ctx)
	if err != nil {
		return nil, callerr.Audio("open capture", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	c := &Capture{
		src:     src,
		sink:    sink,
		log:     opts.Logger.With().Str("component", "capture").Logger(),
		metrics: opts.Metrics,
		onError: opts.OnError,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go c.run(ctx)
	return c, nil
}

// Stop ends the pump and closes the device. It waits for the pump to exit.
func (c *Capture) Stop() {
	c.once.Do(func() {
		c.cancel()
		_ = c.src.Close()
	})
	<-c.done
}

func (c *Capture) run(ctx context.Context) {
	defer close(c.done)
	for {
		frame, err := c.src.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, io.EOF) && !errors.Is(err, ErrDeviceClosed) {
				c.fail(callerr.Audio("read capture", err))
			}
			return
		}
		if err := c.sink.WriteFrame(frame); err != nil {
			if ctx.Err() == nil {
				c.fail(callerr.Audio("write frame", err))
			}
			return
		}
	}
}

func (c *Capture) fail(err error) {
	c.metrics.Inc(metrics.AudioErrors)
	c.log.Warn().Err(err).Msg("capture stopped")
	if c.onError != nil {
		c.onError(err)
	}
}
