package session

import (
	"context"

	"github.com/eisenzopf/webrtc-client/internal/audio"
	"github.com/eisenzopf/webrtc-client/internal/media"
	"github.com/eisenzopf/webrtc-client/internal/quality"
	"github.com/eisenzopf/webrtc-client/internal/signaling"
)

// SignalingConn is one relay connection. *signaling.Client implements it.
type SignalingConn interface {
	Send(signaling.Message) error
	Messages() <-chan signaling.Message
	Done() <-chan struct{}
	Err() error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, url string) (SignalingConn, error)
}

type DialerFunc func(ctx context.Context, url string) (SignalingConn, error)

func (f DialerFunc) Dial(ctx context.Context, url string) (SignalingConn, error) {
	return f(ctx, url)
}

// SignalingDialer dials real relay connections.
func SignalingDialer(opts signaling.Options) Dialer {
	return DialerFunc(func(ctx context.Context, url string) (SignalingConn, error) {
		c, err := signaling.Dial(ctx, url, opts)
		if err != nil {
			return nil, err
		}
		return c, nil
	})
}

// MediaSession is the engine's handle for one peer connection. SDP values
// are opaque strings.
type MediaSession interface {
	ID() string
	CreateOffer(ctx context.Context) (string, error)
	HandleOffer(ctx context.Context, sdp string) (string, error)
	HandleAnswer(ctx context.Context, sdp string) error
	AddICECandidate(ctx context.Context, candidate string) error
	Stats(ctx context.Context) (quality.Snapshot, error)
	LocalAudio() audio.FrameSink
	SetMuted(muted bool)
	Close() error
}

// MediaFactory creates sessions whose callbacks publish on events.
type MediaFactory interface {
	NewSession(ctx context.Context, events chan<- media.Event) (MediaSession, error)
}

type MediaFactoryFunc func(ctx context.Context, events chan<- media.Event) (MediaSession, error)

func (f MediaFactoryFunc) NewSession(ctx context.Context, events chan<- media.Event) (MediaSession, error) {
	return f(ctx, events)
}

// PionMedia adapts a media.Factory.
func PionMedia(f *media.Factory) MediaFactory {
	return MediaFactoryFunc(func(ctx context.Context, events chan<- media.Event) (MediaSession, error) {
		s, err := f.NewSession(ctx, events)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
}
