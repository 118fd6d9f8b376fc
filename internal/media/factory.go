package media

import (
	"context"
	"fmt"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/eisenzopf/webrtc-client/internal/audio"
	"github.com/eisenzopf/webrtc-client/internal/metrics"
)

// ICECredentials fills in per-call credentials. *turnrest.Generator
// implements it.
type ICECredentials interface {
	Apply(servers []webrtc.ICEServer) ([]webrtc.ICEServer, error)
}

type FactoryOptions struct {
	ICEServers []webrtc.ICEServer
	// Credentials, when set, is applied to ICEServers for every session.
	Credentials ICECredentials
	// Playback renders the remote audio. Nil discards it.
	Playback audio.PlaybackDevice
	Logger   zerolog.Logger
	Metrics  *metrics.Metrics
}

// Factory creates Sessions that share one pion API.
type Factory struct {
	api  *webrtc.API
	opts FactoryOptions
}

func NewFactory(api *webrtc.API, opts FactoryOptions) *Factory {
	if api == nil {
		api = webrtc.NewAPI()
	}
	return &Factory{api: api, opts: opts}
}

func (f *Factory) NewSession(ctx context.Context, events chan<- Event) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	servers := f.opts.ICEServers
	if f.opts.Credentials != nil {
		var err error
		if servers, err = f.opts.Credentials.Apply(servers); err != nil {
			return nil, fmt.Errorf("ice credentials: %w", err)
		}
	}
	return newSession(f.api, events, sessionOptions{
		iceServers: servers,
		playback:   f.opts.Playback,
		log:        f.opts.Logger.With().Str("component", "media").Logger(),
		metrics:    f.opts.Metrics,
	})
}
