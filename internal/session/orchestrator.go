// Package session drives the call lifecycle.
//
// An Orchestrator owns the relay connection, the active media session and
// the room roster. All of that state lives on one goroutine (Run); relay
// messages, media events, user intents and reconnect results reach it over
// channels, so none of it is locked. Observers read the published
// connection.Status, quality.Quality and View snapshots.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/eisenzopf/webrtc-client/internal/audio"
	"github.com/eisenzopf/webrtc-client/internal/connection"
	"github.com/eisenzopf/webrtc-client/internal/media"
	"github.com/eisenzopf/webrtc-client/internal/metrics"
	"github.com/eisenzopf/webrtc-client/internal/quality"
	"github.com/eisenzopf/webrtc-client/internal/room"
	"github.com/eisenzopf/webrtc-client/internal/signaling"
	"github.com/eisenzopf/webrtc-client/internal/watch"
)

const (
	DefaultReconnectMaxAttempts = 5
	DefaultReconnectDelay       = time.Second
	DefaultRoomCapacity         = 8
	DefaultEventQueueSize       = 64
	DefaultDialTimeout          = 10 * time.Second
)

type Config struct {
	RelayURL string
	// RoomID and PeerID are used by Connect when it is given empty values.
	RoomID string
	PeerID string

	RoomCapacity         int
	ReconnectMaxAttempts int
	ReconnectDelay       time.Duration
	DialTimeout          time.Duration
	QualityInterval      time.Duration
	EventQueueSize       int
}

func (c Config) withDefaults() Config {
	if c.RoomCapacity <= 0 {
		c.RoomCapacity = DefaultRoomCapacity
	}
	if c.ReconnectMaxAttempts <= 0 {
		c.ReconnectMaxAttempts = DefaultReconnectMaxAttempts
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.QualityInterval <= 0 {
		c.QualityInterval = quality.DefaultInterval
	}
	if c.EventQueueSize <= 0 {
		c.EventQueueSize = DefaultEventQueueSize
	}
	return c
}

type Options struct {
	Dialer Dialer
	Media  MediaFactory
	// Capture is the microphone. Nil holds calls without sending audio.
	Capture audio.CaptureDevice
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

type Orchestrator struct {
	cfg     Config
	dialer  Dialer
	media   MediaFactory
	capture audio.CaptureDevice
	log     zerolog.Logger
	metrics *metrics.Metrics

	monitor *connection.Monitor
	quality *watch.Value[quality.Quality]
	view    *watch.Value[View]

	intents     chan intent
	mediaEvents chan media.Event
	reconnects  chan reconnectResult

	runOnce sync.Once
	started chan struct{}
	done    chan struct{}

	// st is owned by the Run goroutine.
	st appState
}

type appState struct {
	runCtx context.Context

	client  SignalingConn
	inbound <-chan signaling.Message

	roomID   string
	peerID   string
	room     *room.Room
	selected map[string]bool

	call    *call
	muted   bool
	lastICE webrtc.ICEConnectionState

	reconnectAttempts int
	reconnecting      bool
	// episode invalidates in-flight reconnect attempts when the user
	// connects, leaves or a new reconnect episode begins.
	episode uint64

	errMsg string
}

type intent struct {
	fn    func(ctx context.Context) error
	reply chan error
}

func New(cfg Config, opts Options) *Orchestrator {
	cfg = cfg.withDefaults()
	return &Orchestrator{
		cfg:         cfg,
		dialer:      opts.Dialer,
		media:       opts.Media,
		capture:     opts.Capture,
		log:         opts.Logger.With().Str("component", "session").Logger(),
		metrics:     opts.Metrics,
		monitor:     connection.NewMonitor(),
		quality:     watch.New(quality.Default()),
		view:        watch.New(View{Peers: []PeerView{}}),
		intents:     make(chan intent),
		mediaEvents: make(chan media.Event, cfg.EventQueueSize),
		reconnects:  make(chan reconnectResult),
		started:     make(chan struct{}),
		done:        make(chan struct{}),
		st:          appState{selected: map[string]bool{}},
	}
}

// Run processes events until ctx is cancelled, then ends any call and
// closes the relay connection. It may only be called once.
func (o *Orchestrator) Run(ctx context.Context) error {
	ran := false
	o.runOnce.Do(func() { ran = true })
	if !ran {
		return ErrStopped
	}
	defer close(o.done)
	o.st.runCtx = ctx
	close(o.started)

	for {
		select {
		case <-ctx.Done():
			o.shutdown()
			return nil
		case in := <-o.intents:
			in.reply <- in.fn(ctx)
		case msg, ok := <-o.st.inbound:
			if !ok {
				o.relayLost(ctx)
				break
			}
			o.dispatch(ctx, msg)
		case ev := <-o.mediaEvents:
			o.handleMediaEvent(ctx, ev)
		case r := <-o.reconnects:
			o.handleReconnect(ctx, r)
		}
		o.publishView()
	}
}

// Started is closed once Run is processing events.
func (o *Orchestrator) Started() <-chan struct{} { return o.started }

// Done is closed when Run returns.
func (o *Orchestrator) Done() <-chan struct{} { return o.done }

func (o *Orchestrator) Status() connection.Status { return o.monitor.Status() }
func (o *Orchestrator) SubscribeStatus() *watch.Subscription[connection.Status] {
	return o.monitor.Subscribe()
}

func (o *Orchestrator) Quality() quality.Quality { return o.quality.Load() }
func (o *Orchestrator) SubscribeQuality() *watch.Subscription[quality.Quality] {
	return o.quality.Subscribe()
}

func (o *Orchestrator) View() View                               { return o.view.Load() }
func (o *Orchestrator) SubscribeView() *watch.Subscription[View] { return o.view.Subscribe() }

// do runs fn on the loop goroutine and returns its result.
func (o *Orchestrator) do(ctx context.Context, fn func(ctx context.Context) error) error {
	in := intent{fn: fn, reply: make(chan error, 1)}
	select {
	case o.intents <- in:
	case <-ctx.Done():
		return ctx.Err()
	case <-o.done:
		return ErrStopped
	}
	select {
	case err := <-in.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-o.done:
		return ErrStopped
	}
}

// Connect dials the relay, joins roomID as peerID and asks for the roster.
// Empty arguments fall back to the configured defaults.
func (o *Orchestrator) Connect(ctx context.Context, roomID, peerID string) error {
	return o.do(ctx, func(context.Context) error {
		return o.connect(ctx, roomID, peerID)
	})
}

// StartCall calls every selected peer.
func (o *Orchestrator) StartCall(ctx context.Context) error {
	return o.do(ctx, o.startCall)
}

func (o *Orchestrator) EndCall(ctx context.Context) error {
	return o.do(ctx, func(ctx context.Context) error {
		if o.st.call == nil {
			return stateErr("end call", ErrNoActiveCall)
		}
		o.teardown(true)
		return nil
	})
}

// ToggleMute flips the mute flag of the active call and returns the new
// value.
func (o *Orchestrator) ToggleMute(ctx context.Context) (bool, error) {
	var muted bool
	err := o.do(ctx, func(ctx context.Context) error {
		if o.st.call == nil {
			return stateErr("toggle mute", ErrNoActiveCall)
		}
		o.st.muted = !o.st.muted
		o.st.call.media.SetMuted(o.st.muted)
		muted = o.st.muted
		return nil
	})
	return muted, err
}

// SelectPeer toggles whether id is called by the next StartCall.
func (o *Orchestrator) SelectPeer(ctx context.Context, id string) error {
	return o.do(ctx, func(ctx context.Context) error {
		if o.st.room == nil {
			return stateErr("select peer", ErrNotConnected)
		}
		if id == o.st.peerID || !o.st.room.Has(id) {
			return stateErr("select peer", ErrUnknownPeer)
		}
		if o.st.selected[id] {
			delete(o.st.selected, id)
		} else {
			o.st.selected[id] = true
		}
		return nil
	})
}

// Leave ends any call, tells the relay and closes the connection.
func (o *Orchestrator) Leave(ctx context.Context) error {
	return o.do(ctx, func(ctx context.Context) error {
		if o.st.client == nil && !o.st.reconnecting {
			return stateErr("leave", ErrNotConnected)
		}
		o.leave()
		return nil
	})
}

// HandleError routes err by its callerr.Kind. It returns err when the
// failure is surfaced to the user and nil when it was absorbed.
func (o *Orchestrator) HandleError(ctx context.Context, err error) error {
	var out error
	if doErr := o.do(ctx, func(loopCtx context.Context) error {
		out = o.handleError(loopCtx, err)
		return nil
	}); doErr != nil {
		return doErr
	}
	return out
}

func (o *Orchestrator) shutdown() {
	o.teardown(true)
	if o.st.client != nil {
		o.detachClient()
	}
	o.st.episode++
	o.st.reconnecting = false
}
