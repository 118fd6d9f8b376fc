package media

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog"

	"github.com/eisenzopf/webrtc-client/internal/audio"
	"github.com/eisenzopf/webrtc-client/internal/callerr"
	"github.com/eisenzopf/webrtc-client/internal/metrics"
)

var ErrSessionClosed = errors.New("media: session closed")

// Session owns one PeerConnection with a local Opus track for capture and
// plays back the first remote audio track it receives.
//
// Pion callbacks never touch caller state: they publish Events on the
// channel given at construction and return.
type Session struct {
	id      string
	pc      *webrtc.PeerConnection
	track   *webrtc.TrackLocalStaticSample
	events  chan<- Event
	log     zerolog.Logger
	metrics *metrics.Metrics

	playback audio.PlaybackDevice
	meter    *audio.LevelMeter
	muted    atomic.Bool
	stats    statsState

	ctx    context.Context
	cancel context.CancelFunc
	closed chan struct{}
	once   sync.Once

	mu      sync.Mutex
	pending []webrtc.ICECandidateInit
	playing bool
}

type sessionOptions struct {
	iceServers []webrtc.ICEServer
	playback   audio.PlaybackDevice
	log        zerolog.Logger
	metrics    *metrics.Metrics
}

func newSession(api *webrtc.API, events chan<- Event, opts sessionOptions) (*Session, error) {
	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: opts.iceServers})
	if err != nil {
		return nil, callerr.Engine("new peer connection", err)
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: audio.SampleRate, Channels: 2},
		"audio", "voicecall",
	)
	if err != nil {
		_ = pc.Close()
		return nil, callerr.Engine("new audio track", err)
	}
	sender, err := pc.AddTrack(track)
	if err != nil {
		_ = pc.Close()
		return nil, callerr.Engine("add audio track", err)
	}

	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:       id,
		pc:       pc,
		track:    track,
		events:   events,
		log:      opts.log.With().Str("session_id", id).Logger(),
		metrics:  opts.metrics,
		playback: opts.playback,
		meter:    &audio.LevelMeter{},
		ctx:      ctx,
		cancel:   cancel,
		closed:   make(chan struct{}),
	}

	// RTCP must be read for the interceptors to process receiver reports.
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		s.emit(Event{Kind: EventICEState, ICEState: state})
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		s.emit(Event{Kind: EventPeerState, PeerState: state})
	})
	pc.OnSignalingStateChange(func(state webrtc.SignalingState) {
		s.emit(Event{Kind: EventSignalingState, SignalingState: state})
	})
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		s.emit(Event{Kind: EventLocalCandidate, Candidate: c.ToJSON().Candidate})
	})
	pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if remote.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		s.emit(Event{Kind: EventRemoteTrack})
		s.startPlayback(remote)
	})

	return s, nil
}

func (s *Session) ID() string { return s.id }

// PeerConnection exposes the underlying connection for diagnostics.
func (s *Session) PeerConnection() *webrtc.PeerConnection { return s.pc }

// CreateOffer sets and returns the local offer. Candidates are trickled as
// EventLocalCandidate rather than waited for.
func (s *Session) CreateOffer(ctx context.Context) (string, error) {
	if err := s.check(ctx); err != nil {
		return "", err
	}
	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		return "", callerr.Engine("create offer", err)
	}
	if err := s.pc.SetLocalDescription(offer); err != nil {
		return "", callerr.Engine("set local offer", err)
	}
	out, err := EncodeDescription(offer)
	return out, callerr.Engine("encode offer", err)
}

// HandleOffer applies a remote offer and returns the local answer.
func (s *Session) HandleOffer(ctx context.Context, sdp string) (string, error) {
	if err := s.check(ctx); err != nil {
		return "", err
	}
	offer, err := DecodeDescription(sdp, webrtc.SDPTypeOffer)
	if err != nil {
		return "", callerr.Engine("decode offer", err)
	}
	if err := s.pc.SetRemoteDescription(offer); err != nil {
		return "", callerr.Engine("set remote offer", err)
	}
	s.flushPending()

	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return "", callerr.Engine("create answer", err)
	}
	if err := s.pc.SetLocalDescription(answer); err != nil {
		return "", callerr.Engine("set local answer", err)
	}
	out, err := EncodeDescription(answer)
	return out, callerr.Engine("encode answer", err)
}

func (s *Session) HandleAnswer(ctx context.Context, sdp string) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	answer, err := DecodeDescription(sdp, webrtc.SDPTypeAnswer)
	if err != nil {
		return callerr.Engine("decode answer", err)
	}
	if err := s.pc.SetRemoteDescription(answer); err != nil {
		return callerr.Engine("set remote answer", err)
	}
	s.flushPending()
	return nil
}

// AddICECandidate applies a remote candidate. Candidates that arrive before
// the remote description are held until it is set.
func (s *Session) AddICECandidate(ctx context.Context, candidate string) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	init := webrtc.ICECandidateInit{Candidate: candidate}

	s.mu.Lock()
	if s.pc.RemoteDescription() == nil {
		s.pending = append(s.pending, init)
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if err := s.pc.AddICECandidate(init); err != nil {
		return callerr.Engine("add ice candidate", err)
	}
	return nil
}

func (s *Session) flushPending() {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, c := range pending {
		if err := s.pc.AddICECandidate(c); err != nil {
			s.metrics.Inc(metrics.ICECandidatesDropped)
			s.log.Debug().Err(err).Msg("dropping buffered candidate")
		}
	}
}

// LocalAudio is where captured frames are written.
func (s *Session) LocalAudio() audio.FrameSink {
	return trackSink{s: s}
}

// SetMuted stops (or resumes) sending captured frames on the track.
func (s *Session) SetMuted(muted bool) {
	s.muted.Store(muted)
}

func (s *Session) Muted() bool { return s.muted.Load() }

// Close tears the connection down and stops playback. It is idempotent.
func (s *Session) Close() error {
	var err error
	s.once.Do(func() {
		close(s.closed)
		s.cancel()
		err = s.pc.Close()
	})
	return err
}

func (s *Session) check(ctx context.Context) error {
	select {
	case <-s.closed:
		return callerr.Engine("session", ErrSessionClosed)
	default:
	}
	return ctx.Err()
}

func (s *Session) emit(ev Event) {
	ev.SessionID = s.id
	select {
	case s.events <- ev:
	case <-s.closed:
	}
}

func (s *Session) startPlayback(remote *webrtc.TrackRemote) {
	s.mu.Lock()
	if s.playing {
		s.mu.Unlock()
		return
	}
	s.playing = true
	s.mu.Unlock()

	dev := s.playback
	if dev == nil {
		dev = audio.DiscardPlayback{}
	}
	player := audio.NewPlayer(dev, audio.PlayerOptions{Meter: s.meter, Logger: s.log, Metrics: s.metrics})

	go func() {
		if err := player.Receive(s.ctx, remote, audio.NewDecoder()); err != nil {
			s.emit(Event{Kind: EventAudioError, Err: err})
		}
	}()
	go func() {
		if err := player.Run(s.ctx); err != nil {
			s.emit(Event{Kind: EventAudioError, Err: err})
		}
	}()
}

type trackSink struct {
	s *Session
}

func (t trackSink) WriteFrame(f audio.Frame) error {
	select {
	case <-t.s.closed:
		return ErrSessionClosed
	default:
	}
	if t.s.muted.Load() {
		return nil
	}
	if err := t.s.track.WriteSample(pionmedia.Sample{Data: f.Data, Duration: f.Duration}); err != nil {
		return fmt.Errorf("write sample: %w", err)
	}
	return nil
}
