package audio

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/rs/zerolog"

	"github.com/eisenzopf/webrtc-client/internal/callerr"
	"github.com/eisenzopf/webrtc-client/internal/metrics"
)

const DefaultPlayerQueue = 50

// RTPReader is the read side of an inbound track.
type RTPReader interface {
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

type PlayerOptions struct {
	// QueueFrames bounds the decoded frames waiting for the device. When
	// full the oldest frame is discarded.
	QueueFrames int
	Cadence     time.Duration
	Meter       *LevelMeter
	Logger      zerolog.Logger
	Metrics     *metrics.Metrics
}

// Player feeds a PlaybackDevice one frame per cadence tick, substituting
// silence when no decoded frame is queued.
type Player struct {
	dev     PlaybackDevice
	frames  chan []int16
	cadence time.Duration
	silence []int16
	meter   *LevelMeter
	log     zerolog.Logger
	metrics *metrics.Metrics
}

func NewPlayer(dev PlaybackDevice, opts PlayerOptions) *Player {
	if opts.QueueFrames <= 0 {
		opts.QueueFrames = DefaultPlayerQueue
	}
	if opts.Cadence <= 0 {
		opts.Cadence = FrameDuration
	}
	return &Player{
		dev:     dev,
		frames:  make(chan []int16, opts.QueueFrames),
		cadence: opts.Cadence,
		silence: make([]int16, FrameSamples),
		meter:   opts.Meter,
		log:     opts.Logger.With().Str("component", "playback").Logger(),
		metrics: opts.Metrics,
	}
}

// Push queues a decoded frame without blocking.
func (p *Player) Push(pcm []int16) {
	for {
		select {
		case p.frames <- pcm:
			return
		default:
		}
		select {
		case <-p.frames:
		default:
		}
	}
}

// Run renders until ctx is cancelled or the device fails.
func (p *Player) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cadence)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := p.tick(); err != nil {
				return err
			}
		}
	}
}

func (p *Player) tick() (silent bool, err error) {
	pcm := p.silence
	select {
	case pcm = <-p.frames:
	default:
		silent = true
		p.metrics.Inc(metrics.AudioSilenceFrames)
	}
	if err := p.dev.Render(pcm); err != nil {
		p.metrics.Inc(metrics.AudioErrors)
		return silent, callerr.Audio("render", err)
	}
	return silent, nil
}

// Receive decodes packets from src into the player until src ends. Packets
// that fail to decode are skipped.
func (p *Player) Receive(ctx context.Context, src RTPReader, dec *Decoder) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		pkt, _, err := src.ReadRTP()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return callerr.Audio("read rtp", err)
		}
		if len(pkt.Payload) == 0 {
			continue
		}
		pcm, err := dec.Decode(pkt.Payload)
		if err != nil {
			p.metrics.Inc(metrics.AudioErrors)
			p.log.Debug().Err(err).Uint16("seq", pkt.SequenceNumber).Msg("dropping undecodable packet")
			continue
		}
		if p.meter != nil {
			p.meter.Observe(pcm)
		}
		p.Push(pcm)
	}
}
