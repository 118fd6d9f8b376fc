// Package quality turns periodic transport statistics into a bounded call
// quality score.
package quality

import (
	"math"
	"time"
)

const (
	MinAudioLevelDB = -127.0
	MaxAudioLevelDB = 0.0
)

// Quality is one published reading. Score is always Score(RoundTripTimeMs,
// JitterMs, PacketLossPct); it is never set on its own.
type Quality struct {
	RoundTripTimeMs float64 `json:"round_trip_time_ms"`
	JitterMs        float64 `json:"jitter_ms"`
	PacketLossPct   float64 `json:"packet_loss_pct"`
	AudioLevelDB    float64 `json:"audio_level_db"`
	BitrateKbps     float64 `json:"bitrate_kbps"`
	Score           uint8   `json:"quality_score"`
}

// Default is the reading published before the first successful sample.
func Default() Quality {
	return Quality{
		AudioLevelDB: MinAudioLevelDB,
		Score:        Score(0, 0, 0),
	}
}

// Snapshot is the raw engine statistics the score is derived from.
type Snapshot struct {
	RoundTripTime time.Duration
	Jitter        time.Duration
	PacketLossPct float64
	AudioLevelDB  float64
	BitrateKbps   float64
}

// FromSnapshot clamps the raw values into their documented ranges and
// computes the score.
func FromSnapshot(s Snapshot) Quality {
	q := Quality{
		RoundTripTimeMs: durationMs(s.RoundTripTime),
		JitterMs:        durationMs(s.Jitter),
		PacketLossPct:   clamp(s.PacketLossPct, 0, 100),
		AudioLevelDB:    clamp(s.AudioLevelDB, MinAudioLevelDB, MaxAudioLevelDB),
		BitrateKbps:     math.Max(0, s.BitrateKbps),
	}
	q.Score = Score(q.RoundTripTimeMs, q.JitterMs, q.PacketLossPct)
	return q
}

// Score sums three independent bands. The lowest band in each scores above
// zero, so the result is always in [40, 100].
func Score(rttMs, jitterMs, lossPct float64) uint8 {
	var rtt uint8
	switch {
	case rttMs < 150:
		rtt = 40
	case rttMs < 300:
		rtt = 30
	default:
		rtt = 20
	}

	var jitter uint8
	switch {
	case jitterMs < 30:
		jitter = 20
	case jitterMs < 50:
		jitter = 15
	default:
		jitter = 10
	}

	var loss uint8
	switch {
	case lossPct < 1:
		loss = 40
	case lossPct < 3:
		loss = 30
	case lossPct < 5:
		loss = 20
	default:
		loss = 10
	}

	return rtt + jitter + loss
}

// Class buckets a score for display.
func Class(score uint8) string {
	switch {
	case score >= 90:
		return "excellent"
	case score >= 70:
		return "good"
	case score >= 50:
		return "fair"
	default:
		return "poor"
	}
}

func durationMs(d time.Duration) float64 {
	if d < 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Min(hi, math.Max(lo, v))
}
