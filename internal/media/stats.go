package media

import (
	"context"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/eisenzopf/webrtc-client/internal/quality"
)

// statsState remembers the previous inbound byte count so bitrate can be
// computed as a rate between samples.
type statsState struct {
	mu        sync.Mutex
	lastBytes uint64
	lastAt    time.Time
}

// Stats condenses the PeerConnection's report into a quality snapshot. It
// returns quality.ErrStatsUnavailable until media or a candidate pair RTT is
// present.
func (s *Session) Stats(ctx context.Context) (quality.Snapshot, error) {
	if err := s.check(ctx); err != nil {
		return quality.Snapshot{}, err
	}
	snap, ok := s.stats.fold(s.pc.GetStats(), time.Now())
	if !ok {
		return quality.Snapshot{}, quality.ErrStatsUnavailable
	}
	snap.AudioLevelDB = s.meter.Level()
	return snap, nil
}

func (st *statsState) fold(report webrtc.StatsReport, now time.Time) (quality.Snapshot, bool) {
	var (
		snap        quality.Snapshot
		found       bool
		haveRTT     bool
		pairRTT     float64
		remoteLoss  float64
		haveRemote  bool
		received    uint64
		lost        int64
		bytes       uint64
		haveInbound bool
	)

	for _, stat := range report {
		switch v := stat.(type) {
		case webrtc.InboundRTPStreamStats:
			if v.Kind != "audio" {
				continue
			}
			haveInbound = true
			received += uint64(v.PacketsReceived)
			lost += int64(v.PacketsLost)
			bytes += v.BytesReceived
			snap.Jitter = seconds(v.Jitter)
		case webrtc.RemoteInboundRTPStreamStats:
			if v.Kind != "audio" {
				continue
			}
			haveRemote = true
			if v.RoundTripTime > 0 {
				snap.RoundTripTime = seconds(v.RoundTripTime)
				haveRTT = true
			}
			remoteLoss = v.FractionLost * 100
		case webrtc.ICECandidatePairStats:
			if v.Nominated && v.CurrentRoundTripTime > 0 {
				pairRTT = v.CurrentRoundTripTime
			}
		}
	}

	if !haveRTT && pairRTT > 0 {
		snap.RoundTripTime = seconds(pairRTT)
		haveRTT = true
	}
	found = haveRTT || haveInbound || haveRemote

	switch {
	case haveInbound && received+uint64(max(lost, 0)) > 0:
		l := float64(max(lost, 0))
		snap.PacketLossPct = l / (float64(received) + l) * 100
	case haveRemote:
		snap.PacketLossPct = remoteLoss
	}

	st.mu.Lock()
	if haveInbound && !st.lastAt.IsZero() && bytes >= st.lastBytes {
		if dt := now.Sub(st.lastAt).Seconds(); dt > 0 {
			snap.BitrateKbps = float64(bytes-st.lastBytes) * 8 / 1000 / dt
		}
	}
	if haveInbound {
		st.lastBytes, st.lastAt = bytes, now
	}
	st.mu.Unlock()

	return snap, found
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
