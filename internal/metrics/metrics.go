package metrics

import "sync"

// Counter names. Components increment these by name; the registry is open so
// new counters need no registration step.
const (
	SignalingSent                 = "signaling_sent"
	SignalingReceived             = "signaling_received"
	SignalingDroppedMalformed     = "signaling_dropped_malformed"
	SignalingDroppedRateLimited   = "signaling_dropped_rate_limited"
	SignalingDroppedQueueFull     = "signaling_dropped_queue_full"
	ReconnectAttempts             = "reconnect_attempts"
	ReconnectSuccess              = "reconnect_success"
	ReconnectExhausted            = "reconnect_exhausted"
	CallsStarted                  = "calls_started"
	CallsEnded                    = "calls_ended"
	ICECandidatesDropped          = "ice_candidates_dropped"
	QualitySamples                = "quality_samples"
	QualitySampleFailures         = "quality_sample_failures"
	AudioErrors                   = "audio_errors"
	AudioSilenceFrames            = "audio_silence_frames"
	DevRelayConnections           = "devrelay_connections"
	DevRelayMessagesRouted        = "devrelay_messages_routed"
	DevRelayMessagesUndeliverable = "devrelay_messages_undeliverable"
	DevRelayRoomFull              = "devrelay_room_full"
)

// Metrics is a minimal, concurrency-safe counter registry.
//
// All methods are safe on a nil *Metrics, so components can take an optional
// registry without guarding every call site.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

func (m *Metrics) Inc(name string) {
	m.Add(name, 1)
}

func (m *Metrics) Add(name string, n uint64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.m[name] += n
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]uint64 {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
