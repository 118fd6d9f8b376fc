package media

import "github.com/pion/webrtc/v4"

type EventKind int

const (
	EventICEState EventKind = iota + 1
	EventPeerState
	EventSignalingState
	// EventLocalCandidate carries a gathered candidate to trickle to the
	// remote peer.
	EventLocalCandidate
	EventRemoteTrack
	// EventAudioError reports a playback or capture failure. The call
	// continues without audio.
	EventAudioError
)

func (k EventKind) String() string {
	switch k {
	case EventICEState:
		return "ice_state"
	case EventPeerState:
		return "peer_state"
	case EventSignalingState:
		return "signaling_state"
	case EventLocalCandidate:
		return "local_candidate"
	case EventRemoteTrack:
		return "remote_track"
	case EventAudioError:
		return "audio_error"
	default:
		return "unknown"
	}
}

// Event is an immutable notification from a session's pion callbacks. Only
// the field matching Kind is meaningful.
type Event struct {
	Kind      EventKind
	SessionID string

	ICEState       webrtc.ICEConnectionState
	PeerState      webrtc.PeerConnectionState
	SignalingState webrtc.SignalingState
	Candidate      string
	Err            error
}
