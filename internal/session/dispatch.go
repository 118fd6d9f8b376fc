package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/eisenzopf/webrtc-client/internal/callerr"
	"github.com/eisenzopf/webrtc-client/internal/media"
	"github.com/eisenzopf/webrtc-client/internal/metrics"
	"github.com/eisenzopf/webrtc-client/internal/signaling"
)

var errRelay = errors.New("relay reported an error")

// dispatch applies one inbound relay message. The switch is exhaustive over
// signaling.Message.
func (o *Orchestrator) dispatch(ctx context.Context, msg signaling.Message) {
	log := o.log.With().Str("message_type", string(msg.Type())).Logger()

	var err error
	switch m := msg.(type) {
	case signaling.PeerList:
		err = o.onPeerList(m)
	case signaling.CallRequest:
		err = o.onCallRequest(ctx, m)
	case signaling.CallResponse:
		err = o.onCallResponse(ctx, m)
	case signaling.Offer:
		err = o.onOffer(ctx, m)
	case signaling.Answer:
		err = o.onAnswer(ctx, m)
	case signaling.IceCandidate:
		o.onIceCandidate(ctx, m)
	case signaling.ConnectionLost:
		o.onConnectionLost(m)
	case signaling.EndCall:
		if o.st.call != nil && m.PeerID != o.st.peerID && o.st.call.concerns(m.PeerID) {
			log.Info().Str("peer_id", m.PeerID).Msg("remote ended call")
			o.teardown(false)
		}
	case signaling.Error:
		err = callerr.Wrap(callerr.KindSignaling, "relay", fmt.Errorf("%w: %s", errRelay, m.Message))
	case signaling.MediaError:
		log.Warn().Str("peer_id", m.PeerID).Str("error_type", m.ErrorType).Msg(m.Description)
		o.st.errMsg = fmt.Sprintf("%s: %s", m.ErrorType, m.Description)
	case signaling.Join, signaling.Disconnect, signaling.RequestPeerList, signaling.InitiateCall:
		log.Debug().Msg("ignoring client-to-relay message")
	default:
		log.Warn().Msg("unhandled message")
	}
	if err != nil {
		_ = o.handleError(ctx, err)
	}
}

func (o *Orchestrator) onPeerList(m signaling.PeerList) error {
	if o.st.room == nil {
		return nil
	}
	err := o.st.room.ReplacePeers(m.Peers)
	for id := range o.st.selected {
		if !o.st.room.Has(id) {
			delete(o.st.selected, id)
		}
	}
	return err
}

func (o *Orchestrator) onCallRequest(ctx context.Context, m signaling.CallRequest) error {
	if m.FromPeer == "" || m.FromPeer == o.st.peerID {
		return nil
	}
	if o.st.call == nil {
		if err := o.openCall(ctx, false, m.FromPeer, nil); err != nil {
			return err
		}
	}
	return o.send(signaling.CallResponse{
		RoomID:   o.st.roomID,
		FromPeer: o.st.peerID,
		ToPeer:   m.FromPeer,
		Accepted: true,
	})
}

func (o *Orchestrator) onCallResponse(ctx context.Context, m signaling.CallResponse) error {
	c := o.st.call
	if c == nil || !c.caller || m.ToPeer != o.st.peerID {
		return nil
	}
	if !m.Accepted {
		o.log.Info().Str("peer_id", m.FromPeer).Msg("call declined")
		return nil
	}
	if c.remote != "" {
		return nil
	}
	c.remote = m.FromPeer
	sdp, err := c.media.CreateOffer(ctx)
	if err != nil {
		return callerr.Wrap(callerr.KindEngine, "create offer", err)
	}
	return o.send(signaling.Offer{RoomID: o.st.roomID, SDP: sdp, FromPeer: o.st.peerID, ToPeer: c.remote})
}

func (o *Orchestrator) onOffer(ctx context.Context, m signaling.Offer) error {
	if m.ToPeer != "" && m.ToPeer != o.st.peerID {
		return nil
	}
	if o.st.call == nil {
		if err := o.openCall(ctx, false, m.FromPeer, nil); err != nil {
			return err
		}
	}
	c := o.st.call
	if c.remote == "" {
		c.remote = m.FromPeer
	}
	if m.FromPeer != c.remote {
		o.log.Debug().Str("peer_id", m.FromPeer).Msg("ignoring offer from peer outside the call")
		return nil
	}
	answer, err := c.media.HandleOffer(ctx, m.SDP)
	if err != nil {
		return callerr.Wrap(kindOr(err, callerr.KindEngine), "handle offer", err)
	}
	return o.send(signaling.Answer{RoomID: o.st.roomID, SDP: answer, FromPeer: o.st.peerID, ToPeer: m.FromPeer})
}

func (o *Orchestrator) onAnswer(ctx context.Context, m signaling.Answer) error {
	c := o.st.call
	if c == nil || m.FromPeer != c.remote {
		return nil
	}
	if err := c.media.HandleAnswer(ctx, m.SDP); err != nil {
		return callerr.Wrap(kindOr(err, callerr.KindEngine), "handle answer", err)
	}
	return nil
}

func (o *Orchestrator) onIceCandidate(ctx context.Context, m signaling.IceCandidate) {
	c := o.st.call
	if c == nil || (c.remote != "" && m.FromPeer != c.remote) {
		o.metrics.Inc(metrics.ICECandidatesDropped)
		return
	}
	if err := c.media.AddICECandidate(ctx, m.Candidate); err != nil {
		o.metrics.Inc(metrics.ICECandidatesDropped)
		o.log.Debug().Err(err).Str("peer_id", m.FromPeer).Msg("dropping remote candidate")
	}
}

func (o *Orchestrator) onConnectionLost(m signaling.ConnectionLost) {
	if o.st.room != nil {
		_ = o.st.room.RemovePeer(m.PeerID)
	}
	delete(o.st.selected, m.PeerID)
	// Only the loss of our remote (or a pending call target) ends the call.
	if o.st.call != nil && o.st.call.concerns(m.PeerID) {
		o.log.Info().Str("peer_id", m.PeerID).Msg("remote peer lost connection")
		o.teardown(true)
		o.st.errMsg = fmt.Sprintf("connection to %s lost", m.PeerID)
	}
}

// handleMediaEvent applies a callback from the active media session. Events
// from sessions that have since been torn down are dropped.
func (o *Orchestrator) handleMediaEvent(ctx context.Context, ev media.Event) {
	c := o.st.call
	if c == nil || ev.SessionID != c.media.ID() {
		return
	}
	switch ev.Kind {
	case media.EventICEState:
		o.st.lastICE = ev.ICEState
		o.monitor.UpdateICEState(ev.ICEState)
		if c.remote != "" && o.st.room != nil {
			switch ev.ICEState {
			case webrtc.ICEConnectionStateConnected, webrtc.ICEConnectionStateCompleted:
				if err := o.st.room.Connect(o.st.peerID, c.remote); err != nil {
					o.log.Debug().Err(err).Msg("marking pair connected")
				}
			case webrtc.ICEConnectionStateDisconnected, webrtc.ICEConnectionStateFailed:
				o.st.room.Disconnect(o.st.peerID, c.remote)
			}
		}
	case media.EventPeerState:
		o.monitor.UpdatePeerState(ev.PeerState)
	case media.EventSignalingState:
		o.monitor.UpdateSignalingState(ev.SignalingState)
	case media.EventLocalCandidate:
		if c.remote == "" || o.st.client == nil {
			o.metrics.Inc(metrics.ICECandidatesDropped)
			return
		}
		err := o.send(signaling.IceCandidate{
			RoomID:    o.st.roomID,
			Candidate: ev.Candidate,
			FromPeer:  o.st.peerID,
			ToPeer:    c.remote,
		})
		if err != nil {
			o.metrics.Inc(metrics.ICECandidatesDropped)
			o.log.Debug().Err(err).Msg("sending local candidate")
		}
	case media.EventRemoteTrack:
		o.log.Info().Str("remote_peer", c.remote).Msg("remote audio started")
	case media.EventAudioError:
		_ = o.handleError(ctx, callerr.Wrap(kindOr(ev.Err, callerr.KindAudio), "audio", ev.Err))
	}
}

// kindOr keeps an existing classification, falling back to def.
func kindOr(err error, def callerr.Kind) callerr.Kind {
	if k := callerr.KindOf(err); k != callerr.KindUnknown {
		return k
	}
	return def
}
