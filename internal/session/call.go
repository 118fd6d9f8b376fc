package session

import (
	"context"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/eisenzopf/webrtc-client/internal/audio"
	"github.com/eisenzopf/webrtc-client/internal/callerr"
	"github.com/eisenzopf/webrtc-client/internal/connection"
	"github.com/eisenzopf/webrtc-client/internal/media"
	"github.com/eisenzopf/webrtc-client/internal/metrics"
	"github.com/eisenzopf/webrtc-client/internal/quality"
	"github.com/eisenzopf/webrtc-client/internal/room"
	"github.com/eisenzopf/webrtc-client/internal/signaling"
)

// call is the active media session and everything bound to its lifetime.
type call struct {
	media   MediaSession
	capture *audio.Capture
	sampler *quality.Monitor
	cancel  context.CancelFunc

	// remote is empty until the callee is known. A caller learns it from
	// the first accepting CallResponse or the first Offer.
	remote  string
	caller  bool
	targets []string
}

func (c *call) concerns(peer string) bool {
	if c.remote != "" {
		return peer == c.remote
	}
	for _, t := range c.targets {
		if t == peer {
			return true
		}
	}
	return false
}

func stateErr(op string, err error) error {
	return callerr.Wrap(callerr.KindState, op, err)
}

func (o *Orchestrator) connect(ctx context.Context, roomID, peerID string) error {
	if roomID == "" {
		roomID = o.cfg.RoomID
	}
	if peerID == "" {
		peerID = o.cfg.PeerID
	}
	if roomID == "" || peerID == "" {
		return stateErr("connect", fmt.Errorf("room and peer id are required"))
	}
	if o.st.client != nil || o.st.reconnecting {
		if o.st.roomID == roomID && o.st.peerID == peerID {
			return nil
		}
		return stateErr("connect", ErrAlreadyConnected)
	}
	if o.dialer == nil {
		return stateErr("connect", ErrNotConnected)
	}

	o.st.episode++
	o.st.reconnectAttempts = 0

	dialCtx, cancel := context.WithTimeout(ctx, o.cfg.DialTimeout)
	client, err := o.dialer.Dial(dialCtx, o.cfg.RelayURL)
	cancel()
	if err != nil {
		err = callerr.Transport("connect", err)
		o.surface(err)
		return err
	}

	o.st.roomID = roomID
	o.st.peerID = peerID
	o.st.room = room.New(roomID, o.cfg.RoomCapacity)
	o.st.selected = map[string]bool{}
	o.attachClient(client)
	o.log.Info().Str("room_id", roomID).Str("peer_id", peerID).Msg("joining room")
	if err := o.join(); err != nil {
		o.detachClient()
		o.surface(err)
		return err
	}
	if o.st.call == nil {
		o.monitor.Reset()
	}
	o.st.errMsg = ""
	return nil
}

// join announces this peer and asks for the roster on the current client.
func (o *Orchestrator) join() error {
	if err := o.send(signaling.Join{RoomID: o.st.roomID, PeerID: o.st.peerID}); err != nil {
		return err
	}
	return o.send(signaling.RequestPeerList{})
}

func (o *Orchestrator) attachClient(c SignalingConn) {
	o.st.client = c
	o.st.inbound = c.Messages()
}

// detachClient closes the relay connection without starting a reconnect.
func (o *Orchestrator) detachClient() {
	c := o.st.client
	o.st.client = nil
	o.st.inbound = nil
	if c != nil {
		_ = c.Close()
	}
}

func (o *Orchestrator) send(msg signaling.Message) error {
	if o.st.client == nil {
		return callerr.Transport(fmt.Sprintf("send %s", msg.Type()), ErrNotConnected)
	}
	return o.st.client.Send(msg)
}

func (o *Orchestrator) startCall(ctx context.Context) error {
	if o.st.client == nil {
		return stateErr("start call", ErrNotConnected)
	}
	if o.st.call != nil {
		return stateErr("start call", ErrCallInProgress)
	}
	targets := o.selectedPeers()
	if len(targets) == 0 {
		return stateErr("start call", ErrNoPeerSelected)
	}

	if err := o.openCall(ctx, true, "", targets); err != nil {
		return o.handleError(ctx, err)
	}
	err := o.send(signaling.CallRequest{RoomID: o.st.roomID, FromPeer: o.st.peerID, ToPeers: targets})
	if err != nil {
		o.teardown(false)
		return o.handleError(ctx, err)
	}
	o.metrics.Inc(metrics.CallsStarted)
	o.log.Info().Strs("to_peers", targets).Msg("call requested")
	return nil
}

// openCall creates the media session, attaches capture and starts quality
// sampling. The caller must have checked that no call is active.
func (o *Orchestrator) openCall(ctx context.Context, caller bool, remote string, targets []string) error {
	if o.media == nil {
		return callerr.Engine("new media session", fmt.Errorf("no media engine configured"))
	}
	ms, err := o.media.NewSession(ctx, o.mediaEvents)
	if err != nil {
		return callerr.Wrap(callerr.KindEngine, "new media session", err)
	}

	callCtx, cancel := context.WithCancel(o.st.runCtx)
	c := &call{
		media:   ms,
		cancel:  cancel,
		remote:  remote,
		caller:  caller,
		targets: targets,
	}
	log := o.log.With().Str("session_id", ms.ID()).Logger()

	if o.capture != nil {
		id := ms.ID()
		capture, err := audio.StartCapture(callCtx, o.capture, ms.LocalAudio(), audio.CaptureOptions{
			Logger:  log,
			Metrics: o.metrics,
			OnError: func(err error) {
				select {
				case o.mediaEvents <- media.Event{Kind: media.EventAudioError, SessionID: id, Err: err}:
				default:
				}
			},
		})
		if err != nil {
			// Audio failures never block a call.
			o.metrics.Inc(metrics.AudioErrors)
			log.Warn().Err(err).Msg("capture unavailable; continuing without microphone")
		} else {
			c.capture = capture
		}
	}

	o.st.muted = false
	o.st.lastICE = webrtc.ICEConnectionStateNew
	o.st.call = c
	o.quality.Store(quality.Default())
	qm := quality.NewMonitor(ms, quality.Options{
		Interval: o.cfg.QualityInterval,
		Logger:   log,
		Metrics:  o.metrics,
		Value:    o.quality,
	})
	c.sampler = qm
	go qm.Run(callCtx)

	log.Info().Bool("caller", caller).Msg("media session opened")
	return nil
}

// teardown releases the active call, if any. Capture stops before the media
// session closes so no frame is written to a closed track.
func (o *Orchestrator) teardown(sendEndCall bool) {
	c := o.st.call
	if c == nil {
		return
	}
	o.st.call = nil
	c.cancel()
	c.sampler.Stop()
	if c.capture != nil {
		c.capture.Stop()
	}
	if err := c.media.Close(); err != nil {
		o.log.Debug().Err(err).Msg("closing media session")
	}
	if c.remote != "" && o.st.room != nil {
		o.st.room.Disconnect(o.st.peerID, c.remote)
	}
	o.st.muted = false
	o.st.lastICE = webrtc.ICEConnectionStateNew
	o.monitor.Reset()
	if o.st.client == nil && o.st.reconnecting {
		o.monitor.UpdateState(connection.Reconnecting)
	}
	o.quality.Store(quality.Default())
	o.metrics.Inc(metrics.CallsEnded)

	if sendEndCall && o.st.client != nil {
		if err := o.send(signaling.EndCall{RoomID: o.st.roomID, PeerID: o.st.peerID}); err != nil {
			o.log.Warn().Err(err).Msg("sending end call")
		}
	}
	o.log.Info().Str("remote_peer", c.remote).Msg("call ended")
}

func (o *Orchestrator) leave() {
	o.teardown(true)
	if o.st.client != nil {
		if err := o.send(signaling.Disconnect{RoomID: o.st.roomID, PeerID: o.st.peerID}); err != nil {
			o.log.Warn().Err(err).Msg("sending disconnect")
		}
		o.detachClient()
	}
	o.st.episode++
	o.st.reconnecting = false
	o.st.reconnectAttempts = 0
	o.st.room = nil
	o.st.selected = map[string]bool{}
	o.st.errMsg = ""
	o.monitor.Reset()
	o.log.Info().Str("room_id", o.st.roomID).Msg("left room")
}

// surface records err as the user-visible error message.
func (o *Orchestrator) surface(err error) {
	o.st.errMsg = err.Error()
}
