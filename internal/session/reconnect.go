package session

import (
	"context"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/eisenzopf/webrtc-client/internal/callerr"
	"github.com/eisenzopf/webrtc-client/internal/connection"
	"github.com/eisenzopf/webrtc-client/internal/metrics"
)

type reconnectResult struct {
	episode uint64
	client  SignalingConn
	err     error
}

// handleError routes err by kind and returns it when it was surfaced to the
// user, nil when it was absorbed.
func (o *Orchestrator) handleError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	kind := callerr.KindOf(err)
	log := o.log.With().Err(err).Str("kind", kind.String()).Logger()

	switch kind {
	case callerr.KindTransport:
		log.Warn().Msg("relay connection failed")
		o.startReconnect(ctx, err)
		return err
	case callerr.KindEngine:
		log.Error().Msg("media engine failure; ending call")
		o.teardown(true)
		o.monitor.SetError(err.Error())
		o.surface(err)
		return err
	case callerr.KindAudio:
		o.metrics.Inc(metrics.AudioErrors)
		log.Warn().Msg("audio failure; continuing without audio")
		return nil
	case callerr.KindProtocol:
		log.Debug().Msg("dropping invalid message")
		return nil
	case callerr.KindReconnectExhausted:
		log.Error().Msg("giving up on relay")
		o.monitor.SetError(err.Error())
		o.surface(err)
		return err
	case callerr.KindState:
		return err
	default:
		// Room, Signaling and anything unclassified.
		log.Warn().Msg("call error")
		o.surface(err)
		return err
	}
}

// relayLost is called when the client's message stream closes.
func (o *Orchestrator) relayLost(ctx context.Context) {
	cause := ErrRelayClosed
	if o.st.client != nil {
		if err := o.st.client.Err(); err != nil {
			cause = err
		}
	}
	o.detachClient()
	_ = o.handleError(ctx, callerr.Transport("relay", cause))
}

func (o *Orchestrator) startReconnect(ctx context.Context, cause error) {
	o.detachClient()
	if o.st.reconnecting {
		return
	}
	if o.st.room == nil {
		o.surface(cause)
		return
	}
	if o.st.call != nil {
		o.monitor.SetError("relay connection lost: " + cause.Error())
	}
	o.monitor.UpdateState(connection.Reconnecting)
	o.st.reconnecting = true
	o.st.reconnectAttempts = 0
	o.st.episode++
	o.surface(cause)
	o.scheduleAttempt(ctx)
}

// scheduleAttempt starts one delayed dial, or gives up once the attempt
// budget for this episode is spent.
func (o *Orchestrator) scheduleAttempt(ctx context.Context) {
	if o.st.reconnectAttempts >= o.cfg.ReconnectMaxAttempts {
		o.st.reconnecting = false
		o.st.episode++
		o.metrics.Inc(metrics.ReconnectExhausted)
		_ = o.handleError(ctx, callerr.Wrap(callerr.KindReconnectExhausted, "reconnect", ErrMaxAttemptsExceeded))
		return
	}
	o.st.reconnectAttempts++
	o.metrics.Inc(metrics.ReconnectAttempts)
	o.log.Info().
		Int("attempt", o.st.reconnectAttempts).
		Int("max_attempts", o.cfg.ReconnectMaxAttempts).
		Msg("reconnecting to relay")

	episode := o.st.episode
	delay := o.cfg.ReconnectDelay
	timeout := o.cfg.DialTimeout
	url := o.cfg.RelayURL
	dialer := o.dialer
	go func() {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		dialCtx, cancel := context.WithTimeout(ctx, timeout)
		client, err := dialer.Dial(dialCtx, url)
		cancel()
		select {
		case o.reconnects <- reconnectResult{episode: episode, client: client, err: err}:
		case <-ctx.Done():
			if client != nil {
				_ = client.Close()
			}
		}
	}()
}

func (o *Orchestrator) handleReconnect(ctx context.Context, r reconnectResult) {
	if r.episode != o.st.episode || !o.st.reconnecting {
		if r.client != nil {
			_ = r.client.Close()
		}
		return
	}
	if r.err != nil {
		o.log.Warn().Err(r.err).Int("attempt", o.st.reconnectAttempts).Msg("reconnect attempt failed")
		o.scheduleAttempt(ctx)
		return
	}

	o.attachClient(r.client)
	if err := o.join(); err != nil {
		o.log.Warn().Err(err).Msg("rejoin failed")
		o.detachClient()
		o.scheduleAttempt(ctx)
		return
	}
	o.log.Info().Int("attempts", o.st.reconnectAttempts).Msg("relay reconnected")
	o.st.reconnectAttempts = 0
	o.st.reconnecting = false
	o.monitor.ClearError()
	if o.st.call != nil && iceUp(o.st.lastICE) {
		o.monitor.UpdateState(connection.Connected)
	} else {
		o.monitor.UpdateState(connection.Disconnected)
	}
	o.st.errMsg = ""
	o.metrics.Inc(metrics.ReconnectSuccess)
}

func iceUp(s webrtc.ICEConnectionState) bool {
	return s == webrtc.ICEConnectionStateConnected || s == webrtc.ICEConnectionStateCompleted
}
