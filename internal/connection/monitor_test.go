package connection

import (
	"context"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultStatus(t *testing.T) {
	st := NewMonitor().Status()

	assert.Equal(t, Disconnected, st.State)
	assert.Equal(t, webrtc.SignalingStateStable, st.SignalingState)
	assert.Equal(t, webrtc.ICEConnectionStateNew, st.ICEState)
	assert.Equal(t, webrtc.PeerConnectionStateNew, st.PeerState)
	assert.Empty(t, st.LastError)
}

func TestICEStateDrivesTopLevelState(t *testing.T) {
	cases := []struct {
		start State
		ice   webrtc.ICEConnectionState
		want  State
	}{
		{Disconnected, webrtc.ICEConnectionStateChecking, Connecting},
		{Connecting, webrtc.ICEConnectionStateConnected, Connected},
		{Connected, webrtc.ICEConnectionStateDisconnected, Disconnected},
		{Connected, webrtc.ICEConnectionStateFailed, Failed},
		// Sub-states without a mapping leave State untouched.
		{Connected, webrtc.ICEConnectionStateCompleted, Connected},
		{Reconnecting, webrtc.ICEConnectionStateNew, Reconnecting},
		{Connecting, webrtc.ICEConnectionStateClosed, Connecting},
	}

	for _, tc := range cases {
		t.Run(tc.start.String()+"/"+tc.ice.String(), func(t *testing.T) {
			m := NewMonitor()
			m.UpdateState(tc.start)
			m.UpdateICEState(tc.ice)

			st := m.Status()
			assert.Equal(t, tc.want, st.State)
			assert.Equal(t, tc.ice, st.ICEState)
		})
	}
}

func TestSetErrorAlwaysFails(t *testing.T) {
	for _, start := range []State{Disconnected, Connecting, Connected, Reconnecting, Failed} {
		m := NewMonitor()
		m.UpdateState(start)
		m.SetError("relay lost")

		st := m.Status()
		assert.Equal(t, Failed, st.State, "from %s", start)
		assert.Equal(t, "relay lost", st.LastError)
	}
}

func TestSubStatesDoNotTouchState(t *testing.T) {
	m := NewMonitor()
	m.UpdateState(Connected)
	m.UpdatePeerState(webrtc.PeerConnectionStateDisconnected)
	m.UpdateSignalingState(webrtc.SignalingStateHaveLocalOffer)

	st := m.Status()
	assert.Equal(t, Connected, st.State)
	assert.Equal(t, webrtc.PeerConnectionStateDisconnected, st.PeerState)
	assert.Equal(t, webrtc.SignalingStateHaveLocalOffer, st.SignalingState)
}

func TestSubscriberSeesProgression(t *testing.T) {
	m := NewMonitor()
	sub := m.Subscribe()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	m.UpdateICEState(webrtc.ICEConnectionStateChecking)
	st, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, Connecting, st.State)

	m.UpdateICEState(webrtc.ICEConnectionStateConnected)
	st, err = sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, Connected, st.State)
}

func TestClearErrorAndReset(t *testing.T) {
	m := NewMonitor()
	m.SetError("boom")
	m.ClearError()
	assert.Empty(t, m.Status().LastError)
	assert.Equal(t, Failed, m.Status().State)

	m.Reset()
	assert.Equal(t, DefaultStatus(), m.Status())
}

func TestStateMarshalText(t *testing.T) {
	b, err := Reconnecting.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "Reconnecting", string(b))
}
