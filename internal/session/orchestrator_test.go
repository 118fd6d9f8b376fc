package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eisenzopf/webrtc-client/internal/callerr"
	"github.com/eisenzopf/webrtc-client/internal/connection"
	"github.com/eisenzopf/webrtc-client/internal/media"
	"github.com/eisenzopf/webrtc-client/internal/metrics"
	"github.com/eisenzopf/webrtc-client/internal/quality"
	"github.com/eisenzopf/webrtc-client/internal/signaling"
)

type harness struct {
	t       *testing.T
	o       *Orchestrator
	dialer  *fakeDialer
	media   *fakeFactory
	metrics *metrics.Metrics
}

func newHarness(t *testing.T, dialer *fakeDialer, configure ...func(*Config)) *harness {
	t.Helper()
	m := metrics.New()
	f := &fakeFactory{}
	cfg := Config{
		RelayURL:        "ws://relay.test",
		RoomID:          "room-1",
		PeerID:          "me",
		ReconnectDelay:  5 * time.Millisecond,
		QualityInterval: time.Hour,
	}
	for _, fn := range configure {
		fn(&cfg)
	}
	o := New(cfg, Options{
		Dialer:  dialer,
		Media:   f,
		Logger:  zerolog.Nop(),
		Metrics: m,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = o.Run(ctx) }()
	<-o.Started()
	t.Cleanup(func() {
		cancel()
		<-o.Done()
	})
	return &harness{t: t, o: o, dialer: dialer, media: f, metrics: m}
}

func (h *harness) connect() *fakeConn {
	h.t.Helper()
	require.NoError(h.t, h.o.Connect(context.Background(), "", ""))
	return h.dialer.Last()
}

// roster delivers a PeerList and waits until the view reflects it.
func (h *harness) roster(c *fakeConn, peers ...string) {
	h.t.Helper()
	c.deliver(signaling.PeerList{Peers: peers})
	eventually(h.t, func() bool { return len(h.o.View().Peers) == len(peers)-1 })
}

// inCallWith makes peer call us and waits for our answer.
func (h *harness) inCallWith(c *fakeConn, peer string) *fakeMedia {
	h.t.Helper()
	c.deliver(signaling.Offer{RoomID: "room-1", SDP: "sdp-" + peer, FromPeer: peer, ToPeer: "me"})
	eventually(h.t, func() bool { return len(sentOf[signaling.Answer](c)) > 0 })
	return h.media.Last()
}

// drainMediaEvents returns once every queued media event has been applied.
func (h *harness) drainMediaEvents() {
	h.t.Helper()
	eventually(h.t, func() bool { return len(h.o.mediaEvents) == 0 })
	require.NoError(h.t, h.o.do(context.Background(), func(context.Context) error { return nil }))
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 2*time.Millisecond)
}

func sentOf[T signaling.Message](c *fakeConn) []T {
	var out []T
	for _, m := range c.Sent() {
		if v, ok := m.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

func TestConnectSendsJoinThenRequestPeerList(t *testing.T) {
	h := newHarness(t, newFakeDialer())
	c := h.connect()

	require.Equal(t, []signaling.Message{
		signaling.Join{RoomID: "room-1", PeerID: "me"},
		signaling.RequestPeerList{},
	}, c.Sent())

	v := h.o.View()
	assert.True(t, v.RelayConnected)
	assert.Equal(t, "room-1", v.RoomID)
	assert.Equal(t, "me", v.PeerID)
	assert.Empty(t, v.Peers)

	// Same identity again is a no-op; a different one is refused.
	require.NoError(t, h.o.Connect(context.Background(), "room-1", "me"))
	err := h.o.Connect(context.Background(), "room-2", "me")
	require.ErrorIs(t, err, ErrAlreadyConnected)
	assert.Equal(t, callerr.KindState, callerr.KindOf(err))
	assert.Equal(t, 1, h.dialer.Calls())
}

func TestConnectFailureIsSurfaced(t *testing.T) {
	h := newHarness(t, newFakeDialer(0))

	err := h.o.Connect(context.Background(), "", "")
	require.ErrorIs(t, err, errDialRefused)
	assert.Equal(t, callerr.KindTransport, callerr.KindOf(err))
	assert.False(t, h.o.View().RelayConnected)
	assert.Contains(t, h.o.View().ErrorMessage, "connection refused")
}

func TestRosterAndSelection(t *testing.T) {
	h := newHarness(t, newFakeDialer())
	c := h.connect()
	h.roster(c, "alice", "me", "bob")

	ctx := context.Background()
	require.NoError(t, h.o.SelectPeer(ctx, "bob"))
	assert.Equal(t, []PeerView{
		{ID: "alice"},
		{ID: "bob", Selected: true},
	}, h.o.View().Peers)

	require.NoError(t, h.o.SelectPeer(ctx, "bob"))
	assert.False(t, h.o.View().Peers[1].Selected)

	assert.ErrorIs(t, h.o.SelectPeer(ctx, "me"), ErrUnknownPeer)
	assert.ErrorIs(t, h.o.SelectPeer(ctx, "carol"), ErrUnknownPeer)

	// A peer dropping out of the roster leaves the selection.
	require.NoError(t, h.o.SelectPeer(ctx, "alice"))
	h.roster(c, "me", "bob")
	assert.Equal(t, []PeerView{{ID: "bob"}}, h.o.View().Peers)
}

func TestRosterOverflowSurfacesRoomError(t *testing.T) {
	h := newHarness(t, newFakeDialer())
	c := h.connect()

	peers := []string{"me"}
	for i := 0; i < DefaultRoomCapacity; i++ {
		peers = append(peers, string(rune('a'+i)))
	}
	c.deliver(signaling.PeerList{Peers: peers})

	eventually(t, func() bool { return h.o.View().ErrorMessage != "" })
	assert.Len(t, h.o.View().Peers, DefaultRoomCapacity-1)
}

func TestStartCallPreconditions(t *testing.T) {
	h := newHarness(t, newFakeDialer())
	ctx := context.Background()

	err := h.o.StartCall(ctx)
	require.ErrorIs(t, err, ErrNotConnected)
	assert.Equal(t, callerr.KindState, callerr.KindOf(err))

	c := h.connect()
	h.roster(c, "me", "bob")
	require.ErrorIs(t, h.o.StartCall(ctx), ErrNoPeerSelected)

	require.NoError(t, h.o.SelectPeer(ctx, "bob"))
	require.NoError(t, h.o.StartCall(ctx))
	require.ErrorIs(t, h.o.StartCall(ctx), ErrCallInProgress)
	assert.Len(t, h.media.Sessions(), 1)
}

func TestCallerSendsOfferOnAcceptance(t *testing.T) {
	h := newHarness(t, newFakeDialer())
	ctx := context.Background()
	c := h.connect()
	h.roster(c, "me", "bob", "carol")
	require.NoError(t, h.o.SelectPeer(ctx, "carol"))
	require.NoError(t, h.o.SelectPeer(ctx, "bob"))

	require.NoError(t, h.o.StartCall(ctx))
	assert.Equal(t, []signaling.CallRequest{
		{RoomID: "room-1", FromPeer: "me", ToPeers: []string{"bob", "carol"}},
	}, sentOf[signaling.CallRequest](c))
	assert.Equal(t, uint64(1), h.metrics.Get(metrics.CallsStarted))

	c.deliver(signaling.CallResponse{RoomID: "room-1", FromPeer: "bob", ToPeer: "me", Accepted: true})
	eventually(t, func() bool { return len(sentOf[signaling.Offer](c)) == 1 })
	assert.Equal(t, signaling.Offer{RoomID: "room-1", SDP: "offer-1", FromPeer: "me", ToPeer: "bob"},
		sentOf[signaling.Offer](c)[0])
	eventually(t, func() bool { return h.o.View().RemotePeer == "bob" })

	// A second acceptor does not get an offer.
	c.deliver(signaling.CallResponse{RoomID: "room-1", FromPeer: "carol", ToPeer: "me", Accepted: true})
	c.deliver(signaling.Answer{RoomID: "room-1", SDP: "answer-1", FromPeer: "bob", ToPeer: "me"})
	m := h.media.Last()
	eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return len(m.answers) == 1
	})
	assert.Len(t, sentOf[signaling.Offer](c), 1)
	assert.Equal(t, "bob", h.o.View().RemotePeer)
}

func TestDeclinedCallResponseChangesNothing(t *testing.T) {
	h := newHarness(t, newFakeDialer())
	ctx := context.Background()
	c := h.connect()
	h.roster(c, "me", "bob")
	require.NoError(t, h.o.SelectPeer(ctx, "bob"))
	require.NoError(t, h.o.StartCall(ctx))

	c.deliver(signaling.CallResponse{RoomID: "room-1", FromPeer: "bob", ToPeer: "me", Accepted: false})
	h.roster(c, "me", "bob", "carol")

	assert.Empty(t, sentOf[signaling.Offer](c))
	assert.True(t, h.o.View().InCall)
	assert.Empty(t, h.o.View().RemotePeer)
}

func TestInboundCallRequestIsAccepted(t *testing.T) {
	h := newHarness(t, newFakeDialer())
	c := h.connect()
	h.roster(c, "me", "bob")

	c.deliver(signaling.CallRequest{RoomID: "room-1", FromPeer: "bob", ToPeers: []string{"me"}})
	eventually(t, func() bool { return len(sentOf[signaling.CallResponse](c)) == 1 })
	assert.Equal(t, signaling.CallResponse{RoomID: "room-1", FromPeer: "me", ToPeer: "bob", Accepted: true},
		sentOf[signaling.CallResponse](c)[0])
	assert.Len(t, h.media.Sessions(), 1)
	assert.True(t, h.o.View().InCall)
	assert.Equal(t, "bob", h.o.View().RemotePeer)

	// With a session already open only the response is repeated.
	c.deliver(signaling.CallRequest{RoomID: "room-1", FromPeer: "bob", ToPeers: []string{"me"}})
	eventually(t, func() bool { return len(sentOf[signaling.CallResponse](c)) == 2 })
	assert.Len(t, h.media.Sessions(), 1)
}

func TestOfferWithoutSessionAnswersAndFollowsICE(t *testing.T) {
	h := newHarness(t, newFakeDialer())
	c := h.connect()
	h.roster(c, "me", "bob")
	assert.Equal(t, connection.Disconnected, h.o.Status().State)

	m := h.inCallWith(c, "bob")
	assert.Equal(t, signaling.Answer{RoomID: "room-1", SDP: "answer-to-sdp-bob", FromPeer: "me", ToPeer: "bob"},
		sentOf[signaling.Answer](c)[0])

	m.emit(media.Event{Kind: media.EventICEState, ICEState: webrtc.ICEConnectionStateChecking})
	eventually(t, func() bool { return h.o.Status().State == connection.Connecting })

	m.emit(media.Event{Kind: media.EventLocalCandidate, Candidate: "candidate:1 1 udp 1 10.0.0.1 5000 typ host"})
	eventually(t, func() bool { return len(sentOf[signaling.IceCandidate](c)) == 1 })
	assert.Equal(t, signaling.IceCandidate{
		RoomID:    "room-1",
		Candidate: "candidate:1 1 udp 1 10.0.0.1 5000 typ host",
		FromPeer:  "me",
		ToPeer:    "bob",
	}, sentOf[signaling.IceCandidate](c)[0])

	c.deliver(signaling.IceCandidate{RoomID: "room-1", Candidate: "candidate:2", FromPeer: "bob", ToPeer: "me"})
	eventually(t, func() bool { return len(m.Candidates()) == 1 })

	m.emit(media.Event{Kind: media.EventICEState, ICEState: webrtc.ICEConnectionStateConnected})
	eventually(t, func() bool { return h.o.Status().State == connection.Connected })
	eventually(t, func() bool {
		p := h.o.View().Peers
		return len(p) == 1 && p[0].Connected
	})
	assert.Equal(t, webrtc.ICEConnectionStateConnected, h.o.Status().ICEState)
}

func TestIceCandidateWithoutSessionIsDropped(t *testing.T) {
	h := newHarness(t, newFakeDialer())
	c := h.connect()

	c.deliver(signaling.IceCandidate{RoomID: "room-1", Candidate: "candidate:1", FromPeer: "bob", ToPeer: "me"})
	eventually(t, func() bool { return h.metrics.Get(metrics.ICECandidatesDropped) == 1 })
	assert.Empty(t, h.media.Sessions())
}

func TestStaleMediaEventsAreIgnored(t *testing.T) {
	h := newHarness(t, newFakeDialer())
	c := h.connect()
	h.roster(c, "me", "bob")
	first := h.inCallWith(c, "bob")
	require.NoError(t, h.o.EndCall(context.Background()))

	first.emit(media.Event{Kind: media.EventICEState, ICEState: webrtc.ICEConnectionStateConnected})
	h.drainMediaEvents()
	assert.Equal(t, connection.Disconnected, h.o.Status().State)
}

func TestEndCallDiscardsInFlightQualitySample(t *testing.T) {
	h := newHarness(t, newFakeDialer(), func(c *Config) { c.QualityInterval = 5 * time.Millisecond })

	entered := make(chan struct{})
	release := make(chan struct{})
	returned := make(chan struct{})
	var once sync.Once
	h.media.stats = func(ctx context.Context) (quality.Snapshot, error) {
		first := false
		once.Do(func() { first = true })
		if !first {
			return quality.Snapshot{}, quality.ErrStatsUnavailable
		}
		close(entered)
		<-release
		defer close(returned)
		return quality.Snapshot{RoundTripTime: 900 * time.Millisecond, Jitter: 200 * time.Millisecond, PacketLossPct: 20}, nil
	}

	c := h.connect()
	h.roster(c, "me", "bob")
	h.inCallWith(c, "bob")
	<-entered

	require.NoError(t, h.o.EndCall(context.Background()))
	require.False(t, h.o.View().InCall)
	close(release)
	<-returned

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, quality.Default(), h.o.Quality())
}

func TestConnectionLostTearsDownCall(t *testing.T) {
	h := newHarness(t, newFakeDialer())
	c := h.connect()
	h.roster(c, "me", "bob", "carol")
	m := h.inCallWith(c, "bob")

	// Losing an unrelated peer only updates the roster.
	c.deliver(signaling.ConnectionLost{PeerID: "carol"})
	eventually(t, func() bool { return len(h.o.View().Peers) == 1 })
	assert.False(t, m.IsClosed())

	c.deliver(signaling.ConnectionLost{PeerID: "bob"})
	eventually(t, func() bool { return !h.o.View().InCall })
	assert.True(t, m.IsClosed())
	assert.Equal(t, []signaling.EndCall{{RoomID: "room-1", PeerID: "me"}}, sentOf[signaling.EndCall](c))
	assert.Empty(t, h.o.View().Peers)
	assert.Contains(t, h.o.View().ErrorMessage, "bob")
	assert.Equal(t, uint64(1), h.metrics.Get(metrics.CallsEnded))
}

func TestEndCallFromRemoteIsNotEchoed(t *testing.T) {
	h := newHarness(t, newFakeDialer())
	c := h.connect()
	h.roster(c, "me", "bob")
	m := h.inCallWith(c, "bob")

	c.deliver(signaling.EndCall{RoomID: "room-1", PeerID: "bob"})
	eventually(t, m.IsClosed)
	assert.Empty(t, sentOf[signaling.EndCall](c))
	assert.False(t, h.o.View().InCall)
	assert.Equal(t, connection.DefaultStatus(), h.o.Status())
}

func TestRelayDropReconnectsOnThirdAttempt(t *testing.T) {
	// Dial 0 is the initial connect; reconnect attempts 1 and 2 fail.
	h := newHarness(t, newFakeDialer(1, 2), func(c *Config) { c.ReconnectDelay = 25 * time.Millisecond })
	first := h.connect()
	h.roster(first, "me", "bob")
	m := h.inCallWith(first, "bob")
	m.emit(media.Event{Kind: media.EventICEState, ICEState: webrtc.ICEConnectionStateConnected})
	eventually(t, func() bool { return h.o.Status().State == connection.Connected })

	first.drop(errors.New("websocket: close 1006"))

	eventually(t, func() bool { return h.o.Status().State == connection.Reconnecting })
	assert.Contains(t, h.o.Status().LastError, "relay connection lost")
	assert.True(t, h.o.View().Reconnecting)

	eventually(t, func() bool { return len(h.dialer.Conns()) == 2 })
	second := h.dialer.Last()
	eventually(t, func() bool { return !h.o.View().Reconnecting && h.o.View().RelayConnected })

	assert.Equal(t, 4, h.dialer.Calls())
	assert.Equal(t, []signaling.Message{
		signaling.Join{RoomID: "room-1", PeerID: "me"},
		signaling.RequestPeerList{},
	}, second.Sent())
	assert.Equal(t, 0, h.o.View().ReconnectAttempts)
	assert.Equal(t, uint64(3), h.metrics.Get(metrics.ReconnectAttempts))
	assert.Equal(t, uint64(1), h.metrics.Get(metrics.ReconnectSuccess))

	// The call survives without a new media session.
	assert.Len(t, h.media.Sessions(), 1)
	assert.False(t, m.IsClosed())
	st := h.o.Status()
	assert.Equal(t, connection.Connected, st.State)
	assert.Empty(t, st.LastError)
	assert.Empty(t, h.o.View().ErrorMessage)

	// A later drop starts a fresh budget.
	second.drop(errors.New("websocket: close 1006"))
	eventually(t, func() bool { return len(h.dialer.Conns()) == 3 && h.o.View().RelayConnected })
	assert.Equal(t, uint64(4), h.metrics.Get(metrics.ReconnectAttempts))
}

func TestEveryEpisodeGetsTheFullAttemptBudget(t *testing.T) {
	// Dial 0 is the initial connect. Each episode fails four times and
	// succeeds on its fifth attempt.
	h := newHarness(t, newFakeDialer(1, 2, 3, 4, 6, 7, 8, 9))
	first := h.connect()
	h.roster(first, "me", "bob")
	m := h.inCallWith(first, "bob")
	m.emit(media.Event{Kind: media.EventICEState, ICEState: webrtc.ICEConnectionStateConnected})
	m.emit(media.Event{Kind: media.EventICEState, ICEState: webrtc.ICEConnectionStateCompleted})
	eventually(t, func() bool { return h.o.Status().ICEState == webrtc.ICEConnectionStateCompleted })
	require.Equal(t, connection.Connected, h.o.Status().State)

	first.drop(errors.New("websocket: close 1006"))
	eventually(t, func() bool { return len(h.dialer.Conns()) == 2 && h.o.View().RelayConnected })
	assert.Equal(t, 6, h.dialer.Calls())
	assert.Equal(t, connection.Connected, h.o.Status().State)

	h.dialer.Last().drop(errors.New("websocket: close 1006"))
	eventually(t, func() bool { return len(h.dialer.Conns()) == 3 && h.o.View().RelayConnected })
	assert.Equal(t, 11, h.dialer.Calls())

	st := h.o.Status()
	assert.Equal(t, connection.Connected, st.State)
	assert.Empty(t, st.LastError)
	assert.False(t, m.IsClosed())
	assert.Equal(t, 0, h.o.View().ReconnectAttempts)
	assert.Equal(t, uint64(10), h.metrics.Get(metrics.ReconnectAttempts))
	assert.Equal(t, uint64(2), h.metrics.Get(metrics.ReconnectSuccess))
	assert.Zero(t, h.metrics.Get(metrics.ReconnectExhausted))
}

func TestReconnectGivesUpAfterMaxAttempts(t *testing.T) {
	h := newHarness(t, newFakeDialer(1, 2, 3, 4, 5))
	first := h.connect()

	first.drop(errors.New("websocket: close 1006"))
	eventually(t, func() bool { return h.o.Status().State == connection.Failed })

	assert.Equal(t, 6, h.dialer.Calls())
	assert.Contains(t, h.o.Status().LastError, ErrMaxAttemptsExceeded.Error())
	v := h.o.View()
	assert.False(t, v.Reconnecting)
	assert.False(t, v.RelayConnected)
	assert.Contains(t, v.ErrorMessage, ErrMaxAttemptsExceeded.Error())
	assert.Equal(t, uint64(5), h.metrics.Get(metrics.ReconnectAttempts))
	assert.Equal(t, uint64(1), h.metrics.Get(metrics.ReconnectExhausted))

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 6, h.dialer.Calls())

	// A new Connect starts over.
	c := h.connect()
	require.NotNil(t, c)
	assert.Equal(t, 7, h.dialer.Calls())
	assert.True(t, h.o.View().RelayConnected)
}

func TestStaleReconnectResultIsDiscarded(t *testing.T) {
	h := newHarness(t, newFakeDialer())
	c := h.connect()
	stale := newFakeConn()

	ctx := context.Background()
	require.NoError(t, h.o.do(ctx, func(ctx context.Context) error {
		h.o.handleReconnect(ctx, reconnectResult{episode: h.o.st.episode - 1, client: stale})
		return nil
	}))

	assert.True(t, stale.IsClosed())
	assert.False(t, c.IsClosed())
	assert.Empty(t, stale.Sent())
}

func TestRelayErrorIsSurfaced(t *testing.T) {
	h := newHarness(t, newFakeDialer())
	c := h.connect()

	c.deliver(signaling.Error{Message: "room full"})
	eventually(t, func() bool { return h.o.View().ErrorMessage != "" })
	assert.Contains(t, h.o.View().ErrorMessage, "room full")
	assert.True(t, h.o.View().RelayConnected)
}

func TestEngineErrorTearsDownCall(t *testing.T) {
	h := newHarness(t, newFakeDialer())
	h.media.offerErr = callerr.Engine("set remote description", errors.New("bad sdp"))
	c := h.connect()

	c.deliver(signaling.Offer{RoomID: "room-1", SDP: "garbage", FromPeer: "bob", ToPeer: "me"})
	eventually(t, func() bool { return h.o.Status().State == connection.Failed })

	assert.Contains(t, h.o.Status().LastError, "bad sdp")
	assert.True(t, h.media.Last().IsClosed())
	assert.Empty(t, sentOf[signaling.Answer](c))
	assert.Len(t, sentOf[signaling.EndCall](c), 1)
	assert.False(t, h.o.View().InCall)
}

func TestMalformedOfferIsDropped(t *testing.T) {
	h := newHarness(t, newFakeDialer())
	h.media.offerErr = callerr.Protocol("decode offer", errors.New("not json"))
	c := h.connect()

	c.deliver(signaling.Offer{RoomID: "room-1", SDP: "garbage", FromPeer: "bob", ToPeer: "me"})
	h.roster(c, "me", "bob")

	assert.Empty(t, sentOf[signaling.Answer](c))
	assert.False(t, h.media.Last().IsClosed())
	assert.NotEqual(t, connection.Failed, h.o.Status().State)
	assert.Empty(t, h.o.View().ErrorMessage)
}

func TestAudioFailureKeepsCall(t *testing.T) {
	h := newHarness(t, newFakeDialer())
	c := h.connect()
	m := h.inCallWith(c, "bob")

	m.emit(media.Event{Kind: media.EventAudioError, Err: errors.New("device unplugged")})
	eventually(t, func() bool { return h.metrics.Get(metrics.AudioErrors) == 1 })
	assert.True(t, h.o.View().InCall)
	assert.False(t, m.IsClosed())
	assert.Empty(t, h.o.View().ErrorMessage)
}

func TestToggleMute(t *testing.T) {
	h := newHarness(t, newFakeDialer())
	ctx := context.Background()

	_, err := h.o.ToggleMute(ctx)
	require.ErrorIs(t, err, ErrNoActiveCall)

	c := h.connect()
	m := h.inCallWith(c, "bob")

	muted, err := h.o.ToggleMute(ctx)
	require.NoError(t, err)
	assert.True(t, muted)
	assert.True(t, m.IsMuted())
	assert.True(t, h.o.View().Muted)

	muted, err = h.o.ToggleMute(ctx)
	require.NoError(t, err)
	assert.False(t, muted)
	assert.False(t, m.IsMuted())
}

func TestLeave(t *testing.T) {
	h := newHarness(t, newFakeDialer())
	c := h.connect()
	h.roster(c, "me", "bob")
	m := h.inCallWith(c, "bob")

	require.NoError(t, h.o.Leave(context.Background()))

	types := c.SentTypes()
	require.GreaterOrEqual(t, len(types), 2)
	assert.Equal(t, []signaling.MessageType{signaling.TypeEndCall, signaling.TypeDisconnect}, types[len(types)-2:])
	assert.True(t, c.IsClosed())
	assert.True(t, m.IsClosed())

	v := h.o.View()
	assert.False(t, v.RelayConnected)
	assert.False(t, v.InCall)
	assert.Empty(t, v.Peers)

	require.ErrorIs(t, h.o.Leave(context.Background()), ErrNotConnected)
}

func TestHandleErrorRouting(t *testing.T) {
	h := newHarness(t, newFakeDialer())
	ctx := context.Background()
	h.connect()

	assert.NoError(t, h.o.HandleError(ctx, callerr.Protocol("decode", errors.New("bad json"))))
	assert.NoError(t, h.o.HandleError(ctx, callerr.Audio("capture", errors.New("no mic"))))
	assert.Empty(t, h.o.View().ErrorMessage)

	stateErr := callerr.Wrap(callerr.KindState, "start call", ErrNoPeerSelected)
	assert.ErrorIs(t, h.o.HandleError(ctx, stateErr), ErrNoPeerSelected)
	assert.Empty(t, h.o.View().ErrorMessage)

	roomErr := callerr.Room("add peer", errors.New("room is full"))
	assert.Equal(t, roomErr, h.o.HandleError(ctx, roomErr))
	assert.Equal(t, roomErr.Error(), h.o.View().ErrorMessage)
	assert.Equal(t, connection.Disconnected, h.o.Status().State)
}

func TestRunTwiceFails(t *testing.T) {
	h := newHarness(t, newFakeDialer())
	assert.ErrorIs(t, h.o.Run(context.Background()), ErrStopped)
}
