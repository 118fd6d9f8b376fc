package signaling

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eisenzopf/webrtc-client/internal/callerr"
	"github.com/eisenzopf/webrtc-client/internal/metrics"
)

type frozenClock struct{ now time.Time }

func (c frozenClock) Now() time.Time { return c.now }

// newRelay starts a websocket server that hands each accepted connection to
// handle.
func newRelay(t *testing.T, handle func(conn *websocket.Conn)) string {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn)
	}))
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dial(t *testing.T, url string, opts Options) *Client {
	t.Helper()
	opts.Logger = zerolog.Nop()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, url, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func collect(t *testing.T, c *Client) []Message {
	t.Helper()
	var out []Message
	timeout := time.After(5 * time.Second)
	for {
		select {
		case m, ok := <-c.Messages():
			if !ok {
				return out
			}
			out = append(out, m)
		case <-timeout:
			t.Fatalf("messages channel not closed; got %d so far", len(out))
		}
	}
}

func TestClientDeliversInOrderAndDropsMalformed(t *testing.T) {
	url := newRelay(t, func(conn *websocket.Conn) {
		for i := 0; i < 20; i++ {
			frame, _ := Encode(ConnectionLost{PeerID: string(rune('a' + i))})
			_ = conn.WriteMessage(websocket.TextMessage, frame)
			if i == 10 {
				_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"message_type":"Bogus"}`))
				_ = conn.WriteMessage(websocket.TextMessage, []byte(`garbage`))
				_ = conn.WriteMessage(websocket.BinaryMessage, []byte{0x01})
			}
		}
	})

	reg := metrics.New()
	c := dial(t, url, Options{Metrics: reg})

	got := collect(t, c)
	require.Len(t, got, 20)
	for i, m := range got {
		assert.Equal(t, ConnectionLost{PeerID: string(rune('a' + i))}, m)
	}
	assert.Equal(t, uint64(3), reg.Get(metrics.SignalingDroppedMalformed))
	assert.Equal(t, uint64(20), reg.Get(metrics.SignalingReceived))
}

func TestClientSendPreservesOrder(t *testing.T) {
	received := make(chan Message, 64)
	url := newRelay(t, func(conn *websocket.Conn) {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				close(received)
				return
			}
			m, err := Decode(data)
			if err == nil {
				received <- m
			}
		}
	})

	c := dial(t, url, Options{})
	for i := 0; i < 30; i++ {
		require.NoError(t, c.Send(Join{RoomID: "r1", PeerID: string(rune('A' + i))}))
	}
	require.NoError(t, c.Send(Disconnect{RoomID: "r1", PeerID: "last"}))
	require.NoError(t, c.Close())

	var got []Message
	for m := range received {
		got = append(got, m)
	}
	require.Len(t, got, 31, "Close flushes frames accepted before it")
	for i := 0; i < 30; i++ {
		assert.Equal(t, Join{RoomID: "r1", PeerID: string(rune('A' + i))}, got[i])
	}
	assert.Equal(t, Disconnect{RoomID: "r1", PeerID: "last"}, got[30])
}

func TestClientSendAfterClose(t *testing.T) {
	url := newRelay(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	c := dial(t, url, Options{})
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	err := c.Send(RequestPeerList{})
	require.ErrorIs(t, err, ErrSendClosed)
	assert.True(t, callerr.Is(err, callerr.KindTransport))
	assert.NoError(t, c.Err(), "local close is not a transport error")

	select {
	case <-c.Done():
	default:
		t.Fatal("Done not closed after Close")
	}
}

func TestClientRemoteDropEndsStream(t *testing.T) {
	url := newRelay(t, func(conn *websocket.Conn) {
		frame, _ := Encode(PeerList{Peers: []string{"u1"}})
		_ = conn.WriteMessage(websocket.TextMessage, frame)
	})
	c := dial(t, url, Options{})

	got := collect(t, c)
	assert.Equal(t, []Message{PeerList{Peers: []string{"u1"}}}, got)

	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("Done not closed after remote drop")
	}
	require.Error(t, c.Err())
	assert.True(t, callerr.Is(c.Err(), callerr.KindTransport))
	assert.ErrorIs(t, c.Send(RequestPeerList{}), ErrSendClosed)
}

func TestClientInboundRateLimit(t *testing.T) {
	url := newRelay(t, func(conn *websocket.Conn) {
		frame, _ := Encode(RequestPeerList{})
		for i := 0; i < 5; i++ {
			_ = conn.WriteMessage(websocket.TextMessage, frame)
		}
	})

	reg := metrics.New()
	c := dial(t, url, Options{
		MaxInboundPerSecond: 2,
		Clock:               frozenClock{now: time.Unix(0, 0)},
		Metrics:             reg,
	})

	got := collect(t, c)
	assert.Len(t, got, 2)
	assert.Equal(t, uint64(3), reg.Get(metrics.SignalingDroppedRateLimited))
}

func TestClientKeepaliveAnswersPings(t *testing.T) {
	var mu sync.Mutex
	pings := 0
	url := newRelay(t, func(conn *websocket.Conn) {
		conn.SetPingHandler(func(appData string) error {
			mu.Lock()
			pings++
			mu.Unlock()
			return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(time.Second))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	c := dial(t, url, Options{PingInterval: 20 * time.Millisecond})
	time.Sleep(150 * time.Millisecond)

	select {
	case <-c.Done():
		t.Fatalf("connection dropped despite pongs: %v", c.Err())
	default:
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Greater(t, pings, 1)
}

func TestDialFailureIsTransport(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := Dial(ctx, "ws://127.0.0.1:1/nothing", Options{})
	require.Error(t, err)
	assert.True(t, callerr.Is(err, callerr.KindTransport))
}
