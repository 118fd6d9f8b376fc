package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/eisenzopf/webrtc-client/internal/audio"
	"github.com/eisenzopf/webrtc-client/internal/callerr"
	"github.com/eisenzopf/webrtc-client/internal/media"
	"github.com/eisenzopf/webrtc-client/internal/quality"
	"github.com/eisenzopf/webrtc-client/internal/signaling"
)

var errDialRefused = errors.New("connection refused")

type fakeConn struct {
	msgs chan signaling.Message
	done chan struct{}

	mu     sync.Mutex
	sent   []signaling.Message
	err    error
	closed bool
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		msgs: make(chan signaling.Message, 16),
		done: make(chan struct{}),
	}
}

func (c *fakeConn) Send(m signaling.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return callerr.Transport("send", signaling.ErrSendClosed)
	}
	c.sent = append(c.sent, m)
	return nil
}

func (c *fakeConn) Messages() <-chan signaling.Message { return c.msgs }
func (c *fakeConn) Done() <-chan struct{}              { return c.done }

func (c *fakeConn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.once.Do(func() {
		close(c.done)
		close(c.msgs)
	})
	return nil
}

// drop simulates the relay going away.
func (c *fakeConn) drop(err error) {
	c.mu.Lock()
	c.err = err
	c.closed = true
	c.mu.Unlock()
	c.once.Do(func() {
		close(c.done)
		close(c.msgs)
	})
}

func (c *fakeConn) deliver(m signaling.Message) { c.msgs <- m }

func (c *fakeConn) Sent() []signaling.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]signaling.Message(nil), c.sent...)
}

func (c *fakeConn) SentTypes() []signaling.MessageType {
	var out []signaling.MessageType
	for _, m := range c.Sent() {
		out = append(out, m.Type())
	}
	return out
}

func (c *fakeConn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// fakeDialer fails the dial attempts listed in failures (by zero-based call
// index) and hands out a fresh fakeConn otherwise.
type fakeDialer struct {
	mu       sync.Mutex
	failures map[int]bool
	calls    int
	conns    []*fakeConn
}

func newFakeDialer(failures ...int) *fakeDialer {
	d := &fakeDialer{failures: map[int]bool{}}
	for _, i := range failures {
		d.failures[i] = true
	}
	return d
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (SignalingConn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := d.calls
	d.calls++
	if d.failures[i] {
		return nil, errDialRefused
	}
	c := newFakeConn()
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func (d *fakeDialer) Conns() []*fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*fakeConn(nil), d.conns...)
}

func (d *fakeDialer) Last() *fakeConn {
	conns := d.Conns()
	if len(conns) == 0 {
		return nil
	}
	return conns[len(conns)-1]
}

type fakeMedia struct {
	id     string
	events chan<- media.Event

	mu           sync.Mutex
	offers       int
	remoteOffers []string
	answers      []string
	candidates   []string
	muted        bool
	closed       bool
	offerErr     error
	stats        func(ctx context.Context) (quality.Snapshot, error)
}

func (m *fakeMedia) ID() string { return m.id }

func (m *fakeMedia) CreateOffer(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offers++
	return fmt.Sprintf("offer-%d", m.offers), nil
}

func (m *fakeMedia) HandleOffer(ctx context.Context, sdp string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.offerErr != nil {
		return "", m.offerErr
	}
	m.remoteOffers = append(m.remoteOffers, sdp)
	return "answer-to-" + sdp, nil
}

func (m *fakeMedia) HandleAnswer(ctx context.Context, sdp string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answers = append(m.answers, sdp)
	return nil
}

func (m *fakeMedia) AddICECandidate(ctx context.Context, c string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.candidates = append(m.candidates, c)
	return nil
}

func (m *fakeMedia) Stats(ctx context.Context) (quality.Snapshot, error) {
	if m.stats != nil {
		return m.stats(ctx)
	}
	return quality.Snapshot{}, quality.ErrStatsUnavailable
}

func (m *fakeMedia) LocalAudio() audio.FrameSink {
	return discardSink{}
}

type discardSink struct{}

func (discardSink) WriteFrame(audio.Frame) error { return nil }

func (m *fakeMedia) SetMuted(muted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.muted = muted
}

func (m *fakeMedia) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *fakeMedia) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *fakeMedia) IsMuted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.muted
}

func (m *fakeMedia) Candidates() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.candidates...)
}

func (m *fakeMedia) emit(ev media.Event) {
	ev.SessionID = m.id
	m.events <- ev
}

type fakeFactory struct {
	mu       sync.Mutex
	sessions []*fakeMedia
	offerErr error
	stats    func(ctx context.Context) (quality.Snapshot, error)
}

func (f *fakeFactory) NewSession(ctx context.Context, events chan<- media.Event) (MediaSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := &fakeMedia{
		id:       fmt.Sprintf("session-%d", len(f.sessions)+1),
		events:   events,
		offerErr: f.offerErr,
		stats:    f.stats,
	}
	f.sessions = append(f.sessions, m)
	return m, nil
}

func (f *fakeFactory) Sessions() []*fakeMedia {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeMedia(nil), f.sessions...)
}

func (f *fakeFactory) Last() *fakeMedia {
	s := f.Sessions()
	if len(s) == 0 {
		return nil
	}
	return s[len(s)-1]
}
