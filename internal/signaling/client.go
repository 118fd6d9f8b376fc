package signaling

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/eisenzopf/webrtc-client/internal/callerr"
	"github.com/eisenzopf/webrtc-client/internal/metrics"
	"github.com/eisenzopf/webrtc-client/internal/ratelimit"
)

const (
	DefaultSendQueueSize   = 100
	DefaultRecvQueueSize   = 100
	DefaultWriteTimeout    = 5 * time.Second
	DefaultMaxMessageBytes = 64 * 1024

	closeWriteWait = time.Second
)

type Options struct {
	SendQueueSize int
	RecvQueueSize int
	WriteTimeout  time.Duration
	// PingInterval enables websocket keepalive. The connection is considered
	// dead when nothing (including a pong) arrives for two intervals.
	PingInterval    time.Duration
	MaxMessageBytes int64
	// MaxInboundPerSecond drops inbound frames above this rate. 0 disables
	// the limit.
	MaxInboundPerSecond int

	Dialer  *websocket.Dialer
	Clock   ratelimit.Clock
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

func (o Options) withDefaults() Options {
	if o.SendQueueSize <= 0 {
		o.SendQueueSize = DefaultSendQueueSize
	}
	if o.RecvQueueSize <= 0 {
		o.RecvQueueSize = DefaultRecvQueueSize
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = DefaultMaxMessageBytes
	}
	if o.Dialer == nil {
		o.Dialer = websocket.DefaultDialer
	}
	return o
}

// Client owns one relay connection. It is not restartable: once Done is
// closed a new Client must be dialed.
type Client struct {
	conn    *websocket.Conn
	opts    Options
	log     zerolog.Logger
	metrics *metrics.Metrics
	limiter *ratelimit.MessageLimiter

	queue    *sendQueue
	messages chan Message

	writerDone chan struct{}
	done       chan struct{}
	closeOnce  sync.Once
	stopOnce   sync.Once
	mu         sync.Mutex
	err        error
}

// Dial connects to the relay at url and starts the reader and writer
// goroutines.
func Dial(ctx context.Context, url string, opts Options) (*Client, error) {
	opts = opts.withDefaults()
	conn, _, err := opts.Dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, callerr.Transport("dial relay", err)
	}
	return newClient(conn, opts), nil
}

func newClient(conn *websocket.Conn, opts Options) *Client {
	c := &Client{
		conn:     conn,
		opts:     opts,
		log:      opts.Logger.With().Str("component", "signaling").Logger(),
		metrics:  opts.Metrics,
		limiter:  ratelimit.NewMessageLimiter(opts.Clock, opts.MaxInboundPerSecond),
		queue:    newSendQueue(opts.SendQueueSize),
		messages: make(chan Message, opts.RecvQueueSize),

		writerDone: make(chan struct{}),
		done:       make(chan struct{}),
	}

	conn.SetReadLimit(opts.MaxMessageBytes)
	if opts.PingInterval > 0 {
		idle := 2 * opts.PingInterval
		_ = conn.SetReadDeadline(time.Now().Add(idle))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(idle))
		})
		go c.pingLoop()
	}

	go c.writeLoop()
	go c.readLoop()
	return c
}

// Send enqueues m for transmission in submission order. It never blocks.
func (c *Client) Send(m Message) error {
	frame, err := Encode(m)
	if err != nil {
		return err
	}
	if err := c.queue.Enqueue(frame); err != nil {
		if errors.Is(err, ErrSendQueueFull) {
			c.metrics.Inc(metrics.SignalingDroppedQueueFull)
		}
		return callerr.Transport("send "+string(m.Type()), err)
	}
	return nil
}

// Messages delivers decoded inbound messages in relay order. The channel is
// closed once the connection ends.
func (c *Client) Messages() <-chan Message {
	return c.messages
}

func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the transport error that ended the connection, or nil if it
// was closed locally or is still open.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close flushes frames already accepted by Send (bounded by the write
// timeout), sends a normal-closure frame and releases the connection. It is
// safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.queue.Close()
		timer := time.NewTimer(c.opts.WriteTimeout)
		defer timer.Stop()
		select {
		case <-c.writerDone:
		case <-c.done:
		case <-timer.C:
		}
		c.stop(nil, true)
	})
	return nil
}

func (c *Client) stop(err error, sendClose bool) {
	c.stopOnce.Do(func() {
		if err != nil {
			c.mu.Lock()
			c.err = callerr.Transport("relay connection", err)
			c.mu.Unlock()
		}
		c.queue.Abort()
		if sendClose {
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(closeWriteWait))
		}
		_ = c.conn.Close()
		close(c.done)
	})
}

func (c *Client) writeLoop() {
	defer close(c.writerDone)
	for {
		frame, ok := c.queue.Dequeue()
		if !ok {
			return
		}
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			c.log.Debug().Err(err).Msg("relay write failed")
			c.stop(err, false)
			return
		}
		c.metrics.Inc(metrics.SignalingSent)
	}
}

func (c *Client) readLoop() {
	defer close(c.messages)
	for {
		typ, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.log.Debug().Err(err).Msg("relay read ended")
			}
			c.stop(err, false)
			return
		}
		if c.opts.PingInterval > 0 {
			_ = c.conn.SetReadDeadline(time.Now().Add(2 * c.opts.PingInterval))
		}
		if typ != websocket.TextMessage {
			c.metrics.Inc(metrics.SignalingDroppedMalformed)
			continue
		}
		if !c.limiter.Allow() {
			c.metrics.Inc(metrics.SignalingDroppedRateLimited)
			continue
		}
		msg, err := Decode(data)
		if err != nil {
			c.metrics.Inc(metrics.SignalingDroppedMalformed)
			c.log.Debug().Err(err).Int("bytes", len(data)).Msg("dropping undecodable frame")
			continue
		}
		c.metrics.Inc(metrics.SignalingReceived)

		select {
		case c.messages <- msg:
		case <-c.done:
			return
		}
	}
}

func (c *Client) pingLoop() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteTimeout)); err != nil {
				c.stop(err, false)
				return
			}
		}
	}
}
