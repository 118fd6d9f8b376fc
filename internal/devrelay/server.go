// Package devrelay is a development signaling relay. It keeps per-room
// rosters, routes targeted messages between room members and tells the room
// when a member's socket drops. It trusts whatever peer IDs clients claim.
package devrelay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/eisenzopf/webrtc-client/internal/auth"
	"github.com/eisenzopf/webrtc-client/internal/metrics"
	"github.com/eisenzopf/webrtc-client/internal/origin"
	"github.com/eisenzopf/webrtc-client/internal/room"
	"github.com/eisenzopf/webrtc-client/internal/signaling"
)

const (
	DefaultRoomCapacity    = 8
	DefaultSendQueueSize   = 64
	DefaultMaxMessageBytes = 64 * 1024
	writeTimeout           = 5 * time.Second
)

var (
	errNotJoined     = errors.New("join a room first")
	errAlreadyJoined = errors.New("already joined a room")
)

type Options struct {
	RoomCapacity    int
	MaxMessageBytes int64
	// PingInterval enables keepalive pings. Zero disables them.
	PingInterval time.Duration
	Presence     Presence
	// Origins gates browser websocket upgrades. Nil admits every origin.
	Origins *origin.Policy
	// Token, when enabled, must accompany the upgrade request.
	Token   auth.Token
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

type Server struct {
	capacity        int
	maxMessageBytes int64
	pingInterval    time.Duration
	presence        Presence
	token           auth.Token
	log             zerolog.Logger
	metrics         *metrics.Metrics
	upgrader        websocket.Upgrader

	mu    sync.Mutex
	rooms map[string]*roomState
	conns map[string]*peerConn
}

// roomState pairs the roster with the sockets of its members. Member.Conn
// holds the peerConn ID.
type roomState struct {
	roster *room.Room
	conns  map[string]*peerConn
}

func New(opts Options) *Server {
	if opts.RoomCapacity <= 0 {
		opts.RoomCapacity = DefaultRoomCapacity
	}
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = DefaultMaxMessageBytes
	}
	if opts.Presence == nil {
		opts.Presence = NewMemoryPresence()
	}
	allow := origin.AllowAll()
	if opts.Origins != nil {
		allow = *opts.Origins
	}
	return &Server{
		capacity:        opts.RoomCapacity,
		maxMessageBytes: opts.MaxMessageBytes,
		pingInterval:    opts.PingInterval,
		presence:        opts.Presence,
		token:           opts.Token,
		log:             opts.Logger.With().Str("component", "devrelay").Logger(),
		metrics:         opts.Metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     allow.Allow,
		},
		rooms: map[string]*roomState{},
		conns: map[string]*peerConn{},
	}
}

// Mount registers the relay socket on / and /ws and the presence lookup.
func (s *Server) Mount(r chi.Router) {
	r.Get("/", s.ServeWS)
	r.Get("/ws", s.ServeWS)
	r.With(s.token.Middleware).Get("/rooms/{roomID}/peers", s.servePresence)
}

func (s *Server) servePresence(w http.ResponseWriter, r *http.Request) {
	peers, err := s.presence.Members(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"peers": peers})
}

func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	if err := s.token.Allow(r); err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Msg("upgrade failed")
		return
	}
	c := &peerConn{
		id:   uuid.NewString(),
		ws:   ws,
		send: make(chan []byte, DefaultSendQueueSize),
		done: make(chan struct{}),
	}
	c.log = s.log.With().Str("conn_id", c.id).Logger()

	s.mu.Lock()
	s.conns[c.id] = c
	s.mu.Unlock()
	s.metrics.Inc(metrics.DevRelayConnections)
	c.log.Debug().Str("remote_addr", r.RemoteAddr).Msg("relay connection opened")

	go s.writePump(c)
	s.readPump(c)
}

// Close drops every connection.
func (s *Server) Close() {
	s.mu.Lock()
	conns := make([]*peerConn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		c.close()
	}
}

func (s *Server) readPump(c *peerConn) {
	defer s.dropped(c)

	c.ws.SetReadLimit(s.maxMessageBytes)
	if s.pingInterval > 0 {
		idle := 2 * s.pingInterval
		_ = c.ws.SetReadDeadline(time.Now().Add(idle))
		c.ws.SetPongHandler(func(string) error {
			return c.ws.SetReadDeadline(time.Now().Add(idle))
		})
	}

	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		if s.pingInterval > 0 {
			_ = c.ws.SetReadDeadline(time.Now().Add(2 * s.pingInterval))
		}
		if mt != websocket.TextMessage {
			s.replyError(c, "binary frames are not supported")
			continue
		}
		msg, err := signaling.Decode(data)
		if err != nil {
			s.replyError(c, err.Error())
			continue
		}
		s.handle(c, msg)
	}
}

func (s *Server) writePump(c *peerConn) {
	var ping <-chan time.Time
	if s.pingInterval > 0 {
		t := time.NewTicker(s.pingInterval)
		defer t.Stop()
		ping = t.C
	}
	for {
		select {
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = c.ws.Close()
			return
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.close()
				_ = c.ws.Close()
				return
			}
		case <-ping:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				c.close()
				_ = c.ws.Close()
				return
			}
		}
	}
}

// dropped runs when a socket's read side ends. A member that did not send
// Disconnect is reported to its room as lost.
func (s *Server) dropped(c *peerConn) {
	c.close()

	s.mu.Lock()
	delete(s.conns, c.id)
	roomID, peerID := c.roomID, c.peerID
	left := s.leaveLocked(c)
	s.mu.Unlock()

	c.log.Debug().Msg("relay connection closed")
	if !left {
		return
	}
	s.removePresence(roomID, peerID)
	s.broadcast(roomID, signaling.ConnectionLost{PeerID: peerID}, "")
	s.broadcastPeerList(roomID)
}

func (s *Server) handle(c *peerConn, msg signaling.Message) {
	switch m := msg.(type) {
	case signaling.Join:
		s.join(c, m)
	case signaling.Disconnect:
		s.disconnect(c)
	case signaling.RequestPeerList:
		roomID, _ := s.identity(c)
		s.sendTo(c, signaling.PeerList{Peers: s.peerIDs(roomID)})
	case signaling.Offer:
		s.route(c, m.ToPeer, m)
	case signaling.Answer:
		s.route(c, m.ToPeer, m)
	case signaling.IceCandidate:
		s.route(c, m.ToPeer, m)
	case signaling.CallResponse:
		s.route(c, m.ToPeer, m)
	case signaling.InitiateCall:
		s.route(c, m.PeerID, m)
	case signaling.CallRequest:
		for _, to := range m.ToPeers {
			s.route(c, to, m)
		}
	case signaling.EndCall, signaling.MediaError:
		roomID, peerID := s.identity(c)
		if roomID == "" {
			s.replyError(c, errNotJoined.Error())
			return
		}
		s.broadcast(roomID, m, peerID)
	case signaling.PeerList, signaling.Error, signaling.ConnectionLost:
		c.log.Debug().Str("message_type", string(msg.Type())).Msg("ignoring relay-to-client message")
	}
}

func (s *Server) join(c *peerConn, m signaling.Join) {
	s.mu.Lock()
	if c.roomID != "" {
		s.mu.Unlock()
		s.replyError(c, errAlreadyJoined.Error())
		return
	}
	rs, ok := s.rooms[m.RoomID]
	if !ok {
		rs = &roomState{roster: room.New(m.RoomID, s.capacity), conns: map[string]*peerConn{}}
		s.rooms[m.RoomID] = rs
	}
	if err := rs.roster.AddPeer(m.PeerID, c.id); err != nil {
		if rs.roster.Len() == 0 {
			delete(s.rooms, m.RoomID)
		}
		s.mu.Unlock()
		if errors.Is(err, room.ErrRoomFull) {
			s.metrics.Inc(metrics.DevRelayRoomFull)
		}
		s.replyError(c, err.Error())
		return
	}
	rs.conns[m.PeerID] = c
	c.roomID, c.peerID = m.RoomID, m.PeerID
	s.mu.Unlock()

	log := c.log.With().Str("room_id", m.RoomID).Str("peer_id", m.PeerID).Logger()
	log.Info().Msg("peer joined")
	if err := s.presence.Add(context.Background(), m.RoomID, m.PeerID); err != nil {
		log.Warn().Err(err).Msg("presence add failed")
	}
	s.broadcastPeerList(m.RoomID)
}

func (s *Server) disconnect(c *peerConn) {
	s.mu.Lock()
	roomID, peerID := c.roomID, c.peerID
	left := s.leaveLocked(c)
	s.mu.Unlock()
	if !left {
		return
	}
	c.log.Info().Str("room_id", roomID).Str("peer_id", peerID).Msg("peer left")
	s.removePresence(roomID, peerID)
	s.broadcastPeerList(roomID)
}

// leaveLocked removes c from its room. It reports whether c was a member.
func (s *Server) leaveLocked(c *peerConn) bool {
	if c.roomID == "" {
		return false
	}
	rs := s.rooms[c.roomID]
	if rs != nil && rs.conns[c.peerID] == c {
		delete(rs.conns, c.peerID)
		rs.roster.RemovePeer(c.peerID)
		if rs.roster.Len() == 0 {
			delete(s.rooms, c.roomID)
		}
	}
	c.roomID, c.peerID = "", ""
	return true
}

func (s *Server) removePresence(roomID, peerID string) {
	if err := s.presence.Remove(context.Background(), roomID, peerID); err != nil {
		s.log.Warn().Err(err).Str("room_id", roomID).Str("peer_id", peerID).Msg("presence remove failed")
	}
}

// route delivers msg to peer to in the sender's room.
func (s *Server) route(c *peerConn, to string, msg signaling.Message) {
	s.mu.Lock()
	roomID := c.roomID
	var target *peerConn
	if rs := s.rooms[roomID]; rs != nil {
		target = rs.conns[to]
	}
	s.mu.Unlock()

	switch {
	case roomID == "":
		s.replyError(c, errNotJoined.Error())
	case target == nil:
		s.metrics.Inc(metrics.DevRelayMessagesUndeliverable)
		s.replyError(c, fmt.Sprintf("peer %s is not in room %s", to, roomID))
	default:
		if s.sendTo(target, msg) {
			s.metrics.Inc(metrics.DevRelayMessagesRouted)
		}
	}
}

func (s *Server) broadcast(roomID string, msg signaling.Message, except string) {
	for _, m := range s.members(roomID) {
		if m.peerID == except {
			continue
		}
		if s.sendTo(m.conn, msg) {
			s.metrics.Inc(metrics.DevRelayMessagesRouted)
		}
	}
}

func (s *Server) broadcastPeerList(roomID string) {
	s.broadcast(roomID, signaling.PeerList{Peers: s.peerIDs(roomID)}, "")
}

type member struct {
	peerID string
	conn   *peerConn
}

// members lists the room's sockets in join order.
func (s *Server) members(roomID string) []member {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs := s.rooms[roomID]
	if rs == nil {
		return nil
	}
	out := make([]member, 0, len(rs.conns))
	for _, id := range rs.roster.PeerIDs() {
		if c := rs.conns[id]; c != nil {
			out = append(out, member{peerID: id, conn: c})
		}
	}
	return out
}

func (s *Server) identity(c *peerConn) (roomID, peerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return c.roomID, c.peerID
}

func (s *Server) peerIDs(roomID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rs := s.rooms[roomID]; rs != nil {
		return rs.roster.PeerIDs()
	}
	return []string{}
}

func (s *Server) replyError(c *peerConn, message string) {
	s.sendTo(c, signaling.Error{Message: message})
}

// sendTo queues msg without blocking. A full queue drops the message.
func (s *Server) sendTo(c *peerConn, msg signaling.Message) bool {
	frame, err := signaling.Encode(msg)
	if err != nil {
		c.log.Error().Err(err).Msg("encode failed")
		return false
	}
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		s.metrics.Inc(metrics.DevRelayMessagesUndeliverable)
		c.log.Warn().Str("message_type", string(msg.Type())).Msg("send queue full; dropping")
		return false
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
