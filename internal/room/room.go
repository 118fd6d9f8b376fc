// Package room tracks the members of one room and which pairs of them have an
// established media connection.
package room

import (
	"errors"
	"fmt"
	"sync"

	"github.com/eisenzopf/webrtc-client/internal/callerr"
)

var (
	ErrRoomFull      = errors.New("room is full")
	ErrDuplicatePeer = errors.New("peer already in room")
	ErrNotMember     = errors.New("peer not in room")
)

// Peer is a room member. Conn is an opaque handle for the member's
// connection; the room never interprets it.
type Peer struct {
	ID   string
	Conn string
}

// Pair is an unordered pair of peer IDs, stored with A < B.
type Pair struct {
	A, B string
}

func NewPair(a, b string) Pair {
	if b < a {
		a, b = b, a
	}
	return Pair{A: a, B: b}
}

func (p Pair) Has(id string) bool {
	return p.A == id || p.B == id
}

// Room is safe for concurrent use. Peers keep their join order.
type Room struct {
	id       string
	capacity int

	mu    sync.Mutex
	peers []Peer
	pairs map[Pair]struct{}
}

func New(id string, capacity int) *Room {
	if capacity < 0 {
		capacity = 0
	}
	return &Room{
		id:       id,
		capacity: capacity,
		pairs:    make(map[Pair]struct{}),
	}
}

func (r *Room) ID() string    { return r.id }
func (r *Room) Capacity() int { return r.capacity }

func (r *Room) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}

func (r *Room) AddPeer(id, conn string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addLocked(id, conn)
}

func (r *Room) addLocked(id, conn string) error {
	if len(r.peers) >= r.capacity {
		return callerr.Room("add peer", fmt.Errorf("%w: %s (capacity %d)", ErrRoomFull, r.id, r.capacity))
	}
	if r.indexLocked(id) >= 0 {
		return callerr.Room("add peer", fmt.Errorf("%w: %s", ErrDuplicatePeer, id))
	}
	r.peers = append(r.peers, Peer{ID: id, Conn: conn})
	return nil
}

// RemovePeer removes id and every connected pair that involves it. It
// reports whether id was a member.
func (r *Room) RemovePeer(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(id)
}

func (r *Room) removeLocked(id string) bool {
	i := r.indexLocked(id)
	if i < 0 {
		return false
	}
	r.peers = append(r.peers[:i], r.peers[i+1:]...)
	for p := range r.pairs {
		if p.Has(id) {
			delete(r.pairs, p)
		}
	}
	return true
}

// ReplacePeers makes the roster equal to ids. Existing members keep their
// connection handle; new members get an empty one. When ids holds more
// peers than the room can take, the room is filled in list order and
// ErrRoomFull is returned.
func (r *Room) ReplacePeers(ids []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	for _, p := range append([]Peer(nil), r.peers...) {
		if _, ok := want[p.ID]; !ok {
			r.removeLocked(p.ID)
		}
	}

	var overflow int
	for _, id := range ids {
		if r.indexLocked(id) >= 0 {
			continue
		}
		if len(r.peers) >= r.capacity {
			overflow++
			continue
		}
		r.peers = append(r.peers, Peer{ID: id})
	}
	if overflow > 0 {
		return callerr.Room("replace peers", fmt.Errorf("%w: %s dropped %d peer(s) over capacity %d", ErrRoomFull, r.id, overflow, r.capacity))
	}
	return nil
}

func (r *Room) Has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.indexLocked(id) >= 0
}

// Conn returns the connection handle recorded for id.
func (r *Room) Conn(id string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := r.indexLocked(id); i >= 0 {
		return r.peers[i].Conn, true
	}
	return "", false
}

func (r *Room) Peers() []Peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Peer(nil), r.peers...)
}

func (r *Room) PeerIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.peers))
	for i, p := range r.peers {
		out[i] = p.ID
	}
	return out
}

// Connect records that a and b have a live media connection. Both must be
// members.
func (r *Room) Connect(a, b string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range []string{a, b} {
		if r.indexLocked(id) < 0 {
			return callerr.Room("connect pair", fmt.Errorf("%w: %s", ErrNotMember, id))
		}
	}
	if a == b {
		return callerr.Room("connect pair", fmt.Errorf("cannot pair %s with itself", a))
	}
	r.pairs[NewPair(a, b)] = struct{}{}
	return nil
}

func (r *Room) Disconnect(a, b string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pairs, NewPair(a, b))
}

func (r *Room) IsConnected(a, b string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pairs[NewPair(a, b)]
	return ok
}

func (r *Room) Pairs() []Pair {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Pair, 0, len(r.pairs))
	for p := range r.pairs {
		out = append(out, p)
	}
	return out
}

func (r *Room) indexLocked(id string) int {
	for i, p := range r.peers {
		if p.ID == id {
			return i
		}
	}
	return -1
}
