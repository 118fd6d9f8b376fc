package devrelay

import (
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// peerConn is one relay socket. roomID and peerID are guarded by Server.mu;
// the other fields are set before the pumps start.
type peerConn struct {
	id   string
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
	log  zerolog.Logger

	roomID string
	peerID string
}

func (c *peerConn) close() {
	c.once.Do(func() { close(c.done) })
}
