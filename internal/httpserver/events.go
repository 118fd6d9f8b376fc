package httpserver

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	eventsWriteTimeout = 5 * time.Second
	eventsPingInterval = 20 * time.Second
)

type eventJSON struct {
	Kind string `json:"kind"`
	Data any    `json:"data"`
}

// serveEvents pushes the latest status, quality and view snapshots to the
// client. Intermediate values may be skipped; the last one is always sent.
func (h *controlHandler) serveEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}
	defer conn.Close()

	statusSub := h.ctrl.SubscribeStatus()
	qualitySub := h.ctrl.SubscribeQuality()
	viewSub := h.ctrl.SubscribeView()

	// The client sends nothing; reading only detects the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	write := func(kind string, data any) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(eventsWriteTimeout))
		if err := conn.WriteJSON(eventJSON{Kind: kind, Data: data}); err != nil {
			h.log.Debug().Err(err).Msg("events client gone")
			return false
		}
		return true
	}

	if !write("status", newStatusJSON(statusSub.Load())) ||
		!write("quality", newQualityJSON(qualitySub.Load())) ||
		!write("view", viewSub.Load()) {
		return
	}

	ping := time.NewTicker(eventsPingInterval)
	defer ping.Stop()

	for {
		var ok bool
		select {
		case <-r.Context().Done():
			return
		case <-closed:
			return
		case <-statusSub.Changed():
			ok = write("status", newStatusJSON(statusSub.Load()))
		case <-qualitySub.Changed():
			ok = write("quality", newQualityJSON(qualitySub.Load()))
		case <-viewSub.Changed():
			ok = write("view", viewSub.Load())
		case <-ping.C:
			ok = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(eventsWriteTimeout)) == nil
		}
		if !ok {
			return
		}
	}
}
