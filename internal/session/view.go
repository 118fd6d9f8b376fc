package session

import (
	"slices"
	"sort"
)

// PeerView is one roster entry as shown to the user.
type PeerView struct {
	ID        string `json:"id"`
	Selected  bool   `json:"selected"`
	Connected bool   `json:"connected"`
}

// View is the presentation snapshot of everything the orchestrator owns
// that is not already covered by connection.Status or quality.Quality.
type View struct {
	RoomID            string     `json:"room_id"`
	PeerID            string     `json:"peer_id"`
	RelayConnected    bool       `json:"relay_connected"`
	Reconnecting      bool       `json:"reconnecting"`
	ReconnectAttempts int        `json:"reconnect_attempts"`
	Peers             []PeerView `json:"peers"`
	InCall            bool       `json:"in_call"`
	RemotePeer        string     `json:"remote_peer,omitempty"`
	Muted             bool       `json:"muted"`
	ErrorMessage      string     `json:"error_message,omitempty"`
}

func (v View) equal(o View) bool {
	return v.RoomID == o.RoomID &&
		v.PeerID == o.PeerID &&
		v.RelayConnected == o.RelayConnected &&
		v.Reconnecting == o.Reconnecting &&
		v.ReconnectAttempts == o.ReconnectAttempts &&
		v.InCall == o.InCall &&
		v.RemotePeer == o.RemotePeer &&
		v.Muted == o.Muted &&
		v.ErrorMessage == o.ErrorMessage &&
		slices.Equal(v.Peers, o.Peers)
}

// buildView runs on the loop goroutine.
func (o *Orchestrator) buildView() View {
	st := &o.st
	v := View{
		RoomID:            st.roomID,
		PeerID:            st.peerID,
		RelayConnected:    st.client != nil,
		Reconnecting:      st.reconnecting,
		ReconnectAttempts: st.reconnectAttempts,
		Peers:             []PeerView{},
		Muted:             st.muted,
		ErrorMessage:      st.errMsg,
	}
	if st.call != nil {
		v.InCall = true
		v.RemotePeer = st.call.remote
	}
	if st.room != nil {
		for _, id := range st.room.PeerIDs() {
			if id == st.peerID {
				continue
			}
			v.Peers = append(v.Peers, PeerView{
				ID:        id,
				Selected:  st.selected[id],
				Connected: st.room.IsConnected(st.peerID, id),
			})
		}
	}
	return v
}

func (o *Orchestrator) publishView() {
	v := o.buildView()
	if v.equal(o.view.Load()) {
		return
	}
	o.view.Store(v)
}

func (o *Orchestrator) selectedPeers() []string {
	out := make([]string, 0, len(o.st.selected))
	for id, ok := range o.st.selected {
		if ok {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
