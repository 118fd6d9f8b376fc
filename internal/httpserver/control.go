package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/eisenzopf/webrtc-client/internal/auth"
	"github.com/eisenzopf/webrtc-client/internal/callerr"
	"github.com/eisenzopf/webrtc-client/internal/connection"
	"github.com/eisenzopf/webrtc-client/internal/origin"
	"github.com/eisenzopf/webrtc-client/internal/quality"
	"github.com/eisenzopf/webrtc-client/internal/session"
	"github.com/eisenzopf/webrtc-client/internal/watch"
)

// Controller is the orchestrator surface driven by the control API.
// *session.Orchestrator implements it.
type Controller interface {
	Status() connection.Status
	SubscribeStatus() *watch.Subscription[connection.Status]
	Quality() quality.Quality
	SubscribeQuality() *watch.Subscription[quality.Quality]
	View() session.View
	SubscribeView() *watch.Subscription[session.View]

	Connect(ctx context.Context, roomID, peerID string) error
	StartCall(ctx context.Context) error
	EndCall(ctx context.Context) error
	ToggleMute(ctx context.Context) (bool, error)
	SelectPeer(ctx context.Context, id string) error
	Leave(ctx context.Context) error
}

type statusJSON struct {
	State          string `json:"state"`
	SignalingState string `json:"signaling_state"`
	ICEState       string `json:"ice_state"`
	PeerState      string `json:"peer_state"`
	LastError      string `json:"last_error,omitempty"`
}

func newStatusJSON(s connection.Status) statusJSON {
	return statusJSON{
		State:          s.State.String(),
		SignalingState: s.SignalingState.String(),
		ICEState:       s.ICEState.String(),
		PeerState:      s.PeerState.String(),
		LastError:      s.LastError,
	}
}

type qualityJSON struct {
	quality.Quality
	Class string `json:"class"`
}

func newQualityJSON(q quality.Quality) qualityJSON {
	return qualityJSON{Quality: q, Class: quality.Class(q.Score)}
}

type connectRequest struct {
	RoomID string `json:"room_id"`
	PeerID string `json:"peer_id"`
}

type errorJSON struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

type ControlOptions struct {
	Logger zerolog.Logger
	// Origins checks browser requests. The zero Policy admits same-host
	// pages only.
	Origins origin.Policy
	// Token, when enabled, is required on every control request.
	Token auth.Token
}

// MountControl registers the /v1 control routes on r.
func MountControl(r chi.Router, ctrl Controller, opts ControlOptions) {
	h := &controlHandler{
		ctrl: ctrl,
		log:  opts.Logger.With().Str("component", "control").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     opts.Origins.Allow,
		},
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(opts.Origins.Middleware, opts.Token.Middleware)

		r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
			WriteJSON(w, http.StatusOK, newStatusJSON(ctrl.Status()))
		})
		r.Get("/quality", func(w http.ResponseWriter, r *http.Request) {
			WriteJSON(w, http.StatusOK, newQualityJSON(ctrl.Quality()))
		})
		r.Get("/view", func(w http.ResponseWriter, r *http.Request) {
			WriteJSON(w, http.StatusOK, ctrl.View())
		})
		r.Get("/events", h.serveEvents)

		r.Post("/connect", h.connect)
		r.Post("/call", h.intent(ctrl.StartCall))
		r.Post("/hangup", h.intent(ctrl.EndCall))
		r.Post("/leave", h.intent(ctrl.Leave))
		r.Post("/mute", h.mute)
		r.Post("/peers/{peerID}/select", func(w http.ResponseWriter, r *http.Request) {
			h.reply(w, ctrl.SelectPeer(r.Context(), chi.URLParam(r, "peerID")))
		})
	})
}

type controlHandler struct {
	ctrl     Controller
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

func (h *controlHandler) connect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	body := http.MaxBytesReader(w, r.Body, 4096)
	if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		WriteJSON(w, http.StatusBadRequest, errorJSON{Error: "invalid JSON body", Kind: callerr.KindProtocol.String()})
		return
	}
	h.reply(w, h.ctrl.Connect(r.Context(), req.RoomID, req.PeerID))
}

func (h *controlHandler) mute(w http.ResponseWriter, r *http.Request) {
	muted, err := h.ctrl.ToggleMute(r.Context())
	if err != nil {
		h.reply(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"muted": muted})
}

func (h *controlHandler) intent(fn func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.reply(w, fn(r.Context()))
	}
}

// reply answers an intent with the resulting view or the classified error.
func (h *controlHandler) reply(w http.ResponseWriter, err error) {
	if err == nil {
		WriteJSON(w, http.StatusOK, h.ctrl.View())
		return
	}
	kind := callerr.KindOf(err)
	status := statusForKind(kind)
	if status >= http.StatusInternalServerError {
		h.log.Warn().Err(err).Str("kind", kind.String()).Msg("intent failed")
	}
	WriteJSON(w, status, errorJSON{Error: err.Error(), Kind: kind.String()})
}

func statusForKind(kind callerr.Kind) int {
	switch kind {
	case callerr.KindState, callerr.KindRoom:
		return http.StatusConflict
	case callerr.KindProtocol:
		return http.StatusBadRequest
	case callerr.KindTransport, callerr.KindSignaling, callerr.KindReconnectExhausted:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
