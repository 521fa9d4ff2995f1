package relay

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/vetlink/vetcall/internal/token"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Mobile clients connect from app webviews with no stable origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server exposes the relay over HTTP: the signaling WebSocket, the media
// token endpoint, and a health check.
type Server struct {
	handler *Handler
	tokens  *token.Issuer
	log     zerolog.Logger
}

// NewServer wires the HTTP surface to the message dispatcher and token
// issuer.
func NewServer(handler *Handler, tokens *token.Issuer, log zerolog.Logger) *Server {
	return &Server{handler: handler, tokens: tokens, log: log}
}

// Router builds the chi router for the server.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/ws", s.serveWS)
	r.Post("/video/token", s.serveToken)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return r
}

// serveWS upgrades the connection and runs its pumps until disconnect.
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	l := s.log.With().Str("conn_id", uuid.NewString()).Logger()
	l.Info().Msg("client connected")

	client := NewClient(conn, l)
	go client.WritePump()
	client.ReadPump(s.handler)

	l.Info().Msg("client disconnected")
}

// serveToken issues a short-lived media session token for an identity + room
// pair.
func (s *Server) serveToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID   string `json:"userId"`
		RoomName string `json:"roomName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	signed, expires, err := s.tokens.Issue(time.Now(), req.UserID, req.RoomName)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"token":     signed,
		"expiresAt": expires.Unix(),
	})
}
