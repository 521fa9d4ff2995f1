package relay

import (
	"github.com/rs/zerolog"

	"github.com/vetlink/vetcall/internal/signal"
)

// Handler dispatches validated signaling messages from connections to the
// registry and room router. It holds no per-call state.
type Handler struct {
	registry *Registry
	rooms    *Rooms
	log      zerolog.Logger
}

// NewHandler wires the dispatcher to its registry and rooms.
func NewHandler(registry *Registry, rooms *Rooms, log zerolog.Logger) *Handler {
	return &Handler{registry: registry, rooms: rooms, log: log}
}

// Registry exposes the connection registry (used by the HTTP server for
// diagnostics).
func (h *Handler) Registry() *Registry { return h.registry }

// Rooms exposes the room router.
func (h *Handler) Rooms() *Rooms { return h.rooms }

// Handle processes one message from c. Relay misses (no other member in the
// room yet) are normal and silently dropped.
func (h *Handler) Handle(c *Client, msg signal.Message) {
	if role, ok := msg.JoinRole(); ok {
		h.registry.Register(msg.UserID, role, c)
		h.log.Info().Str("user_id", msg.UserID).Str("role", string(role)).Msg("identity registered")
		return
	}

	switch msg.Type {
	case signal.TypeCallUser:
		// Ring every device the callee identity is bound to. An offline
		// callee is not an error here; push notification delivery is a
		// separate collaborator.
		invite := msg
		invite.Type = signal.TypeIncomingCall
		targets := h.registry.Lookup(msg.To)
		for _, t := range targets {
			t.Send(invite)
		}
		h.log.Info().
			Str("call_id", msg.CallID).
			Str("from", msg.From).
			Str("to", msg.To).
			Int("devices", len(targets)).
			Msg("invitation delivered")

	case signal.TypeJoinCall:
		if err := h.rooms.Join(msg.RoomName, c); err != nil {
			h.log.Warn().Str("room", msg.RoomName).Msg("join refused, room full")
			c.Send(signal.Message{Type: signal.TypeRoomFull, RoomName: msg.RoomName})
		}

	case signal.TypeLeaveCall:
		h.rooms.Leave(msg.RoomName, c)

	case signal.TypeCallAccepted, signal.TypeCallRejected,
		signal.TypeOffer, signal.TypeAnswer, signal.TypeICECandidate:
		h.rooms.Relay(msg.RoomName, c, msg)

	case signal.TypeEndCall:
		h.rooms.Relay(msg.RoomName, c, msg)
		// A caller cancelling an unanswered ring addresses the callee
		// identity directly — the callee never joined the room, so the room
		// relay alone cannot clear its pending ring.
		if msg.To != "" {
			for _, t := range h.registry.Lookup(msg.To) {
				if t != c {
					t.Send(msg)
				}
			}
		}

	default:
		h.log.Debug().Str("type", string(msg.Type)).Msg("ignoring client-bound message type")
	}
}

// Disconnect cleans up after a dropped connection: remaining room members
// are told the call ended, then every membership and identity binding is
// removed.
func (h *Handler) Disconnect(c *Client) {
	for roomName, peers := range h.rooms.LeaveAll(c) {
		for _, peer := range peers {
			peer.Send(signal.Message{Type: signal.TypeEndCall, RoomName: roomName})
		}
	}
	h.registry.Unregister(c)
}
