package relay

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/vetlink/vetcall/internal/signal"
)

func newTestClient() *Client {
	return NewClient(nil, zerolog.Nop())
}

// drain empties a client's outbound queue and decodes the messages.
func drain(t *testing.T, c *Client) []signal.Message {
	t.Helper()
	var out []signal.Message
	for {
		select {
		case raw := <-c.send:
			var m signal.Message
			if err := json.Unmarshal(raw, &m); err != nil {
				t.Fatalf("failed to decode outbound message: %v", err)
			}
			out = append(out, m)
		default:
			return out
		}
	}
}

func TestRoomCapsAtTwoMembers(t *testing.T) {
	rooms := NewRooms()
	a, b, c := newTestClient(), newTestClient(), newTestClient()

	if err := rooms.Join("room-A-B-1", a); err != nil {
		t.Fatalf("first join failed: %v", err)
	}
	if err := rooms.Join("room-A-B-1", b); err != nil {
		t.Fatalf("second join failed: %v", err)
	}
	if err := rooms.Join("room-A-B-1", c); !errors.Is(err, ErrRoomFull) {
		t.Fatalf("third join err = %v, want ErrRoomFull", err)
	}
	if got := rooms.Members("room-A-B-1"); got != 2 {
		t.Errorf("Members = %d, want 2", got)
	}
}

func TestRoomRejoinIsNoOp(t *testing.T) {
	rooms := NewRooms()
	a, b := newTestClient(), newTestClient()
	rooms.Join("r", a)
	rooms.Join("r", b)

	if err := rooms.Join("r", a); err != nil {
		t.Fatalf("re-join of a member must succeed, got %v", err)
	}
	if got := rooms.Members("r"); got != 2 {
		t.Errorf("Members = %d, want 2", got)
	}
}

func TestRelayExcludesSender(t *testing.T) {
	rooms := NewRooms()
	a, b := newTestClient(), newTestClient()
	rooms.Join("r", a)
	rooms.Join("r", b)

	n := rooms.Relay("r", a, signal.Message{Type: signal.TypeOffer, RoomName: "r", SDP: "x"})
	if n != 1 {
		t.Fatalf("Relay reached %d, want 1", n)
	}
	if got := drain(t, a); len(got) != 0 {
		t.Errorf("sender received its own message: %v", got)
	}
	got := drain(t, b)
	if len(got) != 1 || got[0].Type != signal.TypeOffer || got[0].SDP != "x" {
		t.Errorf("peer received %v, want one offer with SDP x", got)
	}
}

func TestRelayFromNonMemberDeliversNothing(t *testing.T) {
	rooms := NewRooms()
	member, outsider := newTestClient(), newTestClient()
	rooms.Join("r", member)

	n := rooms.Relay("r", outsider, signal.Message{Type: signal.TypeOffer, RoomName: "r", SDP: "x"})
	if n != 0 {
		t.Fatalf("Relay from non-member reached %d, want 0", n)
	}
	if got := drain(t, member); len(got) != 0 {
		t.Errorf("member received message from non-member: %v", got)
	}
}

func TestRelayIsolatedBetweenRooms(t *testing.T) {
	rooms := NewRooms()
	a1, a2 := newTestClient(), newTestClient()
	b1, b2 := newTestClient(), newTestClient()
	rooms.Join("room-one", a1)
	rooms.Join("room-one", a2)
	rooms.Join("room-two", b1)
	rooms.Join("room-two", b2)

	rooms.Relay("room-one", a1, signal.Message{Type: signal.TypeOffer, RoomName: "room-one", SDP: "x"})

	if got := drain(t, b1); len(got) != 0 {
		t.Errorf("room-two member b1 received a room-one message: %v", got)
	}
	if got := drain(t, b2); len(got) != 0 {
		t.Errorf("room-two member b2 received a room-one message: %v", got)
	}
	if got := drain(t, a2); len(got) != 1 {
		t.Errorf("room-one peer received %d messages, want 1", len(got))
	}
}

func TestRelayIntoEmptyRoom(t *testing.T) {
	rooms := NewRooms()
	a := newTestClient()
	rooms.Join("r", a)

	// Nobody else joined yet; the miss is normal, not an error.
	if n := rooms.Relay("r", a, signal.Message{Type: signal.TypeICECandidate, RoomName: "r", Candidate: "c"}); n != 0 {
		t.Fatalf("Relay reached %d, want 0", n)
	}
}

func TestLeaveDestroysEmptyRoom(t *testing.T) {
	rooms := NewRooms()
	a, b := newTestClient(), newTestClient()
	rooms.Join("r", a)
	rooms.Join("r", b)

	rooms.Leave("r", a)
	if got := rooms.Members("r"); got != 1 {
		t.Fatalf("Members = %d, want 1", got)
	}
	rooms.Leave("r", b)
	if got := rooms.Members("r"); got != 0 {
		t.Fatalf("Members = %d after last leave, want 0", got)
	}

	// A fresh pair can reuse the name.
	if err := rooms.Join("r", newTestClient()); err != nil {
		t.Errorf("join after room destroyed failed: %v", err)
	}
}

func TestLeaveAllReturnsRemainingPeers(t *testing.T) {
	rooms := NewRooms()
	a, b := newTestClient(), newTestClient()
	rooms.Join("r", a)
	rooms.Join("r", b)

	remaining := rooms.LeaveAll(a)
	peers := remaining["r"]
	if len(peers) != 1 || peers[0] != b {
		t.Fatalf("remaining peers = %v, want [b]", peers)
	}
	if got := rooms.Members("r"); got != 1 {
		t.Errorf("Members = %d, want 1", got)
	}

	// Last member leaving empties the map.
	if remaining := rooms.LeaveAll(b); len(remaining["r"]) != 0 {
		t.Errorf("remaining after last leave = %v, want none", remaining["r"])
	}
	if got := rooms.Members("r"); got != 0 {
		t.Errorf("Members = %d, want 0", got)
	}
}
