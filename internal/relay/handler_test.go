package relay

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/vetlink/vetcall/internal/signal"
)

func newTestHandler() *Handler {
	return NewHandler(NewRegistry(), NewRooms(), zerolog.Nop())
}

func TestHandleJoinChannelRegistersIdentity(t *testing.T) {
	h := newTestHandler()
	c := newTestClient()

	h.Handle(c, signal.Message{Type: signal.TypeJoinVeterinarian, UserID: "vet-1"})

	if got := h.Registry().Lookup("vet-1"); len(got) != 1 || got[0] != c {
		t.Fatalf("Lookup(vet-1) = %v, want the joining connection", got)
	}
}

func TestHandleCallUserRingsEveryDevice(t *testing.T) {
	h := newTestHandler()
	caller := newTestClient()
	phone, tablet := newTestClient(), newTestClient()

	h.Handle(phone, signal.Message{Type: signal.TypeJoinPetParent, UserID: "owner-1"})
	h.Handle(tablet, signal.Message{Type: signal.TypeJoinPetParent, UserID: "owner-1"})

	h.Handle(caller, signal.Message{
		Type:     signal.TypeCallUser,
		CallID:   "c1",
		RoomName: "room-vet-1-owner-1-1000",
		From:     "vet-1",
		To:       "owner-1",
	})

	for name, dev := range map[string]*Client{"phone": phone, "tablet": tablet} {
		got := drain(t, dev)
		if len(got) != 1 {
			t.Fatalf("%s received %d messages, want 1", name, len(got))
		}
		// The server rewrites the type; everything else passes through.
		if got[0].Type != signal.TypeIncomingCall {
			t.Errorf("%s received type %s, want %s", name, got[0].Type, signal.TypeIncomingCall)
		}
		if got[0].CallID != "c1" || got[0].From != "vet-1" || got[0].RoomName != "room-vet-1-owner-1-1000" {
			t.Errorf("%s received %+v, want the invitation fields preserved", name, got[0])
		}
	}
}

func TestHandleCallUserToOfflineCallee(t *testing.T) {
	h := newTestHandler()
	caller := newTestClient()

	// Nobody registered as owner-1. Must not panic or misroute.
	h.Handle(caller, signal.Message{
		Type: signal.TypeCallUser, CallID: "c1", RoomName: "r", From: "vet-1", To: "owner-1",
	})
	if got := drain(t, caller); len(got) != 0 {
		t.Fatalf("caller received %v, want nothing", got)
	}
}

func TestHandleJoinFullRoomSendsRoomFull(t *testing.T) {
	h := newTestHandler()
	a, b, c := newTestClient(), newTestClient(), newTestClient()

	h.Handle(a, signal.Message{Type: signal.TypeJoinCall, RoomName: "r", UserID: "A"})
	h.Handle(b, signal.Message{Type: signal.TypeJoinCall, RoomName: "r", UserID: "B"})
	h.Handle(c, signal.Message{Type: signal.TypeJoinCall, RoomName: "r", UserID: "C"})

	got := drain(t, c)
	if len(got) != 1 || got[0].Type != signal.TypeRoomFull || got[0].RoomName != "r" {
		t.Fatalf("third joiner received %v, want a room-full notice for r", got)
	}
	if h.Rooms().Members("r") != 2 {
		t.Errorf("Members = %d, want 2", h.Rooms().Members("r"))
	}
}

func TestHandleRelaysSignalingWithinRoom(t *testing.T) {
	h := newTestHandler()
	a, b := newTestClient(), newTestClient()
	h.Handle(a, signal.Message{Type: signal.TypeJoinCall, RoomName: "r", UserID: "A"})
	h.Handle(b, signal.Message{Type: signal.TypeJoinCall, RoomName: "r", UserID: "B"})

	h.Handle(a, signal.Message{Type: signal.TypeOffer, RoomName: "r", SDP: "offer-sdp"})
	h.Handle(b, signal.Message{Type: signal.TypeAnswer, RoomName: "r", SDP: "answer-sdp"})
	h.Handle(a, signal.Message{Type: signal.TypeICECandidate, RoomName: "r", Candidate: "cand-1"})

	gotB := drain(t, b)
	if len(gotB) != 2 || gotB[0].Type != signal.TypeOffer || gotB[1].Type != signal.TypeICECandidate {
		t.Fatalf("b received %v, want [offer ice-candidate]", gotB)
	}
	gotA := drain(t, a)
	if len(gotA) != 1 || gotA[0].Type != signal.TypeAnswer {
		t.Fatalf("a received %v, want [answer]", gotA)
	}
}

func TestHandleEndCallWithAddresseeClearsPendingRing(t *testing.T) {
	h := newTestHandler()
	caller := newTestClient()
	callee := newTestClient()

	h.Handle(callee, signal.Message{Type: signal.TypeJoinPetParent, UserID: "owner-1"})
	// Caller joined its room; the callee never did (it is still ringing).
	h.Handle(caller, signal.Message{Type: signal.TypeJoinCall, RoomName: "r", UserID: "vet-1"})

	h.Handle(caller, signal.Message{Type: signal.TypeEndCall, CallID: "c1", RoomName: "r", To: "owner-1"})

	got := drain(t, callee)
	if len(got) != 1 || got[0].Type != signal.TypeEndCall || got[0].CallID != "c1" {
		t.Fatalf("callee received %v, want the end-call cancellation", got)
	}
}

func TestHandleEndCallNotEchoedToSender(t *testing.T) {
	h := newTestHandler()
	c := newTestClient()
	h.Handle(c, signal.Message{Type: signal.TypeJoinVeterinarian, UserID: "vet-1"})
	h.Handle(c, signal.Message{Type: signal.TypeJoinCall, RoomName: "r", UserID: "vet-1"})

	// Addressed to the sender's own identity — must not loop back.
	h.Handle(c, signal.Message{Type: signal.TypeEndCall, RoomName: "r", To: "vet-1"})

	if got := drain(t, c); len(got) != 0 {
		t.Fatalf("sender received its own end-call: %v", got)
	}
}

func TestDisconnectNotifiesRemainingPeer(t *testing.T) {
	h := newTestHandler()
	a, b := newTestClient(), newTestClient()
	h.Handle(a, signal.Message{Type: signal.TypeJoinVeterinarian, UserID: "vet-1"})
	h.Handle(a, signal.Message{Type: signal.TypeJoinCall, RoomName: "r", UserID: "vet-1"})
	h.Handle(b, signal.Message{Type: signal.TypeJoinCall, RoomName: "r", UserID: "owner-1"})

	h.Disconnect(a)

	got := drain(t, b)
	if len(got) != 1 || got[0].Type != signal.TypeEndCall || got[0].RoomName != "r" {
		t.Fatalf("peer received %v, want an end-call for r", got)
	}
	if got := h.Registry().Lookup("vet-1"); len(got) != 0 {
		t.Errorf("vet-1 still registered after disconnect")
	}
	if got := h.Rooms().Members("r"); got != 1 {
		t.Errorf("Members = %d, want 1", got)
	}
}
