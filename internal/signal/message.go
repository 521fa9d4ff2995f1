// Package signal defines the JSON wire messages exchanged with the relay
// server and the client-side WebSocket connection used to carry them.
package signal

import "fmt"

// Type identifies the kind of signaling message.
type Type string

const (
	// Identity join channels: bind the connection to a marketplace identity.
	TypeJoinVeterinarian Type = "join-veterinarian"
	TypeJoinPetParent    Type = "join-petparent"
	TypeJoinParavet      Type = "join-paravet"

	// Call invitation, delivered through the Connection Registry.
	TypeCallUser     Type = "call-user"     // caller → server
	TypeIncomingCall Type = "incoming-call" // server → callee

	// Room-scoped messages, relayed by the Room Router.
	TypeJoinCall     Type = "join-call"
	TypeLeaveCall    Type = "leave-call"
	TypeCallAccepted Type = "call-accepted"
	TypeCallRejected Type = "call-rejected"
	TypeOffer        Type = "offer"
	TypeAnswer       Type = "answer"
	TypeICECandidate Type = "ice-candidate"
	TypeEndCall      Type = "end-call"

	// Server notices.
	TypeRoomFull Type = "room-full" // join-call refused, room already has two members
)

// Role is a participant role as asserted on the identity join channel.
type Role string

const (
	RoleVeterinarian Role = "veterinarian"
	RolePetOwner     Role = "pet-owner"
	RoleParavet      Role = "paraveterinary-worker"
)

// Message is the envelope for every signaling message. Fields not used by a
// given type are omitted on the wire; Validate enforces the required set.
type Message struct {
	Type     Type   `json:"type"`
	RoomName string `json:"roomName,omitempty"`
	CallID   string `json:"callId,omitempty"`
	UserID   string `json:"userId,omitempty"`
	From     string `json:"from,omitempty"`
	To       string `json:"to,omitempty"`

	// SDP carries the session description for offer/answer. Candidate carries
	// a JSON-encoded ICECandidateInit. Both are opaque to the relay.
	SDP       string `json:"sdp,omitempty"`
	Candidate string `json:"candidate,omitempty"`
}

// JoinRole maps an identity join message to the role it asserts.
func (m Message) JoinRole() (Role, bool) {
	switch m.Type {
	case TypeJoinVeterinarian:
		return RoleVeterinarian, true
	case TypeJoinPetParent:
		return RolePetOwner, true
	case TypeJoinParavet:
		return RoleParavet, true
	default:
		return "", false
	}
}

// Validate checks that the fields required by the message type are present.
// Payload contents (SDP, candidates) are never interpreted.
func (m Message) Validate() error {
	switch m.Type {
	case TypeJoinVeterinarian, TypeJoinPetParent, TypeJoinParavet:
		if m.UserID == "" {
			return fmt.Errorf("%s: missing userId", m.Type)
		}

	case TypeCallUser, TypeIncomingCall:
		switch {
		case m.CallID == "":
			return fmt.Errorf("%s: missing callId", m.Type)
		case m.RoomName == "":
			return fmt.Errorf("%s: missing roomName", m.Type)
		case m.From == "":
			return fmt.Errorf("%s: missing from", m.Type)
		case m.To == "":
			return fmt.Errorf("%s: missing to", m.Type)
		}

	case TypeJoinCall:
		if m.RoomName == "" {
			return fmt.Errorf("%s: missing roomName", m.Type)
		}
		if m.UserID == "" {
			return fmt.Errorf("%s: missing userId", m.Type)
		}

	case TypeLeaveCall, TypeCallAccepted, TypeCallRejected, TypeRoomFull:
		if m.RoomName == "" {
			return fmt.Errorf("%s: missing roomName", m.Type)
		}

	case TypeOffer, TypeAnswer:
		if m.RoomName == "" {
			return fmt.Errorf("%s: missing roomName", m.Type)
		}
		if m.SDP == "" {
			return fmt.Errorf("%s: missing sdp", m.Type)
		}

	case TypeICECandidate:
		if m.RoomName == "" {
			return fmt.Errorf("%s: missing roomName", m.Type)
		}
		if m.Candidate == "" {
			return fmt.Errorf("%s: missing candidate", m.Type)
		}

	case TypeEndCall:
		if m.RoomName == "" {
			return fmt.Errorf("%s: missing roomName", m.Type)
		}

	default:
		return fmt.Errorf("unknown message type %q", m.Type)
	}
	return nil
}
