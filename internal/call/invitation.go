// Package call implements the lifecycle of one call attempt: the invitation
// record, the ring timer, and the state machine that drives signaling and the
// media session from invitation to termination.
package call

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle state of a call attempt.
type State string

const (
	StateIdle      State = "idle"
	StateRinging   State = "ringing"
	StateAccepted  State = "accepted"
	StateRejected  State = "rejected"
	StateTimedOut  State = "timed-out"
	StateConnected State = "connected"
	StateEnded     State = "ended"
)

// Terminal reports whether s is a terminal state. A call reaches exactly one
// terminal state, exactly once.
func (s State) Terminal() bool {
	switch s {
	case StateRejected, StateTimedOut, StateEnded:
		return true
	default:
		return false
	}
}

// validNext enumerates the allowed transitions. Connected is only reachable
// via Accepted; every non-terminal state may fall to Ended on remote
// disconnect.
var validNext = map[State][]State{
	StateIdle:      {StateRinging},
	StateRinging:   {StateAccepted, StateRejected, StateTimedOut, StateEnded},
	StateAccepted:  {StateConnected, StateEnded},
	StateConnected: {StateEnded},
}

// CanTransition reports whether from → to is an allowed transition.
func CanTransition(from, to State) bool {
	for _, next := range validNext[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Role fixes which side creates the offer. It is assigned at invitation time,
// propagated verbatim in the invitation payload, and never renegotiated.
type Role string

const (
	RoleCaller Role = "caller" // session-description initiator
	RoleCallee Role = "callee" // responder
)

// Invitation identifies one call attempt. The room name scopes all signaling
// relay for the attempt and is distinct from the call id.
type Invitation struct {
	CallID    string
	RoomName  string
	CallerID  string
	CalleeID  string
	CreatedAt time.Time
}

// NewInvitation creates a caller-side invitation with a fresh call id and a
// room name derived from both identities and the creation timestamp.
func NewInvitation(callerID, calleeID string) Invitation {
	now := time.Now()
	return Invitation{
		CallID:    uuid.NewString(),
		RoomName:  RoomName(callerID, calleeID, now),
		CallerID:  callerID,
		CalleeID:  calleeID,
		CreatedAt: now,
	}
}

// RoomName builds the per-attempt room name. The format is an external
// contract shared with the mobile clients and must not change.
func RoomName(callerID, calleeID string, ts time.Time) string {
	return fmt.Sprintf("room-%s-%s-%d", callerID, calleeID, ts.UnixMilli())
}

// Outcome is the terminal result of a call attempt, exposed to analytics and
// logging collaborators.
type Outcome struct {
	CallID   string
	RoomName string
	CallerID string
	CalleeID string
	Role     Role

	Final  State // Rejected, TimedOut, or Ended
	Reason string

	CreatedAt  time.Time
	ResolvedAt time.Time // set when ringing resolved (accept/reject/timeout)
	EndedAt    time.Time
}
