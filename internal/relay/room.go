package relay

import (
	"errors"
	"sync"

	"github.com/vetlink/vetcall/internal/signal"
)

// MaxRoomMembers is the hard cap per room: calls are strictly one-to-one.
const MaxRoomMembers = 2

// ErrRoomFull is returned when a third connection tries to join a room.
var ErrRoomFull = errors.New("room already has two members")

// Rooms groups connections under shared room names and relays signaling
// between them. Membership changes for a room are applied atomically with
// respect to concurrent joins/leaves; rooms are created on first join and
// destroyed when the last member leaves.
//
// The sole access-control invariant: a message is never delivered to a
// connection that has not joined the room. Room names are unguessable per
// call attempt, which is what isolates concurrent calls from each other.
type Rooms struct {
	mu    sync.Mutex
	rooms map[string]map[*Client]struct{}
}

// NewRooms creates an empty room table.
func NewRooms() *Rooms {
	return &Rooms{rooms: make(map[string]map[*Client]struct{})}
}

// Join adds c to the room, creating it if absent. A third join attempt is
// refused with ErrRoomFull; re-joining a room already containing c is a
// no-op.
func (r *Rooms) Join(roomName string, c *Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.rooms[roomName]
	if members == nil {
		members = make(map[*Client]struct{})
		r.rooms[roomName] = members
	}
	if _, ok := members[c]; ok {
		return nil
	}
	if len(members) >= MaxRoomMembers {
		return ErrRoomFull
	}
	members[c] = struct{}{}
	return nil
}

// Leave removes c from the room; the room is destroyed when it empties.
func (r *Rooms) Leave(roomName string, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(roomName, c)
}

func (r *Rooms) leaveLocked(roomName string, c *Client) {
	members := r.rooms[roomName]
	if members == nil {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(r.rooms, roomName)
	}
}

// LeaveAll removes c from every room it joined and returns, per room, the
// members that remain. Used on disconnect so the peer can be told the call
// ended.
func (r *Rooms) LeaveAll(c *Client) map[string][]*Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	remaining := make(map[string][]*Client)
	for roomName, members := range r.rooms {
		if _, ok := members[c]; !ok {
			continue
		}
		r.leaveLocked(roomName, c)
		for peer := range r.rooms[roomName] {
			remaining[roomName] = append(remaining[roomName], peer)
		}
	}
	return remaining
}

// Relay delivers msg to every member of the room except the sender and
// returns how many connections it reached. A sender that is not a member
// relays to nobody, and an otherwise empty room yields zero — both are
// normal (the callee may not have joined yet, or has already left).
func (r *Rooms) Relay(roomName string, sender *Client, msg signal.Message) int {
	r.mu.Lock()
	members := r.rooms[roomName]
	if _, ok := members[sender]; !ok {
		r.mu.Unlock()
		return 0
	}
	targets := make([]*Client, 0, len(members)-1)
	for c := range members {
		if c != sender {
			targets = append(targets, c)
		}
	}
	r.mu.Unlock()

	for _, c := range targets {
		c.Send(msg)
	}
	return len(targets)
}

// Members reports the current member count of a room.
func (r *Rooms) Members(roomName string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms[roomName])
}
