package call

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vetlink/vetcall/internal/media"
	"github.com/vetlink/vetcall/internal/signal"
)

// Sender delivers signaling messages to the relay server. *signal.Conn
// satisfies it.
type Sender interface {
	Send(signal.Message) error
}

// Session is the slice of the media engine the machine drives.
// *media.Session satisfies it.
type Session interface {
	CreateOffer() (string, error)
	CreateAnswer() (string, error)
	ApplyRemoteOffer(sdp string) error
	ApplyRemoteAnswer(sdp string) error
	AddRemoteCandidate(candidate string) error
	OnLocalCandidate(func(candidate string))
	OnStateChange(func(media.SessionState))
	Close() error
}

// Config carries the collaborators and tunables for one Machine.
type Config struct {
	RingWindow time.Duration // 0 means DefaultRingWindow
	Capturer   media.Capturer
	NewSession func() (Session, error)
	OnState    func(State)   // UI notification, called outside the machine lock
	OnOutcome  func(Outcome) // terminal outcome sink (analytics/logging)
	Logger     zerolog.Logger
}

// Machine governs one call attempt from invitation to termination. It owns
// the ring timer, the media session, and the signaling handle for its call,
// so no handler from a prior call can fire into it.
//
// Every event (local operation, relayed message, timer expiry, session state
// change) runs to completion under one mutex; no two events for the same call
// are processed concurrently.
type Machine struct {
	inv  Invitation
	role Role
	sig  Sender
	cfg  Config
	log  zerolog.Logger

	mu      sync.Mutex
	state   State
	timer   *RingTimer
	session Session
	capture media.Capture
	inRoom  bool
	// Remote candidates that raced ahead of session creation. The session's
	// own buffer takes over once it exists.
	early []string

	resolvedAt time.Time
	endedAt    time.Time
}

// NewCaller creates the caller-side machine for a fresh invitation. The
// caller is always the session-description initiator.
func NewCaller(inv Invitation, sig Sender, cfg Config) *Machine {
	return newMachine(inv, RoleCaller, sig, cfg)
}

// NewCallee creates the callee-side machine from a received invitation. The
// callee is always the responder.
func NewCallee(inv Invitation, sig Sender, cfg Config) *Machine {
	return newMachine(inv, RoleCallee, sig, cfg)
}

func newMachine(inv Invitation, role Role, sig Sender, cfg Config) *Machine {
	if cfg.RingWindow <= 0 {
		cfg.RingWindow = DefaultRingWindow
	}
	if cfg.Capturer == nil {
		cfg.Capturer = media.NopCapturer{}
	}
	if cfg.NewSession == nil {
		cfg.NewSession = func() (Session, error) {
			return media.NewSession(nil)
		}
	}
	return &Machine{
		inv:   inv,
		role:  role,
		sig:   sig,
		cfg:   cfg,
		log:   cfg.Logger.With().Str("call_id", inv.CallID).Str("role", string(role)).Logger(),
		state: StateIdle,
	}
}

// State returns the current lifecycle state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Invitation returns the immutable invitation record.
func (m *Machine) Invitation() Invitation { return m.inv }

// ─────────────────────────────────────────────────────────────────────────────
// Local operations
// ─────────────────────────────────────────────────────────────────────────────

// Start sends the invitation: the caller joins the room (so accept/reject
// relayed into it reach us), rings the callee through the registry, and arms
// the ring timer. Valid only in Idle.
func (m *Machine) Start(ctx context.Context) error {
	fx := &effects{}
	m.mu.Lock()
	if m.state != StateIdle {
		m.mu.Unlock()
		return fmt.Errorf("cannot start call in state %q", m.state)
	}

	if err := m.sig.Send(signal.Message{
		Type:     signal.TypeJoinCall,
		RoomName: m.inv.RoomName,
		UserID:   m.inv.CallerID,
	}); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("failed to join room: %w", err)
	}
	m.inRoom = true

	if err := m.sig.Send(signal.Message{
		Type:     signal.TypeCallUser,
		CallID:   m.inv.CallID,
		RoomName: m.inv.RoomName,
		From:     m.inv.CallerID,
		To:       m.inv.CalleeID,
	}); err != nil {
		m.sendBestEffort(signal.Message{Type: signal.TypeLeaveCall, RoomName: m.inv.RoomName})
		m.inRoom = false
		m.mu.Unlock()
		return fmt.Errorf("failed to send invitation: %w", err)
	}

	m.transition(StateRinging, fx)
	// One timer per call id; the machine is not restartable.
	m.timer = StartRingTimer(m.cfg.RingWindow, m.onRingTimeout)
	m.mu.Unlock()

	m.apply(fx)
	return nil
}

// Ring marks the callee side as ringing after the invitation arrived.
func (m *Machine) Ring() error {
	fx := &effects{}
	m.mu.Lock()
	if m.state != StateIdle {
		m.mu.Unlock()
		return fmt.Errorf("cannot ring in state %q", m.state)
	}
	m.transition(StateRinging, fx)
	m.mu.Unlock()

	m.apply(fx)
	return nil
}

// Accept answers the invitation: acquire local media, create the peer
// session, join the room, and tell the caller we accepted. The offer then
// arrives through the room. Callee only, valid only while Ringing.
func (m *Machine) Accept(ctx context.Context) error {
	fx := &effects{}
	m.mu.Lock()
	if m.role != RoleCaller && m.state == StateRinging {
		if err := m.sig.Send(signal.Message{
			Type:     signal.TypeJoinCall,
			RoomName: m.inv.RoomName,
			UserID:   m.inv.CalleeID,
		}); err != nil {
			m.mu.Unlock()
			return fmt.Errorf("failed to join room: %w", err)
		}
		m.inRoom = true

		if err := m.setupMedia(ctx); err != nil {
			m.terminate(StateEnded, reasonFor(err), true, fx)
			m.mu.Unlock()
			m.apply(fx)
			return err
		}

		m.sendBestEffort(signal.Message{Type: signal.TypeCallAccepted, RoomName: m.inv.RoomName})
		m.transition(StateAccepted, fx)
		m.mu.Unlock()

		m.apply(fx)
		return nil
	}
	state := m.state
	m.mu.Unlock()
	return fmt.Errorf("cannot accept call in state %q", state)
}

// Reject declines the invitation. The rejection is relayed through the room,
// so the callee joins, sends it, and leaves again. Valid only while Ringing.
func (m *Machine) Reject() error {
	fx := &effects{}
	m.mu.Lock()
	if m.role == RoleCaller || m.state != StateRinging {
		state := m.state
		m.mu.Unlock()
		return fmt.Errorf("cannot reject call in state %q", state)
	}

	m.sendBestEffort(signal.Message{Type: signal.TypeJoinCall, RoomName: m.inv.RoomName, UserID: m.inv.CalleeID})
	m.sendBestEffort(signal.Message{Type: signal.TypeCallRejected, RoomName: m.inv.RoomName})
	m.sendBestEffort(signal.Message{Type: signal.TypeLeaveCall, RoomName: m.inv.RoomName})

	m.transition(StateRejected, fx)
	m.outcome("rejected", fx)
	m.mu.Unlock()

	m.apply(fx)
	return nil
}

// Hangup ends the call from this side. A no-op once the call is terminal.
func (m *Machine) Hangup() {
	fx := &effects{}
	m.mu.Lock()
	m.terminate(StateEnded, "hangup", true, fx)
	m.mu.Unlock()
	m.apply(fx)
}

// Disconnected reports that the signaling connection was lost. Treated as
// call-ended, not as an error.
func (m *Machine) Disconnected() {
	fx := &effects{}
	m.mu.Lock()
	m.terminate(StateEnded, "connection lost", false, fx)
	m.mu.Unlock()
	m.apply(fx)
}

// ─────────────────────────────────────────────────────────────────────────────
// Relayed messages
// ─────────────────────────────────────────────────────────────────────────────

// HandleMessage processes one relayed signaling message. Messages for other
// rooms or call ids, duplicates, and role-violating messages are ignored —
// they stem from out-of-order delivery, not genuine faults.
func (m *Machine) HandleMessage(msg signal.Message) {
	fx := &effects{}
	m.mu.Lock()

	if msg.RoomName != "" && msg.RoomName != m.inv.RoomName {
		m.mu.Unlock()
		return
	}
	if msg.CallID != "" && msg.CallID != m.inv.CallID {
		m.mu.Unlock()
		return
	}

	switch msg.Type {
	case signal.TypeCallAccepted:
		m.handleAccepted(fx)

	case signal.TypeCallRejected:
		if m.role != RoleCaller || m.state != StateRinging {
			break
		}
		m.stopTimer()
		m.cleanup(false)
		m.transition(StateRejected, fx)
		m.outcome("rejected", fx)

	case signal.TypeOffer:
		if m.role == RoleCaller {
			// An initiator never processes an offer for a room it opened.
			m.log.Warn().Msg("ignoring offer received as initiator")
			break
		}
		m.handleOffer(msg.SDP, fx)

	case signal.TypeAnswer:
		if m.role == RoleCallee {
			m.log.Warn().Msg("ignoring answer received as responder")
			break
		}
		m.handleAnswer(msg.SDP, fx)

	case signal.TypeICECandidate:
		if m.state.Terminal() {
			break
		}
		if m.session == nil {
			m.early = append(m.early, msg.Candidate)
			break
		}
		if err := m.session.AddRemoteCandidate(msg.Candidate); err != nil {
			m.log.Warn().Err(err).Msg("failed to add remote candidate")
		}

	case signal.TypeEndCall:
		m.terminate(StateEnded, "remote ended", false, fx)

	case signal.TypeRoomFull:
		m.terminate(StateEnded, "room full", false, fx)
	}

	m.mu.Unlock()
	m.apply(fx)
}

// handleAccepted moves the caller to Accepted: cancel the ring timer, set up
// media, create the offer, and relay it.
func (m *Machine) handleAccepted(fx *effects) {
	if m.role != RoleCaller || m.state != StateRinging {
		return
	}
	m.stopTimer()
	m.transition(StateAccepted, fx)

	if err := m.setupMedia(context.Background()); err != nil {
		m.terminate(StateEnded, reasonFor(err), true, fx)
		return
	}
	sdp, err := m.session.CreateOffer()
	if err != nil {
		m.terminate(StateEnded, "session failed", true, fx)
		return
	}
	m.sendBestEffort(signal.Message{Type: signal.TypeOffer, RoomName: m.inv.RoomName, SDP: sdp})
}

// handleOffer applies the remote offer on the callee, flushes buffered
// candidates, and answers.
func (m *Machine) handleOffer(sdp string, fx *effects) {
	if m.state != StateAccepted {
		return
	}
	if err := m.session.ApplyRemoteOffer(sdp); err != nil {
		m.terminate(StateEnded, "session failed", true, fx)
		return
	}
	answer, err := m.session.CreateAnswer()
	if err != nil {
		m.terminate(StateEnded, "session failed", true, fx)
		return
	}
	m.sendBestEffort(signal.Message{Type: signal.TypeAnswer, RoomName: m.inv.RoomName, SDP: answer})
}

// handleAnswer applies the remote answer on the caller and flushes buffered
// candidates.
func (m *Machine) handleAnswer(sdp string, fx *effects) {
	if m.state != StateAccepted {
		return
	}
	if err := m.session.ApplyRemoteAnswer(sdp); err != nil {
		m.terminate(StateEnded, "session failed", true, fx)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Timer and session callbacks
// ─────────────────────────────────────────────────────────────────────────────

// onRingTimeout fires when the invitation rang out. Besides resolving the
// caller's state, it relays a cancellation addressed to the callee identity
// so a pending ring is cleared even though the callee never joined the room.
func (m *Machine) onRingTimeout() {
	fx := &effects{}
	m.mu.Lock()
	if m.state != StateRinging {
		m.mu.Unlock()
		return
	}
	m.sendBestEffort(signal.Message{
		Type:     signal.TypeEndCall,
		CallID:   m.inv.CallID,
		RoomName: m.inv.RoomName,
		To:       m.inv.CalleeID,
	})
	m.cleanup(false)
	m.transition(StateTimedOut, fx)
	m.outcome("no answer", fx)
	m.mu.Unlock()
	m.apply(fx)
}

// onSessionState maps underlying session states onto the call lifecycle.
func (m *Machine) onSessionState(st media.SessionState) {
	fx := &effects{}
	m.mu.Lock()
	switch st {
	case media.SessionConnected:
		if m.state == StateAccepted {
			m.transition(StateConnected, fx)
		}
	case media.SessionEnded:
		// A failed or disconnected session after setup is a normal call end
		// for cleanup purposes.
		if m.state == StateAccepted || m.state == StateConnected {
			m.terminate(StateEnded, "call ended", true, fx)
		}
	}
	m.mu.Unlock()
	m.apply(fx)
}

// ─────────────────────────────────────────────────────────────────────────────
// Internals (all called with m.mu held)
// ─────────────────────────────────────────────────────────────────────────────

// setupMedia acquires local media and creates the peer session, wiring its
// callbacks into the machine. Candidates that arrived early are replayed into
// the session, whose own buffer holds them until the remote description.
func (m *Machine) setupMedia(ctx context.Context) error {
	capture, err := m.cfg.Capturer.Acquire(ctx, media.Constraints{Audio: true, Video: true})
	if err != nil {
		return err
	}
	m.capture = capture

	sess, err := m.cfg.NewSession()
	if err != nil {
		m.capture.Close()
		m.capture = nil
		return fmt.Errorf("failed to create session: %w", err)
	}
	m.session = sess

	sess.OnLocalCandidate(m.sendLocalCandidate)
	sess.OnStateChange(m.onSessionState)

	for _, cand := range m.early {
		if err := sess.AddRemoteCandidate(cand); err != nil {
			m.log.Warn().Err(err).Msg("failed to add early remote candidate")
		}
	}
	m.early = nil
	return nil
}

// sendLocalCandidate relays a locally gathered candidate. Invoked from the
// session's gathering goroutine, so it takes the lock itself.
func (m *Machine) sendLocalCandidate(candidate string) {
	m.mu.Lock()
	terminal := m.state.Terminal()
	m.mu.Unlock()
	if terminal {
		return
	}
	if err := m.sig.Send(signal.Message{
		Type:      signal.TypeICECandidate,
		RoomName:  m.inv.RoomName,
		Candidate: candidate,
	}); err != nil {
		m.log.Warn().Err(err).Msg("failed to send local candidate")
	}
}

// transition moves to the next state if the transition table allows it.
func (m *Machine) transition(to State, fx *effects) {
	if !CanTransition(m.state, to) {
		m.log.Warn().Str("from", string(m.state)).Str("to", string(to)).Msg("invalid transition ignored")
		return
	}
	m.state = to
	if (to == StateAccepted || to.Terminal()) && m.resolvedAt.IsZero() {
		m.resolvedAt = time.Now()
	}
	if to.Terminal() {
		m.endedAt = time.Now()
	}
	fx.states = append(fx.states, to)
}

// terminate drives the call to a terminal state with full resource release.
// Idempotent: a second termination of an already-terminal call is a no-op.
func (m *Machine) terminate(final State, reason string, relayEnd bool, fx *effects) {
	if m.state.Terminal() {
		return
	}
	m.stopTimer()
	m.cleanup(relayEnd)
	if !CanTransition(m.state, final) {
		// Remote disconnects are treated as call-ended from any live state.
		m.state = final
		if m.resolvedAt.IsZero() {
			m.resolvedAt = time.Now()
		}
		m.endedAt = time.Now()
		fx.states = append(fx.states, final)
	} else {
		m.transition(final, fx)
	}
	m.outcome(reason, fx)
}

// cleanup releases media, closes the session, and leaves the room. Each
// release is attempted independently; failures are logged, not propagated.
func (m *Machine) cleanup(relayEnd bool) {
	var errs []error
	if m.capture != nil {
		errs = append(errs, m.capture.Close())
		m.capture = nil
	}
	if m.session != nil {
		errs = append(errs, m.session.Close())
		m.session = nil
	}
	if m.inRoom {
		if relayEnd {
			m.sendBestEffort(signal.Message{
				Type:     signal.TypeEndCall,
				CallID:   m.inv.CallID,
				RoomName: m.inv.RoomName,
			})
		}
		m.sendBestEffort(signal.Message{Type: signal.TypeLeaveCall, RoomName: m.inv.RoomName})
		m.inRoom = false
	}
	if err := errors.Join(errs...); err != nil {
		m.log.Warn().Err(err).Msg("cleanup errors")
	}
}

func (m *Machine) stopTimer() {
	if m.timer != nil {
		m.timer.Stop()
	}
}

func (m *Machine) sendBestEffort(msg signal.Message) {
	if err := m.sig.Send(msg); err != nil {
		m.log.Warn().Err(err).Str("type", string(msg.Type)).Msg("failed to send signaling message")
	}
}

func (m *Machine) outcome(reason string, fx *effects) {
	fx.outcome = &Outcome{
		CallID:     m.inv.CallID,
		RoomName:   m.inv.RoomName,
		CallerID:   m.inv.CallerID,
		CalleeID:   m.inv.CalleeID,
		Role:       m.role,
		Final:      m.state,
		Reason:     reason,
		CreatedAt:  m.inv.CreatedAt,
		ResolvedAt: m.resolvedAt,
		EndedAt:    m.endedAt,
	}
}

func reasonFor(err error) string {
	var acq *media.AcquisitionError
	if errors.As(err, &acq) {
		return "media unavailable"
	}
	return "session failed"
}

// effects collects state notifications and the terminal outcome gathered
// under the lock; apply delivers them after it is released so callbacks may
// call back into the machine.
type effects struct {
	states  []State
	outcome *Outcome
}

func (m *Machine) apply(fx *effects) {
	if m.cfg.OnState != nil {
		for _, s := range fx.states {
			m.cfg.OnState(s)
		}
	}
	if fx.outcome != nil && m.cfg.OnOutcome != nil {
		m.cfg.OnOutcome(*fx.outcome)
	}
}
