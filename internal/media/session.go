// Package media owns the peer session for one call: session-description
// creation and consumption, trickle ICE in both directions, and local media
// capture behind a narrow interface. Payload contents are never inspected
// above this package.
package media

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
)

// DefaultSTUNServers are used when no ICE servers are configured.
var DefaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// SessionState is the coarse connection state surfaced to the call machine.
type SessionState int

const (
	SessionConnecting SessionState = iota
	SessionConnected
	SessionEnded
)

// Session wraps a single PeerConnection, providing the slice of its API the
// call machine drives: offer/answer creation, remote description + candidate
// consumption (buffered), and local candidate emission.
//
// A Session belongs to exactly one call attempt and is closed with it.
type Session struct {
	pc  *webrtc.PeerConnection
	buf *CandidateBuffer

	mu      sync.RWMutex
	pcState webrtc.PeerConnectionState
}

// NewSession creates a peer session configured with the given STUN/TURN URLs.
func NewSession(iceServers []string) (*Session, error) {
	if len(iceServers) == 0 {
		iceServers = DefaultSTUNServers
	}
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: iceServers}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create peer session: %w", err)
	}

	s := &Session{
		pc:      pc,
		pcState: webrtc.PeerConnectionStateNew,
	}
	s.buf = NewCandidateBuffer(pc.AddICECandidate)
	return s, nil
}

// CreateOffer generates an SDP offer and sets it as the local description.
func (s *Session) CreateOffer() (string, error) {
	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("CreateOffer: %w", err)
	}
	if err := s.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("SetLocalDescription: %w", err)
	}
	return offer.SDP, nil
}

// CreateAnswer generates an SDP answer and sets it as the local description.
// Valid only after ApplyRemoteOffer.
func (s *Session) CreateAnswer() (string, error) {
	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("CreateAnswer: %w", err)
	}
	if err := s.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("SetLocalDescription: %w", err)
	}
	return answer.SDP, nil
}

// ApplyRemoteOffer sets the remote offer and flushes any buffered candidates.
func (s *Session) ApplyRemoteOffer(sdp string) error {
	return s.applyRemote(webrtc.SDPTypeOffer, sdp)
}

// ApplyRemoteAnswer sets the remote answer and flushes any buffered candidates.
func (s *Session) ApplyRemoteAnswer(sdp string) error {
	return s.applyRemote(webrtc.SDPTypeAnswer, sdp)
}

func (s *Session) applyRemote(kind webrtc.SDPType, sdp string) error {
	if err := s.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: kind,
		SDP:  sdp,
	}); err != nil {
		return fmt.Errorf("SetRemoteDescription: %w", err)
	}
	return s.buf.Flush()
}

// AddRemoteCandidate consumes a JSON-encoded ICECandidateInit received via
// the relay. Candidates arriving before the remote description are queued.
func (s *Session) AddRemoteCandidate(candidate string) error {
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal([]byte(candidate), &init); err != nil {
		return fmt.Errorf("failed to parse ICE candidate: %w", err)
	}
	return s.buf.Offer(init)
}

// OnLocalCandidate registers a callback for locally gathered candidates,
// already JSON-encoded for the wire. End-of-gathering (nil) is filtered out.
func (s *Session) OnLocalCandidate(fn func(candidate string)) {
	s.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		data, err := json.Marshal(c.ToJSON())
		if err != nil {
			return
		}
		fn(string(data))
	})
}

// OnStateChange registers a callback for coarse session state transitions.
// "connected" fires SessionConnected; failed/disconnected/closed fire
// SessionEnded; other underlying states are reported as SessionConnecting.
func (s *Session) OnStateChange(fn func(SessionState)) {
	s.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		s.mu.Lock()
		s.pcState = state
		s.mu.Unlock()

		switch state {
		case webrtc.PeerConnectionStateConnected:
			fn(SessionConnected)
		case webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateDisconnected,
			webrtc.PeerConnectionStateClosed:
			fn(SessionEnded)
		default:
			fn(SessionConnecting)
		}
	})
}

// OnRemoteTrack registers a callback for incoming remote media tracks.
func (s *Session) OnRemoteTrack(fn func(*webrtc.TrackRemote)) {
	s.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		fn(track)
	})
}

// AddLocalTrack attaches a platform-provided local track to the session.
// Must be called before the offer/answer is created to be negotiated.
func (s *Session) AddLocalTrack(track webrtc.TrackLocal) error {
	_, err := s.pc.AddTrack(track)
	return err
}

// ConnectionState returns the last observed underlying state.
func (s *Session) ConnectionState() webrtc.PeerConnectionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pcState
}

// Close shuts down the PeerConnection.
func (s *Session) Close() error {
	if err := s.pc.Close(); err != nil && !errors.Is(err, webrtc.ErrConnectionClosed) {
		return err
	}
	return nil
}
