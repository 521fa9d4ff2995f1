// Vetcall — interactive terminal client for the video-consultation call kit.
//
// It registers an identity with the relay server and then either places a
// call to a peer identity or waits for incoming invitations, driving the
// full signaling flow (ring, accept/reject, offer/answer, trickle ICE,
// teardown). Useful for exercising the relay end to end without the mobile
// apps.
//
// Flags: -server, -user, -as (veterinarian|petparent|paravet), -call <peer>,
// -ring, -debug. Missing values are prompted for interactively.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	ossignal "os/signal"
	"strings"
	"sync"
	"time"

	"github.com/pterm/pterm"
	"github.com/rs/zerolog"

	"github.com/vetlink/vetcall/internal/call"
	"github.com/vetlink/vetcall/internal/media"
	"github.com/vetlink/vetcall/internal/report"
	"github.com/vetlink/vetcall/internal/signal"
	"github.com/vetlink/vetcall/internal/util"
)

var version = "dev"

func main() {
	// Root context — cancelled on Ctrl+C.
	ctx, stop := ossignal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	server := flag.String("server", "", "Relay server URL (e.g. wss://signal.vetlink.example)")
	user := flag.String("user", "", "Identity to register as")
	as := flag.String("as", "petparent", "Identity channel: veterinarian, petparent, or paravet")
	peer := flag.String("call", "", "Peer identity to call; omit to wait for incoming calls")
	ring := flag.Duration("ring", call.DefaultRingWindow, "Ring window before an unanswered call times out")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debugMode {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("Vetcall — v%s", version))
	pterm.Println()

	joinType, err := joinChannel(*as)
	if err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
	wsURL, err := normalizeWSURL(ask(*server, "Relay server URL"))
	if err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
	userID := ask(*user, "Your identity")

	conn, err := signal.Dial(ctx, wsURL)
	if err != nil {
		util.LogError("failed to connect: %v", err)
		os.Exit(1)
	}
	defer conn.Close()

	if err := conn.Send(signal.Message{Type: joinType, UserID: userID}); err != nil {
		util.LogError("failed to register identity: %v", err)
		os.Exit(1)
	}
	util.LogInfo("registered as %s (%s)", userID, *as)

	app := &app{
		conn:       conn,
		userID:     userID,
		ringWindow: *ring,
		recorder:   report.NewMemory(zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()),
		rings:      make(chan signal.Message, 1),
	}
	go app.readLoop()

	if *peer != "" {
		app.placeCall(ctx, *peer)
		return
	}
	app.answerCalls(ctx)
}

// app ties the signaling connection to at most one active call machine.
type app struct {
	conn       *signal.Conn
	userID     string
	ringWindow time.Duration
	recorder   *report.Memory
	rings      chan signal.Message

	mu      sync.Mutex
	machine *call.Machine
}

// readLoop routes every relayed message to the active machine; invitations
// arriving while idle are queued for the answer loop.
func (a *app) readLoop() {
	err := a.conn.ReadLoop(func(msg signal.Message) {
		a.mu.Lock()
		m := a.machine
		a.mu.Unlock()

		if m != nil {
			m.HandleMessage(msg)
			return
		}
		if msg.Type == signal.TypeIncomingCall {
			select {
			case a.rings <- msg:
			default:
				util.LogWarning("already ringing, dropping invitation from %s", msg.From)
			}
		}
	})
	util.LogDebug("signaling connection closed: %v", err)

	a.mu.Lock()
	m := a.machine
	a.mu.Unlock()
	if m != nil {
		m.Disconnected()
	}
}

// placeCall invites the peer and blocks until the call reaches a terminal
// state or the user interrupts.
func (a *app) placeCall(ctx context.Context, peerID string) {
	inv := call.NewInvitation(a.userID, peerID)
	m, done := a.newMachine(inv, call.RoleCaller)

	util.LogInfo("calling %s...", peerID)
	if err := m.Start(ctx); err != nil {
		util.LogError("failed to place call: %v", err)
		os.Exit(1)
	}

	select {
	case <-done:
	case <-ctx.Done():
		m.Hangup()
		<-done
	}
}

// answerCalls serves incoming invitations one at a time until interrupted.
func (a *app) answerCalls(ctx context.Context) {
	util.LogInfo("waiting for incoming calls...")
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-a.rings:
			a.serveCall(ctx, msg)
		}
	}
}

func (a *app) serveCall(ctx context.Context, msg signal.Message) {
	inv := call.Invitation{
		CallID:    msg.CallID,
		RoomName:  msg.RoomName,
		CallerID:  msg.From,
		CalleeID:  msg.To,
		CreatedAt: time.Now(),
	}
	m, done := a.newMachine(inv, call.RoleCallee)
	if err := m.Ring(); err != nil {
		util.LogError("%v", err)
		return
	}

	accepted, _ := pterm.DefaultInteractiveConfirm.
		WithDefaultText(fmt.Sprintf("Incoming video call from %s — accept?", msg.From)).
		Show()
	pterm.Println()

	// The caller may have given up while we were prompting.
	if m.State() != call.StateRinging {
		util.LogInfo("call was cancelled")
		return
	}

	if accepted {
		if err := m.Accept(ctx); err != nil {
			util.LogError("failed to accept: %v", err)
		}
	} else {
		if err := m.Reject(); err != nil {
			util.LogError("failed to reject: %v", err)
		}
	}

	select {
	case <-done:
	case <-ctx.Done():
		m.Hangup()
		<-done
	}
}

// newMachine builds a machine wired to the terminal UI and the outcome
// recorder, and installs it as the active call.
func (a *app) newMachine(inv call.Invitation, role call.Role) (*call.Machine, <-chan struct{}) {
	done := make(chan struct{})
	var once sync.Once

	cfg := call.Config{
		RingWindow: a.ringWindow,
		Capturer:   media.NopCapturer{}, // terminal client negotiates without local devices
		OnState: func(s call.State) {
			util.LogInfo("call state: %s", s)
			if s.Terminal() {
				once.Do(func() { close(done) })
			}
		},
		OnOutcome: func(o call.Outcome) {
			a.recorder.Record(o)
			switch o.Final {
			case call.StateTimedOut:
				pterm.Warning.Println("No answer.")
			case call.StateRejected:
				pterm.Warning.Println("Call rejected.")
			default:
				pterm.Info.Println("Call ended: " + o.Reason)
			}
		},
	}

	var m *call.Machine
	if role == call.RoleCaller {
		m = call.NewCaller(inv, a.conn, cfg)
	} else {
		m = call.NewCallee(inv, a.conn, cfg)
	}

	a.mu.Lock()
	a.machine = m
	a.mu.Unlock()

	// Clear the active slot once this call is over.
	go func() {
		<-done
		a.mu.Lock()
		if a.machine == m {
			a.machine = nil
		}
		a.mu.Unlock()
	}()

	return m, done
}

// ─────────────────────────────────────────────────────────────────────────────
// Helper functions
// ─────────────────────────────────────────────────────────────────────────────

// joinChannel maps the -as flag to the identity join message type.
func joinChannel(as string) (signal.Type, error) {
	switch strings.ToLower(strings.TrimSpace(as)) {
	case "veterinarian", "vet":
		return signal.TypeJoinVeterinarian, nil
	case "petparent", "pet-parent", "owner":
		return signal.TypeJoinPetParent, nil
	case "paravet", "paraveterinary":
		return signal.TypeJoinParavet, nil
	default:
		return "", fmt.Errorf("invalid -as value %q: must be veterinarian, petparent, or paravet", as)
	}
}

// normalizeWSURL validates a server URL and rewrites it to the /ws endpoint.
func normalizeWSURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid server URL: %s", raw)
	}
	scheme := "wss"
	if u.Scheme == "ws" || u.Scheme == "wss" {
		scheme = u.Scheme
	}
	return fmt.Sprintf("%s://%s/ws", scheme, u.Host), nil
}

// ask returns the flag value or prompts for one until non-empty.
func ask(value, prompt string) string {
	for strings.TrimSpace(value) == "" {
		value, _ = pterm.DefaultInteractiveTextInput.
			WithDefaultText(prompt).
			Show()
	}
	pterm.Println()
	return strings.TrimSpace(value)
}
