// Package report collects terminal call outcomes for logging and analytics
// collaborators.
package report

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/vetlink/vetcall/internal/call"
)

// Recorder consumes terminal call outcomes.
type Recorder interface {
	Record(call.Outcome)
}

// Memory is an in-process Recorder that logs each outcome and keeps it for
// later inspection. Suitable as a default sink until an analytics pipeline
// is attached.
type Memory struct {
	mu      sync.Mutex
	records []call.Outcome
	log     zerolog.Logger
}

// NewMemory creates an empty in-memory recorder.
func NewMemory(log zerolog.Logger) *Memory {
	return &Memory{log: log}
}

// Record stores the outcome and emits one structured log line.
func (m *Memory) Record(o call.Outcome) {
	m.mu.Lock()
	m.records = append(m.records, o)
	m.mu.Unlock()

	evt := m.log.Info().
		Str("call_id", o.CallID).
		Str("caller_id", o.CallerID).
		Str("callee_id", o.CalleeID).
		Str("outcome", string(o.Final)).
		Str("reason", o.Reason)
	if !o.ResolvedAt.IsZero() {
		evt = evt.Dur("ring_duration", o.ResolvedAt.Sub(o.CreatedAt))
	}
	if !o.EndedAt.IsZero() && !o.ResolvedAt.IsZero() {
		evt = evt.Dur("call_duration", o.EndedAt.Sub(o.ResolvedAt))
	}
	evt.Msg("call finished")
}

// All returns a copy of every recorded outcome.
func (m *Memory) All() []call.Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]call.Outcome, len(m.records))
	copy(out, m.records)
	return out
}
