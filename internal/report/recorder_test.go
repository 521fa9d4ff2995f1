package report

import (
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vetlink/vetcall/internal/call"
)

func TestMemoryRecordsOutcomes(t *testing.T) {
	var buf strings.Builder
	rec := NewMemory(zerolog.New(&buf))

	created := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	rec.Record(call.Outcome{
		CallID:     "c1",
		CallerID:   "vet-1",
		CalleeID:   "owner-1",
		Final:      call.StateEnded,
		Reason:     "hangup",
		CreatedAt:  created,
		ResolvedAt: created.Add(5 * time.Second),
		EndedAt:    created.Add(65 * time.Second),
	})
	rec.Record(call.Outcome{CallID: "c2", Final: call.StateTimedOut, Reason: "no answer"})

	all := rec.All()
	if len(all) != 2 {
		t.Fatalf("All returned %d records, want 2", len(all))
	}
	if all[0].CallID != "c1" || all[1].CallID != "c2" {
		t.Errorf("records out of order: %s, %s", all[0].CallID, all[1].CallID)
	}

	logged := buf.String()
	for _, want := range []string{"c1", "hangup", "ring_duration", "call_duration", "no answer"} {
		if !strings.Contains(logged, want) {
			t.Errorf("log output missing %q:\n%s", want, logged)
		}
	}
}

func TestMemoryAllReturnsCopy(t *testing.T) {
	rec := NewMemory(zerolog.Nop())
	rec.Record(call.Outcome{CallID: "c1"})

	all := rec.All()
	all[0].CallID = "mutated"

	if got := rec.All()[0].CallID; got != "c1" {
		t.Fatalf("internal record mutated through All(): %q", got)
	}
}
