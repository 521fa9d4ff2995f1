package media

import (
	"errors"
	"testing"

	"github.com/pion/webrtc/v4"
)

func cand(s string) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{Candidate: s}
}

func TestBufferQueuesUntilFlush(t *testing.T) {
	var applied []string
	buf := NewCandidateBuffer(func(c webrtc.ICECandidateInit) error {
		applied = append(applied, c.Candidate)
		return nil
	})

	for _, s := range []string{"a", "b", "c"} {
		if err := buf.Offer(cand(s)); err != nil {
			t.Fatalf("Offer(%q) failed: %v", s, err)
		}
	}

	if len(applied) != 0 {
		t.Fatalf("candidates applied before flush: %v", applied)
	}
	if got := buf.Pending(); got != 3 {
		t.Fatalf("Pending = %d, want 3", got)
	}

	if err := buf.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	want := []string{"a", "b", "c"}
	if len(applied) != len(want) {
		t.Fatalf("applied %v, want %v", applied, want)
	}
	for i := range want {
		if applied[i] != want[i] {
			t.Errorf("applied[%d] = %q, want %q (order must be preserved)", i, applied[i], want[i])
		}
	}
	if got := buf.Pending(); got != 0 {
		t.Errorf("Pending after flush = %d, want 0", got)
	}
}

func TestBufferAppliesImmediatelyAfterFlush(t *testing.T) {
	var applied []string
	buf := NewCandidateBuffer(func(c webrtc.ICECandidateInit) error {
		applied = append(applied, c.Candidate)
		return nil
	})

	if err := buf.Flush(); err != nil {
		t.Fatalf("Flush on empty buffer failed: %v", err)
	}

	if err := buf.Offer(cand("late")); err != nil {
		t.Fatalf("Offer failed: %v", err)
	}
	if len(applied) != 1 || applied[0] != "late" {
		t.Fatalf("applied = %v, want [late]", applied)
	}
}

func TestBufferFlushIdempotent(t *testing.T) {
	calls := 0
	buf := NewCandidateBuffer(func(webrtc.ICECandidateInit) error {
		calls++
		return nil
	})

	buf.Offer(cand("x"))
	if err := buf.Flush(); err != nil {
		t.Fatalf("first Flush failed: %v", err)
	}
	if err := buf.Flush(); err != nil {
		t.Fatalf("second Flush failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("apply called %d times, want 1", calls)
	}
}

func TestBufferFlushContinuesPastErrors(t *testing.T) {
	var applied []string
	failOn := "b"
	buf := NewCandidateBuffer(func(c webrtc.ICECandidateInit) error {
		if c.Candidate == failOn {
			return errors.New("boom")
		}
		applied = append(applied, c.Candidate)
		return nil
	})

	for _, s := range []string{"a", "b", "c"} {
		buf.Offer(cand(s))
	}

	err := buf.Flush()
	if err == nil {
		t.Fatal("Flush should report the apply error")
	}
	if len(applied) != 2 || applied[0] != "a" || applied[1] != "c" {
		t.Errorf("applied = %v, want [a c] (later candidates still applied)", applied)
	}
}
