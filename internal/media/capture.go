package media

import (
	"context"
	"fmt"
)

// Constraints selects which local devices a capture needs.
type Constraints struct {
	Audio bool
	Video bool
}

// Capture is a live local media capture (camera/microphone). The codec and
// transport side of the capture is owned by the platform media engine; the
// call kit only controls its lifetime.
type Capture interface {
	Close() error
}

// Capturer acquires local media. Implementations are platform-provided; the
// call kit treats acquisition failure as fatal to the call.
type Capturer interface {
	Acquire(ctx context.Context, c Constraints) (Capture, error)
}

// AcquisitionError reports that the camera or microphone could not be
// acquired (permission denied, hardware unavailable). It ends the call with a
// user-visible reason rather than a silent retry.
type AcquisitionError struct {
	Reason string
	Err    error
}

func (e *AcquisitionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("media acquisition failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("media acquisition failed: %s", e.Reason)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// NopCapturer satisfies Capturer without touching any hardware. Used by the
// terminal client and by headless deployments that negotiate recv-only
// sessions.
type NopCapturer struct{}

type nopCapture struct{}

func (nopCapture) Close() error { return nil }

func (NopCapturer) Acquire(context.Context, Constraints) (Capture, error) {
	return nopCapture{}, nil
}
