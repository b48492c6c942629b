package listener

import (
	"context"
	"time"

	"pixie-agent/audio_capture"
)

// Detector blocks until the wake word is heard. It returns false when the
// stream ends, the source fails or ctx is cancelled.
type Detector interface {
	Detect(ctx context.Context, source audio_capture.Source) bool
}

// Recorder captures the command spoken after the wake word.
type Recorder interface {
	Record(ctx context.Context, source audio_capture.Source, duration time.Duration) (*audio_capture.Utterance, error)
}

// WakeWordEngine consumes frames and reports the keyword. It resets its own
// accumulated audio after a positive detection.
type WakeWordEngine interface {
	Accept(frame audio_capture.Frame) bool
	Reset()
}
