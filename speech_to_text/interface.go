package speech_to_text

import (
	"context"
	"time"

	"pixie-agent/audio_capture"
)

// Interface turns an utterance into text. It never fails: an empty string
// means nothing was understood.
type Interface interface {
	Transcribe(ctx context.Context, utterance *audio_capture.Utterance) string
}

// Engine is the raw recognizer behind the transcriber.
type Engine interface {
	Process(samples []float32) ([]Segment, error)
}

type Segment struct {
	Start time.Duration
	End   time.Duration
	Text  string
}
