package speech_to_text

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

type whisperEngine struct {
	model    whisper.Model
	language string

	// whisper contexts are not safe for concurrent use
	mu sync.Mutex
}

// NewWhisperEngine wraps a loaded whisper model. An empty language keeps the
// model's default.
func NewWhisperEngine(model whisper.Model, language string) (Engine, error) {
	if model == nil {
		return nil, fmt.Errorf("model is nil")
	}

	return &whisperEngine{model: model, language: language}, nil
}

func (w *whisperEngine) Process(samples []float32) ([]Segment, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	context, err := w.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("create whisper context: %w", err)
	}

	if w.language != "" {
		if err := context.SetLanguage(w.language); err != nil {
			return nil, fmt.Errorf("set language %q: %w", w.language, err)
		}
	}

	var cb whisper.SegmentCallback

	if err := context.Process(samples, cb); err != nil {
		return nil, fmt.Errorf("process audio: %w", err)
	}

	segments := make([]Segment, 0)

	for {
		segment, err := context.NextSegment()
		if errors.Is(err, io.EOF) {
			return segments, nil
		} else if err != nil {
			return nil, err
		}

		segments = append(segments, Segment{
			Start: segment.Start,
			End:   segment.End,
			Text:  segment.Text,
		})
	}
}
