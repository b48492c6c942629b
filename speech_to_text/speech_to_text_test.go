package speech_to_text

import (
	"context"
	"errors"
	"testing"

	"pixie-agent/audio_capture"
)

type fakeEngine struct {
	segments []Segment
	err      error
	panics   bool
	calls    int
}

func (f *fakeEngine) Process(samples []float32) ([]Segment, error) {
	f.calls++

	if f.panics {
		panic("engine exploded")
	}

	return f.segments, f.err
}

func loudUtterance() *audio_capture.Utterance {
	samples := make([]int16, 1600)
	for i := range samples {
		if i%2 == 0 {
			samples[i] = 8000
		} else {
			samples[i] = -8000
		}
	}

	u := audio_capture.NewUtterance()
	u.Append(audio_capture.NewFrame(samples, 16000))

	return u
}

func newTranscriber(t *testing.T, engine Engine) Interface {
	t.Helper()

	stt, err := New(&Config{Engine: engine})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	return stt
}

func TestNew(t *testing.T) {
	t.Run("missing config or engine is rejected", func(t *testing.T) {
		if _, err := New(nil); err == nil {
			t.Error("expected error for nil config")
		}

		if _, err := New(&Config{}); err == nil {
			t.Error("expected error for nil engine")
		}
	})
}

func TestTranscribe(t *testing.T) {
	ctx := context.Background()

	t.Run("segments are joined after dropping annotations and repeats", func(t *testing.T) {
		engine := &fakeEngine{segments: []Segment{
			{Text: " what's the weather"},
			{Text: "[BLANK_AUDIO]"},
			{Text: "in Berlin "},
			{Text: "in Berlin"},
			{Text: "(music)"},
		}}

		got := newTranscriber(t, engine).Transcribe(ctx, loudUtterance())
		if got != "what's the weather in Berlin" {
			t.Errorf("unexpected transcription %q", got)
		}
	})

	t.Run("empty input yields empty text without calling the engine", func(t *testing.T) {
		engine := &fakeEngine{segments: []Segment{{Text: "ghost"}}}
		stt := newTranscriber(t, engine)

		if got := stt.Transcribe(ctx, audio_capture.NewUtterance()); got != "" {
			t.Errorf("expected empty text, got %q", got)
		}

		if got := stt.Transcribe(ctx, nil); got != "" {
			t.Errorf("expected empty text, got %q", got)
		}

		if engine.calls != 0 {
			t.Errorf("engine should not be called, got %d calls", engine.calls)
		}
	})

	t.Run("near silent input yields empty text", func(t *testing.T) {
		engine := &fakeEngine{segments: []Segment{{Text: "ghost"}}}

		u := audio_capture.NewUtterance()
		u.Append(audio_capture.NewFrame(make([]int16, 1600), 16000))

		if got := newTranscriber(t, engine).Transcribe(ctx, u); got != "" {
			t.Errorf("expected empty text, got %q", got)
		}
	})

	t.Run("engine errors become empty text", func(t *testing.T) {
		engine := &fakeEngine{err: errors.New("model failure")}

		if got := newTranscriber(t, engine).Transcribe(ctx, loudUtterance()); got != "" {
			t.Errorf("expected empty text, got %q", got)
		}
	})

	t.Run("engine panics become empty text", func(t *testing.T) {
		engine := &fakeEngine{panics: true}

		if got := newTranscriber(t, engine).Transcribe(ctx, loudUtterance()); got != "" {
			t.Errorf("expected empty text, got %q", got)
		}
	})
}
