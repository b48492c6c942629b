package speech_to_text

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pixie-agent/audio_capture"
	"pixie-agent/internal/log"
)

// DefaultSilenceThreshold is the RMS below which an utterance is treated as silence.
const DefaultSilenceThreshold = 0.005

type sttImpl struct {
	engine           Engine
	silenceThreshold float64
}

type Config struct {
	Engine           Engine
	SilenceThreshold float64
}

func New(cfg *Config) (Interface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine is nil")
	}

	threshold := cfg.SilenceThreshold
	if threshold <= 0 {
		threshold = DefaultSilenceThreshold
	}

	return &sttImpl{
		engine:           cfg.Engine,
		silenceThreshold: threshold,
	}, nil
}

func (stt *sttImpl) Transcribe(ctx context.Context, utterance *audio_capture.Utterance) (text string) {
	if utterance == nil || utterance.NumSamples() == 0 {
		return ""
	}

	if ctx.Err() != nil {
		return ""
	}

	if rms := utterance.RMS(); rms < stt.silenceThreshold {
		log.Debug("skipping silent utterance", "rms", rms, "duration", utterance.Duration())
		return ""
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("speech engine panicked", "panic", r)
			text = ""
		}
	}()

	segments, err := stt.engine.Process(utterance.Float32())
	if err != nil {
		log.Error("error running model", "error", err)
		return ""
	}

	return joinSegments(segments)
}

func joinSegments(segments []Segment) string {
	seenText := make(map[string]bool)
	parts := make([]string, 0, len(segments))

	for _, segment := range segments {
		text := strings.TrimSpace(segment.Text)
		if text == "" || isAnnotation(text) {
			continue
		}

		// whisper repeats itself on long silences
		if seenText[text] {
			continue
		}
		seenText[text] = true

		log.Debug("segment",
			"start", segment.Start.Truncate(time.Millisecond),
			"end", segment.End.Truncate(time.Millisecond),
			"text", text)

		parts = append(parts, text)
	}

	return strings.Join(parts, " ")
}

// isAnnotation matches non-speech markers such as "[BLANK_AUDIO]" or "(music)".
func isAnnotation(text string) bool {
	first, last := text[0], text[len(text)-1]

	return first == '(' || first == '[' || last == ')' || last == ']'
}
