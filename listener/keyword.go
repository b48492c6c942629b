package listener

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pixie-agent/audio_capture"
	"pixie-agent/internal/log"
	"pixie-agent/listener/voice_activity_detection"
	"pixie-agent/ring_buffer"
	"pixie-agent/speech_to_text"
)

const (
	DefaultKeyword = "pixie"

	defaultQuietTime = time.Millisecond * 200
	defaultMaxWindow = time.Second * 2
	defaultPreRoll   = 8196
	defaultMinFlux   = 50.0

	// fluxRatio is the jump in spectral flux that marks speech onset or end.
	fluxRatio = 1.75
)

// keywordEngine spots the wake word by transcribing short bursts of speech.
// Spectral flux gates the audio so only bursts that look like speech reach
// the transcriber.
type keywordEngine struct {
	keyword     string
	transcriber speech_to_text.Interface
	quietTime   time.Duration
	maxWindow   time.Duration
	minFlux     float64

	vad     *voice_activity_detection.VAD
	preRoll *ring_buffer.Buffer
	window  *audio_capture.Utterance

	heardSomething bool
	lastFlux       float64
	quietSamples   int
}

type KeywordConfig struct {
	Keyword     string
	Transcriber speech_to_text.Interface
	// QuietTime of low flux ends a burst.
	QuietTime time.Duration
	// MaxWindow caps how much audio is transcribed per burst.
	MaxWindow time.Duration
	// PreRoll is the number of samples kept from before the onset.
	PreRoll int
	// MinFlux is the noise floor below which onsets are ignored.
	MinFlux float64
}

func NewKeywordEngine(cfg *KeywordConfig) (WakeWordEngine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Transcriber == nil {
		return nil, fmt.Errorf("transcriber is nil")
	}

	e := &keywordEngine{
		keyword:     normalize(cfg.Keyword),
		transcriber: cfg.Transcriber,
		quietTime:   cfg.QuietTime,
		maxWindow:   cfg.MaxWindow,
		minFlux:     cfg.MinFlux,
	}

	if e.keyword == "" {
		e.keyword = DefaultKeyword
	}

	if e.quietTime <= 0 {
		e.quietTime = defaultQuietTime
	}

	if e.maxWindow <= 0 {
		e.maxWindow = defaultMaxWindow
	}

	if e.minFlux <= 0 {
		e.minFlux = defaultMinFlux
	}

	preRoll := cfg.PreRoll
	if preRoll <= 0 {
		preRoll = defaultPreRoll
	}

	e.vad = voice_activity_detection.New(audio_capture.DefaultFrameSize)
	e.preRoll = ring_buffer.New(preRoll)
	e.window = audio_capture.NewUtterance()

	return e, nil
}

func (e *keywordEngine) Accept(frame audio_capture.Frame) bool {
	samples := frame.Samples()
	flux := e.vad.Flux(samples)

	if !e.heardSomething {
		if flux >= max(e.lastFlux, e.minFlux)*fluxRatio {
			e.heardSomething = true

			// keep the bit of audio from before the onset
			e.window.Append(audio_capture.NewFrame(e.preRoll.Read(), frame.SampleRate()))
			e.window.Append(frame)
		} else {
			e.preRoll.Add(samples)
		}

		e.lastFlux = flux
		return false
	}

	e.window.Append(frame)

	if flux*fluxRatio <= e.lastFlux {
		e.quietSamples += frame.Len()
	} else {
		e.quietSamples = 0
		e.lastFlux = flux
	}

	quiet := frame.SampleRate() > 0 &&
		time.Duration(e.quietSamples)*time.Second/time.Duration(frame.SampleRate()) > e.quietTime

	if !quiet && e.window.Duration() < e.maxWindow {
		return false
	}

	text := e.transcriber.Transcribe(context.Background(), e.window)
	e.Reset()

	if text == "" {
		return false
	}

	log.Debug("heard burst while waiting for wake", "text", text)

	return strings.Contains(" "+normalize(text)+" ", " "+e.keyword+" ")
}

func (e *keywordEngine) Reset() {
	e.vad.Reset()
	e.preRoll.Clear()
	e.window = audio_capture.NewUtterance()
	e.heardSomething = false
	e.lastFlux = 0
	e.quietSamples = 0
}

// normalize keeps only lowercase alphanumeric words so punctuation from the
// transcriber does not hide the keyword.
func normalize(text string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == ' ' {
			return r
		}

		return ' '
	}, text)

	return strings.Join(strings.Fields(strings.ToLower(cleaned)), " ")
}
