package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"pixie-agent/audio_capture"
	"pixie-agent/conversation"
	"pixie-agent/internal/log"
	"pixie-agent/listener"
	"pixie-agent/speech_to_text"
	"pixie-agent/text_to_speech"
)

const (
	DefaultRecordDuration = 5 * time.Second
	DefaultRetryDelay     = 500 * time.Millisecond
)

var tracer = otel.Tracer("pixie-agent/orchestrator")

// Orchestrator drives the wake word, record, transcribe, reason and speak
// loop and recovers from failures of any single iteration.
type Orchestrator struct {
	source         audio_capture.Source
	detector       listener.Detector
	recorder       listener.Recorder
	transcriber    speech_to_text.Interface
	recordDuration time.Duration

	commands CommandSource

	conversation Conversation
	speaker      text_to_speech.Interface
	retryDelay   time.Duration

	state atomic.Int32
}

// Config wires the loop. Either Commands or all of Source, Detector, Recorder
// and Transcriber must be set; Commands takes precedence.
type Config struct {
	Source         audio_capture.Source
	Detector       listener.Detector
	Recorder       listener.Recorder
	Transcriber    speech_to_text.Interface
	RecordDuration time.Duration

	Commands CommandSource

	Conversation Conversation
	Speaker      text_to_speech.Interface
	// RetryDelay is waited after a failed iteration.
	RetryDelay time.Duration
}

func New(cfg *Config) (*Orchestrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Conversation == nil {
		return nil, fmt.Errorf("conversation is nil")
	}

	if cfg.Speaker == nil {
		return nil, fmt.Errorf("speaker is nil")
	}

	if cfg.Commands == nil {
		switch {
		case cfg.Source == nil:
			return nil, fmt.Errorf("source is nil")
		case cfg.Detector == nil:
			return nil, fmt.Errorf("detector is nil")
		case cfg.Recorder == nil:
			return nil, fmt.Errorf("recorder is nil")
		case cfg.Transcriber == nil:
			return nil, fmt.Errorf("transcriber is nil")
		}
	}

	o := &Orchestrator{
		source:         cfg.Source,
		detector:       cfg.Detector,
		recorder:       cfg.Recorder,
		transcriber:    cfg.Transcriber,
		recordDuration: cfg.RecordDuration,
		commands:       cfg.Commands,
		conversation:   cfg.Conversation,
		speaker:        cfg.Speaker,
		retryDelay:     cfg.RetryDelay,
	}

	if o.recordDuration <= 0 {
		o.recordDuration = DefaultRecordDuration
	}

	if o.retryDelay <= 0 {
		o.retryDelay = DefaultRetryDelay
	}

	if observer, ok := cfg.Conversation.(toolObserver); ok {
		observer.OnToolCall(func(string) {
			o.setState(AwaitingToolResult)
		})
	}

	return o, nil
}

// State may be read from any goroutine.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

func (o *Orchestrator) setState(s State) {
	if prev := State(o.state.Swap(int32(s))); prev != s {
		log.Debug("state changed", "from", prev, "to", s)
	}
}

// Run loops until ctx is cancelled or the input ends. Component failures
// never end the loop. The audio source is closed before Run returns.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer o.setState(Idle)

	if o.source != nil {
		defer func() {
			if err := o.source.Close(); err != nil {
				log.Warn("error closing audio source", "error", err)
			}
		}()
	}

	log.Info("agent loop started")

	for {
		result := o.RunOnce(ctx)

		switch result.Outcome {
		case Stopped:
			log.Info("agent loop stopped")
			return nil
		case ResetRequired:
			log.Error("conversation corrupted, resetting", "iteration", result.ID, "error", result.Err)
			o.conversation.Reset()
		case Recoverable:
			log.Warn("iteration abandoned", "iteration", result.ID, "error", result.Err)
			select {
			case <-ctx.Done():
			case <-time.After(o.retryDelay):
			}
		}
	}
}

// RunOnce runs a single iteration and reports how it ended.
func (o *Orchestrator) RunOnce(ctx context.Context) (result Result) {
	result.ID = uuid.NewString()

	ctx, span := tracer.Start(ctx, "iteration")
	span.SetAttributes(attribute.String("iteration.id", result.ID))

	defer func() {
		if rec := recover(); rec != nil {
			result.Err = fmt.Errorf("panic in %s: %v", o.State(), rec)
			result.Outcome = Recoverable
			if s := o.State(); s == Reasoning || s == AwaitingToolResult {
				result.Outcome = ResetRequired
			}
		}

		span.SetAttributes(attribute.String("iteration.outcome", result.Outcome.String()))
		if result.Err != nil {
			span.RecordError(result.Err)
			span.SetStatus(codes.Error, result.Err.Error())
		}
		span.End()

		o.setState(AwaitingKeyword)
	}()

	if ctx.Err() != nil {
		result.Outcome = Stopped
		return result
	}

	command, outcome, err := o.listen(ctx)
	if outcome != Completed {
		result.Outcome, result.Err = outcome, err
		return result
	}
	result.Command = command

	o.setState(Reasoning)
	reply, err := o.conversation.Handle(ctx, command)
	if err != nil {
		result.Err = err
		result.Outcome = o.classify(ctx, err)
		return result
	}
	result.Reply = reply

	o.setState(Speaking)
	if err := o.speaker.Speak(ctx, reply); err != nil {
		result.Err = fmt.Errorf("speak: %w", err)
		result.Outcome = o.classify(ctx, err)
		return result
	}

	log.Info("command answered", "iteration", result.ID, "command", command, "reply", reply)

	result.Outcome = Completed

	return result
}

// listen produces the next command, either typed or spoken after the wake
// word. Completed means a non-empty command was obtained.
func (o *Orchestrator) listen(ctx context.Context) (string, Outcome, error) {
	o.setState(AwaitingKeyword)

	if o.commands != nil {
		command, err := o.commands.NextCommand(ctx)
		switch {
		case errors.Is(err, io.EOF) || ctx.Err() != nil:
			return "", Stopped, nil
		case err != nil:
			return "", Recoverable, fmt.Errorf("read command: %w", err)
		case command == "":
			return "", NoCommand, nil
		}

		return command, Completed, nil
	}

	if !o.detector.Detect(ctx, o.source) {
		if ctx.Err() != nil || o.sourceExhausted() {
			return "", Stopped, nil
		}

		return "", Recoverable, fmt.Errorf("wake word detection ended without a detection")
	}

	o.setState(Recording)
	utterance, err := o.recorder.Record(ctx, o.source, o.recordDuration)
	if err != nil {
		if ctx.Err() != nil || o.sourceExhausted() {
			return "", Stopped, nil
		}

		return "", Recoverable, err
	}

	o.setState(Transcribing)
	command := o.transcriber.Transcribe(ctx, utterance)
	if command == "" {
		if ctx.Err() != nil {
			return "", Stopped, nil
		}

		log.Info("nothing understood", "duration", utterance.Duration())

		return "", NoCommand, nil
	}

	log.Info("command transcribed", "command", command)

	return command, Completed, nil
}

func (o *Orchestrator) classify(ctx context.Context, err error) Outcome {
	switch {
	case conversation.IsCorrupted(err):
		return ResetRequired
	case ctx.Err() != nil:
		return Stopped
	default:
		return Recoverable
	}
}

func (o *Orchestrator) sourceExhausted() bool {
	source, ok := o.source.(exhaustible)
	return ok && source.Exhausted()
}
