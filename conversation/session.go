package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"pixie-agent/action"
	"pixie-agent/internal/log"
)

const DefaultInferTimeout = 60 * time.Second

var tracer = otel.Tracer("pixie-agent/conversation")

// Session owns the ordered turn history of one conversation and drives the
// action protocol with the model. It is not safe for concurrent use.
type Session struct {
	id     string
	system Turn
	turns  []Turn
	// appended counts turns added since the last reset
	appended int

	model        LanguageModel
	tools        ToolRegistry
	inferTimeout time.Duration
	followUp     string
	onToolCall   func(name string)
}

type Config struct {
	Model LanguageModel
	Tools ToolRegistry
	// SystemPrompt overrides the prompt built from the tool catalogue.
	SystemPrompt string
	// InferTimeout bounds each model call.
	InferTimeout time.Duration
	// FollowUpInstruction overrides DefaultFollowUpInstruction.
	FollowUpInstruction string
}

func New(cfg *Config) (*Session, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Model == nil {
		return nil, fmt.Errorf("model is nil")
	}

	if cfg.Tools == nil {
		return nil, fmt.Errorf("tools is nil")
	}

	prompt := cfg.SystemPrompt
	if prompt == "" {
		prompt = SystemPrompt(cfg.Tools.Describe())
	}

	s := &Session{
		system:       Turn{Role: RoleSystem, Content: prompt},
		model:        cfg.Model,
		tools:        cfg.Tools,
		inferTimeout: cfg.InferTimeout,
		followUp:     cfg.FollowUpInstruction,
	}

	if s.inferTimeout <= 0 {
		s.inferTimeout = DefaultInferTimeout
	}

	if s.followUp == "" {
		s.followUp = DefaultFollowUpInstruction
	}

	s.Reset()

	return s, nil
}

func (s *Session) ID() string {
	return s.id
}

// Turns returns a copy of the history.
func (s *Session) Turns() []Turn {
	turns := make([]Turn, len(s.turns))
	copy(turns, s.turns)

	return turns
}

func (s *Session) Len() int {
	return len(s.turns)
}

// Reset discards the history, keeping only the seed system turn, and starts
// a new session id.
func (s *Session) Reset() {
	s.id = uuid.NewString()
	s.turns = []Turn{s.system}
	s.appended = 0

	log.Info("conversation reset", "session", s.id)
}

// OnToolCall registers a callback run right before a tool is invoked.
func (s *Session) OnToolCall(fn func(name string)) {
	s.onToolCall = fn
}

// Handle runs one user command through the model and returns the text to
// speak. At most one tool is invoked per command. The returned error is
// non-nil only when the command could not be completed at all; it wraps
// ErrCorrupted when the session must be reset.
func (s *Session) Handle(ctx context.Context, text string) (string, error) {
	ctx, span := tracer.Start(ctx, "handle command", trace.WithAttributes(
		attribute.String("session.id", s.id),
	))
	defer span.End()

	reply, err := s.handle(ctx, text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	return reply, err
}

func (s *Session) handle(ctx context.Context, text string) (string, error) {
	if err := s.append(Turn{Role: RoleUser, Content: text}); err != nil {
		return "", err
	}

	raw, err := s.infer(ctx, s.Turns())
	if err != nil {
		return "", err
	}

	decoded, err := action.Decode(raw)
	if err != nil {
		log.Warn("model reply is not a valid action", "error", err, "raw", raw)
		return s.reply(DecodeFailureReply)
	}

	switch a := decoded.(type) {
	case action.Respond:
		return s.reply(a.Text)
	case action.UseTool:
		return s.useTool(ctx, a)
	default:
		return "", fmt.Errorf("unhandled action %T", decoded)
	}
}

func (s *Session) useTool(ctx context.Context, request action.UseTool) (string, error) {
	tool, err := s.tools.Lookup(request.ToolName)
	if err != nil {
		log.Warn("model asked for an unknown tool", "tool", request.ToolName)
		return s.reply(unknownToolReply + request.ToolName + ".")
	}

	if s.onToolCall != nil {
		s.onToolCall(request.ToolName)
	}

	result, err := s.tools.Invoke(ctx, tool, request.Parameters)
	if err != nil {
		result = "Error: " + err.Error()
	}

	if err := s.append(Turn{Role: RoleTool, Content: result, ToolName: request.ToolName}); err != nil {
		return "", err
	}

	// the instruction steers this one call only and is not kept in the history
	followUp := append(s.Turns(), Turn{Role: RoleUser, Content: s.followUp})

	raw, err := s.infer(ctx, followUp)
	if err != nil {
		return "", err
	}

	decoded, err := action.Decode(raw)
	if respond, ok := decoded.(action.Respond); ok && err == nil {
		return s.reply(respond.Text)
	}

	// Anything but a respond ends the command here; a second tool call is
	// never made.
	literal := raw
	if err == nil {
		if encoded, encErr := action.Encode(decoded); encErr == nil {
			literal = encoded
		}
	}

	log.Warn("follow-up reply was not a respond action", "raw", raw)

	return s.reply(literal)
}

func (s *Session) reply(text string) (string, error) {
	if err := s.append(Turn{Role: RoleAssistant, Content: text}); err != nil {
		return "", err
	}

	return text, nil
}

func (s *Session) infer(ctx context.Context, turns []Turn) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.inferTimeout)
	defer cancel()

	started := time.Now()
	raw, err := s.model.Infer(ctx, turns)
	if err != nil {
		return "", fmt.Errorf("infer: %w", err)
	}

	log.Debug("model replied", "session", s.id, "took", time.Since(started), "raw", raw)

	return raw, nil
}

// append adds a turn after checking that the history is still well formed.
func (s *Session) append(turn Turn) error {
	if err := s.check(); err != nil {
		return err
	}

	if turn.Role == RoleSystem {
		return fmt.Errorf("%w: system turn appended mid-conversation", ErrCorrupted)
	}

	if turn.Role == RoleTool && turn.ToolName == "" {
		return fmt.Errorf("%w: tool result without a tool name", ErrCorrupted)
	}

	s.turns = append(s.turns, turn)
	s.appended++

	return nil
}

func (s *Session) check() error {
	if len(s.turns) == 0 || s.turns[0] != s.system {
		return fmt.Errorf("%w: seed system turn missing", ErrCorrupted)
	}

	if len(s.turns)-1 != s.appended {
		return fmt.Errorf("%w: history has %d turns, expected %d", ErrCorrupted, len(s.turns)-1, s.appended)
	}

	for i, turn := range s.turns[1:] {
		if turn.Role == RoleSystem {
			return fmt.Errorf("%w: extra system turn at %d", ErrCorrupted, i+1)
		}
	}

	return nil
}

// IsCorrupted reports whether err requires a session reset.
func IsCorrupted(err error) bool {
	return errors.Is(err, ErrCorrupted)
}
