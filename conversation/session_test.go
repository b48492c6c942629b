package conversation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"pixie-agent/tools"
)

type scriptedModel struct {
	replies []string
	err     error
	calls   [][]Turn
}

func (m *scriptedModel) Infer(ctx context.Context, turns []Turn) (string, error) {
	m.calls = append(m.calls, turns)

	if m.err != nil {
		return "", m.err
	}

	if len(m.calls) > len(m.replies) {
		return "", errors.New("no scripted reply left")
	}

	return m.replies[len(m.calls)-1], nil
}

type blockingModel struct{}

func (blockingModel) Infer(ctx context.Context, _ []Turn) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

type countingTool struct {
	tools.Tool
	invocations int
}

func (c *countingTool) Invoke(ctx context.Context, p map[string]string) (string, error) {
	c.invocations++
	return c.Tool.Invoke(ctx, p)
}

func newSession(t *testing.T, model LanguageModel, extra ...tools.Tool) *Session {
	t.Helper()

	registry, err := tools.NewRegistry(extra...)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	session, err := New(&Config{Model: model, Tools: registry})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	return session
}

func roles(turns []Turn) string {
	parts := make([]string, len(turns))
	for i, turn := range turns {
		parts[i] = string(turn.Role)
	}

	return strings.Join(parts, ",")
}

func TestNew(t *testing.T) {
	t.Run("missing collaborators are rejected", func(t *testing.T) {
		registry, _ := tools.NewRegistry()

		if _, err := New(nil); err == nil {
			t.Error("expected error for nil config")
		}
		if _, err := New(&Config{Tools: registry}); err == nil {
			t.Error("expected error for nil model")
		}
		if _, err := New(&Config{Model: &scriptedModel{}}); err == nil {
			t.Error("expected error for nil tools")
		}
	})

	t.Run("a new session holds exactly the system turn", func(t *testing.T) {
		session := newSession(t, &scriptedModel{}, tools.QueryWeather())

		turns := session.Turns()
		if len(turns) != 1 || turns[0].Role != RoleSystem {
			t.Fatalf("expected one system turn, got %s", roles(turns))
		}

		prompt := turns[0].Content
		for _, want := range []string{`"action":"respond"`, `"action":"use_tool"`, "clarification", "query_weather"} {
			if !strings.Contains(prompt, want) {
				t.Errorf("system prompt is missing %q", want)
			}
		}
	})
}

func TestHandle_Respond(t *testing.T) {
	t.Run("a respond action is returned and recorded", func(t *testing.T) {
		model := &scriptedModel{replies: []string{`{"action":"respond","response":"Hello there."}`}}
		session := newSession(t, model)

		reply, err := session.Handle(context.Background(), "hi")
		if err != nil {
			t.Fatalf("Handle: %v", err)
		}

		if reply != "Hello there." {
			t.Errorf("unexpected reply %q", reply)
		}

		if got := roles(session.Turns()); got != "system,user,assistant" {
			t.Errorf("unexpected history %s", got)
		}

		if len(model.calls) != 1 || len(model.calls[0]) != 2 {
			t.Errorf("expected one call with the full history, got %d calls", len(model.calls))
		}
	})

	t.Run("the session stays open across commands", func(t *testing.T) {
		model := &scriptedModel{replies: []string{
			`{"action":"respond","response":"one"}`,
			`{"action":"respond","response":"two"}`,
		}}
		session := newSession(t, model)

		_, _ = session.Handle(context.Background(), "first")
		_, _ = session.Handle(context.Background(), "second")

		if session.Len() != 5 {
			t.Errorf("expected 5 turns, got %d", session.Len())
		}

		if len(model.calls[1]) != 4 {
			t.Errorf("second call should see 4 turns, saw %d", len(model.calls[1]))
		}
	})
}

func TestHandle_UseTool(t *testing.T) {
	ctx := context.Background()

	t.Run("weather in Berlin goes through one tool call and one follow-up", func(t *testing.T) {
		weather := &countingTool{Tool: tools.QueryWeather()}
		model := &scriptedModel{replies: []string{
			`{"action":"use_tool","tool_name":"query_weather","parameters":{"location":"Berlin"}}`,
			`{"action":"respond","response":"It's 20°C and mild in Berlin."}`,
		}}
		session := newSession(t, model, weather)

		var observed string
		session.OnToolCall(func(name string) { observed = name })

		reply, err := session.Handle(ctx, "what's the weather in Berlin")
		if err != nil {
			t.Fatalf("Handle: %v", err)
		}

		if reply != "It's 20°C and mild in Berlin." {
			t.Errorf("unexpected reply %q", reply)
		}

		if weather.invocations != 1 {
			t.Errorf("expected 1 invocation, got %d", weather.invocations)
		}

		if observed != "query_weather" {
			t.Errorf("expected tool call to be observed, got %q", observed)
		}

		if len(model.calls) != 2 {
			t.Fatalf("expected 2 model calls, got %d", len(model.calls))
		}

		turns := session.Turns()
		if got := roles(turns); got != "system,user,tool,assistant" {
			t.Fatalf("unexpected history %s", got)
		}

		if turns[2].ToolName != "query_weather" || !strings.Contains(turns[2].Content, "Berlin") {
			t.Errorf("unexpected tool turn %#v", turns[2])
		}

		followUp := model.calls[1]
		last := followUp[len(followUp)-1]
		if last.Role != RoleUser || last.Content != DefaultFollowUpInstruction {
			t.Errorf("follow-up call should end with the instruction, got %#v", last)
		}

		for _, turn := range turns {
			if turn.Content == DefaultFollowUpInstruction {
				t.Error("follow-up instruction must not be stored in the history")
			}
		}
	})

	t.Run("an unknown tool is answered without a second model call", func(t *testing.T) {
		weather := &countingTool{Tool: tools.QueryWeather()}
		model := &scriptedModel{replies: []string{
			`{"action":"use_tool","tool_name":"unknown_tool","parameters":{}}`,
		}}
		session := newSession(t, model, weather)

		reply, err := session.Handle(ctx, "do something odd")
		if err != nil {
			t.Fatalf("Handle: %v", err)
		}

		if !strings.Contains(reply, "unknown_tool") {
			t.Errorf("reply should name the unknown tool, got %q", reply)
		}

		if len(model.calls) != 1 {
			t.Errorf("expected a single model call, got %d", len(model.calls))
		}

		if weather.invocations != 0 {
			t.Errorf("no tool should run, got %d invocations", weather.invocations)
		}

		if got := roles(session.Turns()); got != "system,user,assistant" {
			t.Errorf("unexpected history %s", got)
		}
	})

	t.Run("a follow-up asking for another tool does not invoke it", func(t *testing.T) {
		weather := &countingTool{Tool: tools.QueryWeather()}
		model := &scriptedModel{replies: []string{
			`{"action":"use_tool","tool_name":"query_weather","parameters":{"location":"Berlin"}}`,
			`{"action":"use_tool","tool_name":"query_weather","parameters":{"location":"Paris"}}`,
			`{"action":"respond","response":"should never be requested"}`,
		}}
		session := newSession(t, model, weather)

		reply, err := session.Handle(ctx, "weather in Berlin")
		if err != nil {
			t.Fatalf("Handle: %v", err)
		}

		if weather.invocations != 1 {
			t.Errorf("expected exactly 1 invocation, got %d", weather.invocations)
		}

		if len(model.calls) != 2 {
			t.Errorf("expected 2 model calls, got %d", len(model.calls))
		}

		if !strings.Contains(reply, `"use_tool"`) || !strings.Contains(reply, "Paris") {
			t.Errorf("reply should be the literal payload, got %q", reply)
		}

		turns := session.Turns()
		if turns[len(turns)-1].Content != reply {
			t.Errorf("literal payload should be recorded as the assistant turn")
		}
	})

	t.Run("an invalid follow-up is returned as-is", func(t *testing.T) {
		model := &scriptedModel{replies: []string{
			`{"action":"use_tool","tool_name":"query_weather","parameters":{"location":"Berlin"}}`,
			`sunny, I think`,
		}}
		session := newSession(t, model, tools.QueryWeather())

		reply, err := session.Handle(ctx, "weather in Berlin")
		if err != nil {
			t.Fatalf("Handle: %v", err)
		}

		if reply != "sunny, I think" {
			t.Errorf("unexpected reply %q", reply)
		}
	})

	t.Run("tool failures are recorded and still followed up", func(t *testing.T) {
		model := &scriptedModel{replies: []string{
			`{"action":"use_tool","tool_name":"toggle_light","parameters":{"device_name":"kitchen","state":"purple"}}`,
			`{"action":"respond","response":"I could not change the light."}`,
		}}
		session := newSession(t, model, tools.ToggleLight())

		reply, err := session.Handle(ctx, "make the kitchen light purple")
		if err != nil {
			t.Fatalf("Handle: %v", err)
		}

		if reply != "I could not change the light." {
			t.Errorf("unexpected reply %q", reply)
		}

		toolTurn := session.Turns()[2]
		if toolTurn.Role != RoleTool || !strings.HasPrefix(toolTurn.Content, "Error:") {
			t.Errorf("expected an error tool turn, got %#v", toolTurn)
		}
	})
}

func TestHandle_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid JSON is spoken as an error and the history is kept", func(t *testing.T) {
		model := &scriptedModel{replies: []string{`not json`}}
		session := newSession(t, model)

		reply, err := session.Handle(ctx, "hello")
		if err != nil {
			t.Fatalf("Handle: %v", err)
		}

		if reply != DecodeFailureReply {
			t.Errorf("unexpected reply %q", reply)
		}

		turns := session.Turns()
		if got := roles(turns); got != "system,user,assistant" {
			t.Fatalf("unexpected history %s", got)
		}

		if turns[1].Content != "hello" {
			t.Errorf("user turn should be kept, got %#v", turns[1])
		}
	})

	t.Run("model errors are returned and the user turn is kept", func(t *testing.T) {
		cause := errors.New("connection refused")
		session := newSession(t, &scriptedModel{err: cause})

		_, err := session.Handle(ctx, "hello")
		if !errors.Is(err, cause) {
			t.Errorf("expected wrapped model error, got %v", err)
		}

		if IsCorrupted(err) {
			t.Error("a model error is not corruption")
		}

		if got := roles(session.Turns()); got != "system,user" {
			t.Errorf("unexpected history %s", got)
		}
	})

	t.Run("an unresponsive model is cut off by the infer timeout", func(t *testing.T) {
		registry, _ := tools.NewRegistry()
		session, err := New(&Config{Model: blockingModel{}, Tools: registry, InferTimeout: 10 * time.Millisecond})
		if err != nil {
			t.Fatalf("New: %v", err)
		}

		_, err = session.Handle(ctx, "hello")
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded, got %v", err)
		}
	})
}

func TestReset(t *testing.T) {
	t.Run("corrupted history is detected and a reset reseeds the system turn", func(t *testing.T) {
		model := &scriptedModel{replies: []string{
			`{"action":"respond","response":"one"}`,
			`{"action":"respond","response":"two"}`,
		}}
		session := newSession(t, model)
		firstID := session.ID()

		_, _ = session.Handle(context.Background(), "first")

		session.turns[0] = Turn{Role: RoleUser, Content: "tampered"}

		_, err := session.Handle(context.Background(), "second")
		if !IsCorrupted(err) {
			t.Fatalf("expected ErrCorrupted, got %v", err)
		}

		session.Reset()

		if session.Len() != 1 || session.Turns()[0].Role != RoleSystem {
			t.Fatalf("expected only the system turn, got %s", roles(session.Turns()))
		}

		if session.ID() == firstID {
			t.Error("expected a new session id after reset")
		}

		reply, err := session.Handle(context.Background(), "third")
		if err != nil {
			t.Fatalf("Handle after reset: %v", err)
		}

		if reply != "two" {
			t.Errorf("unexpected reply %q", reply)
		}

		lastCall := model.calls[len(model.calls)-1]
		if len(lastCall) != 2 || lastCall[1].Content != "third" {
			t.Errorf("first turn after reset should make the history length 2, got %s", roles(lastCall))
		}
	})

	t.Run("turns removed behind the session's back are corruption", func(t *testing.T) {
		model := &scriptedModel{replies: []string{`{"action":"respond","response":"one"}`}}
		session := newSession(t, model)

		_, _ = session.Handle(context.Background(), "first")
		session.turns = session.turns[:2]

		if _, err := session.Handle(context.Background(), "second"); !IsCorrupted(err) {
			t.Errorf("expected ErrCorrupted, got %v", err)
		}
	})

	t.Run("turns returned to callers cannot alter the history", func(t *testing.T) {
		session := newSession(t, &scriptedModel{})

		turns := session.Turns()
		turns[0].Content = "changed"

		if session.Turns()[0].Content == "changed" {
			t.Error("history was mutated through a copy")
		}
	})
}
