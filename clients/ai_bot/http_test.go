package ai_bot

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pixie-agent/conversation"
)

func newServer(t *testing.T, handler func(w http.ResponseWriter, req chatRequest)) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != chatPath {
			http.Error(w, "unexpected request", http.StatusNotFound)
			return
		}

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		handler(w, req)
	}))
	t.Cleanup(server.Close)

	return server
}

func reply(w http.ResponseWriter, content string) {
	_ = json.NewEncoder(w).Encode(chatResponse{
		Message: chatMessage{Role: "assistant", Content: content},
		Done:    true,
	})
}

func TestNewClient(t *testing.T) {
	t.Run("nil config is rejected", func(t *testing.T) {
		if _, err := NewClient(nil); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("defaults are filled in", func(t *testing.T) {
		client, err := NewClient(&Config{})
		if err != nil {
			t.Fatalf("NewClient: %v", err)
		}

		impl := client.(*clientImpl)
		if impl.apiHost != DefaultApiHost || impl.model != DefaultModel || impl.options != DefaultOptions {
			t.Errorf("unexpected defaults %+v", impl)
		}

		if len(impl.format) == 0 {
			t.Error("expected the action schema as format")
		}
	})
}

func TestInfer(t *testing.T) {
	turns := []conversation.Turn{
		{Role: conversation.RoleSystem, Content: "be helpful"},
		{Role: conversation.RoleUser, Content: "weather in Berlin"},
		{Role: conversation.RoleTool, Content: "20°C", ToolName: "query_weather"},
	}

	t.Run("the history is sent as a non-streaming chat request", func(t *testing.T) {
		var got chatRequest
		server := newServer(t, func(w http.ResponseWriter, req chatRequest) {
			got = req
			reply(w, `{"action":"respond","response":"It is warm."}`)
		})

		client, err := NewClient(&Config{ApiHost: server.URL + "/", Model: "llama3", HTTPClient: server.Client()})
		if err != nil {
			t.Fatalf("NewClient: %v", err)
		}

		content, err := client.Infer(context.Background(), turns)
		if err != nil {
			t.Fatalf("Infer: %v", err)
		}

		if content != `{"action":"respond","response":"It is warm."}` {
			t.Errorf("unexpected content %q", content)
		}

		if got.Stream || got.Model != "llama3" || got.Options != DefaultOptions {
			t.Errorf("unexpected request %+v", got)
		}

		if len(got.Messages) != 3 || got.Messages[0].Role != "system" || got.Messages[2].ToolName != "query_weather" {
			t.Errorf("unexpected messages %+v", got.Messages)
		}

		if len(got.Format) == 0 {
			t.Error("expected a format constraint")
		}
	})

	t.Run("unconstrained clients send no format", func(t *testing.T) {
		var got chatRequest
		server := newServer(t, func(w http.ResponseWriter, req chatRequest) {
			got = req
			reply(w, "hi")
		})

		client, _ := NewClient(&Config{ApiHost: server.URL, HTTPClient: server.Client(), Unconstrained: true})
		if _, err := client.Infer(context.Background(), turns); err != nil {
			t.Fatalf("Infer: %v", err)
		}

		if len(got.Format) != 0 {
			t.Errorf("expected no format, got %s", got.Format)
		}
	})

	t.Run("server errors become APIError", func(t *testing.T) {
		server := newServer(t, func(w http.ResponseWriter, _ chatRequest) {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(chatResponse{Error: `model "llama9" not found`})
		})

		client, _ := NewClient(&Config{ApiHost: server.URL, HTTPClient: server.Client()})
		_, err := client.Infer(context.Background(), turns)

		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected APIError, got %v", err)
		}

		if apiErr.StatusCode != http.StatusNotFound || apiErr.Message != `model "llama9" not found` {
			t.Errorf("unexpected error %+v", apiErr)
		}
	})

	t.Run("a garbled body is an error", func(t *testing.T) {
		server := newServer(t, func(w http.ResponseWriter, _ chatRequest) {
			_, _ = w.Write([]byte("<html>"))
		})

		client, _ := NewClient(&Config{ApiHost: server.URL, HTTPClient: server.Client()})
		if _, err := client.Infer(context.Background(), turns); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("cancellation aborts the request", func(t *testing.T) {
		release := make(chan struct{})
		server := newServer(t, func(w http.ResponseWriter, _ chatRequest) {
			<-release
			reply(w, "late")
		})
		defer close(release)

		client, _ := NewClient(&Config{ApiHost: server.URL, HTTPClient: server.Client()})

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		if _, err := client.Infer(ctx, turns); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded, got %v", err)
		}
	})
}
