package ai_bot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"pixie-agent/action"
	"pixie-agent/conversation"
	"pixie-agent/internal/log"
)

const (
	DefaultApiHost = "http://localhost:11434"
	DefaultModel   = "llama3"

	chatPath = "/api/chat"
)

var tracer = otel.Tracer("pixie-agent/clients/ai_bot")

// APIError is a non-200 answer from the model server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("ai_bot: status %d", e.StatusCode)
	}

	return fmt.Sprintf("ai_bot: status %d: %s", e.StatusCode, e.Message)
}

type Options struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	NumPredict  int     `json:"num_predict"`
}

// DefaultOptions keeps replies short and close to the requested format.
var DefaultOptions = Options{Temperature: 0.2, TopP: 0.8, NumPredict: 512}

type clientImpl struct {
	apiHost    string
	model      string
	options    Options
	format     json.RawMessage
	httpClient *http.Client
}

type Config struct {
	ApiHost string
	Model   string
	// Options overrides DefaultOptions when non-nil.
	Options *Options
	// HTTPClient defaults to a client with an instrumented transport.
	HTTPClient *http.Client
	// Unconstrained disables the structured output schema.
	Unconstrained bool
}

func NewClient(cfg *Config) (AIBotAPI, error) {
	if cfg == nil {
		return nil, errors.New("missing parameter: cfg")
	}

	client := &clientImpl{
		apiHost:    strings.TrimRight(cfg.ApiHost, "/"),
		model:      cfg.Model,
		options:    DefaultOptions,
		httpClient: cfg.HTTPClient,
	}

	if client.apiHost == "" {
		client.apiHost = DefaultApiHost
	}

	if client.model == "" {
		client.model = DefaultModel
	}

	if cfg.Options != nil {
		client.options = *cfg.Options
	}

	if client.httpClient == nil {
		client.httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}

	if !cfg.Unconstrained {
		format, err := json.Marshal(action.Schema())
		if err != nil {
			return nil, fmt.Errorf("marshal action schema: %w", err)
		}
		client.format = format
	}

	return client, nil
}

type chatMessage struct {
	Role     string `json:"role"`
	Content  string `json:"content"`
	ToolName string `json:"tool_name,omitempty"`
}

type chatRequest struct {
	Model    string          `json:"model"`
	Messages []chatMessage   `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   json.RawMessage `json:"format,omitempty"`
	Options  Options         `json:"options"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
	Error   string      `json:"error,omitempty"`
}

func (client *clientImpl) Infer(ctx context.Context, turns []conversation.Turn) (reply string, err error) {
	ctx, span := tracer.Start(ctx, "infer")
	defer span.End()

	span.SetAttributes(
		attribute.String("request.model", client.model),
		attribute.Int("request.turns", len(turns)),
	)

	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	messages := make([]chatMessage, len(turns))
	for i, turn := range turns {
		messages[i] = chatMessage{Role: string(turn.Role), Content: turn.Content, ToolName: turn.ToolName}
	}

	body, err := json.Marshal(chatRequest{
		Model:    client.model,
		Messages: messages,
		Format:   client.format,
		Options:  client.options,
	})
	if err != nil {
		return "", fmt.Errorf("error marshalling JSON: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, client.apiHost+chatPath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("error reading response body: %w", err)
	}

	var decoded chatResponse
	decodeErr := json.Unmarshal(data, &decoded)

	if resp.StatusCode != http.StatusOK {
		message := strings.TrimSpace(string(data))
		if decodeErr == nil && decoded.Error != "" {
			message = decoded.Error
		}

		return "", &APIError{StatusCode: resp.StatusCode, Message: message}
	}

	if decodeErr != nil {
		return "", fmt.Errorf("error unmarshalling response: %w", decodeErr)
	}

	if decoded.Error != "" {
		return "", &APIError{StatusCode: resp.StatusCode, Message: decoded.Error}
	}

	log.Debug("model answered", "model", client.model, "chars", len(decoded.Message.Content))

	return decoded.Message.Content, nil
}
