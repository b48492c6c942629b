package ai_bot

import (
	"context"

	"pixie-agent/conversation"
)

// AIBotAPI answers a conversation history with the model's raw reply.
type AIBotAPI interface {
	Infer(ctx context.Context, turns []conversation.Turn) (string, error)
}
