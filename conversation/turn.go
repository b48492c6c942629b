package conversation

import (
	"context"
	"errors"

	"pixie-agent/tools"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Turn is one message of the exchange. ToolName is set on tool results.
type Turn struct {
	Role     Role
	Content  string
	ToolName string
}

// ErrCorrupted means the turn history no longer satisfies its invariants and
// the session has to be reset.
var ErrCorrupted = errors.New("conversation: session invariants violated")

// LanguageModel answers the full ordered history with one raw reply.
type LanguageModel interface {
	Infer(ctx context.Context, turns []Turn) (string, error)
}

// ToolRegistry is the subset of *tools.Registry the session needs.
type ToolRegistry interface {
	Lookup(name string) (tools.Tool, error)
	Invoke(ctx context.Context, tool tools.Tool, parameters map[string]string) (string, error)
	Describe() string
}
