package orchestrator

import (
	"context"
)

// Conversation is what the loop needs from a conversation session.
type Conversation interface {
	Handle(ctx context.Context, text string) (string, error)
	Reset()
}

// CommandSource yields typed commands in place of the
// wake word, record and transcribe steps. NextCommand returns io.EOF when
// there is no more input.
type CommandSource interface {
	NextCommand(ctx context.Context) (string, error)
}

// toolObserver is implemented by sessions that report tool invocations.
type toolObserver interface {
	OnToolCall(fn func(name string))
}

// exhaustible is implemented by finite audio sources such as wav files.
type exhaustible interface {
	Exhausted() bool
}
