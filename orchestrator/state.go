package orchestrator

import "fmt"

// State is the phase the loop is currently in. Exactly one is active.
type State int32

const (
	Idle State = iota
	AwaitingKeyword
	Recording
	Transcribing
	Reasoning
	AwaitingToolResult
	Speaking
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingKeyword:
		return "awaiting_keyword"
	case Recording:
		return "recording"
	case Transcribing:
		return "transcribing"
	case Reasoning:
		return "reasoning"
	case AwaitingToolResult:
		return "awaiting_tool_result"
	case Speaking:
		return "speaking"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Outcome classifies how one iteration of the loop ended.
type Outcome int

const (
	// Completed means a reply was produced and spoken.
	Completed Outcome = iota
	// NoCommand means nothing was understood; no turn was added.
	NoCommand
	// Recoverable means the iteration was abandoned; the loop carries on.
	Recoverable
	// ResetRequired means the conversation history is corrupted.
	ResetRequired
	// Stopped means the input ended or the loop was interrupted.
	Stopped
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case NoCommand:
		return "no_command"
	case Recoverable:
		return "recoverable"
	case ResetRequired:
		return "reset_required"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result reports one iteration.
type Result struct {
	ID      string
	Outcome Outcome
	Command string
	Reply   string
	Err     error
}
