package conversation

import "strings"

const basePrompt = `You are Pixie, a local offline AI voice agent.
You understand user requests in natural language and decide whether to call a tool or respond directly.
Always output a single JSON object with exactly one of the following:
1) {"action":"respond","response":"<your answer>"}
2) {"action":"use_tool","tool_name":"<tool>","parameters":{"<name>":"<value>"}}
If ambiguous, ask for clarification using {"action":"respond",...}.`

// DefaultFollowUpInstruction is sent, but not stored, with the call that
// follows a tool result.
const DefaultFollowUpInstruction = `Use the tool result above to answer the user. Reply with {"action":"respond","response":"<your answer>"}.`

const (
	DecodeFailureReply = "Sorry, I could not make sense of my own answer. Please try again."
	unknownToolReply   = "Sorry, I don't know a tool called "
)

// SystemPrompt builds the behavior contract given to the model, listing the
// available tools.
func SystemPrompt(toolCatalogue string) string {
	var b strings.Builder
	b.WriteString(basePrompt)

	if toolCatalogue = strings.TrimSpace(toolCatalogue); toolCatalogue != "" {
		b.WriteString("\n\nAvailable tools:\n")
		b.WriteString(toolCatalogue)
	}

	return b.String()
}
