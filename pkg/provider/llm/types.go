package llm

// Role identifies the author of a conversation turn.
type Role string

const (
	// RoleSystem is the behavioural preamble, present at most once and only
	// as the first turn.
	RoleSystem Role = "system"
	// RoleUser is a transcribed spoken command.
	RoleUser Role = "user"
	// RoleAssistant is a previous model reply.
	RoleAssistant Role = "assistant"
)

// Turn is one entry in the conversation history.
type Turn struct {
	Role    Role
	Content string
}

// Request carries the conversation and sampling parameters for one
// completion.
type Request struct {
	// Turns is the full ordered history, oldest first.
	Turns []Turn

	// Temperature is the sampling temperature. Zero means provider default.
	Temperature float64

	// MaxTokens caps the reply length. Zero means provider default.
	MaxTokens int
}
