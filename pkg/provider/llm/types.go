package llm

// Role values for Message.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single message in an LLM conversation history.
type Message struct {
	// Role is one of RoleSystem, RoleUser, or RoleAssistant.
	Role string

	// Content is the text content of the message.
	Content string
}
