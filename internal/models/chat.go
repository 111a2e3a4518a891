package models

// Turn roles accepted from the caller.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ChatTurn represents a single message in a conversation.
type ChatTurn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// ChatRequest is the payload sent to the chat endpoints. History is nil when
// the field is absent or null, which is distinct from an empty transcript.
type ChatRequest struct {
	History *[]ChatTurn `json:"history"`
}

// Message is one element of the conversation handed to a completion provider.
// Unlike ChatTurn it may carry the system role.
type Message struct {
	Role    string
	Content string
}

// CompletionRequest is built fresh for every relay call and never stored.
type CompletionRequest struct {
	Model       string
	Temperature float32
	MaxTokens   int
	Messages    []Message
}

// SocketEvent is the control frame sent over the WebSocket chat endpoint.
type SocketEvent struct {
	Type string `json:"type"`
}
