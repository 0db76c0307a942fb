package models

// Role identifies the author of a chat message.
type Role string

const (
	// RoleSystem is a system-authored message (prompts, summaries, notices).
	RoleSystem Role = "system"
	// RoleUser is a user-authored message.
	RoleUser Role = "user"
	// RoleAssistant is an LLM-authored message.
	RoleAssistant Role = "assistant"
	// RoleTool is a tool-result message.
	RoleTool Role = "tool"
)

// Message is one entry of a task's chat history.
type Message struct {
	// Role is the author of the message.
	Role Role `json:"role"`
	// Content is the message text.
	Content string `json:"content"`
}
