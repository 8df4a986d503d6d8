// Package conversation defines chat threads and their append-only messages.
package conversation

import "time"

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Conversation groups ordered messages. Created lazily on first message.
type Conversation struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one append-only entry in a conversation.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	TenantID       string    `json:"tenant_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	Model          string    `json:"model,omitempty"`
	TokensIn       int64     `json:"tokens_in,omitempty"`
	TokensOut      int64     `json:"tokens_out,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// TitleFrom derives a conversation title from the first message.
func TitleFrom(content string) string {
	const maxTitle = 60
	r := []rune(content)
	if len(r) <= maxTitle {
		return content
	}
	return string(r[:maxTitle-3]) + "..."
}
