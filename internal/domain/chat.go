package domain

import (
	"time"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one entry in a conversation.
type ChatMessage struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Synthetic bool      `json:"synthetic,omitempty"`
}

// Exchange is a persisted user question and assistant answer.
type Exchange struct {
	ID            string
	OwnerID       string
	TenantID      string
	UserText      string
	AssistantText string
	ElapsedMs     int64
	CreatedAt     time.Time
}

// ContextChunk is one retrieved passage used to ground an answer.
type ContextChunk struct {
	SourceName string  `json:"source_name"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}
