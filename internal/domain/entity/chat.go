package entity

import "time"

// MessageType author of a message
type MessageType string

const (
	MessageTypeUser   MessageType = "user"
	MessageTypeAI     MessageType = "ai"
	MessageTypeSystem MessageType = "system"
)

// Message single tracked message of a conversation
type Message struct {
	ID        int64       `json:"id"`
	Text      string      `json:"message"`
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	RelatedTo []int64     `json:"relatedTo"`
}

// Chat conversation thread owned by one user
type Chat struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Messages      []Message `json:"messages"`
	CreatedAt     time.Time `json:"timestamp"`
	QuestionCount int       `json:"questionCount"`
}

// Connection a tracked message and the earlier messages it relates to
type Connection struct {
	Current string
	Related []string
}

// ContextSnapshot view of the active conversation context
type ContextSnapshot struct {
	Messages     []Message
	TopicRelated bool
	Connections  []Connection
}
