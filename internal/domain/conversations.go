// Package domain holds the conversation, dashboard, feature and settings
// types shared by the chat, estimation and storage layers.
package domain

import (
	"time"
)

// MessageType is the author kind of a chat turn.
type MessageType string

const (
	MessageUser MessageType = "user"
	MessageBot  MessageType = "bot"
)

// Message represents a single chat turn. Only bot messages carry a dashboard.
type Message struct {
	ID               string           `json:"id"`
	Type             MessageType      `json:"type"`
	Content          string           `json:"content"`
	Timestamp        time.Time        `json:"timestamp"`
	ResponseTime     *int64           `json:"responseTime,omitempty"` // milliseconds
	IsFuelPrediction bool             `json:"isFuelPrediction,omitempty"`
	Dashboard        *DashboardResult `json:"dashboardData,omitempty"`
}

// Conversation is an ordered, named group of messages.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	Timestamp time.Time `json:"timestamp"` // last activity
	Favorite  bool      `json:"isFavorite"`
}

// Clone returns a copy that shares no slices with c.
func (c Conversation) Clone() Conversation {
	out := c
	out.Messages = make([]Message, len(c.Messages))
	copy(out.Messages, c.Messages)
	return out
}

// TitleMaxRunes is the title length before truncation.
const TitleMaxRunes = 50

// TitleFromContent derives a conversation title from the first message.
func TitleFromContent(content string) string {
	r := []rune(content)
	if len(r) <= TitleMaxRunes {
		return content
	}
	return string(r[:TitleMaxRunes]) + "..."
}

// DefaultConversationTitle names explicitly created conversations.
const DefaultConversationTitle = "New conversation"

// SubmitRequest is the input for posting a chat message.
type SubmitRequest struct {
	Content  string       `json:"content"`
	Features *RawFeatures `json:"features,omitempty"`
}
