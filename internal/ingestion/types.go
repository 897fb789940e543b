// Package ingestion defines the exported-conversation document accepted by
// the upload endpoint and the event emitted once it has been stored.
package ingestion

import (
	"fmt"
	"strings"
	"time"
)

// Export is one chatbot export file covering a date range.
type Export struct {
	ChatbotName   string         `json:"chatbotName"`
	StartDateStr  string         `json:"startDateStr"`
	EndDateStr    string         `json:"endDateStr"`
	Conversations []Conversation `json:"conversations"`
}

type Conversation struct {
	ID            string    `json:"id"`
	ChatbotID     string    `json:"chatbot_id"`
	Country       string    `json:"country"`
	CreatedAt     string    `json:"created_at"`
	Title         string    `json:"title"`
	MinScore      *float64  `json:"min_score"`
	Source        string    `json:"source"`
	UserID        string    `json:"user_id"`
	AnonymousID   string    `json:"anonymous_id"`
	Sentiment     string    `json:"sentiment"`
	LastMessageAt string    `json:"last_message_at"`
	Messages      []Message `json:"messages"`
}

// Message is a single turn. Messages without an ID are the assistant's
// opening greeting and are not stored.
type Message struct {
	ID        string   `json:"id"`
	Role      string   `json:"role"`
	Content   string   `json:"content"`
	Score     *float64 `json:"score"`
	CreatedAt string   `json:"createdAt"`
	StepID    string   `json:"stepId"`
	Type      string   `json:"type"`
}

// Filename is the processed_files key of the export.
func (e *Export) Filename() string {
	return fmt.Sprintf("%s_%s.json", e.StartDateStr, e.EndDateStr)
}

// Period is the human readable range reported back to the uploader.
func (e *Export) Period() string {
	return fmt.Sprintf("%s a %s", e.StartDateStr, e.EndDateStr)
}

// UploadResult summarises a successful ingest.
type UploadResult struct {
	ConversationsProcessed int    `json:"conversationsProcessed"`
	MessagesProcessed      int    `json:"messagesProcessed"`
	Filename               string `json:"filename"`
	Period                 string `json:"period"`
}

// ConversationsIngested is published to Kafka after an export is committed.
type ConversationsIngested struct {
	Filename        string    `json:"filename"`
	ConversationIDs []string  `json:"conversation_ids"`
	IngestedAt      time.Time `json:"ingested_at"`
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTime accepts the timestamp shapes seen in exports. Values without a
// zone are read as UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}
