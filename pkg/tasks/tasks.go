// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

import "time"

// TitleGenerationTask represents a request to generate a title for a conversation
// after its first full exchange.
type TitleGenerationTask struct {
	ConversationID string    `json:"conversation_id"`
	RequestedAt    time.Time `json:"requested_at"`
}
