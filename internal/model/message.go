package model

import (
	"time"

	"gorm.io/gorm"
)

// 消息角色
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message 代表对话中的单条消息。指标字段仅在 assistant 消息上填充。
type Message struct {
	ID             string    `gorm:"primaryKey;type:varchar(26)" json:"id"`
	ConversationID string    `gorm:"type:varchar(26);not null;index" json:"conversationId"`
	Role           string    `gorm:"type:varchar(16);not null" json:"role"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"createdAt"`

	TokensPerSecond  *float64 `json:"tokensPerSecond,omitempty"`
	TotalTokens      *int     `json:"totalTokens,omitempty"`
	InputTokens      *int     `json:"inputTokens,omitempty"`
	OutputTokens     *int     `json:"outputTokens,omitempty"`
	CachedTokens     *int     `json:"cachedTokens,omitempty"`
	TimeToFirstToken *float64 `json:"timeToFirstToken,omitempty"`
	StopReason       *string  `gorm:"type:varchar(64)" json:"stopReason,omitempty"`
	ModelConfig      *string  `gorm:"type:text" json:"modelConfig,omitempty"`
	Cost             *float64 `json:"cost,omitempty"`
	ThinkingContent  *string  `gorm:"type:text" json:"thinkingContent,omitempty"`
}

func (Message) TableName() string {
	return "messages"
}

// BeforeCreate 在插入前分配 ULID 主键。
func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = NewID()
	}
	return nil
}

// MessageMetrics 是一次流式生成结束后写入 assistant 消息的指标集合。
type MessageMetrics struct {
	TokensPerSecond  float64
	TotalTokens      int
	InputTokens      int
	OutputTokens     int
	CachedTokens     int
	TimeToFirstToken float64
	StopReason       string
	ModelConfig      string
	Cost             float64
	ThinkingContent  string
}

// Apply 将指标写入消息的可空字段。
func (m MessageMetrics) Apply(msg *Message) {
	msg.TokensPerSecond = &m.TokensPerSecond
	msg.TotalTokens = &m.TotalTokens
	msg.InputTokens = &m.InputTokens
	msg.OutputTokens = &m.OutputTokens
	msg.CachedTokens = &m.CachedTokens
	msg.TimeToFirstToken = &m.TimeToFirstToken
	msg.StopReason = &m.StopReason
	msg.ModelConfig = &m.ModelConfig
	msg.Cost = &m.Cost
	msg.ThinkingContent = &m.ThinkingContent
}
