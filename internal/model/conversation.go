// Package model 包含了应用的数据模型定义。
package model

import (
	"time"

	"gorm.io/gorm"
)

// DefaultConversationTitle 是无法从首条消息推导标题时使用的占位标题。
const DefaultConversationTitle = "New Conversation"

// defaultTitleRunes 是默认标题截取首条消息的字符数。
const defaultTitleRunes = 100

// Conversation 代表一次对话，拥有多条 Message，可选归属于一个 Project。
type Conversation struct {
	ID          string    `gorm:"primaryKey;type:varchar(26)" json:"id"`
	Title       string    `gorm:"type:varchar(255);not null" json:"title"`
	Model       string    `gorm:"type:varchar(100);not null" json:"model"`
	Temperature float64   `gorm:"not null;default:1" json:"temperature"`
	MaxTokens   int       `gorm:"not null;default:4096" json:"maxTokens"`
	ProjectID   *string   `gorm:"type:varchar(26);index" json:"projectId"`
	Project     *Project  `gorm:"foreignKey:ProjectID" json:"project,omitempty"`
	Archived    bool      `gorm:"not null;default:false;index" json:"archived"`
	Messages    []Message `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE" json:"messages,omitempty"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime;index" json:"updatedAt"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// BeforeCreate 在插入前分配 ULID 主键。
func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = NewID()
	}
	return nil
}

// ConversationSummary 是会话列表接口返回的行，附带消息数量与项目名称。
type ConversationSummary struct {
	Conversation
	MessageCount int64   `json:"messageCount"`
	ProjectName  *string `json:"projectName,omitempty"`
}

// DefaultTitleFor 返回根据首条用户消息推导出的默认标题：前 100 个字符，空内容时为占位标题。
func DefaultTitleFor(firstMessage string) string {
	runes := []rune(firstMessage)
	if len(runes) > defaultTitleRunes {
		runes = runes[:defaultTitleRunes]
	}
	if len(runes) == 0 {
		return DefaultConversationTitle
	}
	return string(runes)
}

// IsDefaultTitle 判断 title 是否仍为默认值（精确字符串比较）。
func IsDefaultTitle(title, firstMessage string) bool {
	if title == DefaultConversationTitle {
		return true
	}
	runes := []rune(firstMessage)
	if len(runes) > defaultTitleRunes {
		runes = runes[:defaultTitleRunes]
	}
	return title == string(runes)
}
