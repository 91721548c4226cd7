package model

import (
	"time"

	"gorm.io/gorm"
)

// Project 聚合若干会话，Instructions 会作为可缓存的 system 内容注入。
type Project struct {
	ID           string    `gorm:"primaryKey;type:varchar(26)" json:"id"`
	Name         string    `gorm:"type:varchar(255);not null" json:"name"`
	Description  *string   `gorm:"type:text" json:"description"`
	Instructions *string   `gorm:"type:text" json:"instructions"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Project) TableName() string {
	return "projects"
}

// BeforeCreate 在插入前分配 ULID 主键。
func (p *Project) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = NewID()
	}
	return nil
}

// ProjectSummary 是项目列表接口返回的行。
type ProjectSummary struct {
	Project
	ConversationCount int64 `json:"conversationCount"`
}
