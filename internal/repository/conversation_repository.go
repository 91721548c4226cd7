// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"errors"
	"fmt"
	"localchat-go/internal/model"
	"time"

	"gorm.io/gorm"
)

// ErrNotFound 表示记录不存在。
var ErrNotFound = errors.New("record not found")

// ConversationFilter 是会话列表的过滤条件。
type ConversationFilter struct {
	ProjectID string
	Archived  bool
}

// ConversationUpdate 描述对会话的部分更新，nil 字段不修改。
type ConversationUpdate struct {
	Title     *string
	Archived  *bool
	UpdatedAt *time.Time
}

// ConversationRepository 定义了会话的持久化操作。
type ConversationRepository interface {
	Create(ctx context.Context, conv *model.Conversation) error
	FindByID(ctx context.Context, id string, includeProject bool) (*model.Conversation, error)
	List(ctx context.Context, filter ConversationFilter) ([]model.ConversationSummary, error)
	Update(ctx context.Context, id string, upd ConversationUpdate) error
	Delete(ctx context.Context, id string) error
}

type conversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository 创建一个新的 ConversationRepository 实例。
func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

func (r *conversationRepository) Create(ctx context.Context, conv *model.Conversation) error {
	return r.db.WithContext(ctx).Create(conv).Error
}

// FindByID 根据 ID 查找会话，includeProject 为 true 时一并加载所属项目。
func (r *conversationRepository) FindByID(ctx context.Context, id string, includeProject bool) (*model.Conversation, error) {
	q := r.db.WithContext(ctx)
	if includeProject {
		q = q.Preload("Project")
	}
	var conv model.Conversation
	if err := q.Where("id = ?", id).First(&conv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &conv, nil
}

// List 返回按 updated_at 倒序排列的会话，附带消息数量与项目名称。
func (r *conversationRepository) List(ctx context.Context, filter ConversationFilter) ([]model.ConversationSummary, error) {
	q := r.db.WithContext(ctx).Preload("Project").Where("archived = ?", filter.Archived)
	if filter.ProjectID != "" {
		q = q.Where("project_id = ?", filter.ProjectID)
	}
	var convs []model.Conversation
	if err := q.Order("updated_at DESC").Order("id DESC").Find(&convs).Error; err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	if len(convs) == 0 {
		return []model.ConversationSummary{}, nil
	}

	ids := make([]string, 0, len(convs))
	for _, c := range convs {
		ids = append(ids, c.ID)
	}
	type countRow struct {
		ConversationID string
		Count          int64
	}
	var counts []countRow
	if err := r.db.WithContext(ctx).Model(&model.Message{}).
		Select("conversation_id, COUNT(*) AS count").
		Where("conversation_id IN ?", ids).
		Group("conversation_id").
		Scan(&counts).Error; err != nil {
		return nil, fmt.Errorf("failed to count messages: %w", err)
	}
	byID := make(map[string]int64, len(counts))
	for _, c := range counts {
		byID[c.ConversationID] = c.Count
	}

	out := make([]model.ConversationSummary, 0, len(convs))
	for _, c := range convs {
		s := model.ConversationSummary{Conversation: c, MessageCount: byID[c.ID]}
		if c.Project != nil {
			name := c.Project.Name
			s.ProjectName = &name
		}
		out = append(out, s)
	}
	return out, nil
}

// Update 对会话执行部分更新。
func (r *conversationRepository) Update(ctx context.Context, id string, upd ConversationUpdate) error {
	values := map[string]interface{}{}
	if upd.Title != nil {
		values["title"] = *upd.Title
	}
	if upd.Archived != nil {
		values["archived"] = *upd.Archived
	}
	if upd.UpdatedAt != nil {
		values["updated_at"] = *upd.UpdatedAt
	}
	if len(values) == 0 {
		return nil
	}
	res := r.db.WithContext(ctx).Model(&model.Conversation{}).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete 删除会话及其全部消息。
func (r *conversationRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", id).Delete(&model.Message{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&model.Conversation{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}
