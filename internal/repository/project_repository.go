package repository

import (
	"context"
	"errors"
	"fmt"
	"localchat-go/internal/model"

	"gorm.io/gorm"
)

// ProjectUpdate 描述对项目的部分更新。
type ProjectUpdate struct {
	Name         *string
	Description  *string
	Instructions *string
}

// ProjectRepository 定义了项目的持久化操作。
type ProjectRepository interface {
	Create(ctx context.Context, p *model.Project) error
	FindByID(ctx context.Context, id string) (*model.Project, error)
	List(ctx context.Context) ([]model.ProjectSummary, error)
	Update(ctx context.Context, id string, upd ProjectUpdate) error
	Delete(ctx context.Context, id string) error
}

type projectRepository struct {
	db *gorm.DB
}

// NewProjectRepository 创建一个新的 ProjectRepository 实例。
func NewProjectRepository(db *gorm.DB) ProjectRepository {
	return &projectRepository{db: db}
}

func (r *projectRepository) Create(ctx context.Context, p *model.Project) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *projectRepository) FindByID(ctx context.Context, id string) (*model.Project, error) {
	var p model.Project
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// List 返回按 updated_at 倒序排列的项目及其会话数量。
func (r *projectRepository) List(ctx context.Context) ([]model.ProjectSummary, error) {
	var projects []model.Project
	if err := r.db.WithContext(ctx).Order("updated_at DESC").Order("id DESC").Find(&projects).Error; err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	type countRow struct {
		ProjectID string
		Count     int64
	}
	var counts []countRow
	if err := r.db.WithContext(ctx).Model(&model.Conversation{}).
		Select("project_id, COUNT(*) AS count").
		Where("project_id IS NOT NULL").
		Group("project_id").
		Scan(&counts).Error; err != nil {
		return nil, fmt.Errorf("failed to count conversations: %w", err)
	}
	byID := make(map[string]int64, len(counts))
	for _, c := range counts {
		byID[c.ProjectID] = c.Count
	}
	out := make([]model.ProjectSummary, 0, len(projects))
	for _, p := range projects {
		out = append(out, model.ProjectSummary{Project: p, ConversationCount: byID[p.ID]})
	}
	return out, nil
}

func (r *projectRepository) Update(ctx context.Context, id string, upd ProjectUpdate) error {
	values := map[string]interface{}{}
	if upd.Name != nil {
		values["name"] = *upd.Name
	}
	if upd.Description != nil {
		values["description"] = *upd.Description
	}
	if upd.Instructions != nil {
		values["instructions"] = *upd.Instructions
	}
	if len(values) == 0 {
		_, err := r.FindByID(ctx, id)
		return err
	}
	res := r.db.WithContext(ctx).Model(&model.Project{}).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete 删除项目，并将其下的会话解除归属（会话本身保留）。
func (r *projectRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Conversation{}).Where("project_id = ?", id).
			Update("project_id", nil).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&model.Project{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}
