package service

import (
	"context"
	"localchat-go/internal/model"
	"localchat-go/internal/repository"
	"strings"
)

// CreateProjectRequest 是创建项目的参数。
type CreateProjectRequest struct {
	Name         string  `json:"name"`
	Description  *string `json:"description"`
	Instructions *string `json:"instructions"`
}

// UpdateProjectRequest 是项目的部分更新。
type UpdateProjectRequest struct {
	Name         *string `json:"name"`
	Description  *string `json:"description"`
	Instructions *string `json:"instructions"`
}

// ProjectService 定义了项目管理的接口。
type ProjectService interface {
	List(ctx context.Context) ([]model.ProjectSummary, error)
	Create(ctx context.Context, req CreateProjectRequest) (*model.Project, error)
	Get(ctx context.Context, id string) (*model.Project, error)
	Update(ctx context.Context, id string, req UpdateProjectRequest) (*model.Project, error)
	Delete(ctx context.Context, id string) error
}

type projectService struct {
	projects repository.ProjectRepository
}

// NewProjectService 创建一个新的 ProjectService。
func NewProjectService(projects repository.ProjectRepository) ProjectService {
	return &projectService{projects: projects}
}

// emptyToNil 将空字符串视为未设置。
func emptyToNil(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}

func (s *projectService) List(ctx context.Context) ([]model.ProjectSummary, error) {
	return s.projects.List(ctx)
}

func (s *projectService) Create(ctx context.Context, req CreateProjectRequest) (*model.Project, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, invalid("Project name is required")
	}
	p := &model.Project{
		Name:         req.Name,
		Description:  emptyToNil(req.Description),
		Instructions: emptyToNil(req.Instructions),
	}
	if err := s.projects.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *projectService) Get(ctx context.Context, id string) (*model.Project, error) {
	p, err := s.projects.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, ErrProjectNotFound)
	}
	return p, nil
}

func (s *projectService) Update(ctx context.Context, id string, req UpdateProjectRequest) (*model.Project, error) {
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		return nil, invalid("Project name must not be empty")
	}
	if err := s.projects.Update(ctx, id, repository.ProjectUpdate{
		Name:         req.Name,
		Description:  req.Description,
		Instructions: req.Instructions,
	}); err != nil {
		return nil, notFound(err, ErrProjectNotFound)
	}
	return s.Get(ctx, id)
}

func (s *projectService) Delete(ctx context.Context, id string) error {
	return notFound(s.projects.Delete(ctx, id), ErrProjectNotFound)
}
