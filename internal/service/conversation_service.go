package service

import (
	"context"
	"localchat-go/internal/model"
	"localchat-go/internal/repository"
	"strings"
)

// 显式创建会话时的默认采样参数。
const (
	defaultConversationTemperature = 1.0
	defaultConversationMaxTokens   = 4096
)

// CreateConversationRequest 是显式创建会话的参数。
type CreateConversationRequest struct {
	Title       string   `json:"title"`
	Model       string   `json:"model"`
	ProjectID   *string  `json:"projectId"`
	Temperature *float64 `json:"temperature"`
	MaxTokens   *int     `json:"maxTokens"`
}

// UpdateConversationRequest 是会话的部分更新，nil 字段保持不变。
type UpdateConversationRequest struct {
	Title    *string `json:"title"`
	Archived *bool   `json:"archived"`
}

// ConversationService 定义了会话管理的接口。
type ConversationService interface {
	List(ctx context.Context, filter repository.ConversationFilter) ([]model.ConversationSummary, error)
	Create(ctx context.Context, req CreateConversationRequest) (*model.Conversation, error)
	// Get 返回会话及其按创建顺序排列的全部消息与所属项目。
	Get(ctx context.Context, id string) (*model.Conversation, error)
	Update(ctx context.Context, id string, req UpdateConversationRequest) (*model.Conversation, error)
	Delete(ctx context.Context, id string) error
	Messages(ctx context.Context, id string) ([]model.Message, error)
}

type conversationService struct {
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	projects      repository.ProjectRepository
}

// NewConversationService 创建一个新的 ConversationService。
func NewConversationService(conversations repository.ConversationRepository, messages repository.MessageRepository, projects repository.ProjectRepository) ConversationService {
	return &conversationService{conversations: conversations, messages: messages, projects: projects}
}

func (s *conversationService) List(ctx context.Context, filter repository.ConversationFilter) ([]model.ConversationSummary, error) {
	return s.conversations.List(ctx, filter)
}

func (s *conversationService) Create(ctx context.Context, req CreateConversationRequest) (*model.Conversation, error) {
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Model) == "" {
		return nil, invalid("Title and model are required")
	}
	conv := &model.Conversation{
		Title:       req.Title,
		Model:       req.Model,
		Temperature: defaultConversationTemperature,
		MaxTokens:   defaultConversationMaxTokens,
	}
	if req.Temperature != nil {
		conv.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		conv.MaxTokens = *req.MaxTokens
	}
	if req.ProjectID != nil && *req.ProjectID != "" {
		if _, err := s.projects.FindByID(ctx, *req.ProjectID); err != nil {
			return nil, notFound(err, ErrProjectNotFound)
		}
		conv.ProjectID = req.ProjectID
	}
	if err := s.conversations.Create(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *conversationService) Get(ctx context.Context, id string) (*model.Conversation, error) {
	conv, err := s.conversations.FindByID(ctx, id, true)
	if err != nil {
		return nil, notFound(err, ErrConversationNotFound)
	}
	msgs, err := s.messages.ListByConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	conv.Messages = msgs
	return conv, nil
}

func (s *conversationService) Update(ctx context.Context, id string, req UpdateConversationRequest) (*model.Conversation, error) {
	if req.Title != nil && strings.TrimSpace(*req.Title) == "" {
		return nil, invalid("title must not be empty")
	}
	upd := repository.ConversationUpdate{Title: req.Title, Archived: req.Archived}
	if upd.Title == nil && upd.Archived == nil {
		// 空更新只校验存在性
		conv, err := s.conversations.FindByID(ctx, id, false)
		return conv, notFound(err, ErrConversationNotFound)
	}
	if err := s.conversations.Update(ctx, id, upd); err != nil {
		return nil, notFound(err, ErrConversationNotFound)
	}
	conv, err := s.conversations.FindByID(ctx, id, false)
	if err != nil {
		return nil, notFound(err, ErrConversationNotFound)
	}
	return conv, nil
}

func (s *conversationService) Delete(ctx context.Context, id string) error {
	return notFound(s.conversations.Delete(ctx, id), ErrConversationNotFound)
}

func (s *conversationService) Messages(ctx context.Context, id string) ([]model.Message, error) {
	if _, err := s.conversations.FindByID(ctx, id, false); err != nil {
		return nil, notFound(err, ErrConversationNotFound)
	}
	return s.messages.ListByConversation(ctx, id)
}
