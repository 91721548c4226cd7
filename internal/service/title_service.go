package service

import (
	"context"
	"errors"
	"fmt"
	"localchat-go/internal/model"
	"localchat-go/internal/repository"
	"localchat-go/pkg/llm"
	"localchat-go/pkg/log"
	"localchat-go/pkg/pricing"
	"strings"
)

const (
	titleMaxTokens   = 50
	titleTemperature = 0.7
	titlePrompt      = "Generate a very short, concise title (3-6 words) that describes this conversation. Be specific and descriptive. Only return the title, nothing else.\n\nConversation:\n"
)

// TitleResult 是标题生成的结果。Generated 为 false 表示沿用了已有的自定义标题。
type TitleResult struct {
	Title     string `json:"title"`
	Generated bool   `json:"generated"`
}

// TitleService 定义了会话标题生成的接口。
type TitleService interface {
	// GenerateTitle 为仍使用默认标题的会话生成标题。消息不足两条时返回 nil 结果且不写入。
	GenerateTitle(ctx context.Context, conversationID string) (*TitleResult, error)
	// TryGenerateTitle 与 GenerateTitle 相同，但所有失败都只记录日志并返回 nil。
	TryGenerateTitle(ctx context.Context, conversationID string) *TitleResult
}

type titleService struct {
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	llmClient     llm.Client
}

// NewTitleService 创建一个新的 TitleService 实例。
func NewTitleService(conversations repository.ConversationRepository, messages repository.MessageRepository, llmClient llm.Client) TitleService {
	return &titleService{conversations: conversations, messages: messages, llmClient: llmClient}
}

func (s *titleService) GenerateTitle(ctx context.Context, conversationID string) (*TitleResult, error) {
	conv, err := s.conversations.FindByID(ctx, conversationID, false)
	if err != nil {
		return nil, notFound(err, ErrConversationNotFound)
	}

	msgs, err := s.messages.ListFirst(ctx, conversationID, 2)
	if err != nil {
		return nil, fmt.Errorf("failed to load first messages: %w", err)
	}
	if len(msgs) < 2 {
		return nil, nil
	}

	// 标题已被自定义（包括已生成过），不再覆盖
	if !model.IsDefaultTitle(conv.Title, msgs[0].Content) {
		return &TitleResult{Title: conv.Title, Generated: false}, nil
	}

	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, m.Role+": "+m.Content)
	}

	text, err := s.llmClient.CreateMessage(ctx, &llm.MessageRequest{
		Model:       pricing.CheapestModel(),
		Messages:    []llm.Message{{Role: model.RoleUser, Content: titlePrompt + strings.Join(lines, "\n\n")}},
		Temperature: titleTemperature,
		MaxTokens:   titleMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate title: %w", err)
	}

	title := cleanTitle(text)
	if title == "" {
		return nil, errors.New("model returned an empty title")
	}
	if err := s.conversations.Update(ctx, conversationID, repository.ConversationUpdate{Title: &title}); err != nil {
		return nil, notFound(err, ErrConversationNotFound)
	}
	log.Infow("会话标题已生成", "conversationID", conversationID, "title", title)
	return &TitleResult{Title: title, Generated: true}, nil
}

func (s *titleService) TryGenerateTitle(ctx context.Context, conversationID string) *TitleResult {
	result, err := s.GenerateTitle(ctx, conversationID)
	if err != nil {
		log.Errorw("标题生成失败", "conversationID", conversationID, "error", err)
		return nil
	}
	return result
}

// cleanTitle 去除首尾空白，以及开头和结尾各一个引号字符。
func cleanTitle(raw string) string {
	t := strings.TrimSpace(raw)
	if len(t) > 0 && (t[0] == '"' || t[0] == '\'') {
		t = t[1:]
	}
	if len(t) > 0 && (t[len(t)-1] == '"' || t[len(t)-1] == '\'') {
		t = t[:len(t)-1]
	}
	return t
}
