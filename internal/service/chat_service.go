package service

import (
	"context"
	"errors"
	"fmt"
	"localchat-go/internal/config"
	"localchat-go/internal/model"
	"localchat-go/internal/repository"
	"localchat-go/pkg/llm"
	"localchat-go/pkg/log"
	"localchat-go/pkg/sse"
	"strings"
	"time"
)

// ChatMessage 是请求中携带的一条历史消息。
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest 是一次聊天请求。Message 与 Messages 二选一：
// 只提供 Message 且带 ConversationID 时，会先加载该会话的历史。
type ChatRequest struct {
	Message         string        `json:"message"`
	Messages        []ChatMessage `json:"messages"`
	Model           string        `json:"model"`
	Temperature     *float64      `json:"temperature"`
	MaxTokens       *int          `json:"maxTokens"`
	ConversationID  string        `json:"conversationId"`
	ProjectID       string        `json:"projectId"`
	ThinkingEnabled bool          `json:"thinkingEnabled"`
}

// PreparedChat 是已完成校验、持久化用户消息并打开上游流的聊天，交给 Stream 执行。
type PreparedChat struct {
	Conversation *model.Conversation
	Params       StreamParams

	stream  llm.EventStream
	release func()
}

// Abort 放弃一个未执行的 PreparedChat，关闭上游流并释放生成锁。
func (p *PreparedChat) Abort() {
	if p.stream != nil {
		_ = p.stream.Close()
	}
	if p.release != nil {
		p.release()
	}
}

// ChatService 定义了聊天操作的接口。
type ChatService interface {
	// Prepare 在开始流式输出前完成所有可能以 HTTP 错误码结束的步骤。
	Prepare(ctx context.Context, req ChatRequest) (*PreparedChat, error)
	// Stream 将上游事件聚合后写入 sink，结束后释放生成锁。
	Stream(ctx context.Context, prepared *PreparedChat, sink sse.Sink) error
}

type chatService struct {
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	projects      repository.ProjectRepository
	lock          repository.GenerationLock
	llmClient     llm.Client
	aggregator    *StreamAggregator
	gen           config.LLMGenerationConfig
	now           func() time.Time
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(
	conversations repository.ConversationRepository,
	messages repository.MessageRepository,
	projects repository.ProjectRepository,
	lock repository.GenerationLock,
	llmClient llm.Client,
	aggregator *StreamAggregator,
	gen config.LLMGenerationConfig,
) ChatService {
	return &chatService{
		conversations: conversations,
		messages:      messages,
		projects:      projects,
		lock:          lock,
		llmClient:     llmClient,
		aggregator:    aggregator,
		gen:           gen,
		now:           aggregator.now,
	}
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, msg)
}

func (s *chatService) Prepare(ctx context.Context, req ChatRequest) (*PreparedChat, error) {
	startedAt := s.now()

	// 1. 组装待发送的消息列表
	history := req.Messages
	if len(history) == 0 && strings.TrimSpace(req.Message) != "" {
		if req.ConversationID != "" {
			existing, err := s.messages.ListByConversation(ctx, req.ConversationID)
			if err != nil {
				return nil, fmt.Errorf("failed to load conversation history: %w", err)
			}
			for _, m := range existing {
				history = append(history, ChatMessage{Role: m.Role, Content: m.Content})
			}
		}
		history = append(history, ChatMessage{Role: model.RoleUser, Content: req.Message})
	}
	if len(history) == 0 {
		return nil, invalid("Message or messages array is required")
	}
	for _, m := range history {
		if m.Role != model.RoleUser && m.Role != model.RoleAssistant {
			return nil, invalid(fmt.Sprintf("unsupported message role %q", m.Role))
		}
	}
	last := history[len(history)-1]
	if last.Role != model.RoleUser || strings.TrimSpace(last.Content) == "" {
		return nil, invalid("the last message must be a non-empty user message")
	}

	// 2. 解析或创建会话
	conv, err := s.resolveConversation(ctx, req, history[0].Content)
	if err != nil {
		return nil, err
	}

	// 3. 获取生成锁，保证同一会话只有一个进行中的生成
	release, err := s.lock.Acquire(ctx, conv.ID)
	if err != nil {
		if errors.Is(err, repository.ErrLockHeld) {
			return nil, ErrGenerationInProgress
		}
		return nil, err
	}

	// 4. 同步保存用户消息
	userMsg := &model.Message{ConversationID: conv.ID, Role: model.RoleUser, Content: last.Content}
	if err := s.messages.Create(ctx, userMsg); err != nil {
		release()
		return nil, fmt.Errorf("failed to save user message: %w", err)
	}

	// 5. 打开上游流
	params, llmReq := s.buildRequest(req, conv, history)
	params.StartedAt = startedAt
	stream, err := s.llmClient.StreamMessages(ctx, llmReq)
	if err != nil {
		release()
		return nil, err
	}

	log.Infow("开始流式生成",
		"conversationID", conv.ID,
		"model", params.Model,
		"messages", len(history),
		"thinking", req.ThinkingEnabled,
	)
	return &PreparedChat{Conversation: conv, Params: params, stream: stream, release: release}, nil
}

func (s *chatService) resolveConversation(ctx context.Context, req ChatRequest, firstContent string) (*model.Conversation, error) {
	if req.ConversationID != "" {
		conv, err := s.conversations.FindByID(ctx, req.ConversationID, true)
		if err != nil {
			return nil, notFound(err, ErrConversationNotFound)
		}
		return conv, nil
	}

	conv := &model.Conversation{
		Title:       model.DefaultTitleFor(firstContent),
		Model:       s.gen.Model,
		Temperature: s.gen.Temperature,
		MaxTokens:   s.gen.MaxTokens,
	}
	if req.Model != "" {
		conv.Model = req.Model
	}
	if req.Temperature != nil {
		conv.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		conv.MaxTokens = *req.MaxTokens
	}
	if req.ProjectID != "" {
		project, err := s.projects.FindByID(ctx, req.ProjectID)
		if err != nil {
			return nil, notFound(err, ErrProjectNotFound)
		}
		conv.ProjectID = &project.ID
		conv.Project = project
	}
	if err := s.conversations.Create(ctx, conv); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

// buildRequest 确定采样参数：请求体优先，其次会话保存的值。开启扩展推理时使用更大的输出上限。
func (s *chatService) buildRequest(req ChatRequest, conv *model.Conversation, history []ChatMessage) (StreamParams, *llm.MessageRequest) {
	params := StreamParams{
		ConversationID: conv.ID,
		Model:          conv.Model,
		Temperature:    conv.Temperature,
		MaxTokens:      conv.MaxTokens,
	}
	if req.Model != "" {
		params.Model = req.Model
	}
	if req.Temperature != nil {
		params.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		params.MaxTokens = *req.MaxTokens
	}

	llmReq := &llm.MessageRequest{
		Model:       params.Model,
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
		Messages:    make([]llm.Message, 0, len(history)),
	}
	for _, m := range history {
		llmReq.Messages = append(llmReq.Messages, llm.Message{Role: m.Role, Content: m.Content})
	}
	if conv.Project != nil && conv.Project.Instructions != nil {
		llmReq.Instructions = *conv.Project.Instructions
	}
	if req.ThinkingEnabled {
		// max_tokens 必须大于 budget_tokens
		llmReq.MaxTokens = s.gen.ThinkingMaxTokens
		llmReq.ThinkingBudget = s.gen.ThinkingBudget
	}
	return params, llmReq
}

func (s *chatService) Stream(ctx context.Context, prepared *PreparedChat, sink sse.Sink) error {
	defer prepared.release()
	return s.aggregator.Run(ctx, prepared.stream, prepared.Params, sink)
}
