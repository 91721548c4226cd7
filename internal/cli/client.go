// Package cli 实现了连接本地服务的命令行聊天客户端。
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"localchat-go/internal/model"
	"localchat-go/internal/service"
	"localchat-go/pkg/sse"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
)

// apiError 是服务端返回的 {"error": "..."} 错误体。
type apiError struct {
	Error string `json:"error"`
}

// StatusError 表示服务端以非 2xx 状态码拒绝了请求。
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Client 是本地聊天服务的 HTTP 客户端。
type Client struct {
	http *resty.Client
}

// NewClient 创建指向 baseURL 的客户端。流式请求不设置超时，由 ctx 控制。
func NewClient(baseURL string) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetHeader("Content-Type", "application/json"),
	}
}

func statusError(resp *resty.Response) error {
	msg := strings.TrimSpace(resp.String())
	if e, ok := resp.Error().(*apiError); ok && e.Error != "" {
		msg = e.Error
	}
	return &StatusError{StatusCode: resp.StatusCode(), Message: msg}
}

// Chat 发送一次聊天请求，并把事件流中的每一帧交给 h。
// 服务端在开始流式输出前拒绝请求时返回 *StatusError。
func (c *Client) Chat(ctx context.Context, req service.ChatRequest, h sse.Handler) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "text/event-stream").
		SetBody(req).
		SetDoNotParseResponse(true).
		Post("/api/chat")
	if err != nil {
		return fmt.Errorf("failed to send chat request: %w", err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(body, 8*1024))
		var e apiError
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &StatusError{StatusCode: resp.StatusCode(), Message: msg}
	}
	return sse.Decode(body, h)
}

// Conversations 返回会话列表。
func (c *Client) Conversations(ctx context.Context, archived bool) ([]model.ConversationSummary, error) {
	var out []model.ConversationSummary
	req := c.http.R().SetContext(ctx).SetResult(&out).SetError(&apiError{})
	if archived {
		req.SetQueryParam("archived", "true")
	}
	resp, err := req.Get("/api/conversations")
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	if resp.IsError() {
		return nil, statusError(resp)
	}
	return out, nil
}

// Conversation 返回会话及其消息。
func (c *Client) Conversation(ctx context.Context, id string) (*model.Conversation, error) {
	var out model.Conversation
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).SetError(&apiError{}).
		SetPathParam("id", id).
		Get("/api/conversations/{id}")
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	if resp.IsError() {
		return nil, statusError(resp)
	}
	return &out, nil
}

// GenerateTitle 请求服务端为会话生成标题。
func (c *Client) GenerateTitle(ctx context.Context, id string) (*service.TitleResult, error) {
	var out service.TitleResult
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).SetError(&apiError{}).
		SetPathParam("id", id).
		Post("/api/conversations/{id}/generate-title")
	if err != nil {
		return nil, fmt.Errorf("failed to generate title: %w", err)
	}
	if resp.IsError() {
		return nil, statusError(resp)
	}
	return &out, nil
}
