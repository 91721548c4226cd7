// Package llm provides a client for the hosted model provider's Messages API.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"localchat-go/internal/config"
	"net/http"
	"strings"
	"time"
)

// cacheThreshold 是开启历史消息缓存标记的消息数量下限（严格大于）。
const cacheThreshold = 2

// Client defines the interface for an LLM client.
type Client interface {
	// StreamMessages 打开一个流式请求。请求被拒绝时直接返回 *ProviderError，不会产生任何事件。
	StreamMessages(ctx context.Context, req *MessageRequest) (EventStream, error)
	// CreateMessage 发送非流式请求并返回第一个文本块。
	CreateMessage(ctx context.Context, req *MessageRequest) (string, error)
}

// EventStream 是上游事件序列。Recv 在流正常结束时返回 io.EOF。
type EventStream interface {
	Recv() (Event, error)
	Close() error
}

// Message 表示一条角色消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// MessageRequest 描述一次模型调用。
type MessageRequest struct {
	Model    string
	Messages []Message
	// Instructions 是项目指令，非空时作为可缓存的 system 段发送。
	Instructions string
	Temperature  float64
	MaxTokens    int
	// ThinkingBudget 大于 0 时开启扩展推理。
	ThinkingBudget int
}

// ProviderError 表示提供商拒绝了请求或在流中途报告了错误。
type ProviderError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider error (status %d, %s): %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("provider error (%s): %s", e.Type, e.Message)
}

type client struct {
	cfg    config.LLMConfig
	client *http.Client
}

// NewClient creates a new LLM client from explicit configuration.
func NewClient(cfg config.LLMConfig) Client {
	// 流式响应可能持续数分钟，超时由 ctx 控制；这里仅保留一个整体上限
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	return &client{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

type cacheControl struct {
	Type string `json:"type"`
}

type textSegment struct {
	Type         string        `json:"type"`
	Text         string        `json:"text"`
	CacheControl *cacheControl `json:"cache_control,omitempty"`
}

// wireMessage 的 Content 为 string 或 []textSegment。
type wireMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type thinkingParam struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens"`
}

type messagesRequest struct {
	Model       string         `json:"model"`
	MaxTokens   int            `json:"max_tokens"`
	Temperature float64        `json:"temperature"`
	System      []textSegment  `json:"system,omitempty"`
	Messages    []wireMessage  `json:"messages"`
	Stream      bool           `json:"stream"`
	Thinking    *thinkingParam `json:"thinking,omitempty"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// buildRequest 将 MessageRequest 转换为线上格式，并按规则标记可缓存段：
// 消息数大于 2 时，除最后一条外全部标记；项目指令存在时始终标记。
func buildRequest(req *MessageRequest, stream bool) messagesRequest {
	ephemeral := &cacheControl{Type: "ephemeral"}
	shouldCache := len(req.Messages) > cacheThreshold

	msgs := make([]wireMessage, 0, len(req.Messages))
	for i, m := range req.Messages {
		isLast := i == len(req.Messages)-1
		if shouldCache && !isLast {
			msgs = append(msgs, wireMessage{
				Role:    m.Role,
				Content: []textSegment{{Type: "text", Text: m.Content, CacheControl: ephemeral}},
			})
			continue
		}
		msgs = append(msgs, wireMessage{Role: m.Role, Content: m.Content})
	}

	out := messagesRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Messages:    msgs,
		Stream:      stream,
	}
	if req.Instructions != "" {
		out.System = []textSegment{{Type: "text", Text: req.Instructions, CacheControl: ephemeral}}
	}
	if req.ThinkingBudget > 0 {
		out.Thinking = &thinkingParam{Type: "enabled", BudgetTokens: req.ThinkingBudget}
	}
	return out
}

func (c *client) do(ctx context.Context, body messagesRequest) (*http.Response, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return nil, &ProviderError{Type: "authentication_error", Message: "api key is not configured"}
	}
	reqBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal messages request: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/v1/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create messages request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.cfg.APIKey)
	req.Header.Set("anthropic-version", c.cfg.APIVersion)
	if body.Stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call messages api: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, decodeProviderError(resp)
	}
	return resp, nil
}

func decodeProviderError(resp *http.Response) error {
	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 8*1024))
	pe := &ProviderError{StatusCode: resp.StatusCode, Type: "api_error", Message: strings.TrimSpace(string(bodyBytes))}
	var decoded struct {
		Error *wireError `json:"error"`
	}
	if err := json.Unmarshal(bodyBytes, &decoded); err == nil && decoded.Error != nil {
		pe.Type = decoded.Error.Type
		pe.Message = decoded.Error.Message
	}
	if pe.Message == "" {
		pe.Message = resp.Status
	}
	return pe
}

// StreamMessages 打开流式请求并返回事件流。
func (c *client) StreamMessages(ctx context.Context, req *MessageRequest) (EventStream, error) {
	resp, err := c.do(ctx, buildRequest(req, true))
	if err != nil {
		return nil, err
	}
	return newEventStream(resp.Body), nil
}

// CreateMessage 发送非流式请求。
func (c *client) CreateMessage(ctx context.Context, req *MessageRequest) (string, error) {
	resp, err := c.do(ctx, buildRequest(req, false))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var decoded messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("failed to decode messages response: %w", err)
	}
	for _, block := range decoded.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", errors.New("messages response contains no text block")
}

// eventStream 逐行读取 SSE，仅解析 data 行，event 行被忽略（类型已包含在 JSON 中）。
type eventStream struct {
	body   io.ReadCloser
	reader *bufio.Reader
}

func newEventStream(body io.ReadCloser) *eventStream {
	return &eventStream{body: body, reader: bufio.NewReaderSize(body, 64*1024)}
}

func (s *eventStream) Recv() (Event, error) {
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			if err == io.EOF {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("failed to read from stream: %w", err)
		}

		line = strings.TrimRight(line, "\r\n")
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}

		var w wireEvent
		if uerr := json.Unmarshal([]byte(data), &w); uerr != nil {
			return nil, fmt.Errorf("failed to decode stream event: %w", uerr)
		}
		ev, ok, everr := w.toEvent()
		if everr != nil {
			return nil, everr
		}
		if ok {
			return ev, nil
		}
	}
}

func (s *eventStream) Close() error {
	return s.body.Close()
}
