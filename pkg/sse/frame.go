// Package sse 定义发往浏览器的流式帧，以及 data: <json> 帧的编码与解析。
package sse

import (
	"encoding/json"
	"errors"
	"fmt"
)

// 帧类型标识，对应 JSON 中的 type 字段。
const (
	TypeThinking     = "thinking"
	TypeThinkingDone = "thinking_done"
	TypeContent      = "content"
	TypeStatistics   = "statistics"
	TypeDone         = "done"
	TypeError        = "error"
)

// DoneSentinel 是客户端解析的终止标记，与 JSON 的 done 帧相互独立。
const DoneSentinel = "[DONE]"

// StreamFailedMessage 是中途失败时错误帧携带的固定文本。
const StreamFailedMessage = "Streaming failed"

// Statistics 是一次生成完成后的指标汇总。TimeToFirstToken 单位为秒。
type Statistics struct {
	TokensPerSecond  float64 `json:"tokensPerSecond"`
	TotalTokens      int     `json:"totalTokens"`
	InputTokens      int     `json:"inputTokens"`
	OutputTokens     int     `json:"outputTokens"`
	CachedTokens     int     `json:"cachedTokens"`
	TimeToFirstToken float64 `json:"timeToFirstToken"`
	StopReason       string  `json:"stopReason"`
	ModelConfig      string  `json:"modelConfig"`
	Cost             float64 `json:"cost"`
	ThinkingContent  string  `json:"thinkingContent"`
}

// Frame 是下游帧的封闭联合类型。
type Frame interface {
	Type() string
}

type ThinkingFrame struct{ Content string }
type ThinkingDoneFrame struct{}
type ContentFrame struct{ Content string }
type StatisticsFrame struct{ Statistics Statistics }
type DoneFrame struct{ MessageID, ConversationID string }
type ErrorFrame struct{ Error string }

func (ThinkingFrame) Type() string     { return TypeThinking }
func (ThinkingDoneFrame) Type() string { return TypeThinkingDone }
func (ContentFrame) Type() string      { return TypeContent }
func (StatisticsFrame) Type() string   { return TypeStatistics }
func (DoneFrame) Type() string         { return TypeDone }
func (ErrorFrame) Type() string        { return TypeError }

// wireFrame 是所有帧共用的 JSON 结构。
type wireFrame struct {
	Type           string      `json:"type,omitempty"`
	Content        *string     `json:"content,omitempty"`
	Statistics     *Statistics `json:"statistics,omitempty"`
	MessageID      string      `json:"messageId,omitempty"`
	ConversationID string      `json:"conversationId,omitempty"`
	Error          string      `json:"error,omitempty"`
}

// Marshal 将帧编码为 JSON 负载（不含 data: 前缀）。
func Marshal(f Frame) ([]byte, error) {
	w := wireFrame{Type: f.Type()}
	switch v := f.(type) {
	case ThinkingFrame:
		w.Content = &v.Content
	case ContentFrame:
		w.Content = &v.Content
	case ThinkingDoneFrame:
	case StatisticsFrame:
		w.Statistics = &v.Statistics
	case DoneFrame:
		w.MessageID = v.MessageID
		w.ConversationID = v.ConversationID
	case ErrorFrame:
		w.Error = v.Error
	default:
		return nil, fmt.Errorf("unknown frame type %T", f)
	}
	return json.Marshal(w)
}

// Parse 解析一个 JSON 负载。没有 type 但带有 error 字段的负载按错误帧处理。
func Parse(data []byte) (Frame, error) {
	var w wireFrame
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("invalid frame json: %w", err)
	}
	content := ""
	if w.Content != nil {
		content = *w.Content
	}
	switch w.Type {
	case TypeThinking:
		return ThinkingFrame{Content: content}, nil
	case TypeThinkingDone:
		return ThinkingDoneFrame{}, nil
	case TypeContent:
		return ContentFrame{Content: content}, nil
	case TypeStatistics:
		if w.Statistics == nil {
			return nil, errors.New("statistics frame without payload")
		}
		return StatisticsFrame{Statistics: *w.Statistics}, nil
	case TypeDone:
		return DoneFrame{MessageID: w.MessageID, ConversationID: w.ConversationID}, nil
	case TypeError, "":
		if w.Error == "" && w.Type == "" {
			return nil, errors.New("frame has no type")
		}
		return ErrorFrame{Error: w.Error}, nil
	default:
		return nil, fmt.Errorf("unknown frame type %q", w.Type)
	}
}
