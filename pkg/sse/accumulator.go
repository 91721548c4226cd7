package sse

import "strings"

// Accumulator 按帧增量维护一次回复的客户端状态。
type Accumulator struct {
	thinking strings.Builder
	content  strings.Builder

	ThinkingDone   bool
	Statistics     *Statistics
	MessageID      string
	ConversationID string
	Err            string
	Done           bool

	// OnFrame 在状态更新后回调，可用于渲染增量输出。
	OnFrame func(f Frame)
}

func (a *Accumulator) HandleFrame(f Frame) {
	switch v := f.(type) {
	case ThinkingFrame:
		a.thinking.WriteString(v.Content)
	case ThinkingDoneFrame:
		a.ThinkingDone = true
	case ContentFrame:
		a.content.WriteString(v.Content)
	case StatisticsFrame:
		stats := v.Statistics
		a.Statistics = &stats
	case DoneFrame:
		a.MessageID = v.MessageID
		a.ConversationID = v.ConversationID
		a.Done = true
	case ErrorFrame:
		a.Err = v.Error
	}
	if a.OnFrame != nil {
		a.OnFrame(f)
	}
}

// Thinking 返回累计的思考过程文本。
func (a *Accumulator) Thinking() string { return a.thinking.String() }

// Content 返回累计的回复文本。
func (a *Accumulator) Content() string { return a.content.String() }

// Failed 表示流以错误帧结束。
func (a *Accumulator) Failed() bool { return a.Err != "" }
