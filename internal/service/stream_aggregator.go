package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"localchat-go/internal/model"
	"localchat-go/internal/repository"
	"localchat-go/pkg/llm"
	"localchat-go/pkg/log"
	"localchat-go/pkg/pricing"
	"localchat-go/pkg/sse"
	"strings"
	"time"
)

// StreamState 是单次流式生成的状态。
type StreamState int

const (
	StateIdle StreamState = iota
	StateStarted
	StateThinkingBlock
	StateContentBlock
	StateFinalizing
	StateDone
	StateErrored
)

func (s StreamState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarted:
		return "started"
	case StateThinkingBlock:
		return "thinking_block"
	case StateContentBlock:
		return "content_block"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	case StateErrored:
		return "errored"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// errStreamTruncated 表示上游在 message_stop 之前结束。
var errStreamTruncated = errors.New("upstream stream ended before message_stop")

// StreamParams 是一次生成的上下文，ModelConfig 快照由这些字段序列化而来。
type StreamParams struct {
	ConversationID string
	Model          string
	Temperature    float64
	MaxTokens      int
	// StartedAt 是请求开始时间，零值时取 Run 开始的时刻。
	StartedAt time.Time
}

// modelConfig 是写入消息的采样参数快照。
type modelConfig struct {
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"maxTokens"`
}

// StreamMetrics 是聚合器在单次请求内独占的运行时指标。
type StreamMetrics struct {
	StartedAt    time.Time
	FirstTokenAt time.Time
	InputTokens  int
	OutputTokens int
	CachedTokens int
	TotalTokens  int
	StopReason   string
	thinking     []string
	response     strings.Builder
}

// Thinking 返回拼接后的思考过程文本。
func (m *StreamMetrics) Thinking() string { return strings.Join(m.thinking, "") }

// Response 返回累计的回复文本。
func (m *StreamMetrics) Response() string { return m.response.String() }

// StreamAggregator 消费上游事件，维护指标，向下游转发规范化的帧，并在流结束时持久化 assistant 消息。
type StreamAggregator struct {
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	titles        TitleDispatcher
	now           func() time.Time
}

// NewStreamAggregator 创建聚合器。now 为 nil 时使用 time.Now。
func NewStreamAggregator(conversations repository.ConversationRepository, messages repository.MessageRepository, titles TitleDispatcher, now func() time.Time) *StreamAggregator {
	if now == nil {
		now = time.Now
	}
	return &StreamAggregator{conversations: conversations, messages: messages, titles: titles, now: now}
}

// streamRun 保存单次 Run 的可变状态。
type streamRun struct {
	agg     *StreamAggregator
	params  StreamParams
	sink    sse.Sink
	state   StreamState
	metrics StreamMetrics
	// sinkBroken 在首次下游写入失败后置位，之后的写入失败不再重复记录日志。
	sinkBroken bool
}

// Run 驱动一次完整的流式生成，直到 message_stop 或失败。
// 失败时向下游发送唯一一个错误帧、不持久化任何消息，并返回失败原因。
// 无论结果如何，stream 与 sink 都会被关闭。
func (a *StreamAggregator) Run(ctx context.Context, stream llm.EventStream, params StreamParams, sink sse.Sink) (err error) {
	r := &streamRun{agg: a, params: params, sink: sink, state: StateIdle}
	r.metrics.StartedAt = params.StartedAt
	if r.metrics.StartedAt.IsZero() {
		r.metrics.StartedAt = a.now()
	}

	defer func() {
		if cerr := sink.Close(); cerr != nil {
			log.Warnw("关闭下游流失败", "conversationID", params.ConversationID, "error", cerr)
		}
	}()
	defer stream.Close()
	defer func() {
		if err != nil {
			r.state = StateErrored
			log.Errorw("流式生成失败", "conversationID", params.ConversationID, "error", err)
			r.emit(sse.ErrorFrame{Error: sse.StreamFailedMessage})
		}
	}()

	for {
		ev, recvErr := stream.Recv()
		if recvErr != nil {
			if errors.Is(recvErr, io.EOF) {
				return errStreamTruncated
			}
			return recvErr
		}
		finished, handleErr := r.handle(ctx, ev)
		if handleErr != nil {
			return handleErr
		}
		if finished {
			return nil
		}
	}
}

// handle 按事件类型推进状态机。finished 为 true 表示流已正常结束。
func (r *streamRun) handle(ctx context.Context, ev llm.Event) (finished bool, err error) {
	switch e := ev.(type) {
	case llm.MessageStart:
		r.state = StateStarted
		r.metrics.InputTokens = e.Usage.InputTokens
		r.metrics.OutputTokens = e.Usage.OutputTokens
		r.metrics.CachedTokens = e.Usage.CachedTokens
		r.metrics.TotalTokens = r.metrics.InputTokens + r.metrics.OutputTokens

	case llm.ContentBlockStart:
		if e.Kind == llm.BlockThinking {
			r.state = StateThinkingBlock
		} else {
			r.state = StateContentBlock
		}

	case llm.ContentDelta:
		if r.metrics.FirstTokenAt.IsZero() {
			r.metrics.FirstTokenAt = r.agg.now()
		}
		if r.state == StateThinkingBlock {
			r.metrics.thinking = append(r.metrics.thinking, e.Text)
			r.emit(sse.ThinkingFrame{Content: e.Text})
		} else {
			r.metrics.response.WriteString(e.Text)
			r.emit(sse.ContentFrame{Content: e.Text})
		}

	case llm.ContentBlockStop:
		if r.state == StateThinkingBlock {
			r.emit(sse.ThinkingDoneFrame{})
		}
		r.state = StateStarted

	case llm.UsageDelta:
		if e.OutputTokens > 0 {
			r.metrics.OutputTokens = e.OutputTokens
		}
		r.metrics.TotalTokens = r.metrics.InputTokens + r.metrics.OutputTokens
		if e.StopReason != "" {
			r.metrics.StopReason = e.StopReason
		}

	case llm.MessageStop:
		r.state = StateFinalizing
		if err := r.finalize(ctx); err != nil {
			return false, err
		}
		r.state = StateDone
		return true, nil

	default:
		return false, fmt.Errorf("unexpected upstream event %T", ev)
	}
	return false, nil
}

// statistics 根据当前时刻计算最终指标。
func (r *streamRun) statistics(modelConfigJSON string) sse.Statistics {
	m := &r.metrics
	duration := r.agg.now().Sub(m.StartedAt).Seconds()

	var tps float64
	if m.TotalTokens > 0 && duration > 0 {
		tps = float64(m.TotalTokens) / duration
	}
	var ttft float64
	if !m.FirstTokenAt.IsZero() {
		ttft = m.FirstTokenAt.Sub(m.StartedAt).Seconds()
	}
	cost, _ := pricing.Cost(r.params.Model, m.InputTokens, m.OutputTokens, m.CachedTokens).Float64()

	return sse.Statistics{
		TokensPerSecond:  tps,
		TotalTokens:      m.TotalTokens,
		InputTokens:      m.InputTokens,
		OutputTokens:     m.OutputTokens,
		CachedTokens:     m.CachedTokens,
		TimeToFirstToken: ttft,
		StopReason:       m.StopReason,
		ModelConfig:      modelConfigJSON,
		Cost:             cost,
		ThinkingContent:  m.Thinking(),
	}
}

// finalize 持久化 assistant 消息并发送 statistics 与 done 帧。
func (r *streamRun) finalize(ctx context.Context) error {
	// 持久化不受客户端断开影响
	ctx = context.WithoutCancel(ctx)

	cfgBytes, err := json.Marshal(modelConfig{
		Model:       r.params.Model,
		Temperature: r.params.Temperature,
		MaxTokens:   r.params.MaxTokens,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal model config: %w", err)
	}
	stats := r.statistics(string(cfgBytes))

	msg := &model.Message{
		ConversationID: r.params.ConversationID,
		Role:           model.RoleAssistant,
		Content:        r.metrics.Response(),
	}
	model.MessageMetrics{
		TokensPerSecond:  stats.TokensPerSecond,
		TotalTokens:      stats.TotalTokens,
		InputTokens:      stats.InputTokens,
		OutputTokens:     stats.OutputTokens,
		CachedTokens:     stats.CachedTokens,
		TimeToFirstToken: stats.TimeToFirstToken,
		StopReason:       stats.StopReason,
		ModelConfig:      stats.ModelConfig,
		Cost:             stats.Cost,
		ThinkingContent:  stats.ThinkingContent,
	}.Apply(msg)

	if err := r.agg.messages.Create(ctx, msg); err != nil {
		return fmt.Errorf("failed to save assistant message: %w", err)
	}

	now := r.agg.now()
	if err := r.agg.conversations.Update(ctx, r.params.ConversationID, repository.ConversationUpdate{UpdatedAt: &now}); err != nil {
		log.Warnw("更新会话时间失败", "conversationID", r.params.ConversationID, "error", err)
	}

	count, err := r.agg.messages.CountByConversation(ctx, r.params.ConversationID)
	if err != nil {
		log.Warnw("统计会话消息数失败，跳过标题生成", "conversationID", r.params.ConversationID, "error", err)
	} else if count == 2 && r.agg.titles != nil {
		// 首轮对话完成
		r.agg.titles.Dispatch(r.params.ConversationID)
	}

	r.emit(sse.StatisticsFrame{Statistics: stats})
	r.emit(sse.DoneFrame{MessageID: msg.ID, ConversationID: r.params.ConversationID})

	log.Infow("流式生成完成",
		"conversationID", r.params.ConversationID,
		"messageID", msg.ID,
		"model", r.params.Model,
		"inputTokens", stats.InputTokens,
		"outputTokens", stats.OutputTokens,
		"cost", stats.Cost,
	)
	return nil
}

// emit 向下游写帧。写失败只记录日志，不中断上游读取。
func (r *streamRun) emit(f sse.Frame) {
	if err := r.sink.Send(f); err != nil && !r.sinkBroken {
		r.sinkBroken = true
		log.Warnw("向客户端写入帧失败", "conversationID", r.params.ConversationID, "frame", f.Type(), "error", err)
	}
}
