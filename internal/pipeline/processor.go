// Package pipeline 定义了后台任务的处理流程。
package pipeline

import (
	"context"
	"fmt"
	"localchat-go/internal/service"
	"localchat-go/pkg/log"
	"localchat-go/pkg/tasks"
	"time"
)

// TitleProcessor 处理从 Kafka 消费到的标题生成任务。
type TitleProcessor struct {
	titleService service.TitleService
	timeout      time.Duration
}

// NewTitleProcessor 创建一个新的 TitleProcessor 实例。
func NewTitleProcessor(titleService service.TitleService, timeout time.Duration) *TitleProcessor {
	return &TitleProcessor{titleService: titleService, timeout: timeout}
}

// Process 为任务中的会话生成标题。会话已有自定义标题时不做任何写入。
func (p *TitleProcessor) Process(ctx context.Context, task tasks.TitleGenerationTask) error {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	log.Infow("[TitleProcessor] 开始生成标题", "conversationID", task.ConversationID, "queuedFor", time.Since(task.RequestedAt).String())
	result, err := p.titleService.GenerateTitle(ctx, task.ConversationID)
	if err != nil {
		return fmt.Errorf("generate title for %s: %w", task.ConversationID, err)
	}
	if result == nil {
		log.Infow("[TitleProcessor] 消息不足两条，跳过", "conversationID", task.ConversationID)
		return nil
	}
	log.Infow("[TitleProcessor] 标题处理完成", "conversationID", task.ConversationID, "title", result.Title, "generated", result.Generated)
	return nil
}
