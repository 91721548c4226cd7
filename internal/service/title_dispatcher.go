package service

import (
	"context"
	"time"
)

// TitleDispatcher 触发会话标题的异步生成。Dispatch 不得阻塞调用方，失败只记录日志。
type TitleDispatcher interface {
	Dispatch(conversationID string)
}

type asyncTitleDispatcher struct {
	titles  TitleService
	timeout time.Duration
}

// NewAsyncTitleDispatcher 返回在进程内 goroutine 中生成标题的 dispatcher，适用于未启用 Kafka 的部署。
// timeout 不大于 0 时不设超时。
func NewAsyncTitleDispatcher(titles TitleService, timeout time.Duration) TitleDispatcher {
	return &asyncTitleDispatcher{titles: titles, timeout: timeout}
}

func (d *asyncTitleDispatcher) Dispatch(conversationID string) {
	go func() {
		// 与请求生命周期解耦：请求结束后标题生成仍需完成
		ctx := context.Background()
		if d.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d.timeout)
			defer cancel()
		}
		d.titles.TryGenerateTitle(ctx, conversationID)
	}()
}
