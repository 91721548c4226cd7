package pipeline

import (
	"context"
	"errors"
	"localchat-go/internal/service"
	"localchat-go/pkg/tasks"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubTitleService 返回预设结果，并记录调用时的上下文。
type stubTitleService struct {
	result      *service.TitleResult
	err         error
	calls       []string
	hadDeadline bool
}

func (s *stubTitleService) GenerateTitle(ctx context.Context, conversationID string) (*service.TitleResult, error) {
	s.calls = append(s.calls, conversationID)
	_, s.hadDeadline = ctx.Deadline()
	return s.result, s.err
}

func (s *stubTitleService) TryGenerateTitle(ctx context.Context, conversationID string) *service.TitleResult {
	res, _ := s.GenerateTitle(ctx, conversationID)
	return res
}

func task(id string) tasks.TitleGenerationTask {
	return tasks.TitleGenerationTask{ConversationID: id, RequestedAt: time.Now()}
}

func TestTitleProcessor_Generated(t *testing.T) {
	titles := &stubTitleService{result: &service.TitleResult{Title: "Go Channels", Generated: true}}
	p := NewTitleProcessor(titles, time.Second)

	require.NoError(t, p.Process(context.Background(), task("c1")))
	assert.Equal(t, []string{"c1"}, titles.calls)
	assert.True(t, titles.hadDeadline)
}

func TestTitleProcessor_TooFewMessages(t *testing.T) {
	titles := &stubTitleService{}
	p := NewTitleProcessor(titles, 0)

	require.NoError(t, p.Process(context.Background(), task("c2")))
	assert.Equal(t, []string{"c2"}, titles.calls)
	assert.False(t, titles.hadDeadline)
}

func TestTitleProcessor_WrapsError(t *testing.T) {
	titles := &stubTitleService{err: service.ErrConversationNotFound}
	p := NewTitleProcessor(titles, time.Second)

	err := p.Process(context.Background(), task("missing"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrConversationNotFound))
	assert.Contains(t, err.Error(), "missing")
}
