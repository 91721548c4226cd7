package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"localchat-go/internal/model"
	"localchat-go/internal/repository"
	"localchat-go/pkg/database"
	"localchat-go/pkg/llm"
	"localchat-go/pkg/sse"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	// 每个测试使用独立的内存库
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", model.NewID())
	db, err := database.Open("sqlite", dsn)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

type testRepos struct {
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	projects      repository.ProjectRepository
}

func newTestRepos(t *testing.T) testRepos {
	db := openTestDB(t)
	return testRepos{
		conversations: repository.NewConversationRepository(db),
		messages:      repository.NewMessageRepository(db),
		projects:      repository.NewProjectRepository(db),
	}
}

func (r testRepos) seedConversation(t *testing.T, title string, contents ...string) *model.Conversation {
	t.Helper()
	ctx := context.Background()
	conv := &model.Conversation{Title: title, Model: "claude-sonnet-4-5-20250929", Temperature: 1, MaxTokens: 8192}
	require.NoError(t, r.conversations.Create(ctx, conv))
	for i, c := range contents {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		require.NoError(t, r.messages.Create(ctx, &model.Message{ConversationID: conv.ID, Role: role, Content: c}))
	}
	return conv
}

// fakeClock 是手动推进的时钟。
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 1, 30, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// step 是 fakeStream 中的一项：先推进时钟，再返回事件或错误。
type step struct {
	ev      llm.Event
	err     error
	advance time.Duration
}

type fakeStream struct {
	steps  []step
	clock  *fakeClock
	pos    int
	closed bool
}

func (s *fakeStream) Recv() (llm.Event, error) {
	if s.pos >= len(s.steps) {
		return nil, io.EOF
	}
	st := s.steps[s.pos]
	s.pos++
	if s.clock != nil && st.advance > 0 {
		s.clock.Advance(st.advance)
	}
	if st.err != nil {
		return nil, st.err
	}
	return st.ev, nil
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

func eventsOf(evs ...llm.Event) []step {
	out := make([]step, 0, len(evs))
	for _, ev := range evs {
		out = append(out, step{ev: ev})
	}
	return out
}

// recordingSink 记录所有写入的帧。
type recordingSink struct {
	frames  []sse.Frame
	closed  int
	sendErr error
}

func (s *recordingSink) Send(f sse.Frame) error {
	s.frames = append(s.frames, f)
	return s.sendErr
}

func (s *recordingSink) Close() error {
	s.closed++
	return nil
}

func (s *recordingSink) types() []string {
	out := make([]string, 0, len(s.frames))
	for _, f := range s.frames {
		out = append(out, f.Type())
	}
	return out
}

func (s *recordingSink) last() sse.Frame {
	if len(s.frames) == 0 {
		return nil
	}
	return s.frames[len(s.frames)-1]
}

type recordingDispatcher struct {
	mu  sync.Mutex
	ids []string
}

func (d *recordingDispatcher) Dispatch(conversationID string) {
	d.mu.Lock()
	d.ids = append(d.ids, conversationID)
	d.mu.Unlock()
}

func (d *recordingDispatcher) calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.ids...)
}

// fakeLLM 是可编程的 llm.Client。
type fakeLLM struct {
	mu         sync.Mutex
	stream     llm.EventStream
	streamErr  error
	createText string
	createErr  error
	streamReqs []*llm.MessageRequest
	createReqs []*llm.MessageRequest
}

func (f *fakeLLM) StreamMessages(_ context.Context, req *llm.MessageRequest) (llm.EventStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streamReqs = append(f.streamReqs, req)
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	if f.stream == nil {
		return nil, errors.New("no stream configured")
	}
	return f.stream, nil
}

func (f *fakeLLM) CreateMessage(_ context.Context, req *llm.MessageRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createReqs = append(f.createReqs, req)
	return f.createText, f.createErr
}
