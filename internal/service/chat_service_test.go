package service

import (
	"context"
	"localchat-go/internal/config"
	"localchat-go/internal/model"
	"localchat-go/internal/repository"
	"localchat-go/pkg/llm"
	"localchat-go/pkg/sse"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testGeneration = config.LLMGenerationConfig{
	Model:             testModel,
	Temperature:       1.0,
	MaxTokens:         8192,
	ThinkingMaxTokens: 16384,
	ThinkingBudget:    10000,
}

type chatFixture struct {
	repos testRepos
	llm   *fakeLLM
	lock  repository.GenerationLock
	svc   ChatService
}

func newChatFixture(t *testing.T) *chatFixture {
	r := newTestRepos(t)
	f := &chatFixture{repos: r, llm: &fakeLLM{}, lock: repository.NewLocalGenerationLock()}
	agg := NewStreamAggregator(r.conversations, r.messages, &recordingDispatcher{}, newFakeClock().Now)
	f.svc = NewChatService(r.conversations, r.messages, r.projects, f.lock, f.llm, agg, testGeneration)
	return f
}

func completeStream(text string) *fakeStream {
	return &fakeStream{steps: eventsOf(
		llm.MessageStart{Usage: llm.Usage{InputTokens: 1}},
		llm.ContentBlockStart{Kind: llm.BlockText},
		llm.ContentDelta{Text: text},
		llm.ContentBlockStop{},
		llm.UsageDelta{OutputTokens: 1, StopReason: "end_turn"},
		llm.MessageStop{},
	)}
}

func TestChatPrepare_Validation(t *testing.T) {
	f := newChatFixture(t)
	cases := []ChatRequest{
		{},
		{Message: "   "},
		{Messages: []ChatMessage{{Role: "system", Content: "x"}}},
		{Messages: []ChatMessage{{Role: "user", Content: "q"}, {Role: "assistant", Content: "a"}}},
	}
	for _, req := range cases {
		_, err := f.svc.Prepare(context.Background(), req)
		assert.ErrorIs(t, err, ErrInvalidRequest)
	}
	assert.Empty(t, f.llm.streamReqs)
}

func TestChatPrepare_UnknownConversation(t *testing.T) {
	f := newChatFixture(t)
	_, err := f.svc.Prepare(context.Background(), ChatRequest{Message: "hi", ConversationID: model.NewID()})
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestChatPrepare_UnknownProject(t *testing.T) {
	f := newChatFixture(t)
	_, err := f.svc.Prepare(context.Background(), ChatRequest{Message: "hi", ProjectID: model.NewID()})
	assert.ErrorIs(t, err, ErrProjectNotFound)
}

func TestChat_NewConversationEndToEnd(t *testing.T) {
	f := newChatFixture(t)
	f.llm.stream = completeStream("hello back")

	prepared, err := f.svc.Prepare(context.Background(), ChatRequest{Message: "hello there"})
	require.NoError(t, err)
	assert.Equal(t, "hello there", prepared.Conversation.Title)
	assert.Equal(t, testModel, prepared.Params.Model)

	sink := &recordingSink{}
	require.NoError(t, f.svc.Stream(context.Background(), prepared, sink))
	assert.Equal(t, []string{sse.TypeContent, sse.TypeStatistics, sse.TypeDone}, sink.types())

	msgs, err := f.repos.messages.ListByConversation(context.Background(), prepared.Conversation.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, "hello there", msgs[0].Content)
	assert.Equal(t, "hello back", msgs[1].Content)

	// 锁已释放
	release, err := f.lock.Acquire(context.Background(), prepared.Conversation.ID)
	require.NoError(t, err)
	release()
}

func TestChatPrepare_LoadsHistoryAndAppliesProjectInstructions(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	instructions := "Answer in French."
	project := &model.Project{Name: "fr", Instructions: &instructions}
	require.NoError(t, f.repos.projects.Create(ctx, project))

	conv := &model.Conversation{Title: "q1", Model: "claude-3-5-haiku-20241022", Temperature: 0.5, MaxTokens: 1000, ProjectID: &project.ID}
	require.NoError(t, f.repos.conversations.Create(ctx, conv))
	require.NoError(t, f.repos.messages.Create(ctx, &model.Message{ConversationID: conv.ID, Role: model.RoleUser, Content: "q1"}))
	require.NoError(t, f.repos.messages.Create(ctx, &model.Message{ConversationID: conv.ID, Role: model.RoleAssistant, Content: "a1"}))

	f.llm.stream = completeStream("a2")
	prepared, err := f.svc.Prepare(ctx, ChatRequest{Message: "q2", ConversationID: conv.ID, ThinkingEnabled: true})
	require.NoError(t, err)
	defer prepared.Abort()

	require.Len(t, f.llm.streamReqs, 1)
	req := f.llm.streamReqs[0]
	assert.Equal(t, []llm.Message{
		{Role: "user", Content: "q1"},
		{Role: "assistant", Content: "a1"},
		{Role: "user", Content: "q2"},
	}, req.Messages)
	assert.Equal(t, instructions, req.Instructions)
	assert.Equal(t, "claude-3-5-haiku-20241022", req.Model)
	assert.InDelta(t, 0.5, req.Temperature, 1e-9)
	assert.Equal(t, 16384, req.MaxTokens)
	assert.Equal(t, 10000, req.ThinkingBudget)
	// 快照记录的是会话设置的上限
	assert.Equal(t, 1000, prepared.Params.MaxTokens)

	count, err := f.repos.messages.CountByConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)
}

func TestChatPrepare_ConcurrentGenerationRejected(t *testing.T) {
	f := newChatFixture(t)
	conv := f.repos.seedConversation(t, "q", "q", "a")
	release, err := f.lock.Acquire(context.Background(), conv.ID)
	require.NoError(t, err)
	defer release()

	_, err = f.svc.Prepare(context.Background(), ChatRequest{Message: "again", ConversationID: conv.ID})
	assert.ErrorIs(t, err, ErrGenerationInProgress)

	count, err := f.repos.messages.CountByConversation(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestChatPrepare_ProviderRejectionReleasesLock(t *testing.T) {
	f := newChatFixture(t)
	conv := f.repos.seedConversation(t, "q", "q", "a")
	f.llm.streamErr = &llm.ProviderError{StatusCode: http.StatusUnauthorized, Type: "authentication_error", Message: "invalid x-api-key"}

	_, err := f.svc.Prepare(context.Background(), ChatRequest{Message: "again", ConversationID: conv.ID})
	var pe *llm.ProviderError
	require.ErrorAs(t, err, &pe)

	release, err := f.lock.Acquire(context.Background(), conv.ID)
	require.NoError(t, err)
	release()
}
