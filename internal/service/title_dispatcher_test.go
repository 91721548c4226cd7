package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsyncTitleDispatcher(t *testing.T) {
	for name, timeout := range map[string]time.Duration{
		"no timeout":   0,
		"with timeout": 5 * time.Second,
	} {
		t.Run(name, func(t *testing.T) {
			r := newTestRepos(t)
			conv := r.seedConversation(t, "hello", "hello", "hi there")
			svc := NewTitleService(r.conversations, r.messages, &fakeLLM{createText: "Greeting"})

			NewAsyncTitleDispatcher(svc, timeout).Dispatch(conv.ID)

			assert.Eventually(t, func() bool {
				stored, err := r.conversations.FindByID(context.Background(), conv.ID, false)
				return err == nil && stored.Title == "Greeting"
			}, 2*time.Second, 10*time.Millisecond)
		})
	}
}

func TestAsyncTitleDispatcher_FailureKeepsTitle(t *testing.T) {
	r := newTestRepos(t)
	conv := r.seedConversation(t, "hello", "hello", "hi there")
	llmClient := &fakeLLM{createErr: assert.AnError}
	svc := NewTitleService(r.conversations, r.messages, llmClient)

	NewAsyncTitleDispatcher(svc, time.Second).Dispatch(conv.ID)

	require.Eventually(t, func() bool {
		llmClient.mu.Lock()
		defer llmClient.mu.Unlock()
		return len(llmClient.createReqs) == 1
	}, 2*time.Second, 10*time.Millisecond)
	stored, err := r.conversations.FindByID(context.Background(), conv.ID, false)
	require.NoError(t, err)
	assert.Equal(t, "hello", stored.Title)
}
