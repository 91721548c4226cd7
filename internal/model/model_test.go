package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBeforeCreate_AssignsID(t *testing.T) {
	conv := &Conversation{}
	require.NoError(t, conv.BeforeCreate(nil))
	assert.Len(t, conv.ID, 26)

	msg := &Message{ID: "keep"}
	require.NoError(t, msg.BeforeCreate(nil))
	assert.Equal(t, "keep", msg.ID)

	p := &Project{}
	require.NoError(t, p.BeforeCreate(nil))
	assert.NotEqual(t, conv.ID, p.ID)
}

func TestNewID_Monotonic(t *testing.T) {
	prev := NewID()
	for i := 0; i < 1000; i++ {
		next := NewID()
		require.Greater(t, next, prev)
		prev = next
	}
}

func TestDefaultTitleFor(t *testing.T) {
	assert.Equal(t, DefaultConversationTitle, DefaultTitleFor(""))
	long := make([]rune, 150)
	for i := range long {
		long[i] = '字'
	}
	title := DefaultTitleFor(string(long))
	assert.Len(t, []rune(title), 100)
	assert.True(t, IsDefaultTitle(title, string(long)))
	assert.True(t, IsDefaultTitle(DefaultConversationTitle, "anything"))
	assert.False(t, IsDefaultTitle("Greeting", "hello"))
}
