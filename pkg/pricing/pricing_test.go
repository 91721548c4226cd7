package pricing

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCost(t *testing.T) {
	tests := []struct {
		name                  string
		model                 string
		input, output, cached int
		want                  float64
	}{
		{"sonnet 4.5", "claude-sonnet-4-5-20250929", 1000, 500, 200, 0.01056},
		{"haiku 3", "claude-3-haiku-20240307", 1_000_000, 1_000_000, 0, 1.5},
		{"opus cached only", "claude-opus-4-1-20250514", 0, 0, 1_000_000, 1.5},
		{"zero usage", "claude-sonnet-4-20250514", 0, 0, 0, 0},
		{"unknown model", "gpt-unknown", 1000, 1000, 1000, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := Cost(tt.model, tt.input, tt.output, tt.cached).Float64()
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestCost_CachedTokensAreAdditive(t *testing.T) {
	// cached token 单独计费，不从 input 中扣除
	base := Cost("claude-sonnet-4-5-20250929", 1000, 0, 0)
	withCache := Cost("claude-sonnet-4-5-20250929", 1000, 0, 1000)
	diff, _ := withCache.Sub(base).Float64()
	assert.InDelta(t, 0.0003, diff, 1e-12)
}

func TestLookupAndGrouped(t *testing.T) {
	p, ok := Lookup("claude-3-5-haiku-20241022")
	require.True(t, ok)
	assert.Equal(t, GenerationClaude35, p.Generation)

	_, ok = Lookup("nope")
	assert.False(t, ok)

	grouped := Grouped()
	total := 0
	for _, g := range Generations {
		require.Contains(t, grouped, g)
		total += len(grouped[g])
	}
	assert.Equal(t, len(All()), total)
}

func TestCheapestModel(t *testing.T) {
	assert.Equal(t, "claude-3-haiku-20240307", CheapestModel())
}

func TestModels(t *testing.T) {
	models := Models()
	require.Len(t, models, 4)
	for _, m := range models {
		_, ok := Lookup(m.ID)
		assert.True(t, ok, "catalog model %s must be priced", m.ID)
	}
}

func TestFetchOpenRouter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		assert.Equal(t, "Bearer or-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"data":[
			{"id":"anthropic/claude-sonnet-4","name":"Claude Sonnet 4","context_length":200000,
			 "pricing":{"prompt":"0.000003","completion":"0.000015"},"top_provider":{"max_completion_tokens":64000}},
			{"id":"anthropic/claude-3.5-haiku","name":"Claude 3.5 Haiku","pricing":{"prompt":"0.000001","completion":"0.000005"}},
			{"id":"openai/gpt-4o","name":"GPT-4o","pricing":{"prompt":"0.0000025","completion":"0.00001"}}
		]}`)
	}))
	defer srv.Close()

	grouped, err := FetchOpenRouter(context.Background(), srv.URL, "or-key")
	require.NoError(t, err)

	require.Len(t, grouped[GenerationClaude4], 1)
	sonnet := grouped[GenerationClaude4][0]
	assert.Equal(t, "claude-sonnet-4", sonnet.ID)
	assert.InDelta(t, 3.0, sonnet.InputPrice, 1e-9)
	assert.InDelta(t, 15.0, sonnet.OutputPrice, 1e-9)
	assert.InDelta(t, 0.3, sonnet.CachedInputPrice, 1e-9)
	assert.Equal(t, 64000, sonnet.MaxTokens)

	require.Len(t, grouped[GenerationClaude35], 1)
	haiku := grouped[GenerationClaude35][0]
	assert.Equal(t, 200000, haiku.ContextWindow)
	assert.Equal(t, 8192, haiku.MaxTokens)

	assert.Empty(t, grouped[GenerationClaude3])
}

func TestFetchOpenRouter_NoKey(t *testing.T) {
	_, err := FetchOpenRouter(context.Background(), "http://unused", "")
	assert.ErrorIs(t, err, ErrNoAPIKey)
}
