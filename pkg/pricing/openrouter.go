package pricing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrNoAPIKey 表示未配置 OpenRouter API key，调用方应回退到本地价格表。
var ErrNoAPIKey = errors.New("openrouter api key not configured")

type openRouterModel struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ContextLength int    `json:"context_length"`
	Pricing       struct {
		Prompt     string `json:"prompt"`
		Completion string `json:"completion"`
	} `json:"pricing"`
	TopProvider *struct {
		MaxCompletionTokens int `json:"max_completion_tokens"`
	} `json:"top_provider"`
}

type openRouterResponse struct {
	Data []openRouterModel `json:"data"`
}

// FetchOpenRouter 从 OpenRouter 拉取 Claude 系列模型的实时价格，并按代际分组。
// OpenRouter 的价格是每 token 的字符串，这里换算为每百万 token；缓存输入价格按输入价格的 10% 估算。
func FetchOpenRouter(ctx context.Context, baseURL, apiKey string) (map[string][]ModelPricing, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}

	client := resty.New()
	client.SetBaseURL(strings.TrimRight(baseURL, "/"))
	client.SetTimeout(15 * time.Second)

	var result openRouterResponse
	resp, err := client.R().
		SetContext(ctx).
		SetAuthToken(apiKey).
		SetHeader("X-Title", "localchat-go").
		SetResult(&result).
		Get("/models")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch openrouter models: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("openrouter api error: %d", resp.StatusCode())
	}

	models := make([]ModelPricing, 0)
	for _, m := range result.Data {
		if !strings.Contains(m.ID, "anthropic/claude") {
			continue
		}
		input := perMillion(m.Pricing.Prompt)
		p := ModelPricing{
			ID:               strings.TrimPrefix(m.ID, "anthropic/"),
			Name:             m.Name,
			InputPrice:       input,
			OutputPrice:      perMillion(m.Pricing.Completion),
			CachedInputPrice: input * 0.1,
			Generation:       generationOf(m.ID),
			ContextWindow:    m.ContextLength,
			MaxTokens:        8192,
		}
		if p.ContextWindow == 0 {
			p.ContextWindow = 200000
		}
		if m.TopProvider != nil && m.TopProvider.MaxCompletionTokens > 0 {
			p.MaxTokens = m.TopProvider.MaxCompletionTokens
		}
		models = append(models, p)
	}
	return groupByGeneration(models), nil
}

func perMillion(perToken string) float64 {
	v, err := strconv.ParseFloat(perToken, 64)
	if err != nil {
		return 0
	}
	return v * 1_000_000
}

func generationOf(id string) string {
	switch {
	case strings.Contains(id, "claude-4"), strings.Contains(id, "claude-sonnet-4"),
		strings.Contains(id, "claude-opus-4"), strings.Contains(id, "claude-haiku-4"):
		return GenerationClaude4
	case strings.Contains(id, "3.5"), strings.Contains(id, "3-5"):
		return GenerationClaude35
	default:
		return GenerationClaude3
	}
}
