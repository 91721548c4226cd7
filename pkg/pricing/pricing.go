// Package pricing 维护模型价格表，并根据 token 用量计算单条消息的费用。
package pricing

import (
	"localchat-go/pkg/log"
	"sort"

	"github.com/shopspring/decimal"
)

// 模型代际，用于价格分组展示。
const (
	GenerationClaude4  = "Claude 4"
	GenerationClaude35 = "Claude 3.5"
	GenerationClaude3  = "Claude 3"
)

// Generations 按展示顺序列出所有代际。
var Generations = []string{GenerationClaude4, GenerationClaude35, GenerationClaude3}

// ModelPricing 描述一个模型的价格，价格单位为 USD / 百万 token。
type ModelPricing struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	InputPrice       float64 `json:"inputPrice"`
	OutputPrice      float64 `json:"outputPrice"`
	CachedInputPrice float64 `json:"cachedInputPrice"`
	Generation       string  `json:"generation"`
	ContextWindow    int     `json:"contextWindow"`
	MaxTokens        int     `json:"maxTokens"`
}

var million = decimal.NewFromInt(1_000_000)

// table 中的 order 决定 All 的返回顺序。
var table = []ModelPricing{
	{ID: "claude-sonnet-4-5-20250929", Name: "Claude Sonnet 4.5", InputPrice: 3, OutputPrice: 15, CachedInputPrice: 0.3, Generation: GenerationClaude4, ContextWindow: 200000, MaxTokens: 8192},
	{ID: "claude-haiku-4-5-20251001", Name: "Claude Haiku 4.5", InputPrice: 1, OutputPrice: 5, CachedInputPrice: 0.1, Generation: GenerationClaude4, ContextWindow: 200000, MaxTokens: 8192},
	{ID: "claude-opus-4-1-20250514", Name: "Claude Opus 4.1", InputPrice: 15, OutputPrice: 75, CachedInputPrice: 1.5, Generation: GenerationClaude4, ContextWindow: 200000, MaxTokens: 8192},
	{ID: "claude-opus-4-20250514", Name: "Claude Opus 4", InputPrice: 15, OutputPrice: 75, CachedInputPrice: 1.5, Generation: GenerationClaude4, ContextWindow: 200000, MaxTokens: 8192},
	{ID: "claude-sonnet-4-20250514", Name: "Claude Sonnet 4", InputPrice: 3, OutputPrice: 15, CachedInputPrice: 0.3, Generation: GenerationClaude4, ContextWindow: 200000, MaxTokens: 8192},
	{ID: "claude-3-5-sonnet-20241022", Name: "Claude 3.5 Sonnet", InputPrice: 3, OutputPrice: 15, CachedInputPrice: 0.3, Generation: GenerationClaude35, ContextWindow: 200000, MaxTokens: 8192},
	{ID: "claude-3-5-haiku-20241022", Name: "Claude 3.5 Haiku", InputPrice: 1, OutputPrice: 5, CachedInputPrice: 0.1, Generation: GenerationClaude35, ContextWindow: 200000, MaxTokens: 8192},
	{ID: "claude-3-opus-20240229", Name: "Claude 3 Opus", InputPrice: 15, OutputPrice: 75, CachedInputPrice: 1.5, Generation: GenerationClaude3, ContextWindow: 200000, MaxTokens: 4096},
	{ID: "claude-3-sonnet-20240229", Name: "Claude 3 Sonnet", InputPrice: 3, OutputPrice: 15, CachedInputPrice: 0.3, Generation: GenerationClaude3, ContextWindow: 200000, MaxTokens: 4096},
	{ID: "claude-3-haiku-20240307", Name: "Claude 3 Haiku", InputPrice: 0.25, OutputPrice: 1.25, CachedInputPrice: 0.025, Generation: GenerationClaude3, ContextWindow: 200000, MaxTokens: 4096},
}

var byID = func() map[string]ModelPricing {
	m := make(map[string]ModelPricing, len(table))
	for _, p := range table {
		m[p.ID] = p
	}
	return m
}()

// Lookup 返回模型的价格，未知模型返回 false。
func Lookup(model string) (ModelPricing, bool) {
	p, ok := byID[model]
	return p, ok
}

// All 返回全部模型价格的副本。
func All() []ModelPricing {
	out := make([]ModelPricing, len(table))
	copy(out, table)
	return out
}

// Grouped 按代际分组返回价格，每个代际都有一个（可能为空的）列表。
func Grouped() map[string][]ModelPricing {
	return groupByGeneration(table)
}

func groupByGeneration(models []ModelPricing) map[string][]ModelPricing {
	grouped := make(map[string][]ModelPricing, len(Generations))
	for _, g := range Generations {
		grouped[g] = []ModelPricing{}
	}
	for _, p := range models {
		grouped[p.Generation] = append(grouped[p.Generation], p)
	}
	return grouped
}

// CheapestModel 返回单价最低的模型，用于标题生成这类简单任务。
func CheapestModel() string {
	sorted := All()
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].InputPrice+sorted[i].OutputPrice < sorted[j].InputPrice+sorted[j].OutputPrice
	})
	return sorted[0].ID
}

// Cost 计算一次调用的费用（USD）。三类 token 分别按各自单价计费，未知模型返回 0 并记录警告。
func Cost(model string, inputTokens, outputTokens, cachedTokens int) decimal.Decimal {
	p, ok := byID[model]
	if !ok {
		log.Warnw("未找到模型价格，费用按 0 计算", "model", model)
		return decimal.Zero
	}
	in := decimal.NewFromInt(int64(inputTokens)).Mul(decimal.NewFromFloat(p.InputPrice))
	out := decimal.NewFromInt(int64(outputTokens)).Mul(decimal.NewFromFloat(p.OutputPrice))
	cached := decimal.NewFromInt(int64(cachedTokens)).Mul(decimal.NewFromFloat(p.CachedInputPrice))
	return in.Add(out).Add(cached).Div(million)
}
