package pricing

// Model 是模型选择器中展示的条目。
type Model struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	MaxTokens     int    `json:"maxTokens"`
	ContextWindow int    `json:"contextWindow"`
}

var catalog = []Model{
	{ID: "claude-sonnet-4-5-20250929", Name: "Claude Sonnet 4.5", Description: "Latest and most intelligent model", MaxTokens: 8192, ContextWindow: 200000},
	{ID: "claude-opus-4-1-20250514", Name: "Claude Opus 4.1", Description: "Most capable model for complex reasoning", MaxTokens: 8192, ContextWindow: 200000},
	{ID: "claude-opus-4-20250514", Name: "Claude Opus 4", Description: "Powerful model for complex tasks", MaxTokens: 8192, ContextWindow: 200000},
	{ID: "claude-sonnet-4-20250514", Name: "Claude Sonnet 4", Description: "Balanced intelligence and speed", MaxTokens: 8192, ContextWindow: 200000},
}

// Models 返回可供选择的模型列表。
func Models() []Model {
	out := make([]Model, len(catalog))
	copy(out, catalog)
	return out
}
