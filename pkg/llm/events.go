package llm

// BlockKind 是内容块的声明类型，决定后续 delta 的路由。
type BlockKind int

const (
	BlockOther BlockKind = iota
	BlockText
	BlockThinking
)

func (k BlockKind) String() string {
	switch k {
	case BlockText:
		return "text"
	case BlockThinking:
		return "thinking"
	default:
		return "other"
	}
}

func parseBlockKind(s string) BlockKind {
	switch s {
	case "text":
		return BlockText
	case "thinking":
		return BlockThinking
	default:
		return BlockOther
	}
}

// Usage 是提供商上报的 token 用量。CachedTokens 对应缓存命中读取的输入 token。
type Usage struct {
	InputTokens  int
	OutputTokens int
	CachedTokens int
}

// Event 是上游流事件的封闭联合类型，只有本包内定义的六种事件实现它。
type Event interface {
	isEvent()
}

// MessageStart 携带初始 token 用量。
type MessageStart struct {
	Usage Usage
}

// ContentBlockStart 声明一个新内容块。
type ContentBlockStart struct {
	Index int
	Kind  BlockKind
}

// ContentDelta 是当前内容块追加的文本（正文或思考过程）。
type ContentDelta struct {
	Index int
	Text  string
}

// ContentBlockStop 表示内容块结束。
type ContentBlockStop struct {
	Index int
}

// UsageDelta 携带累计输出 token 数与可选的停止原因。
type UsageDelta struct {
	OutputTokens int
	StopReason   string
}

// MessageStop 是流的终止事件。
type MessageStop struct{}

func (MessageStart) isEvent()      {}
func (ContentBlockStart) isEvent() {}
func (ContentDelta) isEvent()      {}
func (ContentBlockStop) isEvent()  {}
func (UsageDelta) isEvent()        {}
func (MessageStop) isEvent()       {}

// wireEvent 是 SSE data 负载的 JSON 结构，覆盖所有事件类型用到的字段。
type wireEvent struct {
	Type    string `json:"type"`
	Index   int    `json:"index"`
	Message *struct {
		Usage wireUsage `json:"usage"`
	} `json:"message,omitempty"`
	ContentBlock *struct {
		Type string `json:"type"`
	} `json:"content_block,omitempty"`
	Delta *struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		Thinking   string `json:"thinking"`
		StopReason string `json:"stop_reason"`
	} `json:"delta,omitempty"`
	Usage *wireUsage `json:"usage,omitempty"`
	Error *wireError `json:"error,omitempty"`
}

type wireUsage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
}

type wireError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// toEvent 将线上事件转换为联合类型。ok 为 false 表示该事件应被跳过（ping、签名 delta 等）。
func (w *wireEvent) toEvent() (ev Event, ok bool, err error) {
	switch w.Type {
	case "message_start":
		var u Usage
		if w.Message != nil {
			u = Usage{
				InputTokens:  w.Message.Usage.InputTokens,
				OutputTokens: w.Message.Usage.OutputTokens,
				CachedTokens: w.Message.Usage.CacheReadInputTokens,
			}
		}
		return MessageStart{Usage: u}, true, nil
	case "content_block_start":
		kind := BlockOther
		if w.ContentBlock != nil {
			kind = parseBlockKind(w.ContentBlock.Type)
		}
		return ContentBlockStart{Index: w.Index, Kind: kind}, true, nil
	case "content_block_delta":
		if w.Delta == nil {
			return nil, false, nil
		}
		switch w.Delta.Type {
		case "text_delta":
			return ContentDelta{Index: w.Index, Text: w.Delta.Text}, true, nil
		case "thinking_delta":
			return ContentDelta{Index: w.Index, Text: w.Delta.Thinking}, true, nil
		default:
			// signature_delta / input_json_delta 不产生文本
			return nil, false, nil
		}
	case "content_block_stop":
		return ContentBlockStop{Index: w.Index}, true, nil
	case "message_delta":
		d := UsageDelta{}
		if w.Usage != nil {
			d.OutputTokens = w.Usage.OutputTokens
		}
		if w.Delta != nil {
			d.StopReason = w.Delta.StopReason
		}
		return d, true, nil
	case "message_stop":
		return MessageStop{}, true, nil
	case "error":
		pe := &ProviderError{Type: "api_error", Message: "provider stream error"}
		if w.Error != nil {
			pe.Type = w.Error.Type
			pe.Message = w.Error.Message
		}
		return nil, false, pe
	default:
		// ping 以及未知事件
		return nil, false, nil
	}
}
