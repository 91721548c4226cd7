package cli

import (
	"fmt"
	"io"
	"localchat-go/pkg/sse"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	thinkingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Italic(true)
	labelStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("63")).Bold(true)
	statsStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
)

// Renderer 将帧增量输出到终端。
type Renderer struct {
	out          io.Writer
	showThinking bool

	inThinking bool
	inContent  bool
}

// NewRenderer 创建一个输出到 out 的 Renderer。showThinking 为 false 时不打印思考过程。
func NewRenderer(out io.Writer, showThinking bool) *Renderer {
	return &Renderer{out: out, showThinking: showThinking}
}

// Render 输出一帧，用作 sse.Accumulator 的 OnFrame 回调。
func (r *Renderer) Render(f sse.Frame) {
	switch v := f.(type) {
	case sse.ThinkingFrame:
		if !r.showThinking {
			return
		}
		if !r.inThinking {
			r.inThinking = true
			fmt.Fprintln(r.out, labelStyle.Render("Thinking"))
		}
		fmt.Fprint(r.out, thinkingStyle.Render(v.Content))
	case sse.ThinkingDoneFrame:
		if r.inThinking {
			fmt.Fprint(r.out, "\n\n")
		}
	case sse.ContentFrame:
		r.inContent = true
		fmt.Fprint(r.out, v.Content)
	case sse.StatisticsFrame:
		if r.inContent {
			fmt.Fprintln(r.out)
		}
		fmt.Fprintln(r.out, statsStyle.Render(FormatStatistics(v.Statistics)))
	case sse.ErrorFrame:
		if r.inContent {
			fmt.Fprintln(r.out)
		}
		fmt.Fprintln(r.out, errorStyle.Render("Error: "+v.Error))
	}
}

// FormatStatistics 返回一行统计摘要。
func FormatStatistics(s sse.Statistics) string {
	parts := []string{
		fmt.Sprintf("%d in / %d out tokens", s.InputTokens, s.OutputTokens),
	}
	if s.CachedTokens > 0 {
		parts = append(parts, fmt.Sprintf("%d cached", s.CachedTokens))
	}
	parts = append(parts,
		fmt.Sprintf("%.2f tok/s", s.TokensPerSecond),
		fmt.Sprintf("first token %.2fs", s.TimeToFirstToken),
		fmt.Sprintf("$%.6f", s.Cost),
	)
	if s.StopReason != "" {
		parts = append(parts, s.StopReason)
	}
	return strings.Join(parts, " · ")
}
