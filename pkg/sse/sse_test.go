package sse

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter_FrameFormat(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewWriter(rec)

	require.NoError(t, w.Send(ContentFrame{Content: "hi"}))
	require.NoError(t, w.Send(ThinkingDoneFrame{}))
	require.NoError(t, w.Send(DoneFrame{MessageID: "m1", ConversationID: "c1"}))
	require.NoError(t, w.Send(ErrorFrame{Error: StreamFailedMessage}))

	want := `data: {"type":"content","content":"hi"}` + "\n\n" +
		`data: {"type":"thinking_done"}` + "\n\n" +
		`data: {"type":"done","messageId":"m1","conversationId":"c1"}` + "\n\n" +
		`data: {"type":"error","error":"Streaming failed"}` + "\n\n"
	assert.Equal(t, want, rec.Body.String())
	assert.True(t, rec.Flushed)
}

func TestWriter_EmptyContentKeepsField(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewWriter(&buf).Send(ContentFrame{}))
	assert.Equal(t, `data: {"type":"content","content":""}`+"\n\n", buf.String())
}

func TestDecode_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	frames := []Frame{
		ThinkingFrame{Content: "let me think"},
		ThinkingDoneFrame{},
		ContentFrame{Content: "a"},
		ContentFrame{Content: "b"},
		StatisticsFrame{Statistics: Statistics{TotalTokens: 12, InputTokens: 10, OutputTokens: 2, StopReason: "end_turn"}},
		DoneFrame{MessageID: "m1", ConversationID: "c1"},
	}
	for _, f := range frames {
		require.NoError(t, w.Send(f))
	}

	var got []Frame
	require.NoError(t, Decode(&buf, HandlerFunc(func(f Frame) { got = append(got, f) })))
	assert.Equal(t, frames, got)
}

func TestDecode_SkipsMalformedFrames(t *testing.T) {
	stream := strings.Join([]string{
		`data: {"type":"content","content":"one"}`,
		``,
		`data: {not json`,
		``,
		`: comment line`,
		`data: {"type":"mystery"}`,
		``,
		`data: {"type":"content","content":"two"}`,
		``,
	}, "\n")

	acc := &Accumulator{}
	require.NoError(t, Decode(strings.NewReader(stream), acc))
	assert.Equal(t, "onetwo", acc.Content())
	assert.False(t, acc.Failed())
}

func TestDecode_SkipsOversizeFrame(t *testing.T) {
	huge := `data: {"type":"content","content":"` + strings.Repeat("x", MaxFrameSize+1024*1024) + `"}`
	input := `data: {"type":"content","content":"a"}` + "\n\n" +
		huge + "\n\n" +
		`data: {"type":"content","content":"b"}` + "\n\n"

	var acc Accumulator
	require.NoError(t, Decode(strings.NewReader(input), &acc))
	assert.Equal(t, "ab", acc.Content())
}

func TestDecode_LastLineWithoutNewline(t *testing.T) {
	var acc Accumulator
	require.NoError(t, Decode(strings.NewReader(`data: {"type":"content","content":"tail"}`), &acc))
	assert.Equal(t, "tail", acc.Content())
}

func TestDecode_StopsAtDoneSentinel(t *testing.T) {
	stream := "data: {\"type\":\"content\",\"content\":\"x\"}\n\ndata: [DONE]\n\ndata: {\"type\":\"content\",\"content\":\"y\"}\n\n"
	acc := &Accumulator{}
	require.NoError(t, Decode(strings.NewReader(stream), acc))
	assert.Equal(t, "x", acc.Content())
}

func TestDecode_UntypedErrorFrame(t *testing.T) {
	acc := &Accumulator{}
	require.NoError(t, Decode(strings.NewReader("data: {\"error\":\"Streaming failed\"}\n\n"), acc))
	assert.True(t, acc.Failed())
	assert.Equal(t, "Streaming failed", acc.Err)
}

func TestAccumulator(t *testing.T) {
	var seen []string
	acc := &Accumulator{OnFrame: func(f Frame) { seen = append(seen, f.Type()) }}

	acc.HandleFrame(ThinkingFrame{Content: "re"})
	acc.HandleFrame(ThinkingFrame{Content: "asoning"})
	acc.HandleFrame(ThinkingDoneFrame{})
	acc.HandleFrame(ContentFrame{Content: "answer"})
	acc.HandleFrame(StatisticsFrame{Statistics: Statistics{Cost: 0.5}})
	acc.HandleFrame(DoneFrame{MessageID: "m", ConversationID: "c"})

	assert.Equal(t, "reasoning", acc.Thinking())
	assert.Equal(t, "answer", acc.Content())
	assert.True(t, acc.ThinkingDone)
	require.NotNil(t, acc.Statistics)
	assert.InDelta(t, 0.5, acc.Statistics.Cost, 1e-12)
	assert.True(t, acc.Done)
	assert.Equal(t, "m", acc.MessageID)
	assert.Equal(t, []string{TypeThinking, TypeThinking, TypeThinkingDone, TypeContent, TypeStatistics, TypeDone}, seen)
}
