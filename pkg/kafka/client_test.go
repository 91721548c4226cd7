package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"localchat-go/pkg/tasks"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func (w *recordingWriter) written() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.msgs...)
}

func useProducer(t *testing.T, w messageWriter) {
	prev := producer
	producer = w
	t.Cleanup(func() { producer = prev })
}

// scriptedReader 依次返回预设的消息或错误，用完后阻塞到 ctx 取消。
type scriptedReader struct {
	mu        sync.Mutex
	script    []fetchResult
	committed []kafka.Message
	cancel    context.CancelFunc
}

type fetchResult struct {
	msg kafka.Message
	err error
}

func (r *scriptedReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.script) == 0 {
		r.mu.Unlock()
		r.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	next := r.script[0]
	r.script = r.script[1:]
	r.mu.Unlock()
	return next.msg, next.err
}

func (r *scriptedReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *scriptedReader) Close() error { return nil }

type recordingProcessor struct {
	ids []string
	err error
}

func (p *recordingProcessor) Process(_ context.Context, task tasks.TitleGenerationTask) error {
	p.ids = append(p.ids, task.ConversationID)
	return p.err
}

func taskMessage(t *testing.T, id string) kafka.Message {
	msg, err := encodeTitleTask(tasks.TitleGenerationTask{ConversationID: id, RequestedAt: time.Now()})
	require.NoError(t, err)
	return msg
}

func TestEncodeTitleTask(t *testing.T) {
	requested := time.Date(2025, 1, 30, 12, 0, 0, 0, time.UTC)
	msg, err := encodeTitleTask(tasks.TitleGenerationTask{ConversationID: "c1", RequestedAt: requested})
	require.NoError(t, err)
	assert.Equal(t, []byte("c1"), msg.Key)

	var decoded tasks.TitleGenerationTask
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "c1", decoded.ConversationID)
	assert.True(t, requested.Equal(decoded.RequestedAt))
}

func TestProduceTitleTask_WithoutProducer(t *testing.T) {
	useProducer(t, nil)
	err := ProduceTitleTask(context.Background(), tasks.TitleGenerationTask{ConversationID: "c1"})
	assert.Error(t, err)
}

func TestTitleTaskDispatcher_Dispatch(t *testing.T) {
	w := &recordingWriter{}
	useProducer(t, w)

	TitleTaskDispatcher{}.Dispatch("conv-42")

	require.Eventually(t, func() bool { return len(w.written()) == 1 }, 2*time.Second, 10*time.Millisecond)
	msg := w.written()[0]
	assert.Equal(t, []byte("conv-42"), msg.Key)
}

func TestConsume_RetriesFetchErrorsAndCommitsEverything(t *testing.T) {
	prevInitial, prevMax := initialFetchBackoff, maxFetchBackoff
	initialFetchBackoff, maxFetchBackoff = time.Millisecond, 2*time.Millisecond
	t.Cleanup(func() { initialFetchBackoff, maxFetchBackoff = prevInitial, prevMax })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	malformed := kafka.Message{Value: []byte("{not json"), Offset: 2}
	r := &scriptedReader{
		cancel: cancel,
		script: []fetchResult{
			{err: errors.New("broker not available")},
			{err: errors.New("broker not available")},
			{msg: taskMessage(t, "c1")},
			{msg: malformed},
			{msg: taskMessage(t, "c2")},
		},
	}
	processor := &recordingProcessor{err: errors.New("llm unavailable")}

	done := make(chan struct{})
	go func() {
		consume(ctx, r, processor)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consume did not return after cancellation")
	}

	// 处理失败与无法解析的消息同样提交 offset
	assert.Equal(t, []string{"c1", "c2"}, processor.ids)
	assert.Len(t, r.committed, 3)
}
