package sse

import (
	"fmt"
	"io"
	"net/http"
)

// Sink 接收聚合器输出的帧。Close 在流结束时调用且只调用一次。
type Sink interface {
	Send(f Frame) error
	Close() error
}

// Writer 将帧以 data: <json>\n\n 格式写入底层 Writer，每帧写完立即 flush。
type Writer struct {
	w       io.Writer
	flusher http.Flusher
}

// NewWriter 创建一个 SSE 帧写入器。w 实现 http.Flusher 时每帧都会刷新。
func NewWriter(w io.Writer) *Writer {
	f, _ := w.(http.Flusher)
	return &Writer{w: w, flusher: f}
}

// SetHeaders 设置事件流响应头。
func SetHeaders(h http.Header) {
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

func (w *Writer) Send(f Frame) error {
	payload, err := Marshal(f)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w.w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	if w.flusher != nil {
		w.flusher.Flush()
	}
	return nil
}

// Close 对 HTTP 响应是空操作，响应体由 handler 返回时关闭。
func (w *Writer) Close() error {
	return nil
}
