package sse

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"localchat-go/pkg/log"
	"strings"
)

// MaxFrameSize 是单行 data 帧的最大字节数，超出的帧被跳过。
const MaxFrameSize = 4 * 1024 * 1024

// Handler 处理解析出的帧。
type Handler interface {
	HandleFrame(f Frame)
}

// HandlerFunc 让普通函数实现 Handler。
type HandlerFunc func(f Frame)

func (fn HandlerFunc) HandleFrame(f Frame) { fn(f) }

// Decode 从 r 读取事件流并逐帧分发给 h。
// 单个损坏或超长的帧只记录日志并跳过；遇到 [DONE] 或 EOF 时正常返回，读取失败时返回错误。
func Decode(r io.Reader, h Handler) error {
	reader := bufio.NewReaderSize(r, 64*1024)

	for {
		line, tooLong, err := readLine(reader, MaxFrameSize)
		if tooLong {
			log.Warnw("跳过超长的 SSE 帧", "limit", MaxFrameSize)
		} else if done := dispatchLine(line, h); done {
			return nil
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to read event stream: %w", err)
		}
	}
}

// readLine 读取一整行（含换行符）。行超过 limit 时丢弃到下一个换行符，并返回 tooLong。
func readLine(r *bufio.Reader, limit int) (line []byte, tooLong bool, err error) {
	for {
		chunk, err := r.ReadSlice('\n')
		if !tooLong {
			if len(line)+len(chunk) > limit {
				tooLong = true
				line = nil
			} else {
				line = append(line, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return line, tooLong, err
	}
}

// dispatchLine 处理一行输入，返回 true 表示遇到了 [DONE]。
func dispatchLine(raw []byte, h Handler) bool {
	line := strings.TrimRight(string(raw), "\r\n")
	if !strings.HasPrefix(line, "data:") {
		return false
	}
	data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	if data == "" {
		return false
	}
	if data == DoneSentinel {
		return true
	}

	frame, err := Parse([]byte(data))
	if err != nil {
		log.Warnw("跳过无法解析的 SSE 帧", "data", data, "error", err)
		return false
	}
	h.HandleFrame(frame)
	return false
}
