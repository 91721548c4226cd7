package handler

import (
	"encoding/json"
	"localchat-go/internal/service"
	"localchat-go/pkg/log"
	"localchat-go/pkg/sse"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // 本地客户端，允许所有来源
		},
	}
)

// ChatHandler 负责处理聊天请求，支持 SSE 与 WebSocket 两种传输方式。
type ChatHandler struct {
	chatService service.ChatService
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// Stream 处理 POST /api/chat，以 text/event-stream 返回生成过程。
// 流开始前的错误以 JSON 错误体返回；流开始后的错误以一个 error 帧结束。
func (h *ChatHandler) Stream(c *gin.Context) {
	var req service.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Chat: Invalid request payload, error: %v", err)
		badRequest(c, "Invalid request body")
		return
	}

	prepared, err := h.chatService.Prepare(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	if err := c.Request.Context().Err(); err != nil {
		// 客户端已断开，放弃上游流并释放生成锁
		log.Warnw("Chat: client went away before streaming", "conversationID", prepared.Conversation.ID, "error", err)
		prepared.Abort()
		return
	}

	sse.SetHeaders(c.Writer.Header())
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	if err := h.chatService.Stream(c.Request.Context(), prepared, sse.NewWriter(c.Writer)); err != nil {
		log.Warnw("Chat: stream ended with error", "conversationID", prepared.Conversation.ID, "error", err)
	}
}

// wsSink 将帧作为 JSON 文本消息写入 WebSocket 连接。
type wsSink struct {
	conn *websocket.Conn
	mu   *sync.Mutex
}

func (s wsSink) Send(f sse.Frame) error {
	payload, err := sse.Marshal(f)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

// Close 不关闭连接，同一连接可以继续发送下一次聊天请求。
func (s wsSink) Close() error { return nil }

// Handle 处理 GET /api/chat/ws。每条入站 JSON 文本消息是一次聊天请求，同一连接上的请求串行处理。
func (h *ChatHandler) Handle(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	log.Infof("WebSocket 连接已建立: %s", c.ClientIP())
	sink := wsSink{conn: conn, mu: &sync.Mutex{}}

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warnf("从 WebSocket 读取消息失败: %v", err)
			}
			break
		}

		var req service.ChatRequest
		if err := json.Unmarshal(message, &req); err != nil {
			_ = sink.Send(sse.ErrorFrame{Error: "Invalid request body"})
			continue
		}

		prepared, err := h.chatService.Prepare(c.Request.Context(), req)
		if err != nil {
			_, msg := errorStatus(err)
			_ = sink.Send(sse.ErrorFrame{Error: msg})
			continue
		}
		if err := h.chatService.Stream(c.Request.Context(), prepared, sink); err != nil {
			log.Warnw("WebSocket: stream ended with error", "conversationID", prepared.Conversation.ID, "error", err)
		}
	}
}
