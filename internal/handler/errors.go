// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"localchat-go/internal/service"
	"localchat-go/pkg/llm"
	"localchat-go/pkg/log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// errorStatus 将业务错误映射为 HTTP 状态码与对外的错误信息。
func errorStatus(err error) (int, string) {
	var pe *llm.ProviderError
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		return http.StatusBadRequest, strings.TrimPrefix(err.Error(), service.ErrInvalidRequest.Error()+": ")
	case errors.Is(err, service.ErrConversationNotFound):
		return http.StatusNotFound, "Conversation not found"
	case errors.Is(err, service.ErrProjectNotFound):
		return http.StatusNotFound, "Project not found"
	case errors.Is(err, service.ErrGenerationInProgress):
		return http.StatusConflict, "A response is already being generated for this conversation"
	case errors.As(err, &pe):
		return http.StatusInternalServerError, pe.Message
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// writeError 以 {"error": "..."} 的形式返回错误。
func writeError(c *gin.Context, err error) {
	status, msg := errorStatus(err)
	if status >= http.StatusInternalServerError {
		log.Errorw("请求处理失败", "path", c.FullPath(), "error", err)
	} else {
		log.Warnw("请求被拒绝", "path", c.FullPath(), "status", status, "error", err)
	}
	c.JSON(status, gin.H{"error": msg})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
