// Package service 包含了应用的业务逻辑层。
package service

import (
	"errors"
	"localchat-go/internal/repository"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrProjectNotFound      = errors.New("project not found")

	// ErrInvalidRequest 包装请求校验失败，handler 映射为 400。
	ErrInvalidRequest = errors.New("invalid request")

	// ErrGenerationInProgress 表示同一会话已有进行中的流式生成。
	ErrGenerationInProgress = errors.New("a response is already being generated for this conversation")
)

// notFound 将仓储层的 ErrNotFound 转换为业务层的 sentinel。
func notFound(err error, sentinel error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return sentinel
	}
	return err
}
