package handler

import (
	"localchat-go/internal/repository"
	"localchat-go/internal/service"
	"localchat-go/pkg/log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ConversationHandler 处理与会话相关的 API 请求。
type ConversationHandler struct {
	service      service.ConversationService
	titleService service.TitleService
}

// NewConversationHandler 创建一个新的 ConversationHandler。
func NewConversationHandler(service service.ConversationService, titleService service.TitleService) *ConversationHandler {
	return &ConversationHandler{service: service, titleService: titleService}
}

// List 处理 GET /api/conversations?projectId=&archived=。
func (h *ConversationHandler) List(c *gin.Context) {
	filter := repository.ConversationFilter{
		ProjectID: c.Query("projectId"),
		Archived:  c.Query("archived") == "true",
	}
	convs, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, convs)
}

// Create 处理 POST /api/conversations。
func (h *ConversationHandler) Create(c *gin.Context) {
	var req service.CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	conv, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, conv)
}

// Get 处理 GET /api/conversations/:id，返回会话、消息与所属项目。
func (h *ConversationHandler) Get(c *gin.Context) {
	conv, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

// Update 处理 PATCH /api/conversations/:id。
func (h *ConversationHandler) Update(c *gin.Context) {
	var req service.UpdateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	conv, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

// Delete 处理 DELETE /api/conversations/:id，同时删除全部消息。
func (h *ConversationHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Messages 处理 GET /api/conversations/:id/messages。
func (h *ConversationHandler) Messages(c *gin.Context) {
	msgs, err := h.service.Messages(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

// GenerateTitle 处理 POST /api/conversations/:id/generate-title。
func (h *ConversationHandler) GenerateTitle(c *gin.Context) {
	id := c.Param("id")
	result, err := h.titleService.GenerateTitle(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if result == nil {
		// 消息不足两条，保持当前标题
		conv, err := h.service.Get(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		log.Infof("GenerateTitle: conversation %s has fewer than two messages", id)
		result = &service.TitleResult{Title: conv.Title, Generated: false}
	}
	c.JSON(http.StatusOK, result)
}
