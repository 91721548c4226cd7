package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes 注册全部 API 路由。
func RegisterRoutes(r *gin.Engine, chat *ChatHandler, conversations *ConversationHandler, projects *ProjectHandler, catalog *CatalogHandler) {
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	api := r.Group("/api")
	{
		// Chat 路由 (SSE / WebSocket)
		api.POST("/chat", chat.Stream)
		api.GET("/chat/ws", chat.Handle)

		conv := api.Group("/conversations")
		{
			conv.GET("", conversations.List)
			conv.POST("", conversations.Create)
			conv.GET("/:id", conversations.Get)
			conv.PATCH("/:id", conversations.Update)
			conv.DELETE("/:id", conversations.Delete)
			conv.GET("/:id/messages", conversations.Messages)
			conv.POST("/:id/generate-title", conversations.GenerateTitle)
		}

		proj := api.Group("/projects")
		{
			proj.GET("", projects.List)
			proj.POST("", projects.Create)
			proj.GET("/:id", projects.Get)
			proj.PATCH("/:id", projects.Update)
			proj.DELETE("/:id", projects.Delete)
		}

		api.GET("/models", catalog.Models)
		api.GET("/pricing", catalog.Pricing)
	}
}
