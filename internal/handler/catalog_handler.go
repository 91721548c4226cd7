package handler

import (
	"localchat-go/internal/service"
	"localchat-go/pkg/pricing"
	"net/http"

	"github.com/gin-gonic/gin"
)

// CatalogHandler 提供模型列表与价格查询。
type CatalogHandler struct {
	pricingService service.PricingService
}

// NewCatalogHandler 创建一个新的 CatalogHandler。
func NewCatalogHandler(pricingService service.PricingService) *CatalogHandler {
	return &CatalogHandler{pricingService: pricingService}
}

// Models 处理 GET /api/models。
func (h *CatalogHandler) Models(c *gin.Context) {
	c.JSON(http.StatusOK, pricing.Models())
}

// Pricing 处理 GET /api/pricing?grouped=true&live=true。
func (h *CatalogHandler) Pricing(c *gin.Context) {
	result := h.pricingService.Pricing(c.Request.Context(), c.Query("grouped") == "true", c.Query("live") == "true")
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"data":     result.Data,
		"metadata": result.Metadata,
	})
}
