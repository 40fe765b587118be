package handler

import (
	"drone-helpdesk-go/internal/model"
	"drone-helpdesk-go/internal/service"
	"drone-helpdesk-go/pkg/log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// SearchHandler 只做检索，不调用生成模型。
type SearchHandler struct {
	retrieval   service.RetrievalService
	defaultTopK int
}

// NewSearchHandler 创建一个新的 SearchHandler 实例。
func NewSearchHandler(retrieval service.RetrievalService, defaultTopK int) *SearchHandler {
	if defaultTopK <= 0 {
		defaultTopK = 5
	}
	return &SearchHandler{retrieval: retrieval, defaultTopK: defaultTopK}
}

// Search 返回拼接好的上下文与来源列表。
func (h *SearchHandler) Search(c *gin.Context) {
	query := c.Query("query")
	if query == "" {
		log.Warnf("[SearchHandler] 搜索请求失败: query 参数为空")
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的查询参数", "data": nil})
		return
	}
	topK, err := strconv.Atoi(c.DefaultQuery("topK", strconv.Itoa(h.defaultTopK)))
	if err != nil || topK <= 0 {
		topK = h.defaultTopK
	}
	docType := model.DocumentType(c.Query("documentType"))

	contextText, sources := h.retrieval.SearchRelevantContext(c.Request.Context(), query, topK, docType)
	log.Infof("[SearchHandler] 检索完成, query: '%s', topK: %d, 返回 %d 条来源", query, topK, len(sources))
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    gin.H{"context": contextText, "sources": sources},
	})
}
