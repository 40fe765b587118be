package handler

import (
	"drone-helpdesk-go/internal/service"
	"drone-helpdesk-go/pkg/log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// ConversationHandler 处理对话导出请求。
type ConversationHandler struct {
	helpdesk service.HelpdeskService
}

// NewConversationHandler 创建一个新的 ConversationHandler。
func NewConversationHandler(helpdesk service.HelpdeskService) *ConversationHandler {
	return &ConversationHandler{helpdesk: helpdesk}
}

// Export 返回对话最后 limit 条消息，默认 20 条。
func (h *ConversationHandler) Export(c *gin.Context) {
	conversationID := c.Param("id")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	messages, err := h.helpdesk.ExportConversation(c.Request.Context(), conversationID, limit)
	if err != nil {
		log.Errorf("[ConversationHandler] 导出对话失败, conversation: %s, error: %v", conversationID, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "Failed to retrieve conversation history",
			"data":    nil,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data": gin.H{
			"conversation_id": conversationID,
			"messages":        messages,
			"count":           len(messages),
		},
	})
}
