// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"drone-helpdesk-go/internal/model"
	"drone-helpdesk-go/internal/service"
	"drone-helpdesk-go/pkg/llm"
	"drone-helpdesk-go/pkg/log"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // 允许所有来源
		},
	}
)

// askPayload 是 JSON 提问与 WebSocket JSON 帧共用的请求体。
type askPayload struct {
	ConversationID string `json:"conversation_id"`
	Query          string `json:"query"`
	Category       string `json:"category"`
	DocumentType   string `json:"document_type"`
}

func (p askPayload) toRequest() service.AskRequest {
	return service.AskRequest{
		ConversationID: p.ConversationID,
		Query:          strings.TrimSpace(p.Query),
		Category:       p.Category,
		DocumentType:   model.DocumentType(p.DocumentType),
	}
}

// ChatHandler 负责处理问答请求，包括一次性 JSON 接口与 WebSocket 流式接口。
type ChatHandler struct {
	helpdesk service.HelpdeskService
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(helpdesk service.HelpdeskService) *ChatHandler {
	return &ChatHandler{helpdesk: helpdesk}
}

// Query 处理一次性的问答请求。
func (h *ChatHandler) Query(c *gin.Context) {
	var payload askPayload
	if err := c.ShouldBindJSON(&payload); err != nil || strings.TrimSpace(payload.Query) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "query 不能为空", "data": nil})
		return
	}

	result, err := h.helpdesk.Ask(c.Request.Context(), payload.toRequest())
	if err != nil {
		log.Errorf("[ChatHandler] 生成回答失败: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"code": http.StatusBadGateway, "message": "自动回答生成失败，已转人工处理", "data": result})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": result})
}

// Stream 处理一个传入的 WebSocket 连接。认证由路由上的中间件通过路径中的 token 完成。
// 客户端可以发送纯文本问题或 askPayload 形式的 JSON；同一连接内的问题共享一个对话。
func (h *ChatHandler) Stream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("[ChatHandler] WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	var conversationID string
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warnf("[ChatHandler] 从 WebSocket 读取消息失败: %v", err)
			}
			return
		}

		payload := parseFrame(message)
		if payload.ConversationID == "" {
			payload.ConversationID = conversationID
		}
		if payload.Query == "" {
			_ = writeJSON(conn, gin.H{"error": "query 不能为空"})
			continue
		}

		result, err := h.helpdesk.AskStream(c.Request.Context(), payload.toRequest(), &chunkWriter{conn: conn})
		if result != nil {
			conversationID = result.ConversationID
		}
		if err != nil {
			log.Errorf("[ChatHandler] 处理流式响应失败: %v", err)
			_ = writeJSON(conn, gin.H{"error": "AI服务暂时不可用，请稍后重试"})
		}
		if err := sendCompletion(conn, result); err != nil {
			log.Warnf("[ChatHandler] 发送完成通知失败: %v", err)
			return
		}
	}
}

func parseFrame(message []byte) askPayload {
	var payload askPayload
	if len(message) > 0 && message[0] == '{' {
		if err := json.Unmarshal(message, &payload); err == nil {
			payload.Query = strings.TrimSpace(payload.Query)
			return payload
		}
	}
	payload.Query = strings.TrimSpace(string(message))
	return payload
}

// chunkWriter 把模型输出的增量文本包装为 {"chunk": ...} 帧。
type chunkWriter struct {
	conn *websocket.Conn
}

func (w *chunkWriter) WriteMessage(messageType int, data []byte) error {
	if messageType != websocket.TextMessage {
		return w.conn.WriteMessage(messageType, data)
	}
	return writeJSON(w.conn, gin.H{"chunk": string(data)})
}

var _ llm.MessageWriter = (*chunkWriter)(nil)

// sendCompletion 在每个回答结束后发送完成通知，附带来源与转人工判定。
func sendCompletion(conn *websocket.Conn, result *service.AskResult) error {
	now := time.Now()
	resp := gin.H{
		"type":      "completion",
		"status":    "finished",
		"message":   "响应已完成",
		"timestamp": now.UnixMilli(),
		"date":      now.Format("2006-01-02T15:04:05"),
	}
	if result != nil {
		resp["conversation_id"] = result.ConversationID
		resp["escalation"] = result.Escalation
		if result.Answer != nil {
			resp["sources"] = result.Answer.Sources
			resp["metadata"] = result.Answer.Metadata
		}
	}
	return writeJSON(conn, resp)
}

func writeJSON(conn *websocket.Conn, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return errors.Join(errors.New("encode websocket frame"), err)
	}
	return conn.WriteMessage(websocket.TextMessage, b)
}
