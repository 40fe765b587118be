package handler

import (
	"drone-helpdesk-go/internal/repository"
	"drone-helpdesk-go/internal/service"
	"drone-helpdesk-go/pkg/log"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// DocumentHandler 负责文档登记查询、下载链接与摄取触发。
type DocumentHandler struct {
	docService service.DocumentService
}

// NewDocumentHandler 创建一个新的 DocumentHandler 实例。
func NewDocumentHandler(docService service.DocumentService) *DocumentHandler {
	return &DocumentHandler{docService: docService}
}

// ListDocuments 返回所有登记的文档及其 ready 标记。
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	docs, err := h.docService.ListDocuments()
	if err != nil {
		log.Error("[DocumentHandler] 获取文档列表失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "获取文档列表失败", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": docs})
}

// GenerateDownloadURL 为引用来源生成预签名下载链接。
func (h *DocumentHandler) GenerateDownloadURL(c *gin.Context) {
	fileName := c.Query("fileName")
	if fileName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "缺少文件名", "data": nil})
		return
	}

	info, err := h.docService.GenerateDownloadURL(c.Request.Context(), fileName)
	if err != nil {
		if errors.Is(err, repository.ErrDocumentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "文档不存在", "data": nil})
			return
		}
		log.Warnf("[DocumentHandler] 生成下载链接失败, file: %s, error: %v", fileName, err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": err.Error(), "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "文件下载链接生成成功", "data": info})
}

// Ingest 把语料目录与对象存储中的 PDF 逐个放入摄取队列。
func (h *DocumentHandler) Ingest(c *gin.Context) {
	queued, err := h.docService.EnqueueIngestion(c.Request.Context())
	if err != nil {
		log.Error("[DocumentHandler] 发送摄取任务失败", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"code": http.StatusServiceUnavailable, "message": err.Error(), "data": gin.H{"queued": queued}})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"code": http.StatusAccepted, "message": "摄取任务已提交", "data": gin.H{"queued": queued}})
}
