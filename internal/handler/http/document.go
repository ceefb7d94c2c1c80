package http

import (
	"net/http"

	"collaborative-whiteboard/internal/middleware"
	"collaborative-whiteboard/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// DocumentHandler 提供文档引导与画布读取接口
type DocumentHandler struct {
	documentService *service.DocumentService
	canvasService   *service.CanvasService
}

func NewDocumentHandler(documentService *service.DocumentService, canvasService *service.CanvasService) *DocumentHandler {
	if documentService == nil || canvasService == nil {
		panic("DocumentService and CanvasService cannot be nil for DocumentHandler")
	}
	return &DocumentHandler{documentService: documentService, canvasService: canvasService}
}

// CreateDocumentRequest 定义创建文档请求。OwnerID 只在请求未认证时使用。
type CreateDocumentRequest struct {
	ID      string `json:"id" binding:"omitempty,max=191"`
	Title   string `json:"title" binding:"max=191"`
	OwnerID string `json:"ownerId" binding:"omitempty,max=191"`
}

type CreateDocumentResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
	OwnerID string `json:"ownerId,omitempty"`
}

// CreateDocument 创建一个空白画布文档
func (h *DocumentHandler) CreateDocument(c *gin.Context) {
	var req CreateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("Handler.CreateDocument: Invalid input format")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
		return
	}

	ownerID := middleware.UserID(c)
	if ownerID == "" {
		ownerID = req.OwnerID
	}

	doc, err := h.documentService.CreateDocument(c.Request.Context(), req.ID, ownerID, req.Title)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusCreated, CreateDocumentResponse{
		Message: "Document created successfully",
		ID:      doc.ID,
		OwnerID: doc.OwnerID,
	})
}

// GetCanvas 返回文档当前的画布状态 (实时层)
func (h *DocumentHandler) GetCanvas(c *gin.Context) {
	documentID := c.Param("id")
	state, err := h.canvasService.Load(c.Request.Context(), documentID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, state)
}
