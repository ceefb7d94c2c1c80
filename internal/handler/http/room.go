package http

import (
	"net/http"
	"strconv"

	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RoomHandler 封装了与房间相关的只读 HTTP 接口
type RoomHandler struct {
	chatService *service.ChatService
}

func NewRoomHandler(chatService *service.ChatService) *RoomHandler {
	if chatService == nil {
		panic("ChatService cannot be nil for RoomHandler")
	}
	return &RoomHandler{chatService: chatService}
}

type MessagesResponse struct {
	RoomID   string               `json:"roomId"`
	Messages []domain.ChatMessage `json:"messages"`
}

// GetMessages 返回房间最近的聊天记录，旧的在前。limit 缺省时使用服务配置的条数。
func (h *RoomHandler) GetMessages(c *gin.Context) {
	roomID := c.Param("roomId")
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			logrus.WithFields(logrus.Fields{"room_id": roomID, "limit": raw}).Warn("Handler.GetMessages: Invalid limit")
			ErrorResponse(c, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	messages, err := h.chatService.History(c.Request.Context(), roomID, limit)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, MessagesResponse{RoomID: roomID, Messages: messages})
}
