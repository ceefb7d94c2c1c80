package websocket

import (
	"net/http"
	"strings"

	"collaborative-whiteboard/internal/hub"
	"collaborative-whiteboard/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// WebSocketHandler 负责处理 WebSocket 升级请求并把连接交给 Hub
type WebSocketHandler struct {
	upgrader websocket.Upgrader
	hub      *hub.Hub
}

// NewWebSocketHandler 创建 WebSocketHandler 实例。allowedOrigin 为空或 "*" 时允许所有来源。
func NewWebSocketHandler(h *hub.Hub, allowedOrigin string) *WebSocketHandler {
	if h == nil {
		panic("Hub cannot be nil for WebSocketHandler")
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if allowedOrigin == "" || allowedOrigin == "*" {
				return true
			}
			origin := r.Header.Get("Origin")
			return origin == "" || strings.EqualFold(origin, allowedOrigin)
		},
	}

	return &WebSocketHandler{upgrader: upgrader, hub: h}
}

// HandleConnection 处理 GET /ws。房间在连接建立后通过 join-room 事件选择。
// 如果 OptionalAuth 中间件校验过 token，认证的用户 id 会覆盖 join-room 中声明的身份。
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	verifiedUserID := middleware.UserID(c)
	logCtx := logrus.WithFields(logrus.Fields{"remote_addr": c.ClientIP(), "user_id": verifiedUserID})

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 已经写回了 HTTP 错误
		logCtx.WithError(err).Error("WS Handler: Failed to upgrade connection")
		return
	}

	client := hub.NewClient(h.hub, conn, verifiedUserID)
	client.Run()
	logCtx.WithField("conn_id", client.ID()).Info("WS Handler: Connection upgraded, pumps started")
}
