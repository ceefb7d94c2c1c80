package hub

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Client 代表一个连接到 Hub 的 WebSocket 客户端。
type Client struct {
	hub            *Hub            // 指向其所属的 Hub
	conn           *websocket.Conn // WebSocket 连接
	id             string          // 连接 id，加入房间后即 socketId
	verifiedUserID string          // 握手时 token 校验得到的用户 id，可为空
	send           chan []byte     // 用于向此客户端发送消息的缓冲通道

	mu     sync.RWMutex
	closed bool
}

// NewClient 创建一个新的 Client 实例
func NewClient(hub *Hub, conn *websocket.Conn, verifiedUserID string) *Client {
	return &Client{
		hub:            hub,
		conn:           conn,
		id:             uuid.NewString(),
		verifiedUserID: verifiedUserID,
		send:           make(chan []byte, sendQueueSize),
	}
}

func (c *Client) ID() string { return c.id }

// VerifiedUserID 返回握手阶段认证过的用户 id。
func (c *Client) VerifiedUserID() string { return c.verifiedUserID }

// Send 非阻塞地把消息放入发送队列。队列满或已关闭时返回 false。
func (c *Client) Send(message []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

// Close 关闭发送队列，WritePump 随后发送关闭帧并退出。可重复调用。
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// Run 登记连接并启动读写 goroutine
func (c *Client) Run() {
	c.hub.Register(c)
	go c.WritePump()
	go c.ReadPump()
}

// ReadPump 读取入站消息并按到达顺序交给 Hub 处理。
// 它在自己的 goroutine 中运行。
func (c *Client) ReadPump() {
	logCtx := logrus.WithField("conn_id", c.id)
	defer func() {
		// 断线即离开
		c.hub.Disconnect(context.Background(), c.id)
		c.Close()
		c.conn.Close()
		logCtx.Info("readPump exited, connection unregistered")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logCtx.WithError(err).Warn("WebSocket read error (unexpected close)")
			} else {
				logCtx.Debug("WebSocket connection closed normally or read error")
			}
			break
		}
		if messageType != websocket.TextMessage {
			logCtx.Debugf("Received non-text message type: %d", messageType)
			continue
		}
		c.hub.Dispatch(context.Background(), c, message)
	}
}

// WritePump 将消息从 send 通道写到 WebSocket 连接，并定期发送 Ping。
// 它在自己的 goroutine 中运行。
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	logCtx := logrus.WithField("conn_id", c.id)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		logCtx.Debug("writePump exited")
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// 发送队列已关闭
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logCtx.WithError(err).Warn("Failed to write message to websocket")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logCtx.WithError(err).Warn("Failed to send ping message")
				return
			}
		}
	}
}
