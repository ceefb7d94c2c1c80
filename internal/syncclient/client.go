// Package syncclient 是白板同步协议的 Go 客户端：维护本地画布镜像并与服务器事件保持一致。
package syncclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/dto"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// State 是客户端的同步状态
type State int

const (
	Disconnected State = iota
	Connected
	Joining
	Synced
	Superseded
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	case Joining:
		return "joining"
	case Synced:
		return "synced"
	case Superseded:
		return "superseded"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var (
	ErrClosed        = errors.New("connection closed")
	ErrNotSynced     = errors.New("client is not joined to a room")
	ErrJoinInFlight  = errors.New("join already in progress")
	ErrJoinRejected  = errors.New("join rejected")
	ErrSessionLost   = errors.New("session superseded by another connection")
	ErrInvalidUpdate = errors.New("invalid local update")
)

const (
	writeWait       = 10 * time.Second
	eventBufferSize = 256
)

// RemoteStroke 是其他参与者正在绘制、尚未提交的笔画
type RemoteStroke struct {
	SocketID string
	Color    string
	Width    float64
	Points   []domain.Point
}

// Client 是一个房间会话的客户端。所有方法都可以并发调用。
type Client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu           sync.Mutex
	state        State
	canvas       *domain.CanvasState
	socketID     string
	roomID       string
	documentID   string
	role         domain.Role
	participants []dto.ParticipantView
	messages     []domain.ChatMessage
	inProgress   map[string]*RemoteStroke
	localStrokes []string
	join         *joinWait

	events chan dto.Envelope
	done   chan struct{}
}

// joinWait 跟踪一次 join 是否已经收到 room-joined 和 canvas-state
type joinWait struct {
	gotJoined bool
	gotCanvas bool
	result    chan error
}

// Dial 连接到 ws 地址，例如 ws://localhost:8080/ws。token 非空时作为查询参数携带。
func Dial(ctx context.Context, url, token string) (*Client, error) {
	if token != "" {
		sep := "?"
		if strings.Contains(url, "?") {
			sep = "&"
		}
		url += sep + "token=" + token
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, http.Header{})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return New(conn), nil
}

// New 包装一条已建立的连接并启动读循环
func New(conn *websocket.Conn) *Client {
	c := &Client{
		conn:       conn,
		state:      Connected,
		canvas:     domain.NewCanvasState(),
		inProgress: make(map[string]*RemoteStroke),
		events:     make(chan dto.Envelope, eventBufferSize),
		done:       make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Events 返回所有收到的服务器事件。观察者消费不及时时旧事件会被丢弃。连接关闭后通道关闭。
func (c *Client) Events() <-chan dto.Envelope { return c.events }

// Done 在连接关闭后关闭
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) SocketID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.socketID
}

func (c *Client) RoomID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

func (c *Client) DocumentID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.documentID
}

func (c *Client) Role() domain.Role {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.role
}

// Canvas 返回本地画布镜像的副本
func (c *Client) Canvas() *domain.CanvasState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canvas.Clone()
}

func (c *Client) Participants() []dto.ParticipantView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]dto.ParticipantView(nil), c.participants...)
}

func (c *Client) Messages() []domain.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.ChatMessage(nil), c.messages...)
}

// InProgress 返回某条远端笔画当前收到的点
func (c *Client) InProgress(strokeID string) (RemoteStroke, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rs, ok := c.inProgress[strokeID]
	if !ok {
		return RemoteStroke{}, false
	}
	out := *rs
	out.Points = append([]domain.Point(nil), rs.Points...)
	return out, true
}

// Join 发送 join-room 并阻塞到收到 room-joined 和 canvas-state，
// 或者收到 error、连接关闭、ctx 到期。
func (c *Client) Join(ctx context.Context, req dto.JoinRoom) error {
	c.mu.Lock()
	switch c.state {
	case Disconnected:
		c.mu.Unlock()
		return ErrClosed
	case Joining:
		c.mu.Unlock()
		return ErrJoinInFlight
	}
	wait := &joinWait{result: make(chan error, 1)}
	c.join = wait
	c.state = Joining
	c.mu.Unlock()

	if err := c.send(dto.EventJoinRoom, req); err != nil {
		c.abortJoin(wait, Connected)
		return err
	}

	select {
	case err := <-wait.result:
		return err
	case <-ctx.Done():
		c.abortJoin(wait, Connected)
		return ctx.Err()
	}
}

func (c *Client) abortJoin(wait *joinWait, to State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.join == wait {
		c.join = nil
		if c.state == Joining {
			c.state = to
		}
	}
}

// Leave 离开当前房间，回到 Connected
func (c *Client) Leave() error {
	if err := c.send(dto.EventLeaveRoom, nil); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Synced {
		c.state = Connected
	}
	c.participants = nil
	c.inProgress = make(map[string]*RemoteStroke)
	return nil
}

func (c *Client) requireSynced() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case Synced:
		return nil
	case Superseded:
		return ErrSessionLost
	case Disconnected:
		return ErrClosed
	}
	return ErrNotSynced
}

// DrawStroke 乐观地把笔画加入本地镜像，然后发送给服务器
func (c *Client) DrawStroke(stroke domain.Stroke) error {
	if stroke.ID == "" || len(stroke.Points) == 0 {
		return ErrInvalidUpdate
	}
	if err := c.requireSynced(); err != nil {
		return err
	}
	c.mu.Lock()
	c.canvas.AppendStroke(stroke)
	c.localStrokes = append(c.localStrokes, stroke.ID)
	c.mu.Unlock()
	return c.send(dto.EventDrawStroke, dto.DrawStroke{Stroke: stroke})
}

// DrawPoint 发送绘制中的一个点，只用于实时预览，不改变本地镜像
func (c *Client) DrawPoint(strokeID string, p domain.Point, color string, width float64) error {
	if err := c.requireSynced(); err != nil {
		return err
	}
	return c.send(dto.EventDrawPoint, dto.DrawPoint{Point: &p, StrokeID: strokeID, Color: color, Width: width})
}

func (c *Client) ClearCanvas() error {
	if err := c.requireSynced(); err != nil {
		return err
	}
	c.mu.Lock()
	c.canvas.ClearStrokes()
	c.localStrokes = nil
	c.mu.Unlock()
	return c.send(dto.EventClearCanvas, dto.ClearCanvas{})
}

// Undo 撤销自己最后一笔。只有这一笔仍在最上面时才会生效，返回是否撤销了。
func (c *Client) Undo() (bool, error) {
	if err := c.requireSynced(); err != nil {
		return false, err
	}
	c.mu.Lock()
	if len(c.localStrokes) == 0 {
		c.mu.Unlock()
		return false, nil
	}
	id := c.localStrokes[len(c.localStrokes)-1]
	_, popped := c.canvas.PopStroke(id)
	if popped {
		c.localStrokes = c.localStrokes[:len(c.localStrokes)-1]
	}
	c.mu.Unlock()
	if !popped {
		return false, nil
	}
	return true, c.send(dto.EventUndoStroke, dto.UndoStroke{StrokeID: id})
}

func (c *Client) AddItem(kind domain.ItemKind, item domain.Item) error {
	if !kind.Valid() || item.ID() == "" {
		return ErrInvalidUpdate
	}
	if err := c.requireSynced(); err != nil {
		return err
	}
	c.mu.Lock()
	err := c.canvas.AddItem(kind, item)
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidUpdate, err)
	}
	return c.send(dto.ItemEventName("add", kind), map[string]any{"item": item})
}

func (c *Client) UpdateItem(kind domain.ItemKind, id string, updates map[string]any) error {
	if !kind.Valid() || id == "" {
		return ErrInvalidUpdate
	}
	if err := c.requireSynced(); err != nil {
		return err
	}
	c.mu.Lock()
	c.canvas.UpdateItem(kind, id, updates)
	c.mu.Unlock()
	return c.send(dto.ItemEventName("update", kind), dto.UpdateItem{ID: id, Updates: updates})
}

func (c *Client) DeleteItem(kind domain.ItemKind, id string) error {
	if !kind.Valid() || id == "" {
		return ErrInvalidUpdate
	}
	if err := c.requireSynced(); err != nil {
		return err
	}
	c.mu.Lock()
	c.canvas.DeleteItem(kind, id)
	c.mu.Unlock()
	return c.send(dto.ItemEventName("delete", kind), dto.DeleteItem{ID: id})
}

func (c *Client) MoveCursor(p domain.Point) error {
	if err := c.requireSynced(); err != nil {
		return err
	}
	return c.send(dto.EventCursorMove, dto.CursorMove{Position: &p})
}

// SendMessage 发送聊天消息。消息在服务器回显 receive-message 后才进入本地记录。
func (c *Client) SendMessage(content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrInvalidUpdate
	}
	if err := c.requireSynced(); err != nil {
		return err
	}
	return c.send(dto.EventSendMessage, dto.SendMessage{Content: content})
}

// RequestCanvasState 请求服务器重发完整画布，收到后替换本地镜像
func (c *Client) RequestCanvasState() error {
	if err := c.requireSynced(); err != nil {
		return err
	}
	return c.send(dto.EventRequestCanvasState, nil)
}

func (c *Client) RequestParticipants() error {
	if err := c.requireSynced(); err != nil {
		return err
	}
	return c.send(dto.EventGetParticipants, nil)
}

// Close 关闭连接
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	err := c.conn.Close()
	<-c.done
	return err
}

func (c *Client) send(event string, data any) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	message, err := dto.Encode(event, data)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		return fmt.Errorf("write %s: %w", event, err)
	}
	return nil
}

func (c *Client) readLoop() {
	defer func() {
		c.mu.Lock()
		c.state = Disconnected
		if c.join != nil {
			c.join.result <- ErrClosed
			c.join = nil
		}
		c.mu.Unlock()
		close(c.done)
		close(c.events)
	}()

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logrus.WithError(err).Debug("syncclient: connection closed unexpectedly")
			}
			return
		}
		env, err := dto.DecodeEnvelope(message)
		if err != nil {
			logrus.WithError(err).Warn("syncclient: dropping undecodable server message")
			continue
		}
		if err := c.apply(env); err != nil {
			logrus.WithField("event", env.Event).WithError(err).Warn("syncclient: failed to apply server event")
		}
		select {
		case c.events <- env:
		default:
		}
	}
}

// apply 把一条服务器事件应用到本地状态
func (c *Client) apply(env dto.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch env.Event {
	case dto.EventChatHistory:
		var p dto.ChatHistoryPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return err
		}
		c.messages = p.Messages

	case dto.EventCanvasState:
		state := domain.NewCanvasState()
		if err := json.Unmarshal(env.Data, state); err != nil {
			return err
		}
		state.Normalize()
		c.canvas = state
		c.inProgress = make(map[string]*RemoteStroke)
		if c.join != nil {
			c.join.gotCanvas = true
			c.completeJoinLocked()
		}

	case dto.EventRoomJoined:
		var p dto.RoomJoinedPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return err
		}
		c.socketID, c.roomID, c.documentID, c.role = p.SocketID, p.RoomID, p.DocumentID, p.Role
		c.participants = p.Participants
		if c.join != nil {
			c.join.gotJoined = true
			c.completeJoinLocked()
		}

	case dto.EventUserJoined:
		var p dto.UserJoinedPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return err
		}
		c.participants = p.Participants

	case dto.EventUserLeft:
		var p dto.UserLeftPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return err
		}
		c.participants = p.Participants

	case dto.EventParticipantsList:
		var p dto.ParticipantsListPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return err
		}
		c.participants = p.Participants

	case dto.EventReceiveMessage:
		var p dto.ReceiveMessagePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return err
		}
		c.messages = append(c.messages, p.Message)

	case dto.EventPointDrawn:
		var p dto.PointDrawnPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return err
		}
		rs, ok := c.inProgress[p.StrokeID]
		if !ok {
			rs = &RemoteStroke{SocketID: p.SocketID, Color: p.Color, Width: p.Width}
			c.inProgress[p.StrokeID] = rs
		}
		rs.Points = append(rs.Points, p.Point)

	case dto.EventStrokeDrawn:
		var p dto.StrokeDrawnPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return err
		}
		delete(c.inProgress, p.Stroke.ID)
		c.canvas.AppendStroke(p.Stroke)

	case dto.EventCanvasCleared:
		c.canvas.ClearStrokes()
		c.localStrokes = nil

	case dto.EventStrokeUndone:
		var p dto.StrokeUndonePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return err
		}
		c.canvas.PopStroke(p.StrokeID)

	case dto.EventSessionSuperseded:
		c.state = Superseded
		c.participants = nil

	case dto.EventError:
		var p dto.ErrorPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return err
		}
		if c.join != nil {
			c.join.result <- fmt.Errorf("%w: %s", ErrJoinRejected, p.Message)
			c.join = nil
			c.state = Connected
		}

	default:
		return c.applyItemLocked(env)
	}
	return nil
}

func (c *Client) completeJoinLocked() {
	if !c.join.gotJoined || !c.join.gotCanvas {
		return
	}
	c.state = Synced
	c.localStrokes = nil
	c.join.result <- nil
	c.join = nil
}

// applyItemLocked 处理 <kind>-added/updated/deleted
func (c *Client) applyItemLocked(env dto.Envelope) error {
	idx := strings.LastIndex(env.Event, "-")
	if idx <= 0 {
		return nil
	}
	kind := domain.ItemKind(env.Event[:idx])
	if !kind.Valid() {
		return nil
	}
	switch env.Event[idx+1:] {
	case "added":
		var p dto.ItemAddedPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return err
		}
		return c.canvas.AddItem(kind, p.Item)
	case "updated":
		var p dto.ItemUpdatedPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return err
		}
		c.canvas.UpdateItem(kind, p.ID, p.Updates)
	case "deleted":
		var p dto.ItemDeletedPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return err
		}
		c.canvas.DeleteItem(kind, p.ID)
	}
	return nil
}
