package hub

import (
	"context"
	"errors"
	"time"

	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/dto"
	"collaborative-whiteboard/internal/metrics"
	"collaborative-whiteboard/internal/service"

	"github.com/sirupsen/logrus"
)

// 包级别的 WebSocket 常量，供 hub 和 client 使用
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024

	// 每个连接发送队列的容量
	sendQueueSize = 256
)

// Hub 是会话网关：管理连接的加入、离开、断开和会话替换，并把入站事件交给 Router。
type Hub struct {
	table    *ConnectionTable
	rooms    *service.RoomService
	presence *service.PresenceService
	canvas   *service.CanvasService
	chat     *service.ChatService
	metrics  *metrics.Metrics
	out      *fanout
	router   *Router
}

// NewHub 创建 Hub。table 为 nil 时新建一个；m 可以为 nil。
func NewHub(
	table *ConnectionTable,
	rooms *service.RoomService,
	presence *service.PresenceService,
	canvas *service.CanvasService,
	chat *service.ChatService,
	m *metrics.Metrics,
) *Hub {
	if rooms == nil || presence == nil || canvas == nil || chat == nil {
		panic("RoomService, PresenceService, CanvasService and ChatService cannot be nil for Hub")
	}
	if table == nil {
		table = NewConnectionTable()
	}
	h := &Hub{
		table:    table,
		rooms:    rooms,
		presence: presence,
		canvas:   canvas,
		chat:     chat,
		metrics:  m,
		out:      &fanout{table: table, metrics: m},
	}
	h.router = NewRouter(table, h, canvas, chat, m)
	return h
}

// Table 返回网关持有的连接表。
func (h *Hub) Table() *ConnectionTable { return h.table }

// Register 登记一条新接入的连接。
func (h *Hub) Register(conn ConnectionHandle) {
	h.table.Register(conn)
	h.metrics.ConnectionOpened()
	logrus.WithField("conn_id", conn.ID()).Info("Connection registered")
}

// Dispatch 处理一条入站消息。同一连接的消息需按顺序调用。
func (h *Hub) Dispatch(ctx context.Context, conn ConnectionHandle, message []byte) {
	h.router.Route(ctx, conn, message)
}

// Join 把连接绑定到房间。依次：离开之前的房间、确保房间存在、准入检查、
// 替换同一身份的旧会话、对齐在线列表、登记成员与连接、私发初始状态、通知其他人。
func (h *Hub) Join(ctx context.Context, conn ConnectionHandle, req dto.JoinRoom) {
	identityRef, kind := req.IdentityRef()
	if v, ok := conn.(interface{ VerifiedUserID() string }); ok && v.VerifiedUserID() != "" {
		identityRef, kind = v.VerifiedUserID(), domain.IdentityUser
	}
	logCtx := logrus.WithFields(logrus.Fields{
		"room_id":  req.RoomID,
		"conn_id":  conn.ID(),
		"identity": identityRef,
		"event":    dto.EventJoinRoom,
	})

	if prev, ok := h.table.Session(conn.ID()); ok && prev.RoomID != req.RoomID {
		logCtx.WithField("previous_room_id", prev.RoomID).Info("Switching rooms, leaving previous room")
		h.Leave(ctx, conn.ID())
	}

	room, err := h.rooms.EnsureRoom(ctx, req.RoomID, req.DocumentID)
	if err != nil {
		logCtx.WithError(err).Warn("Join rejected: room could not be resolved")
		h.out.sendError(conn, joinErrorMessage(err))
		return
	}
	if err := h.rooms.Admit(room, kind); err != nil {
		logCtx.WithError(err).Warn("Join rejected by admission")
		h.out.sendError(conn, joinErrorMessage(err))
		return
	}

	room, _ = h.supersede(ctx, room, identityRef, conn.ID())
	room = h.reconcile(ctx, room)

	role := room.ResolveRole(identityRef, kind, req.Role)
	now := time.Now().UTC()
	name := req.Name
	if name == "" {
		name = identityRef
	}
	room, err = h.rooms.AddMember(ctx, room.ID,
		domain.Participant{IdentityRef: identityRef, IdentityKind: kind, DisplayName: name, Role: role, JoinedAt: now},
		domain.Connection{ConnectionID: conn.ID(), IdentityRef: identityRef, IdentityKind: kind, DisplayName: name, ConnectedAt: now},
	)
	if err != nil {
		logCtx.WithError(err).Error("Join failed: could not update room registry")
		h.out.sendError(conn, "failed to join room")
		return
	}

	if !h.table.Bind(Session{
		ConnectionID: conn.ID(),
		RoomID:       room.ID,
		DocumentID:   room.DocumentID,
		IdentityRef:  identityRef,
		IdentityKind: kind,
		DisplayName:  name,
		Role:         role,
	}) {
		// 连接在加入过程中断开了
		logCtx.Warn("Connection went away during join, rolling back registry entry")
		if _, err := h.rooms.RemoveConnections(ctx, room.ID, conn.ID()); err != nil {
			logCtx.WithError(err).Error("Failed to roll back connection entry")
		}
		return
	}
	h.metrics.SetActiveRooms(len(h.table.RoomIDs()))

	history, err := h.chat.History(ctx, room.ID, 0)
	if err != nil {
		logCtx.WithError(err).Warn("Chat history unavailable, sending empty history")
		history = []domain.ChatMessage{}
	}
	h.out.sendTo(conn, dto.EventChatHistory, dto.ChatHistoryPayload{Messages: history})

	state, err := h.canvas.Load(ctx, room.DocumentID)
	if err != nil {
		logCtx.WithError(err).Error("Failed to load canvas state for joining connection")
		h.out.sendError(conn, "failed to load canvas state")
	} else {
		h.out.sendTo(conn, dto.EventCanvasState, state)
	}

	participants := service.ParticipantList(room)
	h.out.sendTo(conn, dto.EventRoomJoined, dto.RoomJoinedPayload{
		RoomID:       room.ID,
		DocumentID:   room.DocumentID,
		SocketID:     conn.ID(),
		Participants: participants,
		Role:         role,
	})

	joined := dto.UserJoinedPayload{SocketID: conn.ID(), Name: name, Participants: participants}
	if kind == domain.IdentityGuest {
		joined.GuestID = identityRef
	} else {
		joined.UserID = identityRef
	}
	h.out.broadcast(room.ID, conn.ID(), dto.EventUserJoined, joined)

	logCtx.WithFields(logrus.Fields{"role": role, "participants": len(participants)}).Info("Connection joined room")
}

// joinErrorMessage 返回给加入方的可读错误
func joinErrorMessage(err error) string {
	switch {
	case errors.Is(err, service.ErrRoomInitFailed):
		return "room init failed: document not found"
	case errors.Is(err, service.ErrGuestsNotAllowed):
		return "guests are not allowed in this room"
	case errors.Is(err, service.ErrInvalidInput):
		return "invalid join request"
	default:
		return "failed to join room"
	}
}

// Supersede 删除 identityRef 在房间内除 keepConnID 以外的所有会话：
// 从注册表删除、通知旧连接 session-superseded 并解除绑定、通知其他人 user-left。
// 返回被替换的连接 id。
func (h *Hub) Supersede(ctx context.Context, roomID, identityRef, keepConnID string) ([]string, error) {
	room, err := h.rooms.FindRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	_, removed := h.supersede(ctx, room, identityRef, keepConnID)
	return removed, nil
}

func (h *Hub) supersede(ctx context.Context, room *domain.Room, identityRef, keepConnID string) (*domain.Room, []string) {
	ids := room.ConnectionsFor(identityRef, keepConnID)
	for _, id := range h.table.BoundTo(room.ID, identityRef, keepConnID) {
		if !contains(ids, id) {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return room, nil
	}
	logCtx := logrus.WithFields(logrus.Fields{
		"room_id":    room.ID,
		"identity":   identityRef,
		"conn_id":    keepConnID,
		"superseded": ids,
		"operation":  "supersede",
	})

	updated, err := h.rooms.RemoveConnections(ctx, room.ID, ids...)
	if err != nil {
		logCtx.WithError(err).Error("Failed to remove superseded connections from registry")
		updated = room
	}

	for _, id := range ids {
		if handle, ok := h.table.Handle(id); ok {
			h.out.sendTo(handle, dto.EventSessionSuperseded, dto.SessionSupersededPayload{SocketID: id, RoomID: room.ID})
		}
		h.table.Unbind(id)
	}
	participants := service.ParticipantList(updated)
	for _, id := range ids {
		h.out.broadcast(room.ID, keepConnID, dto.EventUserLeft, dto.UserLeftPayload{SocketID: id, Participants: participants})
	}
	logCtx.Info("Superseded previous sessions of identity")
	return updated, ids
}

// Leave 解除连接的房间绑定，删除其连接记录并通知其他人。离开和断线共用此路径。
func (h *Hub) Leave(ctx context.Context, connID string) {
	sess, ok := h.table.Unbind(connID)
	if !ok {
		return
	}
	h.afterLeave(ctx, sess)
}

func (h *Hub) afterLeave(ctx context.Context, sess Session) {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": sess.RoomID, "conn_id": sess.ConnectionID, "identity": sess.IdentityRef})

	var participants []dto.ParticipantView
	room, err := h.rooms.RemoveConnections(ctx, sess.RoomID, sess.ConnectionID)
	if err != nil {
		logCtx.WithError(err).Error("Failed to remove connection from registry, falling back to live view")
		participants = h.liveParticipants(sess.RoomID)
	} else {
		participants = service.ParticipantList(room)
	}

	h.out.broadcast(sess.RoomID, sess.ConnectionID, dto.EventUserLeft, dto.UserLeftPayload{
		SocketID:     sess.ConnectionID,
		Participants: participants,
	})
	h.metrics.SetActiveRooms(len(h.table.RoomIDs()))
	logCtx.Info("Connection left room")
}

// liveParticipants 根据连接表构造参与者列表，注册表不可用时使用
func (h *Hub) liveParticipants(roomID string) []dto.ParticipantView {
	sessions := h.table.Sessions(roomID)
	views := make([]dto.ParticipantView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, sessionView(s))
	}
	return views
}

// Disconnect 在传输层断开后调用：执行离开流程并删除连接。
func (h *Hub) Disconnect(ctx context.Context, connID string) {
	sess, bound := h.table.Unregister(connID)
	h.metrics.ConnectionClosed()
	if bound {
		h.afterLeave(ctx, sess)
	}
	logrus.WithField("conn_id", connID).Info("Connection disconnected")
}

// Participants 对齐在线列表后返回房间的参与者视图。
func (h *Hub) Participants(ctx context.Context, roomID string) ([]dto.ParticipantView, error) {
	room, err := h.rooms.FindRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return service.ParticipantList(h.reconcile(ctx, room)), nil
}

// Reconcile 对单个房间执行一次在线列表对齐。
func (h *Hub) Reconcile(ctx context.Context, roomID string) error {
	room, err := h.rooms.FindRoom(ctx, roomID)
	if err != nil {
		return err
	}
	h.reconcile(ctx, room)
	return nil
}

// ReconcileAll 对所有有绑定连接的房间执行对齐，返回处理的房间数。
func (h *Hub) ReconcileAll(ctx context.Context) int {
	roomIDs := h.table.RoomIDs()
	for _, roomID := range roomIDs {
		if err := h.Reconcile(ctx, roomID); err != nil {
			logrus.WithField("room_id", roomID).WithError(err).Warn("Presence reconcile failed")
		}
	}
	return len(roomIDs)
}

// ActiveRoomIDs 返回当前有绑定连接的房间。
func (h *Hub) ActiveRoomIDs() []string {
	return h.table.RoomIDs()
}

// reconcile 删除已不存活的连接记录，并为每个被删除的连接通知 user-left
func (h *Hub) reconcile(ctx context.Context, room *domain.Room) *domain.Room {
	updated, pruned, err := h.presence.Reconcile(ctx, room, h.table.IsLive)
	if err != nil {
		logrus.WithField("room_id", room.ID).WithError(err).Warn("Presence reconcile failed, keeping current view")
		return room
	}
	if len(pruned) > 0 {
		participants := service.ParticipantList(updated)
		for _, id := range pruned {
			h.out.broadcast(room.ID, "", dto.EventUserLeft, dto.UserLeftPayload{SocketID: id, Participants: participants})
		}
	}
	return updated
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
