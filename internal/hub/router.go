package hub

import (
	"context"
	"errors"
	"fmt"

	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/dto"
	"collaborative-whiteboard/internal/metrics"
	"collaborative-whiteboard/internal/service"

	"github.com/sirupsen/logrus"
)

// gateway 是 Router 需要的会话操作，由 Hub 实现。
type gateway interface {
	Join(ctx context.Context, conn ConnectionHandle, req dto.JoinRoom)
	Leave(ctx context.Context, connID string)
	Participants(ctx context.Context, roomID string) ([]dto.ParticipantView, error)
}

// Router 解码入站事件并分发：持久事件先写存储再广播，临时事件只转发。
type Router struct {
	table   *ConnectionTable
	gateway gateway
	canvas  *service.CanvasService
	chat    *service.ChatService
	metrics *metrics.Metrics
	out     *fanout
}

// NewRouter 创建事件路由。连接表由网关注入。
func NewRouter(table *ConnectionTable, gw gateway, canvas *service.CanvasService, chat *service.ChatService, m *metrics.Metrics) *Router {
	if table == nil || gw == nil || canvas == nil || chat == nil {
		panic("ConnectionTable, gateway, CanvasService and ChatService cannot be nil for Router")
	}
	return &Router{
		table:   table,
		gateway: gw,
		canvas:  canvas,
		chat:    chat,
		metrics: m,
		out:     &fanout{table: table, metrics: m},
	}
}

// Route 处理一条原始消息。格式错误的消息只回一个 error 给发送方。
func (r *Router) Route(ctx context.Context, conn ConnectionHandle, raw []byte) {
	event, err := dto.Decode(raw)
	if err != nil {
		r.metrics.RecordMalformed()
		logrus.WithField("conn_id", conn.ID()).WithError(err).Warn("Dropping malformed event")
		r.out.sendError(conn, err.Error())
		return
	}
	r.metrics.RecordEvent(event.EventName())

	switch ev := event.(type) {
	case dto.JoinRoom:
		r.gateway.Join(ctx, conn, ev)
		return
	case dto.LeaveRoom:
		r.gateway.Leave(ctx, conn.ID())
		return
	}

	sess, ok := r.table.Session(conn.ID())
	if !ok {
		r.out.sendError(conn, service.ErrNotInRoom.Error())
		return
	}
	logCtx := logrus.WithFields(logrus.Fields{
		"room_id": sess.RoomID,
		"conn_id": sess.ConnectionID,
		"event":   event.EventName(),
	})

	if event.Durability() == dto.Persisted {
		r.routePersisted(ctx, conn, sess, logCtx, event)
		return
	}
	r.routeEphemeral(ctx, conn, sess, logCtx, event)
}

// delivery 是持久事件写入后要广播的消息
type delivery struct {
	operation string
	exclude   string // 为空时连发送方一起广播
	event     string
	payload   any
}

// rejection 表示事件被拒绝：只回 error 给发送方，不广播
type rejection struct {
	operation string
	message   string
	err       error
}

func (e *rejection) Error() string { return e.message + ": " + e.err.Error() }
func (e *rejection) Unwrap() error { return e.err }

// routePersisted 先写存储再广播。存储失败只记录，广播照常进行。
func (r *Router) routePersisted(ctx context.Context, conn ConnectionHandle, sess Session, logCtx *logrus.Entry, event dto.Event) {
	d, err := r.persist(ctx, conn.ID(), sess, logCtx, event)
	var rej *rejection
	switch {
	case errors.As(err, &rej):
		if errors.Is(rej.err, service.ErrPersistenceFailure) {
			r.metrics.RecordPersistenceFailure(rej.operation)
		}
		logCtx.WithError(rej.err).Warn("Event rejected")
		r.out.sendError(conn, rej.message)
		return
	case err != nil && d != nil:
		r.persistFailed(logCtx, d.operation, err)
	case err != nil:
		logCtx.WithError(err).Error("Failed to persist event")
		return
	}
	if d == nil {
		return
	}
	r.out.broadcast(sess.RoomID, d.exclude, d.event, d.payload)
}

// persist 执行一个持久事件的存储写入，返回要广播的消息。
// 返回 nil delivery 表示没有需要广播的变化。
func (r *Router) persist(ctx context.Context, connID string, sess Session, logCtx *logrus.Entry, event dto.Event) (*delivery, error) {
	switch ev := event.(type) {
	case dto.DrawStroke:
		d := &delivery{operation: "append_stroke", exclude: connID, event: dto.EventStrokeDrawn,
			payload: dto.StrokeDrawnPayload{SocketID: connID, Stroke: ev.Stroke}}
		return d, r.canvas.AppendStroke(ctx, documentFor(sess, ev.MeetingID), ev.Stroke)

	case dto.ClearCanvas:
		d := &delivery{operation: "clear_strokes", exclude: connID, event: dto.EventCanvasCleared,
			payload: dto.CanvasClearedPayload{SocketID: connID}}
		return d, r.canvas.ClearStrokes(ctx, documentFor(sess, ev.MeetingID))

	case dto.UndoStroke:
		popped, applied, err := r.canvas.UndoStroke(ctx, documentFor(sess, ev.MeetingID), ev.StrokeID)
		d := &delivery{operation: "undo_stroke", exclude: connID, event: dto.EventStrokeUndone,
			payload: dto.StrokeUndonePayload{SocketID: connID, StrokeID: ev.StrokeID}}
		switch {
		case err != nil:
			return d, err
		case !applied:
			logCtx.Debug("Undo had nothing to remove")
			return nil, nil
		}
		d.payload = dto.StrokeUndonePayload{SocketID: connID, StrokeID: popped.ID}
		return d, nil

	case dto.SendMessage:
		msg, err := r.chat.Send(ctx, domain.ChatMessage{
			RoomID:     sess.RoomID,
			DocumentID: documentFor(sess, ev.MeetingID),
			SenderRef:  sess.IdentityRef,
			SenderKind: sess.IdentityKind,
			SenderName: sess.DisplayName,
			Content:    ev.Content,
		})
		if err != nil {
			return nil, &rejection{operation: "chat_send", message: "failed to send message", err: err}
		}
		return &delivery{operation: "chat_send", event: dto.EventReceiveMessage,
			payload: dto.ReceiveMessagePayload{Message: *msg}}, nil

	case dto.AddItem:
		operation := "add_" + string(ev.Kind)
		err := r.canvas.AddItem(ctx, documentFor(sess, ev.MeetingID), ev.Kind, ev.Item)
		if errors.Is(err, service.ErrInvalidInput) {
			return nil, &rejection{operation: operation, message: err.Error(), err: err}
		}
		return &delivery{operation: operation, exclude: connID, event: dto.ItemAddedEvent(ev.Kind),
			payload: dto.ItemAddedPayload{SocketID: connID, Kind: ev.Kind, Item: ev.Item}}, err

	case dto.UpdateItem:
		operation := "update_" + string(ev.Kind)
		applied, err := r.canvas.UpdateItem(ctx, documentFor(sess, ev.MeetingID), ev.Kind, ev.ID, ev.Updates)
		if errors.Is(err, service.ErrInvalidInput) {
			return nil, &rejection{operation: operation, message: err.Error(), err: err}
		}
		if err == nil && !applied {
			logCtx.WithField("item_id", ev.ID).Debug("Update for unknown item ignored")
			return nil, nil
		}
		return &delivery{operation: operation, exclude: connID, event: dto.ItemUpdatedEvent(ev.Kind),
			payload: dto.ItemUpdatedPayload{SocketID: connID, Kind: ev.Kind, ID: ev.ID, Updates: ev.Updates}}, err

	case dto.DeleteItem:
		operation := "delete_" + string(ev.Kind)
		applied, err := r.canvas.DeleteItem(ctx, documentFor(sess, ev.MeetingID), ev.Kind, ev.ID)
		if errors.Is(err, service.ErrInvalidInput) {
			return nil, &rejection{operation: operation, message: err.Error(), err: err}
		}
		if err == nil && !applied {
			logCtx.WithField("item_id", ev.ID).Debug("Delete for unknown item ignored")
			return nil, nil
		}
		return &delivery{operation: operation, exclude: connID, event: dto.ItemDeletedEvent(ev.Kind),
			payload: dto.ItemDeletedPayload{SocketID: connID, Kind: ev.Kind, ID: ev.ID}}, err
	}
	return nil, fmt.Errorf("no persistence for event %s", event.EventName())
}

// routeEphemeral 处理不写存储的事件：直接转发或回复发送方。
func (r *Router) routeEphemeral(ctx context.Context, conn ConnectionHandle, sess Session, logCtx *logrus.Entry, event dto.Event) {
	switch ev := event.(type) {
	case dto.GetParticipants:
		participants, err := r.gateway.Participants(ctx, sess.RoomID)
		if err != nil {
			logCtx.WithError(err).Warn("Participants unavailable, answering from live view")
			participants = nil
			for _, s := range r.table.Sessions(sess.RoomID) {
				participants = append(participants, sessionView(s))
			}
		}
		r.out.sendTo(conn, dto.EventParticipantsList, dto.ParticipantsListPayload{Participants: participants})

	case dto.DrawPoint:
		r.out.broadcast(sess.RoomID, conn.ID(), dto.EventPointDrawn, dto.PointDrawnPayload{
			SocketID: conn.ID(),
			Point:    *ev.Point,
			StrokeID: ev.StrokeID,
			Color:    ev.Color,
			Width:    ev.Width,
		})

	case dto.RequestCanvasState:
		state, err := r.canvas.Load(ctx, documentFor(sess, ev.MeetingID))
		if err != nil {
			logCtx.WithError(err).Error("Failed to load canvas state")
			r.out.sendError(conn, "failed to load canvas state")
			return
		}
		r.out.sendTo(conn, dto.EventCanvasState, state)

	case dto.CursorMove:
		r.out.broadcast(sess.RoomID, conn.ID(), dto.EventCursorMoved, dto.CursorMovedPayload{
			SocketID: conn.ID(),
			Name:     sess.DisplayName,
			Position: *ev.Position,
		})

	default:
		logCtx.Warn("Unhandled event type")
	}
}

func (r *Router) persistFailed(logCtx *logrus.Entry, operation string, err error) {
	r.metrics.RecordPersistenceFailure(operation)
	logCtx.WithField("operation", operation).WithError(err).Error("Failed to persist canvas change, relaying anyway")
}

// documentFor 以会话绑定的文档为准，meetingId 只在会话缺少文档时使用
func documentFor(sess Session, meetingID string) string {
	if sess.DocumentID != "" {
		return sess.DocumentID
	}
	return meetingID
}

func sessionView(s Session) dto.ParticipantView {
	view := dto.ParticipantView{SocketID: s.ConnectionID, Name: s.DisplayName, IsOwner: s.Role == domain.RoleOwner}
	if s.IdentityKind == domain.IdentityGuest {
		view.GuestID = s.IdentityRef
	} else {
		view.UserID = s.IdentityRef
	}
	return view
}
