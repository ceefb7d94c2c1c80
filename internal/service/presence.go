package service

import (
	"context"

	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/dto"

	"github.com/sirupsen/logrus"
)

// ParticipantList 由房间的在线连接推导出对外的参与者列表，没有独立状态。
func ParticipantList(room *domain.Room) []dto.ParticipantView {
	views := make([]dto.ParticipantView, 0, len(room.ActiveConnections))
	for _, c := range room.ActiveConnections {
		view := dto.ParticipantView{
			SocketID: c.ConnectionID,
			Name:     c.DisplayName,
			IsOwner:  c.IdentityKind == domain.IdentityUser && room.IsOwner(c.IdentityRef),
		}
		if c.IdentityKind == domain.IdentityGuest {
			view.GuestID = c.IdentityRef
		} else {
			view.UserID = c.IdentityRef
		}
		views = append(views, view)
	}
	return views
}

// PresenceService 负责把 activeConnections 与网关实际存活的连接对齐。
type PresenceService struct {
	rooms *RoomService
}

func NewPresenceService(rooms *RoomService) *PresenceService {
	if rooms == nil {
		panic("RoomService cannot be nil for PresenceService")
	}
	return &PresenceService{rooms: rooms}
}

// Reconcile 删除 isLive 认为已断开的连接记录。只有确实有过期连接时才写库。
// 返回对齐后的房间以及被删除的连接 id。
func (p *PresenceService) Reconcile(ctx context.Context, room *domain.Room, isLive func(connectionID string) bool) (*domain.Room, []string, error) {
	stale := room.StaleConnections(isLive)
	if len(stale) == 0 {
		return room, nil, nil
	}

	logrus.WithFields(logrus.Fields{
		"room_id":   room.ID,
		"operation": "presence_reconcile",
		"stale":     stale,
	}).Info("Pruning stale connections")

	updated, err := p.rooms.RemoveConnections(ctx, room.ID, stale...)
	if err != nil {
		return room, nil, err
	}
	return updated, stale, nil
}
