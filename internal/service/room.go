package service

import (
	"context"
	"errors"

	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/repository"

	"github.com/sirupsen/logrus"
)

// RoomService 负责房间注册表相关的业务逻辑：首次加入时建房、准入检查、成员与连接变更。
type RoomService struct {
	roomRepo repository.RoomRepository
	docRepo  repository.DocumentRepository
}

// NewRoomService 创建 RoomService 实例。
func NewRoomService(roomRepo repository.RoomRepository, docRepo repository.DocumentRepository) *RoomService {
	if roomRepo == nil || docRepo == nil {
		panic("RoomRepository and DocumentRepository cannot be nil for RoomService")
	}
	return &RoomService{roomRepo: roomRepo, docRepo: docRepo}
}

// EnsureRoom 返回房间；房间不存在时根据文档创建。
// documentID 为空时默认等于 roomID。文档不存在返回 ErrRoomInitFailed，且不会创建房间。
func (s *RoomService) EnsureRoom(ctx context.Context, roomID, documentID string) (*domain.Room, error) {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "document_id": documentID})
	if roomID == "" {
		return nil, ErrInvalidInput
	}

	room, err := s.roomRepo.FindByID(ctx, roomID)
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, repository.ErrRoomNotFound) {
		logCtx.WithError(err).Error("EnsureRoom: failed to load room")
		return nil, ErrInternalServer
	}

	if documentID == "" {
		documentID = roomID
	}
	doc, err := s.docRepo.FindByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, repository.ErrDocumentNotFound) {
			logCtx.Warn("EnsureRoom: referenced document does not exist")
			return nil, ErrRoomInitFailed
		}
		logCtx.WithError(err).Error("EnsureRoom: failed to load document")
		return nil, ErrInternalServer
	}

	room = &domain.Room{
		ID:          roomID,
		DocumentID:  doc.ID,
		OwnerID:     doc.OwnerID,
		AllowGuests: true,
	}
	if err := s.roomRepo.Create(ctx, room); err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			// 并发的首次加入已经创建了房间
			logCtx.Debug("EnsureRoom: room created concurrently, re-reading")
			existing, findErr := s.roomRepo.FindByID(ctx, roomID)
			if findErr != nil {
				logCtx.WithError(findErr).Error("EnsureRoom: failed to re-read concurrently created room")
				return nil, ErrInternalServer
			}
			return existing, nil
		}
		logCtx.WithError(err).Error("EnsureRoom: failed to create room")
		return nil, ErrInternalServer
	}

	logCtx.WithField("owner_id", room.OwnerID).Info("Room initialised from document")
	return room, nil
}

// Admit 检查身份是否允许进入房间。
func (s *RoomService) Admit(room *domain.Room, kind domain.IdentityKind) error {
	if kind == domain.IdentityGuest && !room.AllowGuests {
		return ErrGuestsNotAllowed
	}
	return nil
}

// FindRoom 按 id 查找房间。
func (s *RoomService) FindRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	room, err := s.roomRepo.FindByID(ctx, roomID)
	if err != nil {
		if !errors.Is(err, repository.ErrRoomNotFound) {
			logrus.WithField("room_id", roomID).WithError(err).Error("FindRoom: repository error")
		}
		return nil, mapRepoError(err, ErrRoomNotFound)
	}
	return room, nil
}

// AddMember 在一次变更中确认参与者记录并登记连接。
func (s *RoomService) AddMember(ctx context.Context, roomID string, p domain.Participant, c domain.Connection) (*domain.Room, error) {
	return s.apply(ctx, roomID, domain.RoomMutation{AddParticipant: &p, AddConnection: &c})
}

// RemoveConnections 删除连接记录，没有要删除的 id 时直接返回当前房间。
func (s *RoomService) RemoveConnections(ctx context.Context, roomID string, connectionIDs ...string) (*domain.Room, error) {
	if len(connectionIDs) == 0 {
		return s.FindRoom(ctx, roomID)
	}
	return s.apply(ctx, roomID, domain.RoomMutation{RemoveConnections: connectionIDs})
}

func (s *RoomService) apply(ctx context.Context, roomID string, m domain.RoomMutation) (*domain.Room, error) {
	room, err := s.roomRepo.Apply(ctx, roomID, m)
	if err != nil {
		logrus.WithFields(logrus.Fields{"room_id": roomID, "operation": "room_apply"}).
			WithError(err).Error("Failed to apply room mutation")
		return nil, mapRepoError(err, ErrRoomNotFound)
	}
	return room, nil
}
