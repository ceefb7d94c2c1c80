package repository

import (
	"context"

	"collaborative-whiteboard/internal/domain"
)

// RoomRepository 定义了房间注册表（参与者 + 在线连接）的存储操作。
type RoomRepository interface {
	// FindByID loads the room together with its participants and active
	// connections. Returns ErrRoomNotFound when the room does not exist.
	FindByID(ctx context.Context, roomID string) (*domain.Room, error)

	// Create inserts a new room record. Returns ErrDuplicateEntry if a room
	// with the same id already exists (a concurrent first join won).
	Create(ctx context.Context, room *domain.Room) error

	// Apply persists one gateway action's registry changes as deltas in a
	// single transaction and returns the room as stored afterwards.
	// AddParticipant is insert-if-absent, AddConnection is upsert by
	// connection id, RemoveConnections deletes by connection id.
	Apply(ctx context.Context, roomID string, m domain.RoomMutation) (*domain.Room, error)
}
