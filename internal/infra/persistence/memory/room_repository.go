// Package memory 提供进程内的存储实现，用于本地开发 (STORAGE_DRIVER=memory) 和测试。
package memory

import (
	"context"
	"sync"

	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/repository"
)

// RoomRepository is an in-memory repository.RoomRepository.
type RoomRepository struct {
	mu    sync.RWMutex
	rooms map[string]*domain.Room
}

func NewRoomRepository() *RoomRepository {
	return &RoomRepository{rooms: make(map[string]*domain.Room)}
}

func (r *RoomRepository) FindByID(_ context.Context, roomID string) (*domain.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return nil, repository.ErrRoomNotFound
	}
	return room.Clone(), nil
}

func (r *RoomRepository) Create(_ context.Context, room *domain.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.rooms[room.ID]; exists {
		return repository.ErrDuplicateEntry
	}
	r.rooms[room.ID] = room.Clone()
	return nil
}

func (r *RoomRepository) Apply(_ context.Context, roomID string, m domain.RoomMutation) (*domain.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return nil, repository.ErrRoomNotFound
	}
	room.Apply(m)
	return room.Clone(), nil
}
