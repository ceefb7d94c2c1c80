package memory

import (
	"context"
	"sort"
	"sync"

	"collaborative-whiteboard/internal/domain"
)

// ChatRepository is an in-memory repository.ChatRepository.
type ChatRepository struct {
	mu       sync.RWMutex
	messages map[string][]domain.ChatMessage
}

func NewChatRepository() *ChatRepository {
	return &ChatRepository{messages: make(map[string][]domain.ChatMessage)}
}

func (r *ChatRepository) Save(_ context.Context, msg *domain.ChatMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := append(r.messages[msg.RoomID], *msg)
	sort.SliceStable(list, func(i, j int) bool { return list[i].Timestamp.Before(list[j].Timestamp) })
	r.messages[msg.RoomID] = list
	return nil
}

func (r *ChatRepository) Recent(_ context.Context, roomID string, limit int) ([]domain.ChatMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.messages[roomID]
	if limit > 0 && len(list) > limit {
		list = list[len(list)-limit:]
	}
	return append([]domain.ChatMessage{}, list...), nil
}
