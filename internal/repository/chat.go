package repository

import (
	"context"

	"collaborative-whiteboard/internal/domain"
)

// ChatRepository 定义了聊天消息的追加与读取。
type ChatRepository interface {
	Save(ctx context.Context, msg *domain.ChatMessage) error

	// Recent returns at most limit messages of the room, oldest first.
	Recent(ctx context.Context, roomID string, limit int) ([]domain.ChatMessage, error)
}
