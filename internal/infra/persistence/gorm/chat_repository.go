package gormpersistence

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"collaborative-whiteboard/internal/domain"
)

// GormChatRepository 是 ChatRepository 接口的 GORM 实现
type GormChatRepository struct {
	db *gorm.DB
}

// NewGormChatRepository 创建 GormChatRepository 实例
func NewGormChatRepository(db *gorm.DB) *GormChatRepository {
	if db == nil {
		panic("database connection cannot be nil for GormChatRepository")
	}
	return &GormChatRepository{db: db}
}

func (r *GormChatRepository) Save(ctx context.Context, msg *domain.ChatMessage) error {
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("gorm: save chat message in room %s: %w", msg.RoomID, err)
	}
	return nil
}

// Recent 按时间倒序取最近 limit 条，再翻转为正序返回
func (r *GormChatRepository) Recent(ctx context.Context, roomID string, limit int) ([]domain.ChatMessage, error) {
	var messages []domain.ChatMessage
	query := r.db.WithContext(ctx).Where("room_id = ?", roomID).Order("timestamp DESC").Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("gorm: find recent chat messages of room %s: %w", roomID, err)
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}
