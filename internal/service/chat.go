package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DefaultChatHistoryLimit 是加入房间时下发的历史消息条数
const DefaultChatHistoryLimit = 50

// ChatService 负责聊天消息的持久化与历史读取。
type ChatService struct {
	chatRepo     repository.ChatRepository
	historyLimit int
	now          func() time.Time
}

func NewChatService(chatRepo repository.ChatRepository, historyLimit int) *ChatService {
	if chatRepo == nil {
		panic("ChatRepository cannot be nil for ChatService")
	}
	if historyLimit <= 0 {
		historyLimit = DefaultChatHistoryLimit
	}
	return &ChatService{chatRepo: chatRepo, historyLimit: historyLimit, now: time.Now}
}

// Send 持久化一条消息并返回带 id 和时间戳的规范副本。
func (s *ChatService) Send(ctx context.Context, msg domain.ChatMessage) (*domain.ChatMessage, error) {
	msg.Content = strings.TrimSpace(msg.Content)
	if msg.RoomID == "" || msg.Content == "" {
		return nil, ErrInvalidInput
	}
	msg.ID = uuid.NewString()
	msg.Timestamp = s.now().UTC()

	if err := s.chatRepo.Save(ctx, &msg); err != nil {
		logrus.WithFields(logrus.Fields{"room_id": msg.RoomID, "operation": "save_chat"}).
			WithError(err).Error("Failed to persist chat message")
		return nil, fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}
	return &msg, nil
}

// History 返回房间最近的消息，按时间正序。limit <= 0 时使用配置的默认值。
func (s *ChatService) History(ctx context.Context, roomID string, limit int) ([]domain.ChatMessage, error) {
	if limit <= 0 || limit > s.historyLimit {
		limit = s.historyLimit
	}
	messages, err := s.chatRepo.Recent(ctx, roomID, limit)
	if err != nil {
		logrus.WithField("room_id", roomID).WithError(err).Error("Failed to load chat history")
		return nil, ErrInternalServer
	}
	if messages == nil {
		messages = []domain.ChatMessage{}
	}
	return messages, nil
}
