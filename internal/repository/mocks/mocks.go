// Package mocks 提供 repository 接口的 testify Mock 实现，供 service 层单元测试使用。
package mocks

import (
	"context"

	"collaborative-whiteboard/internal/domain"

	"github.com/stretchr/testify/mock"
)

// RoomRepository is a mock of repository.RoomRepository.
type RoomRepository struct {
	mock.Mock
}

func (m *RoomRepository) FindByID(ctx context.Context, roomID string) (*domain.Room, error) {
	args := m.Called(ctx, roomID)
	room, _ := args.Get(0).(*domain.Room)
	return room, args.Error(1)
}

func (m *RoomRepository) Create(ctx context.Context, room *domain.Room) error {
	args := m.Called(ctx, room)
	return args.Error(0)
}

func (m *RoomRepository) Apply(ctx context.Context, roomID string, mut domain.RoomMutation) (*domain.Room, error) {
	args := m.Called(ctx, roomID, mut)
	room, _ := args.Get(0).(*domain.Room)
	return room, args.Error(1)
}

// DocumentRepository is a mock of repository.DocumentRepository.
type DocumentRepository struct {
	mock.Mock
}

func (m *DocumentRepository) FindByID(ctx context.Context, id string) (*domain.Document, error) {
	args := m.Called(ctx, id)
	doc, _ := args.Get(0).(*domain.Document)
	return doc, args.Error(1)
}

func (m *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	args := m.Called(ctx, doc)
	return args.Error(0)
}

func (m *DocumentRepository) SaveCanvas(ctx context.Context, id string, state *domain.CanvasState) (bool, error) {
	args := m.Called(ctx, id, state)
	return args.Bool(0), args.Error(1)
}

// ChatRepository is a mock of repository.ChatRepository.
type ChatRepository struct {
	mock.Mock
}

func (m *ChatRepository) Save(ctx context.Context, msg *domain.ChatMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *ChatRepository) Recent(ctx context.Context, roomID string, limit int) ([]domain.ChatMessage, error) {
	args := m.Called(ctx, roomID, limit)
	msgs, _ := args.Get(0).([]domain.ChatMessage)
	return msgs, args.Error(1)
}
