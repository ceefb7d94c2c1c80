package service

import (
	"context"
	"errors"
	"strings"

	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DocumentService 是文档存储的最小引导接口：创建空文档，供房间初始化使用。
type DocumentService struct {
	docRepo repository.DocumentRepository
}

func NewDocumentService(docRepo repository.DocumentRepository) *DocumentService {
	if docRepo == nil {
		panic("DocumentRepository cannot be nil for DocumentService")
	}
	return &DocumentService{docRepo: docRepo}
}

// CreateDocument 创建一个空画布文档。id 为空时自动生成。
func (s *DocumentService) CreateDocument(ctx context.Context, id, ownerID, title string) (*domain.Document, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		id = uuid.NewString()
	}
	logCtx := logrus.WithFields(logrus.Fields{"document_id": id, "owner_id": ownerID})

	doc := &domain.Document{ID: id, OwnerID: ownerID, Title: title}
	if err := doc.SetCanvas(domain.NewCanvasState()); err != nil {
		logCtx.WithError(err).Error("Failed to encode empty canvas")
		return nil, ErrInternalServer
	}
	if err := s.docRepo.Create(ctx, doc); err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			logCtx.Warn("Document id already exists")
			return nil, ErrInvalidInput
		}
		logCtx.WithError(err).Error("Failed to create document")
		return nil, ErrInternalServer
	}
	logCtx.Info("Document created")
	return doc, nil
}
