package repository

import (
	"context"

	"collaborative-whiteboard/internal/domain"
)

// DocumentRepository 是画布文档的持久化存储（唯一可信来源）。
type DocumentRepository interface {
	// FindByID returns ErrDocumentNotFound if the document does not exist.
	FindByID(ctx context.Context, id string) (*domain.Document, error)

	// Create inserts a new document.
	Create(ctx context.Context, doc *domain.Document) error

	// SaveCanvas overwrites the canvas blob unless the stored copy already
	// carries a newer version. Returns true when a write happened.
	SaveCanvas(ctx context.Context, id string, state *domain.CanvasState) (bool, error)
}
