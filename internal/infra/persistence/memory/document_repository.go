package memory

import (
	"context"
	"sync"
	"time"

	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/repository"
)

// DocumentRepository is an in-memory repository.DocumentRepository.
type DocumentRepository struct {
	mu   sync.RWMutex
	docs map[string]domain.Document
}

func NewDocumentRepository() *DocumentRepository {
	return &DocumentRepository{docs: make(map[string]domain.Document)}
}

func (r *DocumentRepository) FindByID(_ context.Context, id string) (*domain.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[id]
	if !ok {
		return nil, repository.ErrDocumentNotFound
	}
	return &doc, nil
}

func (r *DocumentRepository) Create(_ context.Context, doc *domain.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.docs[doc.ID]; exists {
		return repository.ErrDuplicateEntry
	}
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	r.docs[doc.ID] = *doc
	return nil
}

func (r *DocumentRepository) SaveCanvas(_ context.Context, id string, state *domain.CanvasState) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return false, repository.ErrDocumentNotFound
	}
	if doc.CanvasVersion > state.Version {
		return false, nil
	}
	if err := doc.SetCanvas(state.Clone()); err != nil {
		return false, err
	}
	doc.UpdatedAt = time.Now().UTC()
	r.docs[id] = doc
	return true, nil
}
