package repository

import (
	"context"

	"collaborative-whiteboard/internal/domain"
)

// CanvasStateRepository 定义了画布实时状态的原子操作，通常由 Redis 实现。
// Every mutating call bumps the state version on success.
type CanvasStateRepository interface {
	// === Lifecycle ===

	// IsLoaded reports whether the live state for documentID is present.
	IsLoaded(ctx context.Context, documentID string) (bool, error)

	// Hydrate seeds the live state from a durable copy. It is a no-op if
	// another caller already hydrated the document.
	Hydrate(ctx context.Context, documentID string, state *domain.CanvasState) error

	// GetState returns the full live state.
	GetState(ctx context.Context, documentID string) (*domain.CanvasState, error)

	// === Strokes ===

	AppendStroke(ctx context.Context, documentID string, stroke domain.Stroke) error
	ClearStrokes(ctx context.Context, documentID string) error

	// PopStroke removes the last stroke. With a non-empty expectedID the pop
	// only happens if the last stroke has that id. Returns the removed
	// stroke and whether anything was removed.
	PopStroke(ctx context.Context, documentID, expectedID string) (*domain.Stroke, bool, error)

	// === Items ===

	AddItem(ctx context.Context, documentID string, kind domain.ItemKind, item domain.Item) error

	// UpdateItem shallow-merges fields into the item. Returns false when no
	// item with that id exists.
	UpdateItem(ctx context.Context, documentID string, kind domain.ItemKind, id string, fields map[string]any) (bool, error)

	DeleteItem(ctx context.Context, documentID string, kind domain.ItemKind, id string) (bool, error)
}
