package memory

import (
	"context"
	"sync"

	"collaborative-whiteboard/internal/domain"
)

// CanvasStateRepository is an in-memory repository.CanvasStateRepository.
// A single mutex makes every operation atomic, matching what the Redis
// implementation gets from MULTI/WATCH.
type CanvasStateRepository struct {
	mu     sync.Mutex
	states map[string]*domain.CanvasState
}

func NewCanvasStateRepository() *CanvasStateRepository {
	return &CanvasStateRepository{states: make(map[string]*domain.CanvasState)}
}

func (r *CanvasStateRepository) IsLoaded(_ context.Context, documentID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.states[documentID]
	return ok, nil
}

func (r *CanvasStateRepository) Hydrate(_ context.Context, documentID string, state *domain.CanvasState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.states[documentID]; ok {
		return nil
	}
	if state == nil {
		state = domain.NewCanvasState()
	}
	clone := state.Clone()
	clone.Normalize()
	r.states[documentID] = clone
	return nil
}

func (r *CanvasStateRepository) GetState(_ context.Context, documentID string) (*domain.CanvasState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.states[documentID]
	if !ok {
		return domain.NewCanvasState(), nil
	}
	return state.Clone(), nil
}

// state returns the live state, creating an empty one on first write.
// Callers hold r.mu.
func (r *CanvasStateRepository) state(documentID string) *domain.CanvasState {
	state, ok := r.states[documentID]
	if !ok {
		state = domain.NewCanvasState()
		r.states[documentID] = state
	}
	return state
}

func (r *CanvasStateRepository) AppendStroke(_ context.Context, documentID string, stroke domain.Stroke) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state(documentID).AppendStroke(stroke)
	return nil
}

func (r *CanvasStateRepository) ClearStrokes(_ context.Context, documentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state(documentID).ClearStrokes()
	return nil
}

func (r *CanvasStateRepository) PopStroke(_ context.Context, documentID, expectedID string) (*domain.Stroke, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stroke, ok := r.state(documentID).PopStroke(expectedID)
	if !ok {
		return nil, false, nil
	}
	return &stroke, true, nil
}

func (r *CanvasStateRepository) AddItem(_ context.Context, documentID string, kind domain.ItemKind, item domain.Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state(documentID).AddItem(kind, item)
}

func (r *CanvasStateRepository) UpdateItem(_ context.Context, documentID string, kind domain.ItemKind, id string, fields map[string]any) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state(documentID).UpdateItem(kind, id, fields), nil
}

func (r *CanvasStateRepository) DeleteItem(_ context.Context, documentID string, kind domain.ItemKind, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state(documentID).DeleteItem(kind, id), nil
}
