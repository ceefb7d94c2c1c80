package domain

import (
	"encoding/json"
	"fmt"
)

// Point 是笔画上的一个坐标点。
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Stroke 是一条已经提交的笔画。
type Stroke struct {
	ID     string  `json:"id"`
	Points []Point `json:"points"`
	Color  string  `json:"color"`
	Width  float64 `json:"width"`
}

// ItemKind names one of the unordered item collections of a canvas.
type ItemKind string

const (
	ItemSticky  ItemKind = "sticky"
	ItemText    ItemKind = "text"
	ItemCroquis ItemKind = "croquis"
)

// ItemKinds lists every item collection in wire order.
var ItemKinds = []ItemKind{ItemSticky, ItemText, ItemCroquis}

// Valid reports whether k names a known collection.
func (k ItemKind) Valid() bool {
	switch k {
	case ItemSticky, ItemText, ItemCroquis:
		return true
	}
	return false
}

// Item is an opaque placed element ({id, ...fields}). The core never
// interprets fields other than "id".
type Item map[string]any

// ID returns the item id, or "" when absent or not a string.
func (it Item) ID() string {
	id, _ := it["id"].(string)
	return id
}

// Clone returns a shallow copy; nested values are shared.
func (it Item) Clone() Item {
	out := make(Item, len(it))
	for k, v := range it {
		out[k] = v
	}
	return out
}

// Merge shallow-merges fields into a copy of the item. The id is never
// overwritten.
func (it Item) Merge(fields map[string]any) Item {
	out := it.Clone()
	id := it.ID()
	for k, v := range fields {
		out[k] = v
	}
	out["id"] = id
	return out
}

// CanvasState is the persisted representation of a document's canvas.
type CanvasState struct {
	Strokes     []Stroke `json:"strokes"`
	StickyNotes []Item   `json:"stickyNotes"`
	TextItems   []Item   `json:"textItems"`
	Croquis     []Item   `json:"croquis"`
	Version     uint64   `json:"version"`
}

// NewCanvasState returns an empty state whose collections marshal as [].
func NewCanvasState() *CanvasState {
	return &CanvasState{
		Strokes:     []Stroke{},
		StickyNotes: []Item{},
		TextItems:   []Item{},
		Croquis:     []Item{},
	}
}

// Normalize replaces nil collections with empty ones.
func (s *CanvasState) Normalize() {
	if s.Strokes == nil {
		s.Strokes = []Stroke{}
	}
	if s.StickyNotes == nil {
		s.StickyNotes = []Item{}
	}
	if s.TextItems == nil {
		s.TextItems = []Item{}
	}
	if s.Croquis == nil {
		s.Croquis = []Item{}
	}
}

// Items returns a pointer to the collection for kind.
func (s *CanvasState) Items(kind ItemKind) *[]Item {
	switch kind {
	case ItemSticky:
		return &s.StickyNotes
	case ItemText:
		return &s.TextItems
	case ItemCroquis:
		return &s.Croquis
	}
	return nil
}

// AppendStroke appends a committed stroke.
func (s *CanvasState) AppendStroke(stroke Stroke) {
	s.Strokes = append(s.Strokes, stroke)
	s.Version++
}

// ClearStrokes truncates the stroke list.
func (s *CanvasState) ClearStrokes() {
	s.Strokes = []Stroke{}
	s.Version++
}

// PopStroke drops the last stroke. When expectedID is set the pop only
// happens if the last stroke carries that id, which makes a repeated undo
// of the same stroke a no-op. Undo on an empty list is a no-op.
func (s *CanvasState) PopStroke(expectedID string) (Stroke, bool) {
	if len(s.Strokes) == 0 {
		return Stroke{}, false
	}
	last := s.Strokes[len(s.Strokes)-1]
	if expectedID != "" && last.ID != expectedID {
		return Stroke{}, false
	}
	s.Strokes = s.Strokes[:len(s.Strokes)-1]
	s.Version++
	return last, true
}

// AddItem appends an item, replacing an existing one with the same id.
func (s *CanvasState) AddItem(kind ItemKind, item Item) error {
	items := s.Items(kind)
	if items == nil {
		return fmt.Errorf("unknown item kind %q", kind)
	}
	id := item.ID()
	for i, existing := range *items {
		if existing.ID() == id {
			(*items)[i] = item.Clone()
			s.Version++
			return nil
		}
	}
	*items = append(*items, item.Clone())
	s.Version++
	return nil
}

// UpdateItem shallow-merges fields into the item matching id.
func (s *CanvasState) UpdateItem(kind ItemKind, id string, fields map[string]any) bool {
	items := s.Items(kind)
	if items == nil {
		return false
	}
	for i, existing := range *items {
		if existing.ID() == id {
			(*items)[i] = existing.Merge(fields)
			s.Version++
			return true
		}
	}
	return false
}

// DeleteItem removes the item matching id.
func (s *CanvasState) DeleteItem(kind ItemKind, id string) bool {
	items := s.Items(kind)
	if items == nil {
		return false
	}
	for i, existing := range *items {
		if existing.ID() == id {
			*items = append((*items)[:i], (*items)[i+1:]...)
			s.Version++
			return true
		}
	}
	return false
}

// Clone deep-copies the collections (items are shallow-copied).
func (s *CanvasState) Clone() *CanvasState {
	out := &CanvasState{Version: s.Version}
	out.Strokes = make([]Stroke, len(s.Strokes))
	for i, st := range s.Strokes {
		st.Points = append([]Point(nil), st.Points...)
		out.Strokes[i] = st
	}
	for _, kind := range ItemKinds {
		src := *s.Items(kind)
		dst := make([]Item, len(src))
		for i, it := range src {
			dst[i] = it.Clone()
		}
		*out.Items(kind) = dst
	}
	return out
}

// ParseCanvasState decodes a stored canvas blob. Empty input yields an empty state.
func ParseCanvasState(data string) (*CanvasState, error) {
	state := NewCanvasState()
	if data == "" || data == "null" {
		return state, nil
	}
	if err := json.Unmarshal([]byte(data), state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal canvas state: %w", err)
	}
	state.Normalize()
	return state, nil
}
