package dto

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"collaborative-whiteboard/internal/domain"
)

// ErrMalformedEvent 表示入站事件无法解码或缺少必填字段。
var ErrMalformedEvent = errors.New("malformed event")

// Durability tells the router whether an event mutates durable state.
type Durability int

const (
	// Ephemeral events are fanned out (or answered) but never stored.
	Ephemeral Durability = iota
	// Persisted events are stored before they are broadcast.
	Persisted
)

// Inbound event names.
const (
	EventJoinRoom           = "join-room"
	EventLeaveRoom          = "leave-room"
	EventGetParticipants    = "get-participants"
	EventDrawStroke         = "draw-stroke"
	EventDrawPoint          = "draw-point"
	EventClearCanvas        = "clear-canvas"
	EventUndoStroke         = "undo-stroke"
	EventRequestCanvasState = "request-canvas-state"
	EventCursorMove         = "cursor-move"
	EventSendMessage        = "send-message"
)

// Event is one decoded inbound variant.
type Event interface {
	EventName() string
	Durability() Durability
	validate() error
}

// JoinRoom asks the gateway to bind the connection to a room.
type JoinRoom struct {
	RoomID     string `json:"roomId"`
	DocumentID string `json:"documentId,omitempty"`
	UserID     string `json:"userId,omitempty"`
	GuestID    string `json:"guestId,omitempty"`
	Name       string `json:"name"`
	Role       string `json:"role,omitempty"`
}

func (JoinRoom) EventName() string      { return EventJoinRoom }
func (JoinRoom) Durability() Durability { return Ephemeral }
func (e JoinRoom) validate() error {
	if strings.TrimSpace(e.RoomID) == "" {
		return fieldMissing("roomId")
	}
	if e.UserID == "" && e.GuestID == "" {
		return fieldMissing("userId or guestId")
	}
	return nil
}

// IdentityRef returns the joining identity and its kind. A registered user
// id wins over a guest id.
func (e JoinRoom) IdentityRef() (string, domain.IdentityKind) {
	if e.UserID != "" {
		return e.UserID, domain.IdentityUser
	}
	return e.GuestID, domain.IdentityGuest
}

type LeaveRoom struct{}

func (LeaveRoom) EventName() string      { return EventLeaveRoom }
func (LeaveRoom) Durability() Durability { return Ephemeral }
func (LeaveRoom) validate() error        { return nil }

type GetParticipants struct{}

func (GetParticipants) EventName() string      { return EventGetParticipants }
func (GetParticipants) Durability() Durability { return Ephemeral }
func (GetParticipants) validate() error        { return nil }

// DrawStroke commits a finished stroke.
type DrawStroke struct {
	MeetingID string        `json:"meetingId,omitempty"`
	Stroke    domain.Stroke `json:"stroke"`
}

func (DrawStroke) EventName() string      { return EventDrawStroke }
func (DrawStroke) Durability() Durability { return Persisted }
func (e DrawStroke) validate() error {
	if e.Stroke.ID == "" {
		return fieldMissing("stroke.id")
	}
	if len(e.Stroke.Points) == 0 {
		return fieldMissing("stroke.points")
	}
	return nil
}

// DrawPoint streams one point of an in-progress stroke for live preview.
type DrawPoint struct {
	MeetingID string        `json:"meetingId,omitempty"`
	Point     *domain.Point `json:"point"`
	StrokeID  string        `json:"strokeId"`
	Color     string        `json:"color"`
	Width     float64       `json:"width"`
}

func (DrawPoint) EventName() string      { return EventDrawPoint }
func (DrawPoint) Durability() Durability { return Ephemeral }
func (e DrawPoint) validate() error {
	if e.Point == nil {
		return fieldMissing("point")
	}
	if e.StrokeID == "" {
		return fieldMissing("strokeId")
	}
	return nil
}

type ClearCanvas struct {
	MeetingID string `json:"meetingId,omitempty"`
}

func (ClearCanvas) EventName() string      { return EventClearCanvas }
func (ClearCanvas) Durability() Durability { return Persisted }
func (ClearCanvas) validate() error        { return nil }

// UndoStroke drops the last stroke. StrokeID, when set, guards the pop so
// that two racing undos of the same stroke only remove it once.
type UndoStroke struct {
	MeetingID string `json:"meetingId,omitempty"`
	StrokeID  string `json:"strokeId,omitempty"`
}

func (UndoStroke) EventName() string      { return EventUndoStroke }
func (UndoStroke) Durability() Durability { return Persisted }
func (UndoStroke) validate() error        { return nil }

type RequestCanvasState struct {
	MeetingID string `json:"meetingId,omitempty"`
}

func (RequestCanvasState) EventName() string      { return EventRequestCanvasState }
func (RequestCanvasState) Durability() Durability { return Ephemeral }
func (RequestCanvasState) validate() error        { return nil }

type CursorMove struct {
	Position *domain.Point `json:"position"`
}

func (CursorMove) EventName() string      { return EventCursorMove }
func (CursorMove) Durability() Durability { return Ephemeral }
func (e CursorMove) validate() error {
	if e.Position == nil {
		return fieldMissing("position")
	}
	return nil
}

// SendMessage posts a chat message. Sender identity comes from the session,
// the ids in the payload are informational only.
type SendMessage struct {
	Content   string `json:"content"`
	MeetingID string `json:"meetingId,omitempty"`
	UserID    string `json:"userId,omitempty"`
	GuestID   string `json:"guestId,omitempty"`
	Name      string `json:"name,omitempty"`
}

func (SendMessage) EventName() string      { return EventSendMessage }
func (SendMessage) Durability() Durability { return Persisted }
func (e SendMessage) validate() error {
	if strings.TrimSpace(e.Content) == "" {
		return fieldMissing("content")
	}
	return nil
}

// AddItem places a sticky note, text item or croquis image.
type AddItem struct {
	Kind      domain.ItemKind `json:"-"`
	MeetingID string          `json:"meetingId,omitempty"`
	Item      domain.Item     `json:"item,omitempty"`
	// kind-specific aliases accepted on input
	Note    domain.Item `json:"note,omitempty"`
	Text    domain.Item `json:"text,omitempty"`
	Croquis domain.Item `json:"croquis,omitempty"`
}

func (e AddItem) EventName() string    { return ItemEventName("add", e.Kind) }
func (AddItem) Durability() Durability { return Persisted }
func (e *AddItem) resolve() {
	if e.Item != nil {
		return
	}
	switch e.Kind {
	case domain.ItemSticky:
		e.Item = e.Note
	case domain.ItemText:
		e.Item = e.Text
	case domain.ItemCroquis:
		e.Item = e.Croquis
	}
	e.Note, e.Text, e.Croquis = nil, nil, nil
}
func (e AddItem) validate() error {
	if e.Item == nil {
		return fieldMissing(itemKey(e.Kind))
	}
	if e.Item.ID() == "" {
		return fieldMissing(itemKey(e.Kind) + ".id")
	}
	return nil
}

// UpdateItem shallow-merges Updates into the item with ID.
type UpdateItem struct {
	Kind      domain.ItemKind `json:"-"`
	MeetingID string          `json:"meetingId,omitempty"`
	ID        string          `json:"id"`
	Updates   map[string]any  `json:"updates"`
}

func (e UpdateItem) EventName() string    { return ItemEventName("update", e.Kind) }
func (UpdateItem) Durability() Durability { return Persisted }
func (e UpdateItem) validate() error {
	if e.ID == "" {
		return fieldMissing("id")
	}
	if e.Updates == nil {
		return fieldMissing("updates")
	}
	return nil
}

type DeleteItem struct {
	Kind      domain.ItemKind `json:"-"`
	MeetingID string          `json:"meetingId,omitempty"`
	ID        string          `json:"id"`
}

func (e DeleteItem) EventName() string    { return ItemEventName("delete", e.Kind) }
func (DeleteItem) Durability() Durability { return Persisted }
func (e DeleteItem) validate() error {
	if e.ID == "" {
		return fieldMissing("id")
	}
	return nil
}

// ItemEventName builds "<action>-<kind>", e.g. "add-sticky".
func ItemEventName(action string, kind domain.ItemKind) string {
	return action + "-" + string(kind)
}

func itemKey(kind domain.ItemKind) string {
	switch kind {
	case domain.ItemSticky:
		return "note"
	case domain.ItemText:
		return "text"
	case domain.ItemCroquis:
		return "croquis"
	}
	return "item"
}

func fieldMissing(field string) error {
	return fmt.Errorf("%w: missing %s", ErrMalformedEvent, field)
}

// Decode turns a raw wire message into a typed inbound event. Anything it
// cannot fully validate is rejected with ErrMalformedEvent.
func Decode(message []byte) (Event, error) {
	env, err := DecodeEnvelope(message)
	if err != nil {
		return nil, err
	}
	event, err := newEvent(env.Event)
	if err != nil {
		return nil, err
	}
	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, event); err != nil {
			return nil, fmt.Errorf("%w: %s payload: %v", ErrMalformedEvent, env.Event, err)
		}
	}
	if add, ok := event.(*AddItem); ok {
		add.resolve()
	}
	// 返回值类型，调用方用 type switch 时不必关心指针
	ev := deref(event)
	if err := ev.validate(); err != nil {
		return nil, err
	}
	return ev, nil
}

func newEvent(name string) (Event, error) {
	switch name {
	case EventJoinRoom:
		return &JoinRoom{}, nil
	case EventLeaveRoom:
		return &LeaveRoom{}, nil
	case EventGetParticipants:
		return &GetParticipants{}, nil
	case EventDrawStroke:
		return &DrawStroke{}, nil
	case EventDrawPoint:
		return &DrawPoint{}, nil
	case EventClearCanvas:
		return &ClearCanvas{}, nil
	case EventUndoStroke:
		return &UndoStroke{}, nil
	case EventRequestCanvasState:
		return &RequestCanvasState{}, nil
	case EventCursorMove:
		return &CursorMove{}, nil
	case EventSendMessage:
		return &SendMessage{}, nil
	}
	action, kindName, ok := strings.Cut(name, "-")
	kind := domain.ItemKind(kindName)
	if !ok || !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown event %q", ErrMalformedEvent, name)
	}
	switch action {
	case "add":
		return &AddItem{Kind: kind}, nil
	case "update":
		return &UpdateItem{Kind: kind}, nil
	case "delete":
		return &DeleteItem{Kind: kind}, nil
	}
	return nil, fmt.Errorf("%w: unknown event %q", ErrMalformedEvent, name)
}

func deref(e Event) Event {
	switch v := e.(type) {
	case *JoinRoom:
		return *v
	case *LeaveRoom:
		return *v
	case *GetParticipants:
		return *v
	case *DrawStroke:
		return *v
	case *DrawPoint:
		return *v
	case *ClearCanvas:
		return *v
	case *UndoStroke:
		return *v
	case *RequestCanvasState:
		return *v
	case *CursorMove:
		return *v
	case *SendMessage:
		return *v
	case *AddItem:
		return *v
	case *UpdateItem:
		return *v
	case *DeleteItem:
		return *v
	}
	return e
}
