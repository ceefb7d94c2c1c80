package dto

import "collaborative-whiteboard/internal/domain"

// Outbound event names.
const (
	EventRoomJoined        = "room-joined"
	EventUserJoined        = "user-joined"
	EventUserLeft          = "user-left"
	EventParticipantsList  = "participants-list"
	EventChatHistory       = "chat-history"
	EventReceiveMessage    = "receive-message"
	EventCanvasState       = "canvas-state"
	EventStrokeDrawn       = "stroke-drawn"
	EventPointDrawn        = "point-drawn"
	EventCanvasCleared     = "canvas-cleared"
	EventStrokeUndone      = "stroke-undone"
	EventCursorMoved       = "cursor-moved"
	EventSessionSuperseded = "session-superseded"
	EventError             = "error"
)

// ItemAddedEvent returns e.g. "sticky-added".
func ItemAddedEvent(kind domain.ItemKind) string { return string(kind) + "-added" }

// ItemUpdatedEvent returns e.g. "text-updated".
func ItemUpdatedEvent(kind domain.ItemKind) string { return string(kind) + "-updated" }

// ItemDeletedEvent returns e.g. "croquis-deleted".
func ItemDeletedEvent(kind domain.ItemKind) string { return string(kind) + "-deleted" }

// ParticipantView 是对外广播的在线参与者信息。
type ParticipantView struct {
	SocketID string `json:"socketId"`
	UserID   string `json:"userId,omitempty"`
	GuestID  string `json:"guestId,omitempty"`
	Name     string `json:"name"`
	IsOwner  bool   `json:"isOwner"`
}

type RoomJoinedPayload struct {
	RoomID       string            `json:"roomId"`
	DocumentID   string            `json:"documentId"`
	SocketID     string            `json:"socketId"`
	Participants []ParticipantView `json:"participants"`
	Role         domain.Role       `json:"role"`
}

type UserJoinedPayload struct {
	SocketID     string            `json:"socketId"`
	UserID       string            `json:"userId,omitempty"`
	GuestID      string            `json:"guestId,omitempty"`
	Name         string            `json:"name"`
	Participants []ParticipantView `json:"participants"`
}

type UserLeftPayload struct {
	SocketID     string            `json:"socketId"`
	Participants []ParticipantView `json:"participants"`
}

type ParticipantsListPayload struct {
	Participants []ParticipantView `json:"participants"`
}

type ChatHistoryPayload struct {
	Messages []domain.ChatMessage `json:"messages"`
}

type ReceiveMessagePayload struct {
	Message domain.ChatMessage `json:"message"`
}

type StrokeDrawnPayload struct {
	SocketID string        `json:"socketId"`
	Stroke   domain.Stroke `json:"stroke"`
}

type PointDrawnPayload struct {
	SocketID string       `json:"socketId"`
	Point    domain.Point `json:"point"`
	StrokeID string       `json:"strokeId"`
	Color    string       `json:"color"`
	Width    float64      `json:"width"`
}

type CanvasClearedPayload struct {
	SocketID string `json:"socketId"`
}

type StrokeUndonePayload struct {
	SocketID string `json:"socketId"`
	StrokeID string `json:"strokeId,omitempty"`
}

type ItemAddedPayload struct {
	SocketID string          `json:"socketId"`
	Kind     domain.ItemKind `json:"kind"`
	Item     domain.Item     `json:"item"`
}

type ItemUpdatedPayload struct {
	SocketID string          `json:"socketId"`
	Kind     domain.ItemKind `json:"kind"`
	ID       string          `json:"id"`
	Updates  map[string]any  `json:"updates"`
}

type ItemDeletedPayload struct {
	SocketID string          `json:"socketId"`
	Kind     domain.ItemKind `json:"kind"`
	ID       string          `json:"id"`
}

type CursorMovedPayload struct {
	SocketID string       `json:"socketId"`
	Name     string       `json:"name"`
	Position domain.Point `json:"position"`
}

type SessionSupersededPayload struct {
	SocketID string `json:"socketId"`
	RoomID   string `json:"roomId"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
