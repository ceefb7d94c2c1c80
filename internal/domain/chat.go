package domain

import "time"

// ChatMessage 是房间内的一条聊天消息，只追加不修改。
type ChatMessage struct {
	ID         string       `gorm:"primaryKey;size:191" json:"id"`
	RoomID     string       `gorm:"index:idx_room_ts;size:191;not null" json:"roomId"`
	DocumentID string       `gorm:"size:191" json:"documentId,omitempty"`
	SenderRef  string       `gorm:"size:191;not null" json:"senderRef"`
	SenderKind IdentityKind `gorm:"size:16" json:"senderKind"`
	SenderName string       `gorm:"size:191" json:"senderName"`
	Content    string       `gorm:"type:text;not null" json:"content"`
	Timestamp  time.Time    `gorm:"index:idx_room_ts;not null" json:"timestamp"`
}
