package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Document 是持久化的画布文档记录，独立于任何实时会话。
type Document struct {
	ID            string    `gorm:"primaryKey;size:191"`
	OwnerID       string    `gorm:"index;size:191"`
	Title         string    `gorm:"size:255"`
	Shared        bool      `gorm:"not null;default:false"`
	CanvasData    string    `gorm:"type:longtext"`
	CanvasVersion uint64    `gorm:"not null;default:0"`
	CreatedAt     time.Time `gorm:"autoCreateTime"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime"`
}

// ParseCanvas decodes CanvasData into a CanvasState carrying CanvasVersion.
func (d *Document) ParseCanvas() (*CanvasState, error) {
	state, err := ParseCanvasState(d.CanvasData)
	if err != nil {
		return nil, err
	}
	state.Version = d.CanvasVersion
	return state, nil
}

// SetCanvas serialises state into CanvasData and CanvasVersion.
func (d *Document) SetCanvas(state *CanvasState) error {
	if state == nil {
		state = NewCanvasState()
	}
	state.Normalize()
	bytes, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal canvas state: %w", err)
	}
	d.CanvasData = string(bytes)
	d.CanvasVersion = state.Version
	return nil
}
