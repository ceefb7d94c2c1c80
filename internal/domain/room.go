package domain

import (
	"strings"
	"time"
)

// Role 是参与者在房间内的角色。
type Role string

const (
	RoleOwner  Role = "owner"
	RoleEditor Role = "editor"
	RoleGuest  Role = "guest"
)

// IdentityKind 区分注册用户与访客。
type IdentityKind string

const (
	IdentityUser  IdentityKind = "user"
	IdentityGuest IdentityKind = "guest"
)

// Room is the live-session grouping of connections collaborating on one document.
type Room struct {
	ID            string    `gorm:"primaryKey;size:191"`
	DocumentID    string    `gorm:"index;size:191;not null"`
	OwnerID       string    `gorm:"index;size:191"`
	InviteToken   string    `gorm:"size:191"`
	InviteEnabled bool      `gorm:"not null;default:false"`
	AllowGuests   bool      `gorm:"not null;default:true"`
	CreatedAt     time.Time `gorm:"autoCreateTime"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime"`

	// Participants is the historical membership set, ActiveConnections the
	// authoritative "online now" set. Both live in their own tables.
	Participants      []Participant `gorm:"-"`
	ActiveConnections []Connection  `gorm:"-"`
}

// Participant 表示曾经加入过房间的身份，断线重连不会新增记录。
type Participant struct {
	ID           uint         `gorm:"primaryKey"`
	RoomID       string       `gorm:"uniqueIndex:idx_room_identity;size:191;not null"`
	IdentityRef  string       `gorm:"uniqueIndex:idx_room_identity;size:191;not null"`
	IdentityKind IdentityKind `gorm:"size:16;not null"`
	DisplayName  string       `gorm:"size:191"`
	Role         Role         `gorm:"size:16;not null"`
	JoinedAt     time.Time    `gorm:"not null"`
}

// Connection 表示一条存活的传输连接，断开或离开时删除。
type Connection struct {
	ConnectionID string       `gorm:"primaryKey;size:191"`
	RoomID       string       `gorm:"index;size:191;not null"`
	IdentityRef  string       `gorm:"index;size:191;not null"`
	IdentityKind IdentityKind `gorm:"size:16;not null"`
	DisplayName  string       `gorm:"size:191"`
	ConnectedAt  time.Time    `gorm:"not null"`
}

// RoomMutation bundles the registry changes of a single gateway action so
// that participant and connection views are persisted together.
type RoomMutation struct {
	AddParticipant    *Participant
	AddConnection     *Connection
	RemoveConnections []string
}

// Empty reports whether the mutation changes nothing.
func (m RoomMutation) Empty() bool {
	return m.AddParticipant == nil && m.AddConnection == nil && len(m.RemoveConnections) == 0
}

// AddParticipant appends p unless a participant with the same identity
// already exists. Returns true when a record was added.
func (r *Room) AddParticipant(p Participant) bool {
	for _, existing := range r.Participants {
		if existing.IdentityRef == p.IdentityRef {
			return false
		}
	}
	p.RoomID = r.ID
	r.Participants = append(r.Participants, p)
	return true
}

// AddConnection replaces the connection with the same transport id, or appends.
func (r *Room) AddConnection(c Connection) {
	c.RoomID = r.ID
	for i, existing := range r.ActiveConnections {
		if existing.ConnectionID == c.ConnectionID {
			r.ActiveConnections[i] = c
			return
		}
	}
	r.ActiveConnections = append(r.ActiveConnections, c)
}

// RemoveConnection deletes by transport id. Returns true if something was removed.
func (r *Room) RemoveConnection(connectionID string) bool {
	for i, existing := range r.ActiveConnections {
		if existing.ConnectionID == connectionID {
			r.ActiveConnections = append(r.ActiveConnections[:i], r.ActiveConnections[i+1:]...)
			return true
		}
	}
	return false
}

// Apply runs removals first, then the participant and connection adds.
func (r *Room) Apply(m RoomMutation) {
	for _, id := range m.RemoveConnections {
		r.RemoveConnection(id)
	}
	if m.AddParticipant != nil {
		r.AddParticipant(*m.AddParticipant)
	}
	if m.AddConnection != nil {
		r.AddConnection(*m.AddConnection)
	}
}

// ConnectionsFor returns the ids of connections bound to identityRef,
// skipping except.
func (r *Room) ConnectionsFor(identityRef, except string) []string {
	var ids []string
	for _, c := range r.ActiveConnections {
		if c.IdentityRef == identityRef && c.ConnectionID != except {
			ids = append(ids, c.ConnectionID)
		}
	}
	return ids
}

// StaleConnections returns the ids of connections for which isLive is false.
func (r *Room) StaleConnections(isLive func(connectionID string) bool) []string {
	var stale []string
	for _, c := range r.ActiveConnections {
		if !isLive(c.ConnectionID) {
			stale = append(stale, c.ConnectionID)
		}
	}
	return stale
}

// IsOwner reports whether identityRef owns the room.
func (r *Room) IsOwner(identityRef string) bool {
	return r.OwnerID != "" && identityRef == r.OwnerID
}

// ResolveRole decides the effective role of a joining identity. The owner is
// always owner, guests are always guest, everybody else ends up editor.
func (r *Room) ResolveRole(identityRef string, kind IdentityKind, requested string) Role {
	if kind == IdentityUser && r.IsOwner(identityRef) {
		return RoleOwner
	}
	if kind == IdentityGuest {
		return RoleGuest
	}
	switch Role(strings.ToLower(strings.TrimSpace(requested))) {
	case RoleGuest:
		return RoleGuest
	default:
		return RoleEditor
	}
}

// Clone returns a deep copy safe to hand across goroutines.
func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	out := *r
	out.Participants = append([]Participant(nil), r.Participants...)
	out.ActiveConnections = append([]Connection(nil), r.ActiveConnections...)
	return &out
}
