package hub

import (
	"sort"
	"sync"

	"collaborative-whiteboard/internal/domain"
)

// ConnectionHandle 是网关持有的一条存活连接。Send 必须是非阻塞的，队列满时返回 false。
type ConnectionHandle interface {
	ID() string
	Send(message []byte) bool
	Close()
}

// Session 是连接当前绑定的房间与身份。
type Session struct {
	ConnectionID string
	RoomID       string
	DocumentID   string
	IdentityRef  string
	IdentityKind domain.IdentityKind
	DisplayName  string
	Role         domain.Role
}

type entry struct {
	handle  ConnectionHandle
	session *Session
}

// ConnectionTable 维护 ConnectionId -> ConnectionHandle 的映射以及每个连接的房间绑定。
// 一个连接同一时间最多绑定一个房间。
type ConnectionTable struct {
	mu      sync.RWMutex
	entries map[string]*entry
	rooms   map[string]map[string]struct{}
}

func NewConnectionTable() *ConnectionTable {
	return &ConnectionTable{
		entries: make(map[string]*entry),
		rooms:   make(map[string]map[string]struct{}),
	}
}

// Register 登记一条新连接（尚未绑定房间）。
func (t *ConnectionTable) Register(h ConnectionHandle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[h.ID()]; ok {
		return
	}
	t.entries[h.ID()] = &entry{handle: h}
}

// Unregister 删除连接，并返回它在删除前的绑定（如果有）。
func (t *ConnectionTable) Unregister(id string) (Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok {
		return Session{}, false
	}
	delete(t.entries, id)
	if e.session == nil {
		return Session{}, false
	}
	t.removeFromRoomLocked(e.session.RoomID, id)
	return *e.session, true
}

// Bind 把连接绑定到房间，替换之前的绑定。连接未登记时返回 false。
func (t *ConnectionTable) Bind(s Session) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[s.ConnectionID]
	if !ok {
		return false
	}
	if e.session != nil {
		t.removeFromRoomLocked(e.session.RoomID, s.ConnectionID)
	}
	bound := s
	e.session = &bound
	members, ok := t.rooms[s.RoomID]
	if !ok {
		members = make(map[string]struct{})
		t.rooms[s.RoomID] = members
	}
	members[s.ConnectionID] = struct{}{}
	return true
}

// Unbind 解除连接的房间绑定，返回解除前的绑定。
func (t *ConnectionTable) Unbind(id string) (Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok || e.session == nil {
		return Session{}, false
	}
	s := *e.session
	e.session = nil
	t.removeFromRoomLocked(s.RoomID, id)
	return s, true
}

func (t *ConnectionTable) removeFromRoomLocked(roomID, id string) {
	members, ok := t.rooms[roomID]
	if !ok {
		return
	}
	delete(members, id)
	if len(members) == 0 {
		delete(t.rooms, roomID)
	}
}

// Session 返回连接当前的绑定。
func (t *ConnectionTable) Session(id string) (Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[id]
	if !ok || e.session == nil {
		return Session{}, false
	}
	return *e.session, true
}

// Handle 返回连接句柄。
func (t *ConnectionTable) Handle(id string) (ConnectionHandle, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[id]
	if !ok {
		return nil, false
	}
	return e.handle, true
}

// IsLive 报告网关是否仍认为该连接存活。
func (t *ConnectionTable) IsLive(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.entries[id]
	return ok
}

// Peers 返回房间内除 except 以外的连接句柄。
func (t *ConnectionTable) Peers(roomID, except string) []ConnectionHandle {
	t.mu.RLock()
	defer t.mu.RUnlock()
	members := t.rooms[roomID]
	out := make([]ConnectionHandle, 0, len(members))
	for id := range members {
		if id == except {
			continue
		}
		if e, ok := t.entries[id]; ok {
			out = append(out, e.handle)
		}
	}
	return out
}

// Sessions 返回房间内所有绑定，按连接 id 排序。
func (t *ConnectionTable) Sessions(roomID string) []Session {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Session, 0, len(t.rooms[roomID]))
	for id := range t.rooms[roomID] {
		if e, ok := t.entries[id]; ok && e.session != nil {
			out = append(out, *e.session)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConnectionID < out[j].ConnectionID })
	return out
}

// BoundTo 返回房间内属于 identityRef 的连接 id，排除 except。
func (t *ConnectionTable) BoundTo(roomID, identityRef, except string) []string {
	var ids []string
	for _, s := range t.Sessions(roomID) {
		if s.IdentityRef == identityRef && s.ConnectionID != except {
			ids = append(ids, s.ConnectionID)
		}
	}
	return ids
}

// RoomIDs 返回至少有一个绑定连接的房间。
func (t *ConnectionTable) RoomIDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]string, 0, len(t.rooms))
	for id := range t.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len 返回登记的连接数。
func (t *ConnectionTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
