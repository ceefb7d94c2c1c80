package hub_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/dto"
	"collaborative-whiteboard/internal/hub"
	"collaborative-whiteboard/internal/infra/persistence/memory"
	"collaborative-whiteboard/internal/repository"
	"collaborative-whiteboard/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn 记录所有投递给它的消息
type fakeConn struct {
	id       string
	verified string
	mu       sync.Mutex
	inbox    [][]byte
	closed   bool
	full     bool
}

func newConn(id string) *fakeConn { return &fakeConn{id: id} }

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) VerifiedUserID() string { return c.verified }

func (c *fakeConn) Send(message []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.full {
		return false
	}
	c.inbox = append(c.inbox, message)
	return true
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) envelopes(t *testing.T) []dto.Envelope {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]dto.Envelope, 0, len(c.inbox))
	for _, raw := range c.inbox {
		env, err := dto.DecodeEnvelope(raw)
		require.NoError(t, err)
		out = append(out, env)
	}
	return out
}

func (c *fakeConn) names(t *testing.T) []string {
	var names []string
	for _, env := range c.envelopes(t) {
		names = append(names, env.Event)
	}
	return names
}

// last 解码最后一条名为 event 的消息
func (c *fakeConn) last(t *testing.T, event string, v any) bool {
	t.Helper()
	envs := c.envelopes(t)
	for i := len(envs) - 1; i >= 0; i-- {
		if envs[i].Event == event {
			require.NoError(t, json.Unmarshal(envs[i].Data, v))
			return true
		}
	}
	return false
}

func (c *fakeConn) count(t *testing.T, event string) int {
	n := 0
	for _, name := range c.names(t) {
		if name == event {
			n++
		}
	}
	return n
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inbox = nil
}

// recordingCanvas 统计写操作次数；fail 为 true 时所有写操作返回错误
type recordingCanvas struct {
	*memory.CanvasStateRepository
	fail   bool
	writes int
}

var errStorageDown = errors.New("storage down")

func (r *recordingCanvas) write() error {
	r.writes++
	if r.fail {
		return errStorageDown
	}
	return nil
}

func (r *recordingCanvas) AppendStroke(ctx context.Context, doc string, stroke domain.Stroke) error {
	if err := r.write(); err != nil {
		return err
	}
	return r.CanvasStateRepository.AppendStroke(ctx, doc, stroke)
}

func (r *recordingCanvas) ClearStrokes(ctx context.Context, doc string) error {
	if err := r.write(); err != nil {
		return err
	}
	return r.CanvasStateRepository.ClearStrokes(ctx, doc)
}

func (r *recordingCanvas) PopStroke(ctx context.Context, doc, expectedID string) (*domain.Stroke, bool, error) {
	if err := r.write(); err != nil {
		return nil, false, err
	}
	return r.CanvasStateRepository.PopStroke(ctx, doc, expectedID)
}

func (r *recordingCanvas) AddItem(ctx context.Context, doc string, kind domain.ItemKind, item domain.Item) error {
	if err := r.write(); err != nil {
		return err
	}
	return r.CanvasStateRepository.AddItem(ctx, doc, kind, item)
}

func (r *recordingCanvas) UpdateItem(ctx context.Context, doc string, kind domain.ItemKind, id string, fields map[string]any) (bool, error) {
	if err := r.write(); err != nil {
		return false, err
	}
	return r.CanvasStateRepository.UpdateItem(ctx, doc, kind, id, fields)
}

func (r *recordingCanvas) DeleteItem(ctx context.Context, doc string, kind domain.ItemKind, id string) (bool, error) {
	if err := r.write(); err != nil {
		return false, err
	}
	return r.CanvasStateRepository.DeleteItem(ctx, doc, kind, id)
}

type fixture struct {
	hub   *hub.Hub
	rooms *memory.RoomRepository
	docs  *memory.DocumentRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithCanvas(t, memory.NewCanvasStateRepository())
}

func newFixtureWithCanvas(t *testing.T, canvas repository.CanvasStateRepository) *fixture {
	t.Helper()
	rooms := memory.NewRoomRepository()
	docs := memory.NewDocumentRepository()
	require.NoError(t, docs.Create(context.Background(), &domain.Document{ID: "doc1", OwnerID: "alice"}))

	roomSvc := service.NewRoomService(rooms, docs)
	h := hub.NewHub(nil, roomSvc, service.NewPresenceService(roomSvc),
		service.NewCanvasService(docs, canvas, nil),
		service.NewChatService(memory.NewChatRepository(), 0), nil)
	return &fixture{hub: h, rooms: rooms, docs: docs}
}

func (f *fixture) send(t *testing.T, conn hub.ConnectionHandle, event string, data any) {
	t.Helper()
	raw, err := dto.Encode(event, data)
	require.NoError(t, err)
	f.hub.Dispatch(context.Background(), conn, raw)
}

func (f *fixture) join(t *testing.T, conn *fakeConn, userID, name string) {
	t.Helper()
	f.hub.Register(conn)
	f.send(t, conn, dto.EventJoinRoom, dto.JoinRoom{RoomID: "room1", DocumentID: "doc1", UserID: userID, Name: name})
	var joined dto.RoomJoinedPayload
	require.True(t, conn.last(t, dto.EventRoomJoined, &joined), "expected room-joined, got %v", conn.names(t))
}

func TestHub_JoinSendsInitialStateInOrder(t *testing.T) {
	f := newFixture(t)
	a := newConn("a")

	f.join(t, a, "alice", "Alice")

	assert.Equal(t, []string{dto.EventChatHistory, dto.EventCanvasState, dto.EventRoomJoined}, a.names(t))
	var joined dto.RoomJoinedPayload
	require.True(t, a.last(t, dto.EventRoomJoined, &joined))
	assert.Equal(t, "room1", joined.RoomID)
	assert.Equal(t, "doc1", joined.DocumentID)
	assert.Equal(t, "a", joined.SocketID)
	assert.Equal(t, domain.RoleOwner, joined.Role)
	require.Len(t, joined.Participants, 1)
	assert.True(t, joined.Participants[0].IsOwner)
}

func TestHub_StrokeReachesPeersAndCanvasState(t *testing.T) {
	f := newFixture(t)
	a, b := newConn("a"), newConn("b")
	f.join(t, a, "alice", "Alice")
	f.join(t, b, "bob", "Bob")

	var userJoined dto.UserJoinedPayload
	require.True(t, a.last(t, dto.EventUserJoined, &userJoined))
	assert.Equal(t, "b", userJoined.SocketID)
	assert.Len(t, userJoined.Participants, 2)

	a.reset()
	stroke := domain.Stroke{ID: "s1", Points: []domain.Point{{X: 1, Y: 2}}, Color: "#f00", Width: 3}
	f.send(t, a, dto.EventDrawStroke, dto.DrawStroke{Stroke: stroke})

	var drawn dto.StrokeDrawnPayload
	require.True(t, b.last(t, dto.EventStrokeDrawn, &drawn))
	assert.Equal(t, "a", drawn.SocketID)
	assert.Equal(t, stroke, drawn.Stroke)
	assert.Zero(t, a.count(t, dto.EventStrokeDrawn), "sender must not receive its own stroke")

	b.reset()
	f.send(t, b, dto.EventRequestCanvasState, dto.RequestCanvasState{})
	var state domain.CanvasState
	require.True(t, b.last(t, dto.EventCanvasState, &state))
	require.Len(t, state.Strokes, 1)
	assert.Equal(t, "s1", state.Strokes[0].ID)
}

func TestHub_EphemeralEventsFanOutWithoutTouchingCanvas(t *testing.T) {
	f := newFixture(t)
	a, b := newConn("a"), newConn("b")
	f.join(t, a, "alice", "Alice")
	f.join(t, b, "bob", "Bob")

	f.send(t, a, dto.EventDrawPoint, dto.DrawPoint{Point: &domain.Point{X: 3, Y: 4}, StrokeID: "s9", Color: "#000", Width: 1})
	f.send(t, a, dto.EventCursorMove, dto.CursorMove{Position: &domain.Point{X: 10, Y: 20}})

	var point dto.PointDrawnPayload
	require.True(t, b.last(t, dto.EventPointDrawn, &point))
	assert.Equal(t, "a", point.SocketID)
	assert.Equal(t, "s9", point.StrokeID)
	assert.Equal(t, domain.Point{X: 3, Y: 4}, point.Point)

	var cursor dto.CursorMovedPayload
	require.True(t, b.last(t, dto.EventCursorMoved, &cursor))
	assert.Equal(t, "a", cursor.SocketID)
	assert.Equal(t, "Alice", cursor.Name)
	assert.Equal(t, domain.Point{X: 10, Y: 20}, cursor.Position)
	assert.Zero(t, a.count(t, dto.EventPointDrawn)+a.count(t, dto.EventCursorMoved))

	b.reset()
	f.send(t, b, dto.EventRequestCanvasState, dto.RequestCanvasState{})
	var state domain.CanvasState
	require.True(t, b.last(t, dto.EventCanvasState, &state))
	assert.Empty(t, state.Strokes, "points are never persisted")
}

func TestHub_EphemeralEventsNeverWriteCanvas(t *testing.T) {
	canvas := &recordingCanvas{CanvasStateRepository: memory.NewCanvasStateRepository()}
	f := newFixtureWithCanvas(t, canvas)
	a, b := newConn("a"), newConn("b")
	f.join(t, a, "alice", "Alice")
	f.join(t, b, "bob", "Bob")

	f.send(t, a, dto.EventDrawPoint, dto.DrawPoint{Point: &domain.Point{X: 1}, StrokeID: "s1"})
	f.send(t, a, dto.EventCursorMove, dto.CursorMove{Position: &domain.Point{X: 2}})
	f.send(t, a, dto.EventRequestCanvasState, dto.RequestCanvasState{})
	f.send(t, a, dto.EventGetParticipants, dto.GetParticipants{})
	assert.Zero(t, canvas.writes)

	f.send(t, a, dto.EventDrawStroke, dto.DrawStroke{Stroke: domain.Stroke{ID: "s1", Points: []domain.Point{{X: 1}}}})
	assert.Equal(t, 1, canvas.writes)
}

func TestHub_PersistenceFailureStillBroadcasts(t *testing.T) {
	canvas := &recordingCanvas{CanvasStateRepository: memory.NewCanvasStateRepository()}
	f := newFixtureWithCanvas(t, canvas)
	a, b := newConn("a"), newConn("b")
	f.join(t, a, "alice", "Alice")
	f.join(t, b, "bob", "Bob")
	b.reset()
	canvas.fail = true

	f.send(t, a, dto.EventDrawStroke, dto.DrawStroke{Stroke: domain.Stroke{ID: "s1", Points: []domain.Point{{X: 1}}}})
	f.send(t, a, dto.EventClearCanvas, dto.ClearCanvas{})
	f.send(t, a, dto.EventUndoStroke, dto.UndoStroke{StrokeID: "s1"})
	f.send(t, a, "add-sticky", dto.AddItem{Item: domain.Item{"id": "n1", "text": "hi"}})
	f.send(t, a, "update-sticky", dto.UpdateItem{ID: "n1", Updates: map[string]any{"text": "bye"}})
	f.send(t, a, "delete-sticky", dto.DeleteItem{ID: "n1"})

	assert.Equal(t, []string{
		dto.EventStrokeDrawn,
		dto.EventCanvasCleared,
		dto.EventStrokeUndone,
		"sticky-added",
		"sticky-updated",
		"sticky-deleted",
	}, b.names(t))
	assert.Zero(t, a.count(t, dto.EventError), "sender is not told about storage failures")

	var undone dto.StrokeUndonePayload
	require.True(t, b.last(t, dto.EventStrokeUndone, &undone))
	assert.Equal(t, "s1", undone.StrokeID)
	var updated dto.ItemUpdatedPayload
	require.True(t, b.last(t, "sticky-updated", &updated))
	assert.Equal(t, "n1", updated.ID)
	assert.Equal(t, "bye", updated.Updates["text"])
}

func TestHub_UnknownItemUpdateIsNotBroadcast(t *testing.T) {
	f := newFixture(t)
	a, b := newConn("a"), newConn("b")
	f.join(t, a, "alice", "Alice")
	f.join(t, b, "bob", "Bob")
	b.reset()

	f.send(t, a, "update-sticky", dto.UpdateItem{ID: "ghost", Updates: map[string]any{"text": "x"}})
	f.send(t, a, "delete-sticky", dto.DeleteItem{ID: "ghost"})

	assert.Empty(t, b.names(t))
	assert.Zero(t, a.count(t, dto.EventError))
}

func TestHub_JoiningAnotherRoomLeavesThePreviousOne(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.docs.Create(context.Background(), &domain.Document{ID: "doc2", OwnerID: "alice"}))
	a, b := newConn("a"), newConn("b")
	f.join(t, a, "alice", "Alice")
	f.join(t, b, "bob", "Bob")
	b.reset()
	a.reset()

	f.send(t, a, dto.EventJoinRoom, dto.JoinRoom{RoomID: "room2", DocumentID: "doc2", UserID: "alice", Name: "Alice"})

	var left dto.UserLeftPayload
	require.True(t, b.last(t, dto.EventUserLeft, &left))
	assert.Equal(t, "a", left.SocketID)
	require.Len(t, left.Participants, 1)
	assert.Equal(t, "b", left.Participants[0].SocketID)

	var joined dto.RoomJoinedPayload
	require.True(t, a.last(t, dto.EventRoomJoined, &joined))
	assert.Equal(t, "room2", joined.RoomID)
	assert.Zero(t, a.count(t, dto.EventUserLeft), "the mover is not told it left")

	room1, err := f.rooms.FindByID(context.Background(), "room1")
	require.NoError(t, err)
	assert.Len(t, room1.ActiveConnections, 1)
	room2, err := f.rooms.FindByID(context.Background(), "room2")
	require.NoError(t, err)
	assert.Len(t, room2.ActiveConnections, 1)

	b.reset()
	f.send(t, a, dto.EventDrawStroke, dto.DrawStroke{Stroke: domain.Stroke{ID: "s1", Points: []domain.Point{{X: 1}}}})
	assert.Empty(t, b.names(t), "events after the switch stay in the new room")
}

func TestHub_DisconnectBroadcastsUserLeft(t *testing.T) {
	f := newFixture(t)
	a, b := newConn("a"), newConn("b")
	f.join(t, a, "alice", "Alice")
	f.join(t, b, "bob", "Bob")
	a.reset()

	f.hub.Disconnect(context.Background(), "b")

	var left dto.UserLeftPayload
	require.True(t, a.last(t, dto.EventUserLeft, &left))
	assert.Equal(t, "b", left.SocketID)
	require.Len(t, left.Participants, 1)
	assert.Equal(t, "a", left.Participants[0].SocketID)

	room, err := f.rooms.FindByID(context.Background(), "room1")
	require.NoError(t, err)
	assert.Len(t, room.ActiveConnections, 1)
	assert.Len(t, room.Participants, 2, "membership history survives disconnect")
	assert.False(t, f.hub.Table().IsLive("b"))
}

func TestHub_ConcurrentStickyAddsFromTwoConnections(t *testing.T) {
	f := newFixture(t)
	a, b := newConn("a"), newConn("b")
	f.join(t, a, "alice", "Alice")
	f.join(t, b, "bob", "Bob")

	var wg sync.WaitGroup
	for _, c := range []*fakeConn{a, b} {
		wg.Add(1)
		go func(c *fakeConn) {
			defer wg.Done()
			f.send(t, c, dto.ItemEventName("add", domain.ItemSticky), map[string]any{
				"note": map[string]any{"id": "note-" + c.id, "text": c.id},
			})
		}(c)
	}
	wg.Wait()

	a.reset()
	f.send(t, a, dto.EventRequestCanvasState, nil)
	var state domain.CanvasState
	require.True(t, a.last(t, dto.EventCanvasState, &state))
	require.Len(t, state.StickyNotes, 2)
	assert.Equal(t, 1, b.count(t, dto.ItemAddedEvent(domain.ItemSticky)))
}

func TestHub_RejoinSupersedesPreviousConnection(t *testing.T) {
	f := newFixture(t)
	old, peer, fresh := newConn("old"), newConn("peer"), newConn("fresh")
	f.join(t, old, "alice", "Alice")
	f.join(t, peer, "bob", "Bob")
	peer.reset()

	f.join(t, fresh, "alice", "Alice")

	var superseded dto.SessionSupersededPayload
	require.True(t, old.last(t, dto.EventSessionSuperseded, &superseded))
	assert.Equal(t, "old", superseded.SocketID)
	assert.Equal(t, "room1", superseded.RoomID)

	var left dto.UserLeftPayload
	require.True(t, peer.last(t, dto.EventUserLeft, &left))
	assert.Equal(t, "old", left.SocketID)

	room, err := f.rooms.FindByID(context.Background(), "room1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"fresh"}, room.ConnectionsFor("alice", ""))

	// 被替换的连接不再属于房间
	old.reset()
	f.send(t, old, dto.EventDrawStroke, dto.DrawStroke{Stroke: domain.Stroke{ID: "x", Points: []domain.Point{{}}}})
	var errPayload dto.ErrorPayload
	require.True(t, old.last(t, dto.EventError, &errPayload))
	assert.Equal(t, service.ErrNotInRoom.Error(), errPayload.Message)
}

func TestHub_SupersedeReturnsRemovedConnections(t *testing.T) {
	f := newFixture(t)
	first, second := newConn("c1"), newConn("c2")
	f.join(t, first, "alice", "Alice")
	f.hub.Register(second)

	removed, err := f.hub.Supersede(context.Background(), "room1", "alice", "c2")

	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, removed)
	_, bound := f.hub.Table().Session("c1")
	assert.False(t, bound)
}

func TestHub_EventBeforeJoinIsRejected(t *testing.T) {
	f := newFixture(t)
	a := newConn("a")
	f.hub.Register(a)

	f.send(t, a, dto.EventCursorMove, dto.CursorMove{Position: &domain.Point{X: 1, Y: 1}})

	var errPayload dto.ErrorPayload
	require.True(t, a.last(t, dto.EventError, &errPayload))
	assert.Equal(t, "not in a room", errPayload.Message)
}

func TestHub_MalformedEventAnswersSenderOnly(t *testing.T) {
	f := newFixture(t)
	a, b := newConn("a"), newConn("b")
	f.join(t, a, "alice", "Alice")
	f.join(t, b, "bob", "Bob")
	a.reset()
	b.reset()

	f.hub.Dispatch(context.Background(), a, []byte(`{"event":"draw-stroke","data":{"stroke":{}}}`))
	f.hub.Dispatch(context.Background(), a, []byte(`not json`))

	assert.Equal(t, []string{dto.EventError, dto.EventError}, a.names(t))
	assert.Empty(t, b.names(t))
}

func TestHub_GuestsRejectedWhenRoomDisallowsThem(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.rooms.Create(context.Background(), &domain.Room{ID: "closed", DocumentID: "doc1", AllowGuests: false}))
	g := newConn("g")
	f.hub.Register(g)

	f.send(t, g, dto.EventJoinRoom, dto.JoinRoom{RoomID: "closed", GuestID: "guest-1", Name: "Guest"})

	var errPayload dto.ErrorPayload
	require.True(t, g.last(t, dto.EventError, &errPayload))
	assert.Equal(t, service.ErrGuestsNotAllowed.Error(), errPayload.Message)
	_, bound := f.hub.Table().Session("g")
	assert.False(t, bound)
}

func TestHub_JoinUnknownDocumentFailsWithoutCreatingRoom(t *testing.T) {
	f := newFixture(t)
	a := newConn("a")
	f.hub.Register(a)

	f.send(t, a, dto.EventJoinRoom, dto.JoinRoom{RoomID: "ghost", UserID: "alice", Name: "Alice"})

	var errPayload dto.ErrorPayload
	require.True(t, a.last(t, dto.EventError, &errPayload))
	assert.Equal(t, service.ErrRoomInitFailed.Error(), errPayload.Message)
	_, err := f.rooms.FindByID(context.Background(), "ghost")
	assert.Error(t, err)
}

func TestHub_VerifiedIdentityOverridesClaimedOne(t *testing.T) {
	f := newFixture(t)
	c := newConn("c")
	c.verified = "alice"
	f.hub.Register(c)

	f.send(t, c, dto.EventJoinRoom, dto.JoinRoom{RoomID: "room1", DocumentID: "doc1", GuestID: "pretender", Name: "A"})

	var joined dto.RoomJoinedPayload
	require.True(t, c.last(t, dto.EventRoomJoined, &joined))
	assert.Equal(t, domain.RoleOwner, joined.Role)
	require.Len(t, joined.Participants, 1)
	assert.Equal(t, "alice", joined.Participants[0].UserID)
	assert.Empty(t, joined.Participants[0].GuestID)
}

func TestHub_ChatIsEchoedToSenderAndPeers(t *testing.T) {
	f := newFixture(t)
	a, b := newConn("a"), newConn("b")
	f.join(t, a, "alice", "Alice")
	f.join(t, b, "bob", "Bob")

	f.send(t, a, dto.EventSendMessage, dto.SendMessage{Content: "hello", UserID: "mallory"})

	for _, c := range []*fakeConn{a, b} {
		var got dto.ReceiveMessagePayload
		require.True(t, c.last(t, dto.EventReceiveMessage, &got), "conn %s", c.id)
		assert.Equal(t, "hello", got.Message.Content)
		assert.Equal(t, "alice", got.Message.SenderRef)
	}

	late := newConn("late")
	f.join(t, late, "carol", "Carol")
	var history dto.ChatHistoryPayload
	require.True(t, late.last(t, dto.EventChatHistory, &history))
	require.Len(t, history.Messages, 1)
}

func TestHub_UndoIsBroadcastOnlyWhenApplied(t *testing.T) {
	f := newFixture(t)
	a, b := newConn("a"), newConn("b")
	f.join(t, a, "alice", "Alice")
	f.join(t, b, "bob", "Bob")
	f.send(t, a, dto.EventDrawStroke, dto.DrawStroke{Stroke: domain.Stroke{ID: "s1", Points: []domain.Point{{}}}})

	f.send(t, a, dto.EventUndoStroke, dto.UndoStroke{StrokeID: "s1"})
	f.send(t, b, dto.EventUndoStroke, dto.UndoStroke{StrokeID: "s1"})

	assert.Equal(t, 1, b.count(t, dto.EventStrokeUndone))
	assert.Equal(t, 0, a.count(t, dto.EventStrokeUndone))
}

func TestHub_ReconcilePrunesConnectionsTheGatewayLost(t *testing.T) {
	f := newFixture(t)
	a := newConn("a")
	f.join(t, a, "alice", "Alice")
	// 另一个进程遗留的连接记录
	_, err := f.rooms.Apply(context.Background(), "room1", domain.RoomMutation{
		AddConnection: &domain.Connection{ConnectionID: "ghost", IdentityRef: "zed", IdentityKind: domain.IdentityUser},
	})
	require.NoError(t, err)
	a.reset()

	assert.Equal(t, 1, f.hub.ReconcileAll(context.Background()))

	var left dto.UserLeftPayload
	require.True(t, a.last(t, dto.EventUserLeft, &left))
	assert.Equal(t, "ghost", left.SocketID)
	room, err := f.rooms.FindByID(context.Background(), "room1")
	require.NoError(t, err)
	assert.Len(t, room.ActiveConnections, 1)
}

func TestHub_FullSendQueueOnlyAffectsThatRecipient(t *testing.T) {
	f := newFixture(t)
	a, b, c := newConn("a"), newConn("b"), newConn("c")
	f.join(t, a, "alice", "Alice")
	f.join(t, b, "bob", "Bob")
	f.join(t, c, "carol", "Carol")
	b.mu.Lock()
	b.full = true
	b.mu.Unlock()
	c.reset()

	for i := 0; i < 3; i++ {
		f.send(t, a, dto.EventCursorMove, dto.CursorMove{Position: &domain.Point{X: float64(i)}})
	}

	assert.Equal(t, 3, c.count(t, dto.EventCursorMoved), fmt.Sprint(c.names(t)))
}
