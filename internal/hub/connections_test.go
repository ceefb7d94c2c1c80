package hub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubHandle string

func (s stubHandle) ID() string { return string(s) }
func (s stubHandle) Send([]byte) bool { return true }
func (s stubHandle) Close() {}

func TestConnectionTable_BindMovesBetweenRooms(t *testing.T) {
	table := NewConnectionTable()
	table.Register(stubHandle("c1"))

	require.True(t, table.Bind(Session{ConnectionID: "c1", RoomID: "r1", IdentityRef: "u1"}))
	require.True(t, table.Bind(Session{ConnectionID: "c1", RoomID: "r2", IdentityRef: "u1"}))

	assert.Empty(t, table.Peers("r1", ""))
	assert.Len(t, table.Peers("r2", ""), 1)
	assert.Equal(t, []string{"r2"}, table.RoomIDs())
}

func TestConnectionTable_BindRequiresRegistration(t *testing.T) {
	table := NewConnectionTable()

	assert.False(t, table.Bind(Session{ConnectionID: "ghost", RoomID: "r1"}))
	assert.Empty(t, table.RoomIDs())
}

func TestConnectionTable_UnregisterReturnsBinding(t *testing.T) {
	table := NewConnectionTable()
	table.Register(stubHandle("c1"))
	table.Register(stubHandle("c2"))
	require.True(t, table.Bind(Session{ConnectionID: "c1", RoomID: "r1", IdentityRef: "u1"}))
	require.True(t, table.Bind(Session{ConnectionID: "c2", RoomID: "r1", IdentityRef: "u1"}))

	assert.Equal(t, []string{"c2"}, table.BoundTo("r1", "u1", "c1"))

	sess, ok := table.Unregister("c1")
	require.True(t, ok)
	assert.Equal(t, "r1", sess.RoomID)
	assert.False(t, table.IsLive("c1"))
	assert.Equal(t, 1, table.Len())

	_, ok = table.Unregister("c2")
	require.True(t, ok)
	assert.Empty(t, table.RoomIDs())
}

func TestConnectionTable_UnbindKeepsConnectionLive(t *testing.T) {
	table := NewConnectionTable()
	table.Register(stubHandle("c1"))
	require.True(t, table.Bind(Session{ConnectionID: "c1", RoomID: "r1"}))

	_, ok := table.Unbind("c1")
	require.True(t, ok)
	_, ok = table.Unbind("c1")
	assert.False(t, ok)
	assert.True(t, table.IsLive("c1"))
	_, bound := table.Session("c1")
	assert.False(t, bound)
}
