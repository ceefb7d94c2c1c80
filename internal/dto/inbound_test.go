package dto_test

import (
	"errors"
	"testing"

	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/dto"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_DrawStroke(t *testing.T) {
	raw := []byte(`{"event":"draw-stroke","data":{"stroke":{"id":"s1","points":[{"x":0,"y":0},{"x":10,"y":10}],"color":"#000","width":2}}}`)

	ev, err := dto.Decode(raw)
	require.NoError(t, err)

	stroke, ok := ev.(dto.DrawStroke)
	require.True(t, ok, "expected DrawStroke, got %T", ev)
	assert.Equal(t, "s1", stroke.Stroke.ID)
	assert.Len(t, stroke.Stroke.Points, 2)
	assert.Equal(t, dto.Persisted, ev.Durability())
}

func TestDecode_DisplayNameDoesNotShadowEventName(t *testing.T) {
	ev, err := dto.Decode([]byte(`{"event":"join-room","data":{"roomId":"r1","userId":"alice","name":"Alice"}}`))
	require.NoError(t, err)
	join, ok := ev.(dto.JoinRoom)
	require.True(t, ok, "expected JoinRoom, got %T", ev)
	assert.Equal(t, "Alice", join.Name)
	assert.Equal(t, dto.EventJoinRoom, ev.EventName())

	ev, err = dto.Decode([]byte(`{"event":"send-message","data":{"content":"hi","name":"Alice"}}`))
	require.NoError(t, err)
	msg, ok := ev.(dto.SendMessage)
	require.True(t, ok, "expected SendMessage, got %T", ev)
	assert.Equal(t, "Alice", msg.Name)
	assert.Equal(t, dto.EventSendMessage, ev.EventName())
}

func TestDecode_FailsClosed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{"event":`},
		{"missing event", `{"data":{}}`},
		{"unknown event", `{"event":"rm-rf"}`},
		{"unknown item kind", `{"event":"add-banner","data":{"item":{"id":"x"}}}`},
		{"stroke without id", `{"event":"draw-stroke","data":{"stroke":{"points":[{"x":1,"y":1}]}}}`},
		{"stroke without points", `{"event":"draw-stroke","data":{"stroke":{"id":"s1"}}}`},
		{"point without point", `{"event":"draw-point","data":{"strokeId":"s1"}}`},
		{"join without room", `{"event":"join-room","data":{"userId":"u1","name":"A"}}`},
		{"join without identity", `{"event":"join-room","data":{"roomId":"r1","name":"A"}}`},
		{"update without updates", `{"event":"update-sticky","data":{"id":"n1"}}`},
		{"delete without id", `{"event":"delete-text","data":{}}`},
		{"empty chat", `{"event":"send-message","data":{"content":"   "}}`},
		{"wrong field type", `{"event":"draw-point","data":{"point":"oops","strokeId":"s1"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := dto.Decode([]byte(tt.raw))
			assert.Nil(t, ev)
			assert.True(t, errors.Is(err, dto.ErrMalformedEvent), "got %v", err)
		})
	}
}

func TestDecode_ItemEvents(t *testing.T) {
	ev, err := dto.Decode([]byte(`{"event":"add-sticky","data":{"note":{"id":"n1","text":"hi"}}}`))
	require.NoError(t, err)
	add := ev.(dto.AddItem)
	assert.Equal(t, domain.ItemSticky, add.Kind)
	assert.Equal(t, "n1", add.Item.ID())
	assert.Equal(t, "add-sticky", add.EventName())

	ev, err = dto.Decode([]byte(`{"event":"add-croquis","data":{"item":{"id":"c1"}}}`))
	require.NoError(t, err)
	assert.Equal(t, domain.ItemCroquis, ev.(dto.AddItem).Kind)

	ev, err = dto.Decode([]byte(`{"event":"update-text","data":{"id":"t1","updates":{"text":"x"}}}`))
	require.NoError(t, err)
	upd := ev.(dto.UpdateItem)
	assert.Equal(t, domain.ItemText, upd.Kind)
	assert.Equal(t, "x", upd.Updates["text"])

	ev, err = dto.Decode([]byte(`{"event":"delete-croquis","data":{"id":"c1"}}`))
	require.NoError(t, err)
	assert.Equal(t, "c1", ev.(dto.DeleteItem).ID)
}

func TestDecode_Durability(t *testing.T) {
	ephemeral := []string{
		`{"event":"draw-point","data":{"point":{"x":1,"y":2},"strokeId":"s1"}}`,
		`{"event":"cursor-move","data":{"position":{"x":1,"y":2}}}`,
		`{"event":"request-canvas-state","data":{"meetingId":"d1"}}`,
		`{"event":"leave-room"}`,
		`{"event":"get-participants","data":null}`,
	}
	for _, raw := range ephemeral {
		ev, err := dto.Decode([]byte(raw))
		require.NoError(t, err, raw)
		assert.Equal(t, dto.Ephemeral, ev.Durability(), raw)
	}

	persisted := []string{
		`{"event":"clear-canvas"}`,
		`{"event":"undo-stroke","data":{"strokeId":"s1"}}`,
		`{"event":"send-message","data":{"content":"hello"}}`,
		`{"event":"delete-sticky","data":{"id":"n1"}}`,
	}
	for _, raw := range persisted {
		ev, err := dto.Decode([]byte(raw))
		require.NoError(t, err, raw)
		assert.Equal(t, dto.Persisted, ev.Durability(), raw)
	}
}

func TestJoinRoom_IdentityRef(t *testing.T) {
	ref, kind := dto.JoinRoom{UserID: "u1", GuestID: "g1"}.IdentityRef()
	assert.Equal(t, "u1", ref)
	assert.Equal(t, domain.IdentityUser, kind)

	ref, kind = dto.JoinRoom{GuestID: "g1"}.IdentityRef()
	assert.Equal(t, "g1", ref)
	assert.Equal(t, domain.IdentityGuest, kind)
}

func TestEncode_RoundTripsThroughEnvelope(t *testing.T) {
	msg, err := dto.Encode(dto.EventError, dto.ErrorPayload{Message: "boom"})
	require.NoError(t, err)

	env, err := dto.DecodeEnvelope(msg)
	require.NoError(t, err)
	assert.Equal(t, dto.EventError, env.Event)
	assert.JSONEq(t, `{"message":"boom"}`, string(env.Data))
}
