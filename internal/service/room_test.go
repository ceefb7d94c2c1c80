package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/infra/persistence/memory"
	"collaborative-whiteboard/internal/repository"
	"collaborative-whiteboard/internal/repository/mocks"
	"collaborative-whiteboard/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- EnsureRoom ---

func TestRoomService_EnsureRoom_Existing(t *testing.T) {
	// Arrange
	roomRepo := new(mocks.RoomRepository)
	docRepo := new(mocks.DocumentRepository)
	svc := service.NewRoomService(roomRepo, docRepo)
	ctx := context.Background()

	existing := &domain.Room{ID: "r1", DocumentID: "d1", OwnerID: "alice"}
	roomRepo.On("FindByID", ctx, "r1").Return(existing, nil).Once()

	// Act
	room, err := svc.EnsureRoom(ctx, "r1", "ignored")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "d1", room.DocumentID)
	roomRepo.AssertExpectations(t)
	docRepo.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
}

func TestRoomService_EnsureRoom_CreatesFromDocument(t *testing.T) {
	roomRepo := new(mocks.RoomRepository)
	docRepo := new(mocks.DocumentRepository)
	svc := service.NewRoomService(roomRepo, docRepo)
	ctx := context.Background()

	roomRepo.On("FindByID", ctx, "r1").Return(nil, repository.ErrRoomNotFound).Once()
	docRepo.On("FindByID", ctx, "d1").Return(&domain.Document{ID: "d1", OwnerID: "alice"}, nil).Once()
	roomRepo.On("Create", ctx, mock.MatchedBy(func(r *domain.Room) bool {
		return r.ID == "r1" && r.DocumentID == "d1" && r.OwnerID == "alice" && r.AllowGuests
	})).Return(nil).Once()

	room, err := svc.EnsureRoom(ctx, "r1", "d1")

	require.NoError(t, err)
	assert.Equal(t, "alice", room.OwnerID)
	roomRepo.AssertExpectations(t)
	docRepo.AssertExpectations(t)
}

func TestRoomService_EnsureRoom_DocumentDefaultsToRoomID(t *testing.T) {
	roomRepo := new(mocks.RoomRepository)
	docRepo := new(mocks.DocumentRepository)
	svc := service.NewRoomService(roomRepo, docRepo)
	ctx := context.Background()

	roomRepo.On("FindByID", ctx, "r1").Return(nil, repository.ErrRoomNotFound).Once()
	docRepo.On("FindByID", ctx, "r1").Return(&domain.Document{ID: "r1"}, nil).Once()
	roomRepo.On("Create", ctx, mock.AnythingOfType("*domain.Room")).Return(nil).Once()

	room, err := svc.EnsureRoom(ctx, "r1", "")

	require.NoError(t, err)
	assert.Equal(t, "r1", room.DocumentID)
	docRepo.AssertExpectations(t)
}

func TestRoomService_EnsureRoom_UnknownDocument(t *testing.T) {
	roomRepo := new(mocks.RoomRepository)
	docRepo := new(mocks.DocumentRepository)
	svc := service.NewRoomService(roomRepo, docRepo)
	ctx := context.Background()

	roomRepo.On("FindByID", ctx, "r1").Return(nil, repository.ErrRoomNotFound).Once()
	docRepo.On("FindByID", ctx, "missing").Return(nil, repository.ErrDocumentNotFound).Once()

	room, err := svc.EnsureRoom(ctx, "r1", "missing")

	assert.Nil(t, room)
	assert.ErrorIs(t, err, service.ErrRoomInitFailed)
	// 不应创建房间
	roomRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestRoomService_EnsureRoom_ConcurrentCreateRereads(t *testing.T) {
	roomRepo := new(mocks.RoomRepository)
	docRepo := new(mocks.DocumentRepository)
	svc := service.NewRoomService(roomRepo, docRepo)
	ctx := context.Background()

	winner := &domain.Room{ID: "r1", DocumentID: "d1", OwnerID: "bob"}
	roomRepo.On("FindByID", ctx, "r1").Return(nil, repository.ErrRoomNotFound).Once()
	docRepo.On("FindByID", ctx, "d1").Return(&domain.Document{ID: "d1", OwnerID: "bob"}, nil).Once()
	roomRepo.On("Create", ctx, mock.Anything).Return(repository.ErrDuplicateEntry).Once()
	roomRepo.On("FindByID", ctx, "r1").Return(winner, nil).Once()

	room, err := svc.EnsureRoom(ctx, "r1", "d1")

	require.NoError(t, err)
	assert.Same(t, winner, room)
	roomRepo.AssertExpectations(t)
}

func TestRoomService_EnsureRoom_RepositoryError(t *testing.T) {
	roomRepo := new(mocks.RoomRepository)
	svc := service.NewRoomService(roomRepo, new(mocks.DocumentRepository))
	ctx := context.Background()

	roomRepo.On("FindByID", ctx, "r1").Return(nil, errors.New("connection reset")).Once()

	_, err := svc.EnsureRoom(ctx, "r1", "d1")
	assert.ErrorIs(t, err, service.ErrInternalServer)
}

// --- Admit ---

func TestRoomService_Admit(t *testing.T) {
	svc := service.NewRoomService(new(mocks.RoomRepository), new(mocks.DocumentRepository))

	open := &domain.Room{ID: "r1", AllowGuests: true}
	closed := &domain.Room{ID: "r2", AllowGuests: false}

	assert.NoError(t, svc.Admit(open, domain.IdentityGuest))
	assert.NoError(t, svc.Admit(closed, domain.IdentityUser))
	assert.ErrorIs(t, svc.Admit(closed, domain.IdentityGuest), service.ErrGuestsNotAllowed)
}

// --- Membership & presence (memory repositories) ---

func newMemoryRoomService(t *testing.T) (*service.RoomService, *memory.DocumentRepository) {
	t.Helper()
	docs := memory.NewDocumentRepository()
	require.NoError(t, docs.Create(context.Background(), &domain.Document{ID: "d1", OwnerID: "alice"}))
	return service.NewRoomService(memory.NewRoomRepository(), docs), docs
}

func TestRoomService_AddMember_IdempotentParticipant(t *testing.T) {
	svc, _ := newMemoryRoomService(t)
	ctx := context.Background()
	_, err := svc.EnsureRoom(ctx, "r1", "d1")
	require.NoError(t, err)

	p := domain.Participant{IdentityRef: "alice", IdentityKind: domain.IdentityUser, Role: domain.RoleOwner, JoinedAt: time.Now()}
	_, err = svc.AddMember(ctx, "r1", p, domain.Connection{ConnectionID: "c1", IdentityRef: "alice", IdentityKind: domain.IdentityUser})
	require.NoError(t, err)
	room, err := svc.AddMember(ctx, "r1", p, domain.Connection{ConnectionID: "c2", IdentityRef: "alice", IdentityKind: domain.IdentityUser})
	require.NoError(t, err)

	assert.Len(t, room.Participants, 1)
	assert.Len(t, room.ActiveConnections, 2)

	room, err = svc.RemoveConnections(ctx, "r1", "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"c2"}, room.ConnectionsFor("alice", ""))
	assert.Len(t, room.Participants, 1, "participants outlive connections")
}

func TestPresenceService_Reconcile(t *testing.T) {
	svc, _ := newMemoryRoomService(t)
	presence := service.NewPresenceService(svc)
	ctx := context.Background()
	_, err := svc.EnsureRoom(ctx, "r1", "d1")
	require.NoError(t, err)

	for _, id := range []string{"c1", "c2"} {
		_, err = svc.AddMember(ctx, "r1",
			domain.Participant{IdentityRef: "u-" + id, IdentityKind: domain.IdentityUser},
			domain.Connection{ConnectionID: id, IdentityRef: "u-" + id, IdentityKind: domain.IdentityUser})
		require.NoError(t, err)
	}
	room, err := svc.FindRoom(ctx, "r1")
	require.NoError(t, err)

	t.Run("nothing stale", func(t *testing.T) {
		out, pruned, err := presence.Reconcile(ctx, room, func(string) bool { return true })
		require.NoError(t, err)
		assert.Empty(t, pruned)
		assert.Same(t, room, out, "no write when nothing shrank")
	})

	t.Run("drops dead connections", func(t *testing.T) {
		out, pruned, err := presence.Reconcile(ctx, room, func(id string) bool { return id == "c2" })
		require.NoError(t, err)
		assert.Equal(t, []string{"c1"}, pruned)
		require.Len(t, out.ActiveConnections, 1)
		assert.Equal(t, "c2", out.ActiveConnections[0].ConnectionID)
	})
}

func TestPresenceService_Reconcile_NoWriteWhenNothingStale(t *testing.T) {
	roomRepo := new(mocks.RoomRepository)
	presence := service.NewPresenceService(service.NewRoomService(roomRepo, new(mocks.DocumentRepository)))
	room := &domain.Room{ID: "r1", ActiveConnections: []domain.Connection{{ConnectionID: "c1"}}}

	_, pruned, err := presence.Reconcile(context.Background(), room, func(string) bool { return true })

	require.NoError(t, err)
	assert.Empty(t, pruned)
	roomRepo.AssertNotCalled(t, "Apply", mock.Anything, mock.Anything, mock.Anything)
}

func TestParticipantList(t *testing.T) {
	room := &domain.Room{
		ID:      "r1",
		OwnerID: "alice",
		ActiveConnections: []domain.Connection{
			{ConnectionID: "c1", IdentityRef: "alice", IdentityKind: domain.IdentityUser, DisplayName: "Alice"},
			{ConnectionID: "c2", IdentityRef: "g-1", IdentityKind: domain.IdentityGuest, DisplayName: "Visitor"},
		},
	}

	views := service.ParticipantList(room)

	require.Len(t, views, 2)
	assert.Equal(t, "c1", views[0].SocketID)
	assert.Equal(t, "alice", views[0].UserID)
	assert.True(t, views[0].IsOwner)
	assert.Equal(t, "g-1", views[1].GuestID)
	assert.Empty(t, views[1].UserID)
	assert.False(t, views[1].IsOwner)
}
