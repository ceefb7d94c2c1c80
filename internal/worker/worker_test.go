package worker_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"collaborative-whiteboard/internal/service"
	"collaborative-whiteboard/internal/tasks"
	"collaborative-whiteboard/internal/worker"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockPersister struct{ mock.Mock }

func (m *mockPersister) Persist(ctx context.Context, documentID string) error {
	return m.Called(ctx, documentID).Error(0)
}

type countingReconciler struct{ calls int32 }

func (c *countingReconciler) ReconcileAll(context.Context) int {
	atomic.AddInt32(&c.calls, 1)
	return 3
}

func persistTask(t *testing.T, doc string) *asynq.Task {
	t.Helper()
	task, err := tasks.NewCanvasPersistTask(doc)
	require.NoError(t, err)
	return task
}

func TestCanvasPersistHandler_Persists(t *testing.T) {
	p := new(mockPersister)
	p.On("Persist", mock.Anything, "doc1").Return(nil).Once()

	err := worker.NewCanvasPersistHandler(p).ProcessTask(context.Background(), persistTask(t, "doc1"))

	require.NoError(t, err)
	p.AssertExpectations(t)
}

func TestCanvasPersistHandler_MissingDocumentSkipsRetry(t *testing.T) {
	p := new(mockPersister)
	p.On("Persist", mock.Anything, "gone").Return(service.ErrDocumentNotFound).Once()

	err := worker.NewCanvasPersistHandler(p).ProcessTask(context.Background(), persistTask(t, "gone"))

	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestCanvasPersistHandler_StorageFailureIsRetried(t *testing.T) {
	p := new(mockPersister)
	p.On("Persist", mock.Anything, "doc1").Return(errors.New("db down")).Once()

	err := worker.NewCanvasPersistHandler(p).ProcessTask(context.Background(), persistTask(t, "doc1"))

	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestCanvasPersistHandler_BadPayload(t *testing.T) {
	p := new(mockPersister)

	err := worker.NewCanvasPersistHandler(p).ProcessTask(context.Background(), asynq.NewTask(tasks.TypeCanvasPersist, []byte("{")))

	assert.ErrorIs(t, err, asynq.SkipRetry)
	p.AssertNotCalled(t, "Persist", mock.Anything, mock.Anything)
}

func TestServeMux_RoutesReconcile(t *testing.T) {
	r := &countingReconciler{}
	mux := worker.NewServeMux(new(mockPersister), r)

	require.NoError(t, mux.ProcessTask(context.Background(), tasks.NewPresenceReconcileTask()))
	assert.EqualValues(t, 1, atomic.LoadInt32(&r.calls))
}

func TestLocalScheduler_DebouncesPerDocument(t *testing.T) {
	s := worker.NewLocalScheduler(20 * time.Millisecond)
	var mu sync.Mutex
	persisted := map[string]int{}
	s.SetHandler(func(_ context.Context, doc string) error {
		mu.Lock()
		defer mu.Unlock()
		persisted[doc]++
		return nil
	})

	for i := 0; i < 5; i++ {
		require.NoError(t, s.SchedulePersist(context.Background(), "doc1"))
	}
	require.NoError(t, s.SchedulePersist(context.Background(), "doc2"))
	assert.Equal(t, 2, s.Pending())

	assert.Eventually(t, func() bool { return s.Pending() == 0 }, time.Second, 5*time.Millisecond)
	s.Shutdown()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[string]int{"doc1": 1, "doc2": 1}, persisted)
}

func TestLocalScheduler_ShutdownFlushesPending(t *testing.T) {
	s := worker.NewLocalScheduler(time.Hour)
	var calls int32
	s.SetHandler(func(context.Context, string) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	require.NoError(t, s.SchedulePersist(context.Background(), "doc1"))

	s.Shutdown()

	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
	require.NoError(t, s.SchedulePersist(context.Background(), "doc1"))
	assert.Zero(t, s.Pending())
}
