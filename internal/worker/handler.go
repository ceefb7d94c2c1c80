package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"collaborative-whiteboard/internal/service"
	"collaborative-whiteboard/internal/tasks"
)

// CanvasPersister 把文档的实时画布写回文档记录，由 service.CanvasService 实现
type CanvasPersister interface {
	Persist(ctx context.Context, documentID string) error
}

// PresenceReconciler 对所有活跃房间执行在线列表对齐，由 hub.Hub 实现
type PresenceReconciler interface {
	ReconcileAll(ctx context.Context) int
}

func taskLogger(ctx context.Context, t *asynq.Task) *logrus.Entry {
	taskID, _ := asynq.GetTaskID(ctx)
	queue, _ := asynq.GetQueueName(ctx)
	currentRetry, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	return logrus.WithFields(logrus.Fields{
		"task_id":   taskID,
		"task_type": t.Type(),
		"queue":     queue,
		"retry":     currentRetry,
		"max_retry": maxRetry,
	})
}

// CanvasPersistHandler 处理画布持久化任务
type CanvasPersistHandler struct {
	canvas CanvasPersister
}

func NewCanvasPersistHandler(canvas CanvasPersister) *CanvasPersistHandler {
	if canvas == nil {
		panic("CanvasPersister cannot be nil for CanvasPersistHandler")
	}
	return &CanvasPersistHandler{canvas: canvas}
}

// ProcessTask 实现 asynq.Handler 接口
func (h *CanvasPersistHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	logCtx := taskLogger(ctx, t)

	payload, err := tasks.ParseCanvasPersistPayload(t)
	if err != nil {
		logCtx.WithError(err).Error("Failed to unmarshal task payload")
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	logCtx = logCtx.WithField("document_id", payload.DocumentID)

	if err := h.canvas.Persist(ctx, payload.DocumentID); err != nil {
		if errors.Is(err, service.ErrDocumentNotFound) {
			logCtx.Warn("Document no longer exists, dropping persist task")
			return fmt.Errorf("document %s: %v: %w", payload.DocumentID, err, asynq.SkipRetry)
		}
		logCtx.WithError(err).Error("Failed to persist canvas")
		return fmt.Errorf("failed to persist canvas %s: %w", payload.DocumentID, err)
	}

	logCtx.Debug("Canvas persist task processed successfully")
	return nil
}

// PresenceReconcileHandler 处理周期性的在线列表对齐任务
type PresenceReconcileHandler struct {
	reconciler PresenceReconciler
	timeout    time.Duration
}

func NewPresenceReconcileHandler(reconciler PresenceReconciler) *PresenceReconcileHandler {
	if reconciler == nil {
		panic("PresenceReconciler cannot be nil for PresenceReconcileHandler")
	}
	return &PresenceReconcileHandler{reconciler: reconciler, timeout: 30 * time.Second}
}

// ProcessTask 实现 asynq.Handler 接口。单个房间失败只记录日志，不让整个周期任务重试。
func (h *PresenceReconcileHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	logCtx := taskLogger(ctx, t)

	checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	rooms := h.reconciler.ReconcileAll(checkCtx)

	if rooms == 0 {
		logCtx.Debug("No active rooms, nothing to reconcile")
		return nil
	}
	logCtx.WithField("rooms", rooms).Info("Periodic presence reconcile completed")
	return nil
}
