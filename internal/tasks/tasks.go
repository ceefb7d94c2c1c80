package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// 定义任务类型常量
const (
	TypeCanvasPersist     = "canvas:persist"     // 把实时画布写回文档记录
	TypePresenceReconcile = "presence:reconcile" // 周期性在线列表对齐
)

// 队列名
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
)

// CanvasPersistPayload 定义了画布持久化任务的数据结构。
// 任务只携带文档 id，执行时读取当时的实时状态。
type CanvasPersistPayload struct {
	DocumentID string `json:"documentId"`
}

// NewCanvasPersistTask 创建一个画布持久化任务
func NewCanvasPersistTask(documentID string) (*asynq.Task, error) {
	if documentID == "" {
		return nil, errors.New("document id is required for canvas persist task")
	}
	payloadBytes, err := json.Marshal(CanvasPersistPayload{DocumentID: documentID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeCanvasPersist, payloadBytes), nil
}

// ParseCanvasPersistPayload 解析画布持久化任务的 payload
func ParseCanvasPersistPayload(t *asynq.Task) (CanvasPersistPayload, error) {
	var payload CanvasPersistPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return payload, err
	}
	if payload.DocumentID == "" {
		return payload, errors.New("missing documentId")
	}
	return payload, nil
}

// NewPresenceReconcileTask 创建周期性在线列表对齐任务，没有 payload
func NewPresenceReconcileTask() *asynq.Task {
	return asynq.NewTask(TypePresenceReconcile, nil)
}

// Enqueuer 是 asynq.Client 中调度器用到的部分
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AsynqPersistScheduler 通过 asynq 延迟任务实现画布持久化的去抖：
// 同一文档在同一个 delay 时间窗内的所有变更共用一个任务 id，任务在时间窗结束后 delay 执行。
type AsynqPersistScheduler struct {
	client Enqueuer
	delay  time.Duration
	now    func() time.Time
}

func NewAsynqPersistScheduler(client Enqueuer, delay time.Duration) *AsynqPersistScheduler {
	if client == nil {
		panic("asynq client cannot be nil for AsynqPersistScheduler")
	}
	if delay <= 0 {
		delay = 2 * time.Second
	}
	return &AsynqPersistScheduler{client: client, delay: delay, now: time.Now}
}

// PersistTaskID 返回某个时间窗对应的任务 id
func PersistTaskID(documentID string, bucket time.Time) string {
	return fmt.Sprintf("%s:%s:%d", TypeCanvasPersist, documentID, bucket.Unix())
}

// SchedulePersist 实现 service.PersistScheduler
func (s *AsynqPersistScheduler) SchedulePersist(ctx context.Context, documentID string) error {
	task, err := NewCanvasPersistTask(documentID)
	if err != nil {
		return err
	}
	bucket := s.now().Truncate(s.delay)
	taskID := PersistTaskID(documentID, bucket)

	_, err = s.client.EnqueueContext(ctx, task,
		asynq.TaskID(taskID),
		asynq.ProcessAt(bucket.Add(s.delay)),
		asynq.Queue(QueueCritical),
		asynq.MaxRetry(5),
	)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			// 本时间窗的任务已存在
			return nil
		}
		logrus.WithFields(logrus.Fields{"document_id": documentID, "task_id": taskID}).WithError(err).Error("Failed to enqueue canvas persist task")
		return fmt.Errorf("enqueue %s: %w", taskID, err)
	}
	logrus.WithFields(logrus.Fields{"document_id": documentID, "task_id": taskID}).Debug("Canvas persist task enqueued")
	return nil
}
