package worker

import (
	"context"
	"errors"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"collaborative-whiteboard/internal/tasks"
)

// WorkerServer 封装了 Asynq Worker Server 的启动和关闭逻辑
type WorkerServer struct {
	server *asynq.Server
	log    *logrus.Entry
	mux    *asynq.ServeMux
}

// NewWorkerServer 创建一个新的 WorkerServer 实例并注册任务处理器
func NewWorkerServer(redisOpt asynq.RedisConnOpt, canvas CanvasPersister, reconciler PresenceReconciler, logger *logrus.Logger) *WorkerServer {
	logEntry := logger.WithField("component", "worker_server")

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				tasks.QueueCritical: 6,
				tasks.QueueDefault:  3,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				taskID, _ := asynq.GetTaskID(ctx)
				retryCount, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				logEntry.WithFields(logrus.Fields{
					"task_id":   taskID,
					"task_type": task.Type(),
					"retries":   retryCount,
					"max_retry": maxRetry,
				}).Errorf("Task failed: %v", err)
			}),
			Logger:   logEntry,
			LogLevel: asynq.WarnLevel,
		},
	)

	return &WorkerServer{
		server: server,
		log:    logEntry,
		mux:    NewServeMux(canvas, reconciler),
	}
}

// NewServeMux 注册所有任务处理器
func NewServeMux(canvas CanvasPersister, reconciler PresenceReconciler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(tasks.TypeCanvasPersist, NewCanvasPersistHandler(canvas))
	mux.Handle(tasks.TypePresenceReconcile, NewPresenceReconcileHandler(reconciler))
	return mux
}

// Start 运行 Worker Server，应该在一个单独的 goroutine 中调用
func (ws *WorkerServer) Start() {
	ws.log.Info("Worker server starting...")
	if err := ws.server.Run(ws.mux); err != nil {
		if !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, asynq.ErrServerClosed) {
			ws.log.Fatalf("Could not run worker server: %v", err)
		} else {
			ws.log.Info("Worker server stopped.")
		}
	}
}

// Shutdown 优雅地关闭 Worker Server
func (ws *WorkerServer) Shutdown() {
	ws.log.Info("Shutting down worker server...")
	ws.server.Shutdown()
	ws.log.Info("Worker server shut down complete.")
}

// PeriodicScheduler 负责注册并运行周期任务
type PeriodicScheduler struct {
	scheduler *asynq.Scheduler
	log       *logrus.Entry
}

// NewPeriodicScheduler 注册在线列表对齐任务，schedule 为 cron 表达式或 "@every 1m"
func NewPeriodicScheduler(redisOpt asynq.RedisConnOpt, schedule string, logger *logrus.Logger) (*PeriodicScheduler, error) {
	logEntry := logger.WithField("component", "scheduler")
	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Logger:   logEntry,
		LogLevel: asynq.WarnLevel,
	})

	entryID, err := scheduler.Register(schedule, tasks.NewPresenceReconcileTask(), asynq.Queue(tasks.QueueDefault), asynq.MaxRetry(0))
	if err != nil {
		return nil, err
	}
	logEntry.Infof("Periodic presence reconcile registered with schedule '%s' (EntryID: %s)", schedule, entryID)
	return &PeriodicScheduler{scheduler: scheduler, log: logEntry}, nil
}

// Start 运行 Scheduler，应该在一个单独的 goroutine 中调用
func (s *PeriodicScheduler) Start() {
	s.log.Info("Asynq scheduler starting...")
	if err := s.scheduler.Run(); err != nil {
		if !errors.Is(err, asynq.ErrServerClosed) {
			s.log.Errorf("Asynq scheduler Run() failed: %v", err)
			return
		}
	}
	s.log.Info("Asynq scheduler stopped.")
}

func (s *PeriodicScheduler) Shutdown() {
	s.scheduler.Shutdown()
}
