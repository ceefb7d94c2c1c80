package worker

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// LocalScheduler 是没有 Redis 时 (STORAGE_DRIVER=memory) 的进程内去抖持久化调度器。
// 每个文档最多挂一个定时器，到期后调用 handler。
type LocalScheduler struct {
	mu      sync.Mutex
	delay   time.Duration
	timers  map[string]*time.Timer
	handler func(ctx context.Context, documentID string) error
	stopped bool
	wg      sync.WaitGroup
}

func NewLocalScheduler(delay time.Duration) *LocalScheduler {
	if delay <= 0 {
		delay = 2 * time.Second
	}
	return &LocalScheduler{delay: delay, timers: make(map[string]*time.Timer)}
}

// SetHandler 设置到期时执行的函数，一般是 CanvasService.Persist
func (s *LocalScheduler) SetHandler(fn func(ctx context.Context, documentID string) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = fn
}

// SchedulePersist 实现 service.PersistScheduler
func (s *LocalScheduler) SchedulePersist(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	if _, pending := s.timers[documentID]; pending {
		return nil
	}
	s.wg.Add(1)
	s.timers[documentID] = time.AfterFunc(s.delay, func() {
		defer s.wg.Done()
		s.fire(documentID)
	})
	return nil
}

func (s *LocalScheduler) fire(documentID string) {
	s.mu.Lock()
	delete(s.timers, documentID)
	handler := s.handler
	s.mu.Unlock()
	if handler == nil {
		return
	}
	if err := handler(context.Background(), documentID); err != nil {
		logrus.WithField("document_id", documentID).WithError(err).Error("Local canvas persist failed")
	}
}

// Pending 返回等待执行的文档数
func (s *LocalScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Shutdown 立即执行所有挂起的持久化并等待完成
func (s *LocalScheduler) Shutdown() {
	s.mu.Lock()
	s.stopped = true
	var flush []string
	for id, timer := range s.timers {
		if timer.Stop() {
			flush = append(flush, id)
			s.wg.Done()
		}
	}
	s.mu.Unlock()

	for _, id := range flush {
		s.fire(id)
	}
	s.wg.Wait()
}
