package service

import (
	"context"
	"errors"
	"fmt"

	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/repository"

	"github.com/sirupsen/logrus"
)

// PersistScheduler 安排一次延迟的画布持久化。同一文档的多次调用应被合并。
type PersistScheduler interface {
	SchedulePersist(ctx context.Context, documentID string) error
}

// CanvasService 负责画布的两级存储：实时状态 (CanvasStateRepository) 与持久记录 (DocumentRepository)。
// 每次变更先写实时层，再安排持久化；读取总是先确保实时层已加载。
type CanvasService struct {
	docRepo   repository.DocumentRepository
	stateRepo repository.CanvasStateRepository
	scheduler PersistScheduler
}

// NewCanvasService 创建 CanvasService。scheduler 可以为 nil，此时只写实时层。
func NewCanvasService(docRepo repository.DocumentRepository, stateRepo repository.CanvasStateRepository, scheduler PersistScheduler) *CanvasService {
	if docRepo == nil || stateRepo == nil {
		panic("DocumentRepository and CanvasStateRepository cannot be nil for CanvasService")
	}
	return &CanvasService{docRepo: docRepo, stateRepo: stateRepo, scheduler: scheduler}
}

// ensureLoaded 在实时层缺少该文档时从持久记录加载
func (s *CanvasService) ensureLoaded(ctx context.Context, documentID string) error {
	loaded, err := s.stateRepo.IsLoaded(ctx, documentID)
	if err != nil {
		return fmt.Errorf("%w: check live state: %v", ErrInternalServer, err)
	}
	if loaded {
		return nil
	}

	doc, err := s.docRepo.FindByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, repository.ErrDocumentNotFound) {
			return ErrDocumentNotFound
		}
		return fmt.Errorf("%w: load document: %v", ErrInternalServer, err)
	}
	state, err := doc.ParseCanvas()
	if err != nil {
		// 损坏的数据不应阻止协作，从空画布开始
		logrus.WithField("document_id", documentID).WithError(err).Warn("Stored canvas is undecodable, starting empty")
		state = domain.NewCanvasState()
		state.Version = doc.CanvasVersion
	}
	if err := s.stateRepo.Hydrate(ctx, documentID, state); err != nil {
		return fmt.Errorf("%w: hydrate live state: %v", ErrInternalServer, err)
	}
	logrus.WithFields(logrus.Fields{"document_id": documentID, "version": state.Version}).Debug("Canvas hydrated from document store")
	return nil
}

// Load 返回文档当前的完整画布状态。
func (s *CanvasService) Load(ctx context.Context, documentID string) (*domain.CanvasState, error) {
	if err := s.ensureLoaded(ctx, documentID); err != nil {
		return nil, err
	}
	state, err := s.stateRepo.GetState(ctx, documentID)
	if err != nil {
		logrus.WithField("document_id", documentID).WithError(err).Error("Failed to read live canvas state")
		return nil, ErrInternalServer
	}
	return state, nil
}

// mutate 包装一次实时层写入：确保已加载、执行、安排持久化。
// 写入失败统一包装为 ErrPersistenceFailure。
func (s *CanvasService) mutate(ctx context.Context, documentID, operation string, fn func() error) error {
	logCtx := logrus.WithFields(logrus.Fields{"document_id": documentID, "operation": operation})
	if err := s.ensureLoaded(ctx, documentID); err != nil {
		if errors.Is(err, ErrDocumentNotFound) {
			return err
		}
		logCtx.WithError(err).Error("Failed to load canvas before mutation")
		return fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}
	if err := fn(); err != nil {
		logCtx.WithError(err).Error("Failed to apply canvas mutation")
		return fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}
	s.schedulePersist(ctx, documentID)
	return nil
}

func (s *CanvasService) schedulePersist(ctx context.Context, documentID string) {
	if s.scheduler == nil {
		return
	}
	if err := s.scheduler.SchedulePersist(ctx, documentID); err != nil {
		logrus.WithField("document_id", documentID).WithError(err).Warn("Failed to schedule canvas persist")
	}
}

func (s *CanvasService) AppendStroke(ctx context.Context, documentID string, stroke domain.Stroke) error {
	return s.mutate(ctx, documentID, "append_stroke", func() error {
		return s.stateRepo.AppendStroke(ctx, documentID, stroke)
	})
}

func (s *CanvasService) ClearStrokes(ctx context.Context, documentID string) error {
	return s.mutate(ctx, documentID, "clear_strokes", func() error {
		return s.stateRepo.ClearStrokes(ctx, documentID)
	})
}

// UndoStroke 删除最后一条笔画。expectedID 非空时只有末尾笔画为该 id 才删除。
func (s *CanvasService) UndoStroke(ctx context.Context, documentID, expectedID string) (*domain.Stroke, bool, error) {
	var (
		popped *domain.Stroke
		ok     bool
	)
	err := s.mutate(ctx, documentID, "undo_stroke", func() error {
		var err error
		popped, ok, err = s.stateRepo.PopStroke(ctx, documentID, expectedID)
		return err
	})
	return popped, ok, err
}

func (s *CanvasService) AddItem(ctx context.Context, documentID string, kind domain.ItemKind, item domain.Item) error {
	if !kind.Valid() || item.ID() == "" {
		return ErrInvalidInput
	}
	return s.mutate(ctx, documentID, "add_"+string(kind), func() error {
		return s.stateRepo.AddItem(ctx, documentID, kind, item)
	})
}

func (s *CanvasService) UpdateItem(ctx context.Context, documentID string, kind domain.ItemKind, id string, fields map[string]any) (bool, error) {
	if !kind.Valid() || id == "" {
		return false, ErrInvalidInput
	}
	var ok bool
	err := s.mutate(ctx, documentID, "update_"+string(kind), func() error {
		var err error
		ok, err = s.stateRepo.UpdateItem(ctx, documentID, kind, id, fields)
		return err
	})
	return ok, err
}

func (s *CanvasService) DeleteItem(ctx context.Context, documentID string, kind domain.ItemKind, id string) (bool, error) {
	if !kind.Valid() || id == "" {
		return false, ErrInvalidInput
	}
	var ok bool
	err := s.mutate(ctx, documentID, "delete_"+string(kind), func() error {
		var err error
		ok, err = s.stateRepo.DeleteItem(ctx, documentID, kind, id)
		return err
	})
	return ok, err
}

// Persist 把实时状态写回持久记录。由延迟任务调用；已有更新版本时跳过。
func (s *CanvasService) Persist(ctx context.Context, documentID string) error {
	logCtx := logrus.WithFields(logrus.Fields{"document_id": documentID, "operation": "persist_canvas"})

	loaded, err := s.stateRepo.IsLoaded(ctx, documentID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}
	if !loaded {
		// 实时层已被清空，没有可写回的内容
		logCtx.Debug("Live state not loaded, nothing to persist")
		return nil
	}

	state, err := s.stateRepo.GetState(ctx, documentID)
	if err != nil {
		return fmt.Errorf("%w: read live state: %v", ErrPersistenceFailure, err)
	}
	written, err := s.docRepo.SaveCanvas(ctx, documentID, state)
	if err != nil {
		if errors.Is(err, repository.ErrDocumentNotFound) {
			return ErrDocumentNotFound
		}
		return fmt.Errorf("%w: save canvas: %v", ErrPersistenceFailure, err)
	}
	logCtx.WithFields(logrus.Fields{"version": state.Version, "written": written}).Debug("Canvas persisted")
	return nil
}
