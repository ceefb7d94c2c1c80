package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/repository"
)

// GormDocumentRepository 是 DocumentRepository 接口的 GORM 实现
type GormDocumentRepository struct {
	db *gorm.DB
}

// NewGormDocumentRepository 创建 GormDocumentRepository 实例
func NewGormDocumentRepository(db *gorm.DB) *GormDocumentRepository {
	if db == nil {
		panic("database connection cannot be nil for GormDocumentRepository")
	}
	return &GormDocumentRepository{db: db}
}

func (r *GormDocumentRepository) FindByID(ctx context.Context, id string) (*domain.Document, error) {
	var doc domain.Document
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("gorm: find document by id %s: %w", id, err)
	}
	return &doc, nil
}

func (r *GormDocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	if err := r.db.WithContext(ctx).Create(doc).Error; err != nil {
		if isDuplicateEntry(err) {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: create document %s: %w", doc.ID, err)
	}
	return nil
}

// SaveCanvas 覆盖画布数据；数据库中版本更新时不写入，避免乱序的持久化任务回退状态
func (r *GormDocumentRepository) SaveCanvas(ctx context.Context, id string, state *domain.CanvasState) (bool, error) {
	var doc domain.Document
	if err := doc.SetCanvas(state.Clone()); err != nil {
		return false, err
	}
	result := r.db.WithContext(ctx).Model(&domain.Document{}).
		Where("id = ? AND canvas_version <= ?", id, doc.CanvasVersion).
		Updates(map[string]interface{}{
			"canvas_data":    doc.CanvasData,
			"canvas_version": doc.CanvasVersion,
		})
	if result.Error != nil {
		return false, fmt.Errorf("gorm: save canvas of document %s: %w", id, result.Error)
	}
	if result.RowsAffected > 0 {
		return true, nil
	}

	// 没有更新任何行：文档不存在或已有更新的版本
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Document{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, fmt.Errorf("gorm: check document %s: %w", id, err)
	}
	if count == 0 {
		return false, repository.ErrDocumentNotFound
	}
	return false, nil
}
