package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/repository"
)

// GormRoomRepository 是 RoomRepository 接口的 GORM 实现。
// 房间、参与者、在线连接分表存储，Apply 以增量方式在单个事务内写入。
type GormRoomRepository struct {
	db *gorm.DB
}

// NewGormRoomRepository 创建 GormRoomRepository 实例
func NewGormRoomRepository(db *gorm.DB) *GormRoomRepository {
	if db == nil {
		panic("database connection cannot be nil for GormRoomRepository")
	}
	return &GormRoomRepository{db: db}
}

// FindByID 加载房间及其参与者和在线连接
func (r *GormRoomRepository) FindByID(ctx context.Context, roomID string) (*domain.Room, error) {
	return loadRoom(r.db.WithContext(ctx), roomID)
}

func loadRoom(db *gorm.DB, roomID string) (*domain.Room, error) {
	var room domain.Room
	if err := db.Where("id = ?", roomID).First(&room).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRoomNotFound
		}
		return nil, fmt.Errorf("gorm: find room by id %s: %w", roomID, err)
	}
	if err := db.Where("room_id = ?", roomID).Order("id").Find(&room.Participants).Error; err != nil {
		return nil, fmt.Errorf("gorm: load participants of room %s: %w", roomID, err)
	}
	if err := db.Where("room_id = ?", roomID).Order("connected_at").Find(&room.ActiveConnections).Error; err != nil {
		return nil, fmt.Errorf("gorm: load connections of room %s: %w", roomID, err)
	}
	return &room, nil
}

// Create 插入新房间记录
func (r *GormRoomRepository) Create(ctx context.Context, room *domain.Room) error {
	err := r.db.WithContext(ctx).Omit(clause.Associations).Create(room).Error
	if err != nil {
		if isDuplicateEntry(err) {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: create room %s: %w", room.ID, err)
	}
	return nil
}

// Apply 在单个事务内写入一次网关动作产生的增量变更，然后重新加载房间
func (r *GormRoomRepository) Apply(ctx context.Context, roomID string, m domain.RoomMutation) (*domain.Room, error) {
	var out *domain.Room
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&domain.Room{}).Where("id = ?", roomID).Count(&count).Error; err != nil {
			return fmt.Errorf("gorm: check room %s: %w", roomID, err)
		}
		if count == 0 {
			return repository.ErrRoomNotFound
		}

		if len(m.RemoveConnections) > 0 {
			if err := tx.Where("connection_id IN ?", m.RemoveConnections).Delete(&domain.Connection{}).Error; err != nil {
				return fmt.Errorf("gorm: remove connections from room %s: %w", roomID, err)
			}
		}
		if m.AddParticipant != nil {
			p := *m.AddParticipant
			p.ID = 0
			p.RoomID = roomID
			// 已存在同一身份时不做任何事，重连不会产生重复参与者
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&p).Error; err != nil {
				return fmt.Errorf("gorm: add participant %s to room %s: %w", p.IdentityRef, roomID, err)
			}
		}
		if m.AddConnection != nil {
			c := *m.AddConnection
			c.RoomID = roomID
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&c).Error; err != nil {
				return fmt.Errorf("gorm: add connection %s to room %s: %w", c.ConnectionID, roomID, err)
			}
		}

		room, err := loadRoom(tx, roomID)
		if err != nil {
			return err
		}
		out = room
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// isDuplicateEntry 检查 MySQL 唯一约束冲突 (1062)
func isDuplicateEntry(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}
