package setup

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"collaborative-whiteboard/internal/domain"
)

// MigrateDB 迁移所有表结构。返回错误以便调用者知道迁移是否成功。
func MigrateDB(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("cannot migrate database with nil DB connection")
	}

	if err := migrateDocumentsTable(db); err != nil {
		return fmt.Errorf("failed to migrate documents table: %w", err)
	}

	err := db.AutoMigrate(
		&domain.Room{},
		&domain.Participant{},
		&domain.Connection{},
		&domain.ChatMessage{},
	)
	if err != nil {
		logrus.Errorf("Failed to auto-migrate tables: %v", err)
		return fmt.Errorf("failed to auto-migrate tables: %w", err)
	}

	logrus.Info("Database migration completed successfully")
	return nil
}

// migrateDocumentsTable 首次创建时用原生 SQL 指定 LONGTEXT 和字符集，之后交给 AutoMigrate
func migrateDocumentsTable(db *gorm.DB) error {
	var count int64
	db.Raw("SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = 'documents'").Count(&count)

	if count == 0 {
		sql := `
		CREATE TABLE documents (
			id VARCHAR(191) NOT NULL PRIMARY KEY,
			owner_id VARCHAR(191),
			title VARCHAR(255),
			shared TINYINT(1) NOT NULL DEFAULT 0,
			canvas_data LONGTEXT,
			canvas_version BIGINT UNSIGNED NOT NULL DEFAULT 0,
			created_at DATETIME(3),
			updated_at DATETIME(3),
			INDEX idx_documents_owner_id (owner_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_general_ci;
		`
		if err := db.Exec(sql).Error; err != nil {
			logrus.Errorf("Failed to create documents table: %v", err)
			return fmt.Errorf("failed to create documents table: %w", err)
		}
		logrus.Info("Documents table created successfully")
		return nil
	}

	if err := db.AutoMigrate(&domain.Document{}); err != nil {
		return fmt.Errorf("failed to migrate document columns: %w", err)
	}
	logrus.Info("Documents table schema checked/updated successfully")
	return nil
}
