package db

import (
	"fmt"

	"storefront/internal/domain/model"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Connect はDBに接続して *gorm.DB を返す。
func Connect(dsn string, log *zap.Logger) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	log.Info("database connected")
	return gdb, nil
}

// ACTIVEカートは持ち主ごとに1つ（gormのタグでは部分インデックスを書けない）
var partialIndexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_carts_user_active ON carts (user_id) WHERE status = 'ACTIVE' AND user_id IS NOT NULL`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_carts_guest_active ON carts (guest_id) WHERE status = 'ACTIVE' AND user_id IS NULL`,
}

// Migrate はテーブルを作成/更新する
func Migrate(gdb *gorm.DB) error {
	if err := autoMigrate(gdb); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	for _, stmt := range partialIndexes {
		if err := gdb.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

func autoMigrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&model.User{},
		&model.RefreshToken{},
		&model.Address{},
		&model.Product{},
		&model.InventoryAdjustment{},
		&model.Cart{},
		&model.CartItem{},
		&model.Order{},
		&model.OrderItem{},
		&model.AuditLog{},
	)
}
