package model

import "time"

type AdjustmentReason string

const (
	AdjustmentManual       AdjustmentReason = "MANUAL"
	AdjustmentOrderReserve AdjustmentReason = "ORDER_RESERVE"
	AdjustmentOrderRelease AdjustmentReason = "ORDER_RELEASE"
)

// 在庫調整の履歴
type InventoryAdjustment struct {
	ID          int64            `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductID   int64            `gorm:"not null;index" json:"product_id"`
	AdminUserID *int64           `gorm:"index" json:"admin_user_id,omitempty"`
	OrderID     *string          `gorm:"type:uuid;index" json:"order_id,omitempty"`
	Delta       int64            `gorm:"not null" json:"delta"`
	Kind        AdjustmentReason `gorm:"type:varchar(20);not null;default:'MANUAL'" json:"kind"`
	Reason      string           `gorm:"type:varchar(255);not null" json:"reason"`
	CreatedAt   time.Time        `gorm:"not null;autoCreateTime" json:"created_at"`
}
