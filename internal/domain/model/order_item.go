package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 注文明細。価格は注文時点のカタログ価格のスナップショット。
type OrderItem struct {
	ID                  int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID             string          `gorm:"type:uuid;not null;index" json:"order_id"`
	ProductID           int64           `gorm:"not null;index" json:"product_id"`
	ProductNameSnapshot string          `gorm:"type:varchar(255);not null" json:"product_name_snapshot"`
	UnitPrice           decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"unit_price"`
	Quantity            int64           `gorm:"not null" json:"quantity"`
	SelectedSize        string          `gorm:"type:varchar(50);not null;default:''" json:"selected_size,omitempty"`
	SelectedColor       string          `gorm:"type:varchar(50);not null;default:''" json:"selected_color,omitempty"`
	CreatedAt           time.Time       `gorm:"not null;autoCreateTime" json:"created_at"`
}

// 明細の小計
func (it OrderItem) LineTotal() decimal.Decimal {
	return it.UnitPrice.Mul(decimal.NewFromInt(it.Quantity))
}
