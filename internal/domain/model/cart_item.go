package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// カートの明細
// (cart, product, color, size) で1行。同じキーの追加は数量加算。
type CartItem struct {
	ID                int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	CartID            int64           `gorm:"not null;uniqueIndex:idx_cart_item_key" json:"cart_id"`
	ProductID         int64           `gorm:"not null;uniqueIndex:idx_cart_item_key" json:"product_id"`
	SelectedColor     string          `gorm:"type:varchar(50);not null;default:'';uniqueIndex:idx_cart_item_key" json:"selected_color"`
	SelectedSize      string          `gorm:"type:varchar(50);not null;default:'';uniqueIndex:idx_cart_item_key" json:"selected_size"`
	Quantity          int64           `gorm:"not null" json:"quantity"`
	UnitPriceSnapshot decimal.Decimal `gorm:"type:numeric(12,2);not null;column:unit_price_snapshot" json:"unit_price_snapshot"`
	CreatedAt         time.Time       `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

// 明細の複合キー
type CartLineKey struct {
	ProductID     int64
	SelectedColor string
	SelectedSize  string
}

func (it CartItem) Key() CartLineKey {
	return CartLineKey{ProductID: it.ProductID, SelectedColor: it.SelectedColor, SelectedSize: it.SelectedSize}
}
