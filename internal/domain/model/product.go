package model

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Product struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string          `gorm:"type:varchar(255);not null" json:"name"`
	Description string          `gorm:"type:text" json:"description"`
	Price       decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	Stock       int64           `gorm:"not null" json:"stock"`
	IsActive    bool            `gorm:"not null;default:false" json:"is_active"`
	// バリエーション（空なら指定不可）
	Sizes     pq.StringArray `gorm:"type:text[]" json:"sizes"`
	Colors    pq.StringArray `gorm:"type:text[]" json:"colors"`
	CreatedAt time.Time      `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// HasVariant は選択値が商品のバリエーションに含まれるか
func (p Product) HasVariant(size string, color string) bool {
	return contains(p.Sizes, size) && contains(p.Colors, color)
}

func contains(list []string, v string) bool {
	if len(list) == 0 {
		return v == ""
	}
	if v == "" {
		return true
	}
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
