package model

import "time"

// 住所帳（ログインユーザーのみ）
type Address struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID     int64     `gorm:"not null;index" json:"user_id"`
	PostalCode string    `gorm:"type:varchar(20);not null" json:"postal_code"`
	Prefecture string    `gorm:"type:varchar(100);not null" json:"prefecture"`
	City       string    `gorm:"type:varchar(255);not null" json:"city"`
	Line1      string    `gorm:"type:varchar(255);not null" json:"line1"`
	Line2      string    `gorm:"type:varchar(255)" json:"line2"`
	Name       string    `gorm:"type:varchar(255);not null" json:"name"`
	Phone      string    `gorm:"type:varchar(30)" json:"phone"`
	IsDefault  bool      `gorm:"not null;default:false" json:"is_default"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time `gorm:"not null" json:"updated_at"`
}

// 注文へコピーする配送先スナップショット
func (a Address) ToShipping() ShippingAddress {
	return ShippingAddress{
		Name:       a.Name,
		Phone:      a.Phone,
		PostalCode: a.PostalCode,
		Prefecture: a.Prefecture,
		City:       a.City,
		Line1:      a.Line1,
		Line2:      a.Line2,
	}
}
