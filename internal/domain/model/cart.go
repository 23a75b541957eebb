package model

import "time"

type CartStatus string

const (
	CartStatusActive     CartStatus = "ACTIVE"
	CartStatusCheckedOut CartStatus = "CHECKED_OUT"
	CartStatusAbandoned  CartStatus = "ABANDONED"
	CartStatusClaimed    CartStatus = "CLAIMED"
)

// ユーザー or ゲストごとにACTIVEは1つ
type Cart struct {
	ID      int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID  *int64     `gorm:"index" json:"user_id,omitempty"`
	GuestID *string    `gorm:"type:varchar(64);index" json:"guest_id,omitempty"`
	Status  CartStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	// ゲストカートをユーザーへ引き継いだ時刻（1回だけ）
	ClaimedAt       *time.Time `json:"claimed_at,omitempty"`
	ClaimedByUserID *int64     `json:"claimed_by_user_id,omitempty"`
	CreatedAt       time.Time  `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
