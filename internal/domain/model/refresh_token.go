package model

import "time"

// 平文はCookieにだけ載せ、DBにはsha256だけ持つ。
// 同じログインから回転したトークンは同じFamilyIDを持つ。
type RefreshToken struct {
	ID        string     `gorm:"type:uuid;primaryKey" json:"id"`
	FamilyID  string     `gorm:"type:uuid;not null;index" json:"family_id"`
	UserID    int64      `gorm:"not null;index" json:"user_id"`
	TokenHash string     `gorm:"type:varchar(64);not null;uniqueIndex" json:"-"`
	UserAgent string     `gorm:"type:varchar(512);not null;default:''" json:"user_agent"`
	ExpiresAt time.Time  `gorm:"not null;index" json:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	CreatedAt time.Time  `gorm:"not null;autoCreateTime" json:"created_at"`
}
