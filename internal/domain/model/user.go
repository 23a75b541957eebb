package model

import (
	"strconv"
	"time"
)

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

type User struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	Email        string `gorm:"uniqueIndex;not null"`
	Name         string `gorm:"type:varchar(255);not null;default:''"`
	Phone        string `gorm:"type:varchar(30);not null;default:''"`
	PasswordHash string `gorm:"column:password_hash;not null"`
	Role         Role   `gorm:"type:varchar(20);not null;default:'USER'"`
	TokenVersion int    `gorm:"not null;default:0"`
	IsActive     bool   `gorm:"not null;default:true"`
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// 認証境界で1回だけ作る呼び出し元情報
type Identity struct {
	UserID int64
	Role   Role
	Email  string
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
