package repository

import (
	"context"
	"time"

	"storefront/internal/domain/model"
)

// 見つからなければErrNotFound、email重複はErrConflict
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	FindByID(ctx context.Context, userID int64) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	TouchLastLogin(ctx context.Context, userID int64, at time.Time) error
	// token_versionを+1して更新後の値を返す。発行済みアクセストークンは全部無効になる
	BumpTokenVersion(ctx context.Context, userID int64) (int, error)
}
