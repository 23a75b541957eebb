package repository

import (
	"context"
	"time"

	"storefront/internal/domain/model"
)

// リフレッシュトークンはfamily単位で回転する。
// ログインごとに新しいfamily、refreshのたびに同じfamilyで次の1本。
type RefreshTokenRepository interface {
	Create(ctx context.Context, token *model.RefreshToken) error
	FindByTokenHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error)
	// usedIDを使用済みにしてnextを保存する。usedIDが既に使用済み/失効ならErrConflict
	Rotate(ctx context.Context, usedID string, next *model.RefreshToken, at time.Time) error
	RevokeFamily(ctx context.Context, familyID string, at time.Time) error
	RevokeAllForUser(ctx context.Context, userID int64, at time.Time) error
}
