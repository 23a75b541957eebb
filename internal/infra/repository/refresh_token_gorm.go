package repository

import (
	"context"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type refreshTokenGormRepository struct {
	db *gorm.DB
}

func NewRefreshTokenRepository(db *gorm.DB) repo.RefreshTokenRepository {
	return &refreshTokenGormRepository{db: db}
}

func (r *refreshTokenGormRepository) Create(ctx context.Context, token *model.RefreshToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	// family未指定なら自分が先頭
	if token.FamilyID == "" {
		token.FamilyID = token.ID
	}
	return translate(r.db.WithContext(ctx).Create(token).Error)
}

func (r *refreshTokenGormRepository) FindByTokenHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error) {
	var token model.RefreshToken
	if err := r.db.WithContext(ctx).Where("token_hash = ?", tokenHash).Take(&token).Error; err != nil {
		return nil, translate(err)
	}
	return &token, nil
}

func (r *refreshTokenGormRepository) Rotate(ctx context.Context, usedID string, next *model.RefreshToken, at time.Time) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		//同時に2回来たら片方は0件更新になる
		res := tx.Model(&model.RefreshToken{}).
			Where("id = ? AND used_at IS NULL AND revoked_at IS NULL", usedID).
			Update("used_at", at)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return repo.ErrConflict
		}

		if next.ID == "" {
			next.ID = uuid.NewString()
		}
		return tx.Create(next).Error
	})
	return translate(err)
}

func (r *refreshTokenGormRepository) RevokeFamily(ctx context.Context, familyID string, at time.Time) error {
	return r.revoke(ctx, "family_id = ?", familyID, at)
}

func (r *refreshTokenGormRepository) RevokeAllForUser(ctx context.Context, userID int64, at time.Time) error {
	return r.revoke(ctx, "user_id = ?", userID, at)
}

// 失効済みは上書きしない（最初に失効した時刻を残す）
func (r *refreshTokenGormRepository) revoke(ctx context.Context, query string, arg any, at time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&model.RefreshToken{}).
		Where(query, arg).
		Where("revoked_at IS NULL").
		Update("revoked_at", at).Error
	return translate(err)
}
