package repository

import (
	"context"
	"errors"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AddressGormRepository struct {
	db *gorm.DB
}

func NewAddressGormRepository(db *gorm.DB) *AddressGormRepository {
	return &AddressGormRepository{db: db}
}

// ownedは (id, user_id) の絞り込み
func owned(userID, addressID int64) clause.Expr {
	return gorm.Expr("id = ? AND user_id = ?", addressID, userID)
}

func (r *AddressGormRepository) Create(ctx context.Context, address model.Address) (model.Address, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		//同じユーザーの作成が並んでもdefaultが2つにならないようユーザー行をロック
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").
			First(&model.User{}, address.UserID).Error; err != nil {
			return translate(err)
		}

		var n int64
		if err := tx.Model(&model.Address{}).Where("user_id = ?", address.UserID).Count(&n).Error; err != nil {
			return err
		}
		address.IsDefault = n == 0

		return tx.Create(&address).Error
	})
	if err != nil {
		return model.Address{}, translate(err)
	}
	return address, nil
}

// defaultが先頭
func (r *AddressGormRepository) ListByUserID(ctx context.Context, userID int64) ([]model.Address, error) {
	var list []model.Address
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("is_default DESC, id ASC").
		Find(&list).Error
	return list, translate(err)
}

func (r *AddressGormRepository) FindOwned(ctx context.Context, userID, addressID int64) (model.Address, error) {
	var a model.Address
	if err := r.db.WithContext(ctx).Where(owned(userID, addressID)).Take(&a).Error; err != nil {
		return model.Address{}, translate(err)
	}
	return a, nil
}

// is_default と作成者は変えない
func (r *AddressGormRepository) UpdateOwned(ctx context.Context, userID int64, address model.Address) error {
	res := r.db.WithContext(ctx).
		Model(&model.Address{}).
		Where(owned(userID, address.ID)).
		Select("postal_code", "prefecture", "city", "line1", "line2", "name", "phone", "updated_at").
		Updates(address)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *AddressGormRepository) DeleteOwned(ctx context.Context, userID, addressID int64) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var deleted model.Address
		res := tx.Clauses(clause.Returning{}).Where(owned(userID, addressID)).Delete(&deleted)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return repo.ErrNotFound
		}
		if !deleted.IsDefault {
			return nil
		}

		//default繰り上げ
		var next model.Address
		err := tx.Where("user_id = ?", userID).Order("id ASC").Take(&next).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return tx.Model(&next).Update("is_default", true).Error
	})
	return translate(err)
}

// 1文で切り替える（対象以外をfalse、対象をtrue）
func (r *AddressGormRepository) SetDefault(ctx context.Context, userID, addressID int64) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var a model.Address
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where(owned(userID, addressID)).
			Take(&a).Error; err != nil {
			return err
		}
		return tx.Model(&model.Address{}).
			Where("user_id = ?", userID).
			Update("is_default", gorm.Expr("id = ?", addressID)).Error
	})
	return translate(err)
}
