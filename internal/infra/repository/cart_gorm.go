package repository

import (
	"context"
	"errors"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CartGormRepository struct {
	db *gorm.DB
}

// DI
func NewCartGormRepository(db *gorm.DB) *CartGormRepository {
	return &CartGormRepository{db: db}
}

// 持ち主で絞り込む（ユーザー優先）。prefixはJOIN時のテーブル名
func ownerScope(owner model.Owner, prefix string) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		if owner.UserID > 0 {
			return tx.Where(prefix+"user_id = ?", owner.UserID)
		}
		return tx.Where(prefix+"guest_id = ? AND "+prefix+"user_id IS NULL", owner.GuestID)
	}
}

// 持ち主のACTIVEカートを取得し、無ければ作成
func (r *CartGormRepository) GetOrCreateActive(ctx context.Context, owner model.Owner) (model.Cart, error) {
	if owner.IsZero() {
		return model.Cart{}, errors.New("owner is empty")
	}

	var cart model.Cart

	//トランザクションで探す→無ければ作る
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		findErr := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Scopes(ownerScope(owner, "")).
			Where("status = ?", model.CartStatusActive).
			Order("id desc").
			First(&cart).Error

		if findErr == nil {
			return nil
		}

		if !isNotFound(findErr) {
			return findErr
		}

		// 無ければ作る
		newCart := model.Cart{Status: model.CartStatusActive}
		if owner.UserID > 0 {
			uid := owner.UserID
			newCart.UserID = &uid
		} else {
			gid := owner.GuestID
			newCart.GuestID = &gid
		}

		// 同時作成で一意制約に負けたらsavepointまで戻して読み直す
		if err := tx.Transaction(func(sp *gorm.DB) error {
			return sp.Create(&newCart).Error
		}); err != nil {
			retryErr := tx.
				Scopes(ownerScope(owner, "")).
				Where("status = ?", model.CartStatusActive).
				Order("id desc").
				First(&cart).Error
			if retryErr == nil {
				return nil
			}
			return err
		}

		cart = newCart
		return nil
	})

	if err != nil {
		return model.Cart{}, translate(err)
	}
	return cart, nil
}

// 持ち主のACTIVEカートを取得
func (r *CartGormRepository) FindActive(ctx context.Context, owner model.Owner) (model.Cart, error) {
	var cart model.Cart

	err := r.db.WithContext(ctx).
		Scopes(ownerScope(owner, "")).
		Where("status = ?", model.CartStatusActive).
		Order("id desc").
		First(&cart).Error

	if err != nil {
		return model.Cart{}, translate(err)
	}
	return cart, nil
}

// carts.statusを更新
func (r *CartGormRepository) UpdateStatus(ctx context.Context, cartID int64, status model.CartStatus) error {
	res := r.db.WithContext(ctx).
		Model(&model.Cart{}).
		Where("id = ?", cartID).
		Update("status", status)

	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// ゲストカートを引き継ぎ済みにする。2回目以降はfalse。
func (r *CartGormRepository) MarkClaimed(ctx context.Context, cartID int64, userID int64, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Cart{}).
		Where("id = ? AND claimed_at IS NULL", cartID).
		Updates(map[string]interface{}{
			"status":             model.CartStatusClaimed,
			"claimed_at":         at,
			"claimed_by_user_id": userID,
		})

	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected > 0, nil
}

// 明細を全削除（カート自体は残す）
func (r *CartGormRepository) Clear(ctx context.Context, cartID int64) error {
	return translate(r.db.WithContext(ctx).Where("cart_id = ?", cartID).Delete(&model.CartItem{}).Error)
}

func (r *CartGormRepository) ListByCartID(ctx context.Context, cartID int64) ([]model.CartItem, error) {
	items := []model.CartItem{}
	if err := r.db.WithContext(ctx).Where("cart_id = ?", cartID).Order("id").Find(&items).Error; err != nil {
		return nil, translate(err)
	}
	return items, nil
}

var cartItemKeyColumns = []clause.Column{
	{Name: "cart_id"}, {Name: "product_id"}, {Name: "selected_color"}, {Name: "selected_size"},
}

func (r *CartGormRepository) UpsertIncrement(ctx context.Context, cartID int64, key model.CartLineKey, addQty int64, unitPrice decimal.Decimal) error {
	if addQty <= 0 {
		return errors.New("invalid quantity")
	}
	return r.upsert(ctx, cartID, key, addQty, unitPrice, gorm.Expr("cart_items.quantity + excluded.quantity"))
}

func (r *CartGormRepository) UpsertSet(ctx context.Context, cartID int64, key model.CartLineKey, qty int64, unitPrice decimal.Decimal) error {
	if qty <= 0 {
		return errors.New("invalid quantity")
	}
	return r.upsert(ctx, cartID, key, qty, unitPrice, gorm.Expr("excluded.quantity"))
}

// idx_cart_item_key に対する INSERT ... ON CONFLICT。価格スナップショットは常に最新へ
func (r *CartGormRepository) upsert(ctx context.Context, cartID int64, key model.CartLineKey, qty int64, unitPrice decimal.Decimal, quantity clause.Expr) error {
	item := model.CartItem{
		CartID:            cartID,
		ProductID:         key.ProductID,
		SelectedColor:     key.SelectedColor,
		SelectedSize:      key.SelectedSize,
		Quantity:          qty,
		UnitPriceSnapshot: unitPrice,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: cartItemKeyColumns,
		DoUpdates: clause.Assignments(map[string]any{
			"quantity":            quantity,
			"unit_price_snapshot": gorm.Expr("excluded.unit_price_snapshot"),
			"updated_at":          gorm.Expr("excluded.updated_at"),
		}),
	}).Create(&item).Error
	return translate(err)
}

func (r *CartGormRepository) FindOwned(ctx context.Context, owner model.Owner, cartItemID int64) (model.CartItem, error) {
	var item model.CartItem
	err := r.db.WithContext(ctx).
		Joins("JOIN carts ON carts.id = cart_items.cart_id").
		Where("cart_items.id = ? AND carts.status = ?", cartItemID, model.CartStatusActive).
		Scopes(ownerScope(owner, "carts.")).
		Take(&item).Error
	if err != nil {
		return model.CartItem{}, translate(err)
	}
	return item, nil
}

func (r *CartGormRepository) UpdateQuantity(ctx context.Context, cartID, cartItemID, qty int64) error {
	res := r.db.WithContext(ctx).
		Model(&model.CartItem{}).
		Where("id = ? AND cart_id = ?", cartItemID, cartID).
		Update("quantity", qty)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *CartGormRepository) Delete(ctx context.Context, cartID, cartItemID int64) error {
	res := r.db.WithContext(ctx).Where("cart_id = ?", cartID).Delete(&model.CartItem{}, cartItemID)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}
