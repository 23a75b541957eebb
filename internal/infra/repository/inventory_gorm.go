package repository

import (
	"context"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type InventoryGormRepository struct {
	db *gorm.DB
}

func NewInventoryGormRepository(db *gorm.DB) *InventoryGormRepository {
	return &InventoryGormRepository{db: db}
}

func (r *InventoryGormRepository) Reserve(ctx context.Context, productID, qty int64, orderID string) (bool, error) {
	reserved := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// stock >= qty の条件付き更新。負在庫にはならない
		res := tx.Model(&model.Product{}).
			Where("id = ? AND stock >= ?", productID, qty).
			UpdateColumn("stock", gorm.Expr("stock - ?", qty))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		reserved = true
		return tx.Create(&model.InventoryAdjustment{
			ProductID: productID,
			OrderID:   &orderID,
			Delta:     -qty,
			Kind:      model.AdjustmentOrderReserve,
			Reason:    "order reserve",
		}).Error
	})
	if err != nil {
		return false, translate(err)
	}
	return reserved, nil
}

func (r *InventoryGormRepository) Release(ctx context.Context, productID, qty int64, orderID, reason string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Unscoped().
			Model(&model.Product{}).
			Where("id = ?", productID).
			UpdateColumn("stock", gorm.Expr("stock + ?", qty))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return repo.ErrNotFound
		}
		return tx.Create(&model.InventoryAdjustment{
			ProductID: productID,
			OrderID:   &orderID,
			Delta:     qty,
			Kind:      model.AdjustmentOrderRelease,
			Reason:    reason,
		}).Error
	})
	return translate(err)
}

func (r *InventoryGormRepository) Set(ctx context.Context, productID, stock, adminUserID int64, reason string) (int64, error) {
	var before int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		//同時の注文確保と競合しないよう行ロックしてから読む
		var p model.Product
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "stock").
			Take(&p, productID).Error; err != nil {
			return err
		}
		before = p.Stock

		if err := tx.Model(&p).UpdateColumn("stock", stock).Error; err != nil {
			return err
		}
		return tx.Create(&model.InventoryAdjustment{
			ProductID:   productID,
			AdminUserID: &adminUserID,
			Delta:       stock - before,
			Kind:        model.AdjustmentManual,
			Reason:      reason,
		}).Error
	})
	if err != nil {
		return 0, translate(err)
	}
	return before, nil
}
