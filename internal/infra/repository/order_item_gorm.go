package repository

import (
	"context"

	"storefront/internal/domain/model"

	"gorm.io/gorm"
)

// 明細は注文作成時に一度だけ書き、以後は読むだけ
type OrderItemGormRepository struct {
	db *gorm.DB
}

func NewOrderItemGormRepository(db *gorm.DB) *OrderItemGormRepository {
	return &OrderItemGormRepository{db: db}
}

const orderItemBatchSize = 100

func (r *OrderItemGormRepository) CreateBulk(ctx context.Context, orderID string, items []model.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	rows := make([]model.OrderItem, len(items))
	for i, it := range items {
		it.OrderID = orderID
		rows[i] = it
	}
	return translate(r.db.WithContext(ctx).CreateInBatches(rows, orderItemBatchSize).Error)
}

// 作成順（カートに入れた順）
func (r *OrderItemGormRepository) ListByOrderID(ctx context.Context, orderID string) ([]model.OrderItem, error) {
	items := []model.OrderItem{}
	if err := r.db.WithContext(ctx).Where(&model.OrderItem{OrderID: orderID}).Order("id").Find(&items).Error; err != nil {
		return nil, translate(err)
	}
	return items, nil
}
