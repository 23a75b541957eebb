package usecase

import (
	"context"

	repo "storefront/internal/repository"
)

// releaseReservedStock は注文作成時に確保した在庫を戻す。
// stock_reservedの条件付き更新に勝ったときだけ戻すので二重に戻らない。
func releaseReservedStock(ctx context.Context, r repo.TxRepos, orderID string, reason string) error {
	released, err := r.Orders().ReleaseStockReservation(ctx, orderID)
	if err != nil {
		return err
	}
	if !released {
		return nil
	}

	items, err := r.OrderItems().ListByOrderID(ctx, orderID)
	if err != nil {
		return err
	}
	for _, it := range items {
		if err := r.Inventory().Release(ctx, it.ProductID, it.Quantity, orderID, reason); err != nil {
			return err
		}
	}
	return nil
}
