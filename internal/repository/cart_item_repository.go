package repository

import (
	"context"

	"storefront/internal/domain/model"

	"github.com/shopspring/decimal"
)

// 明細は (cart_id, product_id, color, size) で一意
type CartItemRepository interface {
	ListByCartID(ctx context.Context, cartID int64) ([]model.CartItem, error)
	// 同じキーがあれば数量を加算、無ければ追加
	UpsertIncrement(ctx context.Context, cartID int64, key model.CartLineKey, addQty int64, unitPrice decimal.Decimal) error
	// 同じキーがあれば数量を上書き、無ければ追加
	UpsertSet(ctx context.Context, cartID int64, key model.CartLineKey, qty int64, unitPrice decimal.Decimal) error
	// 持ち主のACTIVEカートの明細だけ。他人のはErrNotFound
	FindOwned(ctx context.Context, owner model.Owner, cartItemID int64) (model.CartItem, error)
	UpdateQuantity(ctx context.Context, cartID, cartItemID, qty int64) error
	Delete(ctx context.Context, cartID, cartItemID int64) error
}
