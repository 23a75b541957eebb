package repository

import (
	"context"

	"storefront/internal/domain/model"
)

// 住所帳。ID指定の操作はすべて user_id で絞り、他人の住所は ErrNotFound。
type AddressRepository interface {
	// 最初の1件はdefaultになる
	Create(ctx context.Context, address model.Address) (model.Address, error)
	ListByUserID(ctx context.Context, userID int64) ([]model.Address, error)
	FindOwned(ctx context.Context, userID, addressID int64) (model.Address, error)
	UpdateOwned(ctx context.Context, userID int64, address model.Address) error
	// defaultを消したら残りの一番古いものがdefault
	DeleteOwned(ctx context.Context, userID, addressID int64) error
	SetDefault(ctx context.Context, userID, addressID int64) error
}
