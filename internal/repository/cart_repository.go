package repository

import (
	"context"
	"time"

	"storefront/internal/domain/model"
)

type CartRepository interface {
	GetOrCreateActive(ctx context.Context, owner model.Owner) (model.Cart, error)
	FindActive(ctx context.Context, owner model.Owner) (model.Cart, error)
	UpdateStatus(ctx context.Context, cartID int64, status model.CartStatus) error
	Clear(ctx context.Context, cartID int64) error
	// claimed_at IS NULL のときだけ立てる。立てられたらtrue
	MarkClaimed(ctx context.Context, cartID int64, userID int64, at time.Time) (bool, error)
}
