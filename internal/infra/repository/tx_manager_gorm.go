package repository

import (
	"context"
	"fmt"
	"time"

	repo "storefront/internal/repository"

	"gorm.io/gorm"
)

const defaultLockTimeout = 3 * time.Second

// tx上に作り直したrepo群
type txScope struct {
	products  *ProductGormRepository
	inventory *InventoryGormRepository
	cart      *CartGormRepository
	orders    *OrderGormRepository
	items     *OrderItemGormRepository
	audits    repo.AuditLogRepository
}

func newTxScope(tx *gorm.DB) *txScope {
	return &txScope{
		products:  NewProductGormRepository(tx),
		inventory: NewInventoryGormRepository(tx),
		cart:      NewCartGormRepository(tx),
		orders:    NewOrderGormRepository(tx),
		items:     NewOrderItemGormRepository(tx),
		audits:    NewAuditLogGormRepository(tx),
	}
}

func (s *txScope) Products() repo.ProductRepository     { return s.products }
func (s *txScope) Inventory() repo.InventoryRepository  { return s.inventory }
func (s *txScope) Carts() repo.CartRepository           { return s.cart }
func (s *txScope) CartItems() repo.CartItemRepository   { return s.cart }
func (s *txScope) Orders() repo.OrderRepository         { return s.orders }
func (s *txScope) OrderItems() repo.OrderItemRepository { return s.items }
func (s *txScope) AuditLogs() repo.AuditLogRepository   { return s.audits }

type TxManagerGorm struct {
	db          *gorm.DB
	lockTimeout time.Duration
}

type TxOption func(*TxManagerGorm)

// 行ロック待ちの上限。超えると55P03になりErrBusyで返る。0で無制限。
func WithLockTimeout(d time.Duration) TxOption {
	return func(tm *TxManagerGorm) { tm.lockTimeout = d }
}

func NewTxManagerGorm(db *gorm.DB, opts ...TxOption) *TxManagerGorm {
	tm := &TxManagerGorm{db: db, lockTimeout: defaultLockTimeout}
	for _, opt := range opts {
		opt(tm)
	}
	return tm
}

func (tm *TxManagerGorm) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	err := tm.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if tm.lockTimeout > 0 {
			// SET LOCALはプレースホルダ不可
			stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", tm.lockTimeout.Milliseconds())
			if err := tx.Exec(stmt).Error; err != nil {
				return err
			}
		}
		return fn(newTxScope(tx))
	})
	// commit時のシリアライズ失敗もここで拾う
	return translate(err)
}

var (
	_ repo.OrderRepository     = (*OrderGormRepository)(nil)
	_ repo.OrderItemRepository = (*OrderItemGormRepository)(nil)
	_ repo.CartRepository      = (*CartGormRepository)(nil)
	_ repo.CartItemRepository  = (*CartGormRepository)(nil)
	_ repo.InventoryRepository = (*InventoryGormRepository)(nil)
	_ repo.ProductRepository   = (*ProductGormRepository)(nil)
	_ repo.AddressRepository   = (*AddressGormRepository)(nil)
	_ repo.TransactionManager  = (*TxManagerGorm)(nil)
)
