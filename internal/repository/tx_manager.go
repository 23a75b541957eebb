package repository

import "context"

// 1トランザクションに束ねたrepo群。
// ここから取ったrepoは同じtxで動くので、fnの外へ持ち出さないこと。
type TxRepos interface {
	Products() ProductRepository
	Inventory() InventoryRepository
	Carts() CartRepository
	CartItems() CartItemRepository
	Orders() OrderRepository
	OrderItems() OrderItemRepository
	AuditLogs() AuditLogRepository
}

// fnがerrorを返すとrollback。
// 行ロック待ちやシリアライズ失敗はErrBusyで返る。
type TransactionManager interface {
	WithinTx(ctx context.Context, fn func(r TxRepos) error) error
}
