package repository

import "context"

// 在庫の増減は必ずinventory_adjustmentsに履歴を残す。
// 在庫数と履歴を同じtxで書くため、TxRepos経由で使う。
type InventoryRepository interface {
	// 足りるときだけ減らす。足りなければ (false, nil)
	Reserve(ctx context.Context, productID, qty int64, orderID string) (bool, error)
	// 確保分を戻す。論理削除済みの商品にも戻す
	Release(ctx context.Context, productID, qty int64, orderID, reason string) error
	// 管理画面からの棚卸し。変更前の在庫を返す
	Set(ctx context.Context, productID, stock, adminUserID int64, reason string) (int64, error)
}
