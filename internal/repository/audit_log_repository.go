package repository

import (
	"context"
	"time"

	"storefront/internal/domain/model"
)

// 監査ログの検索条件。nilの項目は絞り込まない。
// BeforeIDはキーセットページング用（前ページ最後のID、0なら先頭から）。
type AuditLogFilter struct {
	ActorUserID  *int64
	Action       *model.AuditAction
	ResourceType *model.AuditResourceType
	ResourceID   *string
	From         *time.Time
	To           *time.Time
	BeforeID     int64
	Limit        int
}

// 監査ログは追記のみ
type AuditLogRepository interface {
	Create(ctx context.Context, entry model.AuditLog) error
	// id降順
	List(ctx context.Context, filter AuditLogFilter) ([]model.AuditLog, error)
}
