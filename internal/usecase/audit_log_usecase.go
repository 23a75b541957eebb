package usecase

import (
	"context"
	"net/http"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 200
)

// NextCursorが0なら最終ページ
type AuditLogPage struct {
	Items      []model.AuditLog `json:"items"`
	NextCursor int64            `json:"next_cursor,omitempty"`
}

type AuditLogUsecase struct {
	audits repo.AuditLogRepository
}

func NewAuditLogUsecase(audits repo.AuditLogRepository) *AuditLogUsecase {
	return &AuditLogUsecase{audits: audits}
}

func (u *AuditLogUsecase) List(ctx context.Context, f repo.AuditLogFilter) (AuditLogPage, error) {
	if f.Limit == 0 {
		f.Limit = defaultAuditLimit
	}
	if f.Limit < 1 || f.Limit > maxAuditLimit {
		return AuditLogPage{}, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}
	if f.BeforeID < 0 {
		return AuditLogPage{}, NewHTTPError(http.StatusBadRequest, "invalid cursor")
	}
	if f.From != nil && f.To != nil && !f.From.Before(*f.To) {
		return AuditLogPage{}, NewHTTPError(http.StatusBadRequest, "from must be before to")
	}

	//1件多く取って次ページの有無を判定
	want := f.Limit
	f.Limit++
	entries, err := u.audits.List(ctx, f)
	if err != nil {
		return AuditLogPage{}, storeError(err)
	}

	page := AuditLogPage{Items: entries}
	if len(entries) > want {
		page.Items = entries[:want]
		page.NextCursor = page.Items[want-1].ID
	}
	if page.Items == nil {
		page.Items = []model.AuditLog{}
	}
	return page, nil
}
