package repository

import (
	"context"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"gorm.io/gorm"
)

type auditLogGormRepository struct {
	db *gorm.DB
}

func NewAuditLogGormRepository(db *gorm.DB) repo.AuditLogRepository {
	return &auditLogGormRepository{db: db}
}

func (r *auditLogGormRepository) Create(ctx context.Context, entry model.AuditLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	return translate(r.db.WithContext(ctx).Create(&entry).Error)
}

func (r *auditLogGormRepository) List(ctx context.Context, f repo.AuditLogFilter) ([]model.AuditLog, error) {
	q := auditScope(r.db.WithContext(ctx), f)
	if f.BeforeID > 0 {
		q = q.Where("id < ?", f.BeforeID)
	}

	var entries []model.AuditLog
	err := q.Order("id DESC").Limit(f.Limit).Find(&entries).Error
	return entries, translate(err)
}

func auditScope(db *gorm.DB, f repo.AuditLogFilter) *gorm.DB {
	conds := []struct {
		on    bool
		query string
		arg   func() any
	}{
		{f.ActorUserID != nil, "actor_user_id = ?", func() any { return *f.ActorUserID }},
		{f.Action != nil, "action = ?", func() any { return *f.Action }},
		{f.ResourceType != nil, "resource_type = ?", func() any { return *f.ResourceType }},
		{f.ResourceID != nil, "resource_id = ?", func() any { return *f.ResourceID }},
		{f.From != nil, "created_at >= ?", func() any { return *f.From }},
		{f.To != nil, "created_at < ?", func() any { return *f.To }},
	}

	q := db.Model(&model.AuditLog{})
	for _, c := range conds {
		if c.on {
			q = q.Where(c.query, c.arg())
		}
	}
	return q
}
