package repository

import (
	"context"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"gorm.io/gorm"
)

type OrderGormRepository struct {
	db *gorm.DB
}

func NewOrderGormRepository(db *gorm.DB) *OrderGormRepository {
	return &OrderGormRepository{db: db}
}

func (r *OrderGormRepository) FindByID(ctx context.Context, orderID string) (model.Order, error) {
	var o model.Order
	err := r.db.WithContext(ctx).Where("id = ?", orderID).First(&o).Error
	if err != nil {
		return model.Order{}, translate(err)
	}
	return o, nil
}

// ゲートウェイ側のセッション/リンクIDで逆引き
func (r *OrderGormRepository) FindByPaymentRef(ctx context.Context, paymentRef string) (model.Order, error) {
	var o model.Order
	err := r.db.WithContext(ctx).Where("payment_ref = ?", paymentRef).First(&o).Error
	if err != nil {
		return model.Order{}, translate(err)
	}
	return o, nil
}

func (r *OrderGormRepository) ListByUserID(ctx context.Context, userID int64, page int, limit int) ([]model.Order, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("user_id = ?", userID).
		Count(&total).Error; err != nil {
		return []model.Order{}, 0, translate(err)
	}

	var items []model.Order
	offset := (page - 1) * limit
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Limit(limit).
		Offset(offset).
		Find(&items).Error
	if err != nil {
		return []model.Order{}, 0, translate(err)
	}

	return items, total, nil
}

func (r *OrderGormRepository) Create(ctx context.Context, order model.Order) error {
	if err := r.db.WithContext(ctx).Create(&order).Error; err != nil {
		return translate(err)
	}
	return nil
}

func (r *OrderGormRepository) FindByIdempotencyKey(ctx context.Context, ownerKey string, key string) (model.Order, bool, error) {
	var o model.Order
	err := r.db.WithContext(ctx).
		Where("owner_key = ? AND idempotency_key = ?", ownerKey, key).
		First(&o).Error

	if isNotFound(err) {
		return model.Order{}, false, nil
	}
	if err != nil {
		return model.Order{}, false, translate(err)
	}
	return o, true, nil
}

// 決済セッションを紐付ける（PENDINGのときだけ）
func (r *OrderGormRepository) AttachPayment(ctx context.Context, orderID string, s repo.PaymentSession) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND status = ?", orderID, model.OrderStatusPending).
		Updates(map[string]interface{}{
			"payment_method":      s.Method,
			"payment_ref":         s.Ref,
			"checkout_url":        s.CheckoutURL,
			"checkout_expires_at": s.ExpiresAt,
			"payment_attempts":    gorm.Expr("payment_attempts + 1"),
		})
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected > 0, nil
}

// 期限切れ・取消になったセッションを外す。別のセッションに替わっていれば何もしない。
func (r *OrderGormRepository) ClearCheckoutSession(ctx context.Context, orderID string, paymentRef string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND status = ? AND payment_ref = ?", orderID, model.OrderStatusPending, paymentRef).
		Updates(map[string]interface{}{
			"checkout_url":        nil,
			"checkout_expires_at": nil,
		})
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected > 0, nil
}

// PENDING -> PAID。0件なら既に遷移済み。
func (r *OrderGormRepository) MarkPaid(ctx context.Context, orderID string, paymentRef string, paidAt time.Time) (bool, error) {
	updates := map[string]interface{}{
		"status":  model.OrderStatusPaid,
		"paid_at": paidAt,
	}
	if paymentRef != "" {
		updates["payment_ref"] = paymentRef
	}

	res := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND status = ?", orderID, model.OrderStatusPending).
		Updates(updates)
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *OrderGormRepository) TransitionStatus(ctx context.Context, orderID string, from model.OrderStatus, to model.OrderStatus) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND status = ?", orderID, from).
		Update("status", to)
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected > 0, nil
}

// 在庫戻しは1回だけ
func (r *OrderGormRepository) ReleaseStockReservation(ctx context.Context, orderID string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND stock_reserved = ?", orderID, true).
		Update("stock_reserved", false)
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *OrderGormRepository) ListAdmin(ctx context.Context, f repo.AdminOrderListFilter) ([]model.Order, int64, error) {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 50
	}

	q := r.db.WithContext(ctx).Model(&model.Order{})

	//status 絞り込み
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}

	//user_id 絞り込み
	if f.UserID != nil {
		q = q.Where("user_id = ?", *f.UserID)
	}

	//期間絞り込み
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at <= ?", *f.To)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return []model.Order{}, 0, translate(err)
	}

	var items []model.Order
	offset := (f.Page - 1) * f.Limit
	if err := q.Order("created_at desc").Limit(f.Limit).Offset(offset).Find(&items).Error; err != nil {
		return []model.Order{}, 0, translate(err)
	}

	return items, total, nil
}
