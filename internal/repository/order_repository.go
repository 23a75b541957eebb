package repository

import (
	"context"
	"time"

	"storefront/internal/domain/model"
)

type AdminOrderListFilter struct {
	Page   int
	Limit  int
	Status string
	UserID *int64
	From   *time.Time
	To     *time.Time
}

// PaymentSession は注文に紐付けるリモートの決済セッション
type PaymentSession struct {
	Method      model.PaymentMethod
	Ref         string
	CheckoutURL string
	ExpiresAt   *time.Time
}

// 状態遷移はすべて条件付きUPDATE。戻り値のboolは「実際に更新したか」。
type OrderRepository interface {
	FindByID(ctx context.Context, orderID string) (model.Order, error)
	FindByPaymentRef(ctx context.Context, paymentRef string) (model.Order, error)
	ListByUserID(ctx context.Context, userID int64, page int, limit int) ([]model.Order, int64, error)
	Create(ctx context.Context, order model.Order) error

	//同じキーなら同じ注文を返す
	FindByIdempotencyKey(ctx context.Context, ownerKey string, key string) (model.Order, bool, error)

	// status = PENDING のときだけ決済情報を書き、payment_attempts を1つ進める
	AttachPayment(ctx context.Context, orderID string, s PaymentSession) (bool, error)
	// status = PENDING かつ payment_ref が一致するときだけチェックアウトURLを外す
	ClearCheckoutSession(ctx context.Context, orderID string, paymentRef string) (bool, error)
	// status = PENDING のときだけPAIDにする
	MarkPaid(ctx context.Context, orderID string, paymentRef string, paidAt time.Time) (bool, error)
	// status = from のときだけ to にする
	TransitionStatus(ctx context.Context, orderID string, from model.OrderStatus, to model.OrderStatus) (bool, error)
	// stock_reserved = true のときだけfalseにする
	ReleaseStockReservation(ctx context.Context, orderID string) (bool, error)

	ListAdmin(ctx context.Context, f AdminOrderListFilter) ([]model.Order, int64, error)
}
