package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusPaid      OrderStatus = "PAID"
	OrderStatusFailed    OrderStatus = "FAILED"
	OrderStatusShipped   OrderStatus = "SHIPPED"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// IsTerminalForPoll はポーリングを止めてよい状態か（PENDING以外）
func (s OrderStatus) IsTerminalForPoll() bool {
	return s != OrderStatusPending
}

func ParseOrderStatus(s string) (OrderStatus, bool) {
	switch OrderStatus(s) {
	case OrderStatusPending, OrderStatusPaid, OrderStatusFailed,
		OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return OrderStatus(s), true
	}
	return "", false
}

type PaymentMethod string

const (
	PaymentMethodStripe   PaymentMethod = "stripe"
	PaymentMethodRazorpay PaymentMethod = "razorpay"
)

// 注文時点の配送先（住所帳とは切り離して保存）
type ShippingAddress struct {
	Name       string `gorm:"type:varchar(255);not null" json:"name"`
	Phone      string `gorm:"type:varchar(30)" json:"phone"`
	PostalCode string `gorm:"type:varchar(20);not null" json:"postal_code"`
	Prefecture string `gorm:"type:varchar(100);not null" json:"prefecture"`
	City       string `gorm:"type:varchar(255);not null" json:"city"`
	Line1      string `gorm:"type:varchar(255);not null" json:"line1"`
	Line2      string `gorm:"type:varchar(255)" json:"line2"`
}

// 1回の購入試行。削除はせずステータスだけ遷移させる。
type Order struct {
	ID      string  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID  *int64  `gorm:"index" json:"user_id,omitempty"`
	GuestID *string `gorm:"type:varchar(64);index" json:"guest_id,omitempty"`

	Status OrderStatus `gorm:"type:varchar(20);not null;index" json:"status"`

	Subtotal    decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"subtotal"`
	ShippingFee decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"shipping_fee"`
	Total       decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total"`
	TotalMinor  int64           `gorm:"not null" json:"total_minor"`
	Currency    string          `gorm:"type:varchar(3);not null" json:"currency"`

	PaymentMethod *PaymentMethod `gorm:"type:varchar(20)" json:"payment_method,omitempty"`
	PaymentRef    *string        `gorm:"type:varchar(255);uniqueIndex" json:"payment_ref,omitempty"`
	CheckoutURL   *string        `gorm:"type:text" json:"-"`
	// リモートセッションの期限（過ぎたら再利用しない）
	CheckoutExpiresAt *time.Time `json:"-"`
	// 作ったリモートセッションの数。冪等キーとreference_idの連番に使う
	PaymentAttempts int        `gorm:"not null;default:0" json:"-"`
	PaidAt          *time.Time `json:"paid_at,omitempty"`

	CustomerName  string          `gorm:"type:varchar(255);not null" json:"customer_name"`
	CustomerEmail string          `gorm:"type:varchar(255);not null" json:"customer_email"`
	CustomerPhone string          `gorm:"type:varchar(30)" json:"customer_phone"`
	Shipping      ShippingAddress `gorm:"embedded;embeddedPrefix:ship_" json:"shipping_address"`

	// 在庫を確保したままか（FAILED/CANCELLEDで戻したらfalse）
	StockReserved bool `gorm:"not null;default:true" json:"-"`

	IdempotencyKey string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_orders_owner_idem" json:"-"`
	OwnerKey       string    `gorm:"type:varchar(80);not null;uniqueIndex:idx_orders_owner_idem" json:"-"`
	CreatedAt      time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

// HasOpenSession はまだ使える決済セッションを持っているか
func (o Order) HasOpenSession(now time.Time) bool {
	if o.PaymentMethod == nil || o.PaymentRef == nil || o.CheckoutURL == nil {
		return false
	}
	return o.CheckoutExpiresAt == nil || now.Before(*o.CheckoutExpiresAt)
}

// 注文の持ち主（ログインユーザー or ゲスト）
type Owner struct {
	UserID  int64
	GuestID string
}

func (o Owner) IsZero() bool {
	return o.UserID <= 0 && o.GuestID == ""
}

// OwnerKey は冪等キーの一意制約に使う文字列
func (o Owner) Key() string {
	if o.UserID > 0 {
		return "user:" + itoa(o.UserID)
	}
	return "guest:" + o.GuestID
}

// OwnedBy は呼び出し元が注文の持ち主か
func (o Order) OwnedBy(owner Owner) bool {
	if owner.UserID > 0 && o.UserID != nil && *o.UserID == owner.UserID {
		return true
	}
	if owner.GuestID != "" && o.GuestID != nil && *o.GuestID == owner.GuestID {
		return true
	}
	return false
}
