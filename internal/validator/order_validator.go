package validator

import (
	"context"
	"strings"

	"storefront/internal/usecase"
)

// 1注文あたりの明細数
const maxOrderLines = 50

type orderValidator struct{}

func NewOrderValidator() usecase.OrderValidator {
	return orderValidator{}
}

// ValidateCreateOrder は形式だけを見る。価格・在庫はusecaseが確認する。
func (orderValidator) ValidateCreateOrder(ctx context.Context, in usecase.CreateOrderInput) error {
	if len(in.Items) > maxOrderLines {
		return invalid("too many items")
	}
	for _, it := range in.Items {
		if it.ProductID <= 0 {
			return invalid("invalid product_id")
		}
		if it.Quantity < 1 {
			return invalid("quantity must be > 0")
		}
		if it.Quantity > usecase.MaxLineQuantity {
			return invalid("quantity too large")
		}
	}

	// 連絡先
	c := in.Customer
	if strings.TrimSpace(c.Name) == "" {
		return invalid("customer name required")
	}
	if !isEmailLike(strings.TrimSpace(c.Email)) {
		return invalid("invalid customer email")
	}
	if len(strings.TrimSpace(c.Phone)) > 30 {
		return invalid("phone too long")
	}

	// 住所帳を使わないなら配送先の必須項目
	if in.AddressID <= 0 {
		s := in.Shipping
		if s == nil {
			return invalid("shipping address required")
		}
		if strings.TrimSpace(s.Name) == "" ||
			strings.TrimSpace(s.PostalCode) == "" ||
			strings.TrimSpace(s.Prefecture) == "" ||
			strings.TrimSpace(s.City) == "" ||
			strings.TrimSpace(s.Line1) == "" {
			return invalid("shipping name, postal_code, prefecture, city and line1 are required")
		}
	}
	return nil
}
