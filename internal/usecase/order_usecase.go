package usecase

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// 注文入力の形式チェック（validatorパッケージが実装）
type OrderValidator interface {
	ValidateCreateOrder(ctx context.Context, in CreateOrderInput) error
}

// 領収書PDFの生成
type ReceiptRenderer interface {
	Render(o model.Order, items []model.OrderItem) ([]byte, error)
}

type OrderUsecase struct {
	tx         repo.TransactionManager
	orders     repo.OrderRepository
	orderItems repo.OrderItemRepository
	addresses  repo.AddressRepository
	products   repo.ProductRepository
	pricing    PriceCalculator
	validator  OrderValidator
	receipts   ReceiptRenderer
	log        *zap.Logger
	now        func() time.Time
}

func NewOrderUsecase(
	tx repo.TransactionManager,
	orders repo.OrderRepository,
	orderItems repo.OrderItemRepository,
	addresses repo.AddressRepository,
	products repo.ProductRepository,
	pricing PriceCalculator,
	validator OrderValidator,
	receipts ReceiptRenderer,
	log *zap.Logger,
) *OrderUsecase {
	return &OrderUsecase{
		tx:         tx,
		orders:     orders,
		orderItems: orderItems,
		addresses:  addresses,
		products:   products,
		pricing:    pricing,
		validator:  validator,
		receipts:   receipts,
		log:        log,
		now:        time.Now,
	}
}

type CustomerInput struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// CreateOrderInput は注文作成の入力。
// Itemsが空ならACTIVEカートから作る。金額は受け取っても使わない。
type CreateOrderInput struct {
	Items          []LineInput
	AddressID      int64
	Shipping       *model.ShippingAddress
	Customer       CustomerInput
	ClientTotal    *decimal.Decimal
	IdempotencyKey string
}

type OrderItemOutput struct {
	ProductID     int64           `json:"product_id"`
	Name          string          `json:"name"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	Quantity      int64           `json:"quantity"`
	SelectedSize  string          `json:"selected_size,omitempty"`
	SelectedColor string          `json:"selected_color,omitempty"`
	LineTotal     decimal.Decimal `json:"line_total"`
}

type OrderOutput struct {
	ID              string                `json:"id"`
	Status          string                `json:"status"`
	Subtotal        decimal.Decimal       `json:"subtotal"`
	ShippingFee     decimal.Decimal       `json:"shipping_fee"`
	Total           decimal.Decimal       `json:"total"`
	TotalMinor      int64                 `json:"total_minor"`
	Currency        string                `json:"currency"`
	PaymentMethod   *string               `json:"payment_method,omitempty"`
	PaymentRef      *string               `json:"payment_ref,omitempty"`
	PaidAt          *time.Time            `json:"paid_at,omitempty"`
	CustomerName    string                `json:"customer_name"`
	CustomerEmail   string                `json:"customer_email"`
	CustomerPhone   string                `json:"customer_phone"`
	ShippingAddress model.ShippingAddress `json:"shipping_address"`
	CreatedAt       time.Time             `json:"created_at"`
	Items           []OrderItemOutput     `json:"items"`
}

type OrderListOutput struct {
	Items []OrderOutput `json:"items"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

type QuoteOutput struct {
	Items       []OrderItemOutput `json:"items"`
	Subtotal    decimal.Decimal   `json:"subtotal"`
	ShippingFee decimal.Decimal   `json:"shipping_fee"`
	Total       decimal.Decimal   `json:"total"`
	TotalMinor  int64             `json:"total_minor"`
	Currency    string            `json:"currency"`
}

// ポーリング用の軽い表現
type OrderStatusOutput struct {
	ID         string          `json:"id"`
	Status     string          `json:"status"`
	Total      decimal.Decimal `json:"total"`
	TotalMinor int64           `json:"total_minor"`
	Currency   string          `json:"currency"`
	PaymentRef *string         `json:"payment_ref"`
	PaidAt     *time.Time      `json:"paid_at"`
}

func errOrderNotFound() error {
	return NewHTTPError(http.StatusNotFound, "order not found")
}

// 注文IDはuuid。形式が違えばDBに問い合わせずに404。
func validOrderID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// CreateOrder は現在のカタログ価格で金額を確定し、在庫を確保してPENDINGの注文を作る。
// 同じ持ち主・同じ冪等キーなら既存の注文をそのまま返す。
func (u *OrderUsecase) CreateOrder(ctx context.Context, owner model.Owner, in CreateOrderInput) (OrderOutput, error) {
	if owner.IsZero() {
		return OrderOutput{}, errNoOwner()
	}
	if err := u.validator.ValidateCreateOrder(ctx, in); err != nil {
		return OrderOutput{}, err
	}

	key := strings.TrimSpace(in.IdempotencyKey)
	if key == "" {
		key = uuid.NewString()
	}
	if len(key) > 255 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid idempotency key")
	}

	shipping, err := u.resolveShipping(ctx, owner, in)
	if err != nil {
		return OrderOutput{}, err
	}

	// 同じキーなら同じ結果
	existing, found, err := u.orders.FindByIdempotencyKey(ctx, owner.Key(), key)
	if err != nil {
		return OrderOutput{}, storeError(err)
	}
	if found {
		items, err := u.orderItems.ListByOrderID(ctx, existing.ID)
		if err != nil {
			return OrderOutput{}, storeError(err)
		}
		return toOrderOutput(existing, items), nil
	}

	var out OrderOutput

	//注文処理はトランザクション
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		lines := in.Items
		var cartID int64
		if len(lines) == 0 {
			cart, err := r.Carts().FindActive(ctx, owner)
			if errors.Is(err, repo.ErrNotFound) {
				return NewHTTPError(http.StatusBadRequest, "cart empty")
			}
			if err != nil {
				return err
			}
			cartItems, err := r.CartItems().ListByCartID(ctx, cart.ID)
			if err != nil {
				return err
			}
			if len(cartItems) == 0 {
				return NewHTTPError(http.StatusBadRequest, "cart empty")
			}
			for _, ci := range cartItems {
				lines = append(lines, LineInput{
					ProductID:     ci.ProductID,
					Quantity:      ci.Quantity,
					SelectedSize:  ci.SelectedSize,
					SelectedColor: ci.SelectedColor,
				})
			}
			cartID = cart.ID
		}

		quote, err := u.pricing.Quote(ctx, r.Products(), lines)
		if err != nil {
			return err
		}

		//クライアントの金額は使わない（差があれば記録だけ）
		if in.ClientTotal != nil && !in.ClientTotal.Equal(quote.Total) {
			u.log.Debug("client total differs from computed total",
				zap.String("client_total", in.ClientTotal.String()),
				zap.String("total", quote.Total.String()),
			)
		}

		orderID := uuid.NewString()

		//在庫を確定時に再チェックして減らす
		orderItems := make([]model.OrderItem, 0, len(quote.Lines))
		for _, l := range quote.Lines {
			ok, err := r.Inventory().Reserve(ctx, l.Product.ID, l.Quantity, orderID)
			if err != nil {
				return err
			}
			if !ok {
				return NewHTTPError(http.StatusConflict, "out of stock: product "+strconv.FormatInt(l.Product.ID, 10))
			}

			//スナップショット
			orderItems = append(orderItems, model.OrderItem{
				OrderID:             orderID,
				ProductID:           l.Product.ID,
				ProductNameSnapshot: l.Product.Name,
				UnitPrice:           l.UnitPrice,
				Quantity:            l.Quantity,
				SelectedSize:        l.SelectedSize,
				SelectedColor:       l.SelectedColor,
			})
		}

		order := model.Order{
			ID:             orderID,
			Status:         model.OrderStatusPending,
			Subtotal:       quote.Subtotal,
			ShippingFee:    quote.ShippingFee,
			Total:          quote.Total,
			TotalMinor:     quote.TotalMinor,
			Currency:       quote.Currency,
			CustomerName:   strings.TrimSpace(in.Customer.Name),
			CustomerEmail:  strings.ToLower(strings.TrimSpace(in.Customer.Email)),
			CustomerPhone:  strings.TrimSpace(in.Customer.Phone),
			Shipping:       shipping,
			StockReserved:  true,
			IdempotencyKey: key,
			OwnerKey:       owner.Key(),
			CreatedAt:      u.now(),
		}
		if owner.UserID > 0 {
			uid := owner.UserID
			order.UserID = &uid
		} else {
			gid := owner.GuestID
			order.GuestID = &gid
		}

		if err := r.Orders().Create(ctx, order); err != nil {
			//同じキーの同時リクエスト。txは中断済みなのでクライアントに再送させる
			if errors.Is(err, repo.ErrConflict) {
				return NewHTTPError(http.StatusConflict, "duplicate order request in progress, retry")
			}
			return err
		}

		if err := r.OrderItems().CreateBulk(ctx, orderID, orderItems); err != nil {
			return err
		}

		//カートをCHECKED_OUTにして、明細をクリア（再注文防止）
		if cartID > 0 {
			if err := r.Carts().UpdateStatus(ctx, cartID, model.CartStatusCheckedOut); err != nil {
				return err
			}
			if err := r.Carts().Clear(ctx, cartID); err != nil {
				return err
			}
		}

		out = toOrderOutput(order, orderItems)
		return nil
	})
	if err != nil {
		return OrderOutput{}, storeError(err)
	}

	u.log.Info("order created",
		zap.String("order_id", out.ID),
		zap.String("owner", owner.Key()),
		zap.String("total", out.Total.String()),
		zap.String("currency", out.Currency),
	)
	return out, nil
}

// Quote は注文を作らずに金額だけ計算する（確認画面用）
func (u *OrderUsecase) Quote(ctx context.Context, lines []LineInput) (QuoteOutput, error) {
	q, err := u.pricing.Quote(ctx, u.products, lines)
	if err != nil {
		return QuoteOutput{}, err
	}

	items := make([]OrderItemOutput, 0, len(q.Lines))
	for _, l := range q.Lines {
		items = append(items, OrderItemOutput{
			ProductID:     l.Product.ID,
			Name:          l.Product.Name,
			UnitPrice:     l.UnitPrice,
			Quantity:      l.Quantity,
			SelectedSize:  l.SelectedSize,
			SelectedColor: l.SelectedColor,
			LineTotal:     l.LineTotal,
		})
	}
	return QuoteOutput{
		Items:       items,
		Subtotal:    q.Subtotal,
		ShippingFee: q.ShippingFee,
		Total:       q.Total,
		TotalMinor:  q.TotalMinor,
		Currency:    q.Currency,
	}, nil
}

// 住所帳のIDがあればスナップショット、無ければ入力の住所
func (u *OrderUsecase) resolveShipping(ctx context.Context, owner model.Owner, in CreateOrderInput) (model.ShippingAddress, error) {
	if in.AddressID <= 0 {
		if in.Shipping == nil {
			return model.ShippingAddress{}, NewHTTPError(http.StatusBadRequest, "shipping address required")
		}
		return *in.Shipping, nil
	}
	if owner.UserID <= 0 {
		return model.ShippingAddress{}, NewHTTPError(http.StatusBadRequest, "address_id requires login")
	}

	//他人の住所は存在しない扱い
	addr, err := u.addresses.FindOwned(ctx, owner.UserID, in.AddressID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.ShippingAddress{}, NewHTTPError(http.StatusNotFound, "address not found")
	}
	if err != nil {
		return model.ShippingAddress{}, storeError(err)
	}
	return addr.ToShipping(), nil
}

func (u *OrderUsecase) ListMyOrders(ctx context.Context, id model.Identity, page, limit int) (OrderListOutput, error) {
	if id.UserID <= 0 {
		return OrderListOutput{}, errUnauthenticated()
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 50 {
		limit = 20
	}

	orders, total, err := u.orders.ListByUserID(ctx, id.UserID, page, limit)
	if err != nil {
		return OrderListOutput{}, storeError(err)
	}

	outs := make([]OrderOutput, 0, len(orders))
	for _, o := range orders {
		items, err := u.orderItems.ListByOrderID(ctx, o.ID)
		if err != nil {
			return OrderListOutput{}, storeError(err)
		}
		outs = append(outs, toOrderOutput(o, items))
	}
	return OrderListOutput{Items: outs, Total: total, Page: page, Limit: limit}, nil
}

// GetOrderDetail は持ち主だけが見られる。他人の注文は404。
func (u *OrderUsecase) GetOrderDetail(ctx context.Context, owner model.Owner, orderID string) (OrderOutput, error) {
	o, items, err := u.loadOwned(ctx, owner, orderID)
	if err != nil {
		return OrderOutput{}, err
	}
	return toOrderOutput(o, items), nil
}

// GetStatus は決済完了待ちのポーリング用。認証なし。
func (u *OrderUsecase) GetStatus(ctx context.Context, orderID string) (OrderStatusOutput, error) {
	if !validOrderID(orderID) {
		return OrderStatusOutput{}, errOrderNotFound()
	}

	o, err := u.orders.FindByID(ctx, orderID)
	if errors.Is(err, repo.ErrNotFound) {
		return OrderStatusOutput{}, errOrderNotFound()
	}
	if err != nil {
		return OrderStatusOutput{}, storeError(err)
	}

	return OrderStatusOutput{
		ID:         o.ID,
		Status:     string(o.Status),
		Total:      o.Total,
		TotalMinor: o.TotalMinor,
		Currency:   o.Currency,
		PaymentRef: o.PaymentRef,
		PaidAt:     o.PaidAt,
	}, nil
}

// Receipt は支払い済み以降の注文だけPDFを返す
func (u *OrderUsecase) Receipt(ctx context.Context, owner model.Owner, orderID string) ([]byte, string, error) {
	o, items, err := u.loadOwned(ctx, owner, orderID)
	if err != nil {
		return nil, "", err
	}

	switch o.Status {
	case model.OrderStatusPaid, model.OrderStatusShipped, model.OrderStatusDelivered:
	default:
		return nil, "", NewHTTPError(http.StatusConflict, "receipt is available after payment")
	}

	pdf, err := u.receipts.Render(o, items)
	if err != nil {
		u.log.Error("receipt render failed", zap.String("order_id", o.ID), zap.Error(err))
		return nil, "", NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return pdf, "receipt-" + o.ID + ".pdf", nil
}

func (u *OrderUsecase) loadOwned(ctx context.Context, owner model.Owner, orderID string) (model.Order, []model.OrderItem, error) {
	if owner.IsZero() {
		return model.Order{}, nil, errNoOwner()
	}
	if !validOrderID(orderID) {
		return model.Order{}, nil, errOrderNotFound()
	}

	o, err := u.orders.FindByID(ctx, orderID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Order{}, nil, errOrderNotFound()
	}
	if err != nil {
		return model.Order{}, nil, storeError(err)
	}
	if !o.OwnedBy(owner) {
		//他人の注文は「存在しない扱い」にする
		return model.Order{}, nil, errOrderNotFound()
	}

	items, err := u.orderItems.ListByOrderID(ctx, o.ID)
	if err != nil {
		return model.Order{}, nil, storeError(err)
	}
	return o, items, nil
}

func toOrderOutput(o model.Order, items []model.OrderItem) OrderOutput {
	outItems := make([]OrderItemOutput, 0, len(items))
	for _, it := range items {
		outItems = append(outItems, OrderItemOutput{
			ProductID:     it.ProductID,
			Name:          it.ProductNameSnapshot,
			UnitPrice:     it.UnitPrice,
			Quantity:      it.Quantity,
			SelectedSize:  it.SelectedSize,
			SelectedColor: it.SelectedColor,
			LineTotal:     it.LineTotal(),
		})
	}

	var method *string
	if o.PaymentMethod != nil {
		m := string(*o.PaymentMethod)
		method = &m
	}

	return OrderOutput{
		ID:              o.ID,
		Status:          string(o.Status),
		Subtotal:        o.Subtotal,
		ShippingFee:     o.ShippingFee,
		Total:           o.Total,
		TotalMinor:      o.TotalMinor,
		Currency:        o.Currency,
		PaymentMethod:   method,
		PaymentRef:      o.PaymentRef,
		PaidAt:          o.PaidAt,
		CustomerName:    o.CustomerName,
		CustomerEmail:   o.CustomerEmail,
		CustomerPhone:   o.CustomerPhone,
		ShippingAddress: o.Shipping,
		CreatedAt:       o.CreatedAt,
		Items:           outItems,
	}
}
