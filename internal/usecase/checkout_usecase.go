package usecase

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/payment"
	repo "storefront/internal/repository"

	"go.uber.org/zap"
)

const (
	defaultPaymentTimeout = 5 * time.Second
	// 期限ぎりぎりのセッションは渡さない
	sessionReuseMargin = time.Minute
)

type CheckoutUsecase struct {
	orders   repo.OrderRepository
	items    repo.OrderItemRepository
	gateways map[model.PaymentMethod]payment.Gateway
	timeout  time.Duration
	feURL    string
	log      *zap.Logger
	now      func() time.Time
}

func NewCheckoutUsecase(
	orders repo.OrderRepository,
	items repo.OrderItemRepository,
	gateways []payment.Gateway,
	timeout time.Duration,
	feURL string,
	log *zap.Logger,
) *CheckoutUsecase {
	byMethod := make(map[model.PaymentMethod]payment.Gateway, len(gateways))
	for _, g := range gateways {
		byMethod[g.Method()] = g
	}
	if timeout <= 0 {
		timeout = defaultPaymentTimeout
	}
	return &CheckoutUsecase{
		orders:   orders,
		items:    items,
		gateways: byMethod,
		timeout:  timeout,
		feURL:    strings.TrimRight(feURL, "/"),
		log:      log,
		now:      time.Now,
	}
}

type InitPaymentResult struct {
	OrderID     string `json:"order_id"`
	Provider    string `json:"provider"`
	RedirectURL string `json:"redirect_url"`
	PaymentRef  string `json:"payment_ref"`
	// 既存セッションを返した場合true
	Reused bool `json:"reused"`
}

// IdempotencyKeyFor はプロバイダへ渡す冪等キー。
// 最初のセッションは order_<id>_<provider>、作り直すたびに連番が付く。
func IdempotencyKeyFor(orderID string, method model.PaymentMethod, attempt int) string {
	key := "order_" + orderID + "_" + string(method)
	if attempt > 0 {
		key += "_" + strconv.Itoa(attempt)
	}
	return key
}

// InitializePayment はPENDINGの注文にリモートの決済セッションを作る。
// 同じプロバイダのセッションが既にあればプロバイダを呼ばずにそれを返す。
func (u *CheckoutUsecase) InitializePayment(ctx context.Context, owner model.Owner, orderID string, provider string) (InitPaymentResult, error) {
	method := model.PaymentMethod(strings.ToLower(strings.TrimSpace(provider)))
	gw, ok := u.gateways[method]
	if !ok {
		return InitPaymentResult{}, NewHTTPError(http.StatusBadRequest, "unsupported payment provider")
	}
	if owner.IsZero() {
		return InitPaymentResult{}, errNoOwner()
	}
	if !validOrderID(orderID) {
		return InitPaymentResult{}, errOrderNotFound()
	}

	o, err := u.orders.FindByID(ctx, orderID)
	if errors.Is(err, repo.ErrNotFound) {
		return InitPaymentResult{}, errOrderNotFound()
	}
	if err != nil {
		return InitPaymentResult{}, storeError(err)
	}

	//持ち主以外は何も変えずに403
	if !o.OwnedBy(owner) {
		u.log.Warn("payment init by non-owner",
			zap.String("order_id", o.ID),
			zap.String("caller", owner.Key()),
		)
		return InitPaymentResult{}, NewHTTPError(http.StatusForbidden, "not the owner of this order")
	}

	switch o.Status {
	case model.OrderStatusPending:
	case model.OrderStatusPaid:
		return InitPaymentResult{}, errAlreadyPaid()
	default:
		return InitPaymentResult{}, NewHTTPError(http.StatusBadRequest, "order is not payable")
	}

	open := o.HasOpenSession(u.now().Add(sessionReuseMargin))
	if open && *o.PaymentMethod == method {
		return InitPaymentResult{
			OrderID:     o.ID,
			Provider:    string(method),
			RedirectURL: *o.CheckoutURL,
			PaymentRef:  *o.PaymentRef,
			Reused:      true,
		}, nil
	}

	req := payment.SessionRequest{
		OrderID:        o.ID,
		AmountMinor:    o.TotalMinor,
		Currency:       o.Currency,
		Description:    u.describe(ctx, o),
		CustomerName:   o.CustomerName,
		CustomerEmail:  o.CustomerEmail,
		CustomerPhone:  o.CustomerPhone,
		SuccessURL:     u.returnURL("/checkout/success", o.ID),
		CancelURL:      u.returnURL("/checkout/cancel", o.ID),
		IdempotencyKey: IdempotencyKeyFor(o.ID, method, o.PaymentAttempts),
		Attempt:        o.PaymentAttempts,
	}

	// 別プロバイダのセッションが開いていれば先に閉じる（二重決済を防ぐ）
	if open {
		if err := u.closePrevious(ctx, o, method); err != nil {
			return InitPaymentResult{}, err
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	session, err := gw.CreateSession(callCtx, req)
	if err != nil {
		u.log.Warn("payment session create failed",
			zap.String("order_id", o.ID),
			zap.String("provider", string(method)),
			zap.Error(err),
		)
		return InitPaymentResult{}, errUpstream()
	}

	//PENDINGのときだけ書く。0件ならWebhookが先に来ている
	attached, err := u.orders.AttachPayment(ctx, o.ID, repo.PaymentSession{
		Method:      method,
		Ref:         session.ProviderRef,
		CheckoutURL: session.RedirectURL,
		ExpiresAt:   session.ExpiresAt,
	})
	if err != nil {
		return InitPaymentResult{}, storeError(err)
	}
	if !attached {
		latest, err := u.orders.FindByID(ctx, o.ID)
		if err != nil {
			return InitPaymentResult{}, storeError(err)
		}
		if latest.Status == model.OrderStatusPaid {
			return InitPaymentResult{}, errAlreadyPaid()
		}
		return InitPaymentResult{}, NewHTTPError(http.StatusBadRequest, "order is not payable")
	}

	u.log.Info("payment session created",
		zap.String("order_id", o.ID),
		zap.String("provider", string(method)),
		zap.String("payment_ref", session.ProviderRef),
	)

	return InitPaymentResult{
		OrderID:     o.ID,
		Provider:    string(method),
		RedirectURL: session.RedirectURL,
		PaymentRef:  session.ProviderRef,
	}, nil
}

// closePrevious は前のプロバイダのセッションを閉じてから外す。
// 閉じられなければ（支払い済みの可能性がある）新しいセッションは作らない。
func (u *CheckoutUsecase) closePrevious(ctx context.Context, o model.Order, next model.PaymentMethod) error {
	prev := *o.PaymentMethod
	log := u.log.With(
		zap.String("order_id", o.ID),
		zap.String("from_provider", string(prev)),
		zap.String("to_provider", string(next)),
		zap.String("payment_ref", *o.PaymentRef),
	)

	closer, ok := u.gateways[prev].(payment.SessionCloser)
	if !ok {
		log.Warn("payment provider switched, previous session left open")
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()
	if err := closer.CloseSession(callCtx, *o.PaymentRef); err != nil {
		log.Warn("previous payment session close failed", zap.Error(err))
		return errUpstream()
	}

	//閉じたセッションを再試行で二度閉じない
	if _, err := u.orders.ClearCheckoutSession(ctx, o.ID, *o.PaymentRef); err != nil {
		return storeError(err)
	}
	log.Info("payment provider switched, previous session closed")
	return nil
}

// 明細名から決済画面の説明文を作る（取れなければ注文IDだけ）
func (u *CheckoutUsecase) describe(ctx context.Context, o model.Order) string {
	items, err := u.items.ListByOrderID(ctx, o.ID)
	if err != nil || len(items) == 0 {
		return "Order " + o.ID
	}
	names := make([]string, 0, len(items))
	for _, it := range items {
		names = append(names, it.ProductNameSnapshot)
	}
	desc := strings.Join(names, ", ")
	if r := []rune(desc); len(r) > 200 {
		desc = string(r[:200])
	}
	return desc
}

func (u *CheckoutUsecase) returnURL(path string, orderID string) string {
	return u.feURL + path + "?order_id=" + url.QueryEscape(orderID)
}
