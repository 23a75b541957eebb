package usecase_test

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/payment"
	repo "storefront/internal/repository"
	"storefront/internal/usecase"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// =====================
// TxManager / TxRepos mocks
// =====================

// TxManagerMock は WithinTx の中で渡す repos を固定して unit テストを回す
type TxManagerMock struct {
	mock.Mock
	Repos repo.TxRepos
}

func (m *TxManagerMock) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	// 呼ばれた事実だけ記録（ctxの具体値は問わない）
	m.Called(ctx)
	return fn(m.Repos)
}

type TxReposMock struct {
	orders     repo.OrderRepository
	orderItems repo.OrderItemRepository
	carts      repo.CartRepository
	cartItems  repo.CartItemRepository
	inventory  repo.InventoryRepository
	products   repo.ProductRepository
	auditLogs  repo.AuditLogRepository
}

func (r *TxReposMock) Orders() repo.OrderRepository         { return r.orders }
func (r *TxReposMock) OrderItems() repo.OrderItemRepository { return r.orderItems }
func (r *TxReposMock) Carts() repo.CartRepository           { return r.carts }
func (r *TxReposMock) CartItems() repo.CartItemRepository   { return r.cartItems }
func (r *TxReposMock) Inventory() repo.InventoryRepository  { return r.inventory }
func (r *TxReposMock) Products() repo.ProductRepository     { return r.products }
func (r *TxReposMock) AuditLogs() repo.AuditLogRepository   { return r.auditLogs }

// =====================
// Repository mocks
// =====================

type OrderRepoMock struct{ mock.Mock }

func (m *OrderRepoMock) FindByID(ctx context.Context, orderID string) (model.Order, error) {
	args := m.Called(ctx, orderID)
	o, _ := args.Get(0).(model.Order)
	return o, args.Error(1)
}

func (m *OrderRepoMock) FindByPaymentRef(ctx context.Context, paymentRef string) (model.Order, error) {
	args := m.Called(ctx, paymentRef)
	o, _ := args.Get(0).(model.Order)
	return o, args.Error(1)
}

func (m *OrderRepoMock) ListByUserID(ctx context.Context, userID int64, page int, limit int) ([]model.Order, int64, error) {
	args := m.Called(ctx, userID, page, limit)
	orders, _ := args.Get(0).([]model.Order)
	total, _ := args.Get(1).(int64)
	return orders, total, args.Error(2)
}

func (m *OrderRepoMock) Create(ctx context.Context, order model.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *OrderRepoMock) FindByIdempotencyKey(ctx context.Context, ownerKey string, key string) (model.Order, bool, error) {
	args := m.Called(ctx, ownerKey, key)
	o, _ := args.Get(0).(model.Order)
	return o, args.Bool(1), args.Error(2)
}

func (m *OrderRepoMock) AttachPayment(ctx context.Context, orderID string, s repo.PaymentSession) (bool, error) {
	args := m.Called(ctx, orderID, s)
	return args.Bool(0), args.Error(1)
}

func (m *OrderRepoMock) ClearCheckoutSession(ctx context.Context, orderID string, paymentRef string) (bool, error) {
	args := m.Called(ctx, orderID, paymentRef)
	return args.Bool(0), args.Error(1)
}

func (m *OrderRepoMock) MarkPaid(ctx context.Context, orderID string, paymentRef string, paidAt time.Time) (bool, error) {
	args := m.Called(ctx, orderID, paymentRef, paidAt)
	return args.Bool(0), args.Error(1)
}

func (m *OrderRepoMock) TransitionStatus(ctx context.Context, orderID string, from model.OrderStatus, to model.OrderStatus) (bool, error) {
	args := m.Called(ctx, orderID, from, to)
	return args.Bool(0), args.Error(1)
}

func (m *OrderRepoMock) ReleaseStockReservation(ctx context.Context, orderID string) (bool, error) {
	args := m.Called(ctx, orderID)
	return args.Bool(0), args.Error(1)
}

func (m *OrderRepoMock) ListAdmin(ctx context.Context, f repo.AdminOrderListFilter) ([]model.Order, int64, error) {
	args := m.Called(ctx, f)
	orders, _ := args.Get(0).([]model.Order)
	total, _ := args.Get(1).(int64)
	return orders, total, args.Error(2)
}

type OrderItemRepoMock struct{ mock.Mock }

func (m *OrderItemRepoMock) CreateBulk(ctx context.Context, orderID string, items []model.OrderItem) error {
	args := m.Called(ctx, orderID, items)
	return args.Error(0)
}

func (m *OrderItemRepoMock) ListByOrderID(ctx context.Context, orderID string) ([]model.OrderItem, error) {
	args := m.Called(ctx, orderID)
	items, _ := args.Get(0).([]model.OrderItem)
	return items, args.Error(1)
}

type CartRepoMock struct{ mock.Mock }

func (m *CartRepoMock) GetOrCreateActive(ctx context.Context, owner model.Owner) (model.Cart, error) {
	args := m.Called(ctx, owner)
	c, _ := args.Get(0).(model.Cart)
	return c, args.Error(1)
}

func (m *CartRepoMock) FindActive(ctx context.Context, owner model.Owner) (model.Cart, error) {
	args := m.Called(ctx, owner)
	c, _ := args.Get(0).(model.Cart)
	return c, args.Error(1)
}

func (m *CartRepoMock) UpdateStatus(ctx context.Context, cartID int64, status model.CartStatus) error {
	args := m.Called(ctx, cartID, status)
	return args.Error(0)
}

func (m *CartRepoMock) Clear(ctx context.Context, cartID int64) error {
	args := m.Called(ctx, cartID)
	return args.Error(0)
}

func (m *CartRepoMock) MarkClaimed(ctx context.Context, cartID int64, userID int64, at time.Time) (bool, error) {
	args := m.Called(ctx, cartID, userID, at)
	return args.Bool(0), args.Error(1)
}

type CartItemRepoMock struct{ mock.Mock }

func (m *CartItemRepoMock) ListByCartID(ctx context.Context, cartID int64) ([]model.CartItem, error) {
	args := m.Called(ctx, cartID)
	items, _ := args.Get(0).([]model.CartItem)
	return items, args.Error(1)
}

func (m *CartItemRepoMock) UpsertIncrement(ctx context.Context, cartID int64, key model.CartLineKey, addQty int64, unitPrice decimal.Decimal) error {
	args := m.Called(ctx, cartID, key, addQty, unitPrice)
	return args.Error(0)
}

func (m *CartItemRepoMock) UpsertSet(ctx context.Context, cartID int64, key model.CartLineKey, qty int64, unitPrice decimal.Decimal) error {
	args := m.Called(ctx, cartID, key, qty, unitPrice)
	return args.Error(0)
}

func (m *CartItemRepoMock) FindOwned(ctx context.Context, owner model.Owner, cartItemID int64) (model.CartItem, error) {
	args := m.Called(ctx, owner, cartItemID)
	it, _ := args.Get(0).(model.CartItem)
	return it, args.Error(1)
}

func (m *CartItemRepoMock) UpdateQuantity(ctx context.Context, cartID, cartItemID, qty int64) error {
	args := m.Called(ctx, cartID, cartItemID, qty)
	return args.Error(0)
}

func (m *CartItemRepoMock) Delete(ctx context.Context, cartID, cartItemID int64) error {
	args := m.Called(ctx, cartID, cartItemID)
	return args.Error(0)
}

type InventoryRepoMock struct{ mock.Mock }

func (m *InventoryRepoMock) Reserve(ctx context.Context, productID, qty int64, orderID string) (bool, error) {
	args := m.Called(ctx, productID, qty, orderID)
	return args.Bool(0), args.Error(1)
}

func (m *InventoryRepoMock) Release(ctx context.Context, productID, qty int64, orderID, reason string) error {
	args := m.Called(ctx, productID, qty, orderID, reason)
	return args.Error(0)
}

func (m *InventoryRepoMock) Set(ctx context.Context, productID, stock, adminUserID int64, reason string) (int64, error) {
	args := m.Called(ctx, productID, stock, adminUserID, reason)
	return args.Get(0).(int64), args.Error(1)
}

type ProductRepoMock struct{ mock.Mock }

func (m *ProductRepoMock) ListPublic(ctx context.Context, q repo.ProductListQuery) ([]model.Product, int64, error) {
	args := m.Called(ctx, q)
	items, _ := args.Get(0).([]model.Product)
	total, _ := args.Get(1).(int64)
	return items, total, args.Error(2)
}

func (m *ProductRepoMock) FindByID(ctx context.Context, id int64) (model.Product, error) {
	args := m.Called(ctx, id)
	p, _ := args.Get(0).(model.Product)
	return p, args.Error(1)
}

func (m *ProductRepoMock) FindByIDs(ctx context.Context, ids []int64) ([]model.Product, error) {
	args := m.Called(ctx, ids)
	ps, _ := args.Get(0).([]model.Product)
	return ps, args.Error(1)
}

func (m *ProductRepoMock) Create(ctx context.Context, p model.Product) (model.Product, error) {
	args := m.Called(ctx, p)
	out, _ := args.Get(0).(model.Product)
	return out, args.Error(1)
}

func (m *ProductRepoMock) Update(ctx context.Context, p model.Product) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *ProductRepoMock) SoftDelete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type AuditRepoMock struct{ mock.Mock }

func (m *AuditRepoMock) Create(ctx context.Context, entry model.AuditLog) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *AuditRepoMock) List(ctx context.Context, filter repo.AuditLogFilter) ([]model.AuditLog, error) {
	args := m.Called(ctx, filter)
	logs, _ := args.Get(0).([]model.AuditLog)
	return logs, args.Error(1)
}

type AddressRepoMock struct{ mock.Mock }

func (m *AddressRepoMock) Create(ctx context.Context, address model.Address) (model.Address, error) {
	args := m.Called(ctx, address)
	a, _ := args.Get(0).(model.Address)
	return a, args.Error(1)
}

func (m *AddressRepoMock) ListByUserID(ctx context.Context, userID int64) ([]model.Address, error) {
	args := m.Called(ctx, userID)
	list, _ := args.Get(0).([]model.Address)
	return list, args.Error(1)
}

func (m *AddressRepoMock) FindOwned(ctx context.Context, userID, addressID int64) (model.Address, error) {
	args := m.Called(ctx, userID, addressID)
	a, _ := args.Get(0).(model.Address)
	return a, args.Error(1)
}

func (m *AddressRepoMock) UpdateOwned(ctx context.Context, userID int64, address model.Address) error {
	args := m.Called(ctx, userID, address)
	return args.Error(0)
}

func (m *AddressRepoMock) DeleteOwned(ctx context.Context, userID, addressID int64) error {
	args := m.Called(ctx, userID, addressID)
	return args.Error(0)
}

func (m *AddressRepoMock) SetDefault(ctx context.Context, userID, addressID int64) error {
	args := m.Called(ctx, userID, addressID)
	return args.Error(0)
}

type UserRepoMock struct{ mock.Mock }

func (m *UserRepoMock) Create(ctx context.Context, user *model.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *UserRepoMock) FindByID(ctx context.Context, userID int64) (*model.User, error) {
	args := m.Called(ctx, userID)
	u, _ := args.Get(0).(*model.User)
	return u, args.Error(1)
}

func (m *UserRepoMock) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	args := m.Called(ctx, email)
	u, _ := args.Get(0).(*model.User)
	return u, args.Error(1)
}

func (m *UserRepoMock) TouchLastLogin(ctx context.Context, userID int64, at time.Time) error {
	args := m.Called(ctx, userID, at)
	return args.Error(0)
}

func (m *UserRepoMock) BumpTokenVersion(ctx context.Context, userID int64) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

type RefreshTokenRepoMock struct{ mock.Mock }

func (m *RefreshTokenRepoMock) Create(ctx context.Context, token *model.RefreshToken) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *RefreshTokenRepoMock) FindByTokenHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error) {
	args := m.Called(ctx, tokenHash)
	rt, _ := args.Get(0).(*model.RefreshToken)
	return rt, args.Error(1)
}

func (m *RefreshTokenRepoMock) Rotate(ctx context.Context, usedID string, next *model.RefreshToken, at time.Time) error {
	args := m.Called(ctx, usedID, next, at)
	return args.Error(0)
}

func (m *RefreshTokenRepoMock) RevokeFamily(ctx context.Context, familyID string, at time.Time) error {
	args := m.Called(ctx, familyID, at)
	return args.Error(0)
}

func (m *RefreshTokenRepoMock) RevokeAllForUser(ctx context.Context, userID int64, at time.Time) error {
	args := m.Called(ctx, userID, at)
	return args.Error(0)
}

// =====================
// Port mocks
// =====================

type GatewayMock struct {
	mock.Mock
	method model.PaymentMethod
}

func (m *GatewayMock) Method() model.PaymentMethod { return m.method }

func (m *GatewayMock) CreateSession(ctx context.Context, req payment.SessionRequest) (payment.Session, error) {
	args := m.Called(ctx, req)
	s, _ := args.Get(0).(payment.Session)
	return s, args.Error(1)
}

func (m *GatewayMock) CloseSession(ctx context.Context, providerRef string) error {
	args := m.Called(ctx, providerRef)
	return args.Error(0)
}

type VerifierMock struct {
	mock.Mock
	method model.PaymentMethod
}

func (m *VerifierMock) Method() model.PaymentMethod { return m.method }

func (m *VerifierMock) ParseEvent(header http.Header, body []byte) (payment.WebhookEvent, error) {
	args := m.Called(header, body)
	ev, _ := args.Get(0).(payment.WebhookEvent)
	return ev, args.Error(1)
}

type DeduperMock struct{ mock.Mock }

func (m *DeduperMock) Seen(ctx context.Context, provider string, eventID string) (bool, error) {
	args := m.Called(ctx, provider, eventID)
	return args.Bool(0), args.Error(1)
}

func (m *DeduperMock) Mark(ctx context.Context, provider string, eventID string) error {
	args := m.Called(ctx, provider, eventID)
	return args.Error(0)
}

type PublisherMock struct{ mock.Mock }

func (m *PublisherMock) PublishOrderEvent(ctx context.Context, ev model.OrderEvent) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

type ReceiptRendererMock struct{ mock.Mock }

func (m *ReceiptRendererMock) Render(o model.Order, items []model.OrderItem) ([]byte, error) {
	args := m.Called(o, items)
	b, _ := args.Get(0).([]byte)
	return b, args.Error(1)
}

type ConverterMock struct{ mock.Mock }

func (m *ConverterMock) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	args := m.Called(ctx, amount, from, to)
	d, _ := args.Get(0).(decimal.Decimal)
	return d, args.Error(1)
}

// 形式チェックは常に通す
type passOrderValidator struct{}

func (passOrderValidator) ValidateCreateOrder(ctx context.Context, in usecase.CreateOrderInput) error {
	return nil
}

var (
	_ repo.TransactionManager     = (*TxManagerMock)(nil)
	_ repo.OrderRepository        = (*OrderRepoMock)(nil)
	_ repo.OrderItemRepository    = (*OrderItemRepoMock)(nil)
	_ repo.CartRepository         = (*CartRepoMock)(nil)
	_ repo.CartItemRepository     = (*CartItemRepoMock)(nil)
	_ repo.InventoryRepository    = (*InventoryRepoMock)(nil)
	_ repo.ProductRepository      = (*ProductRepoMock)(nil)
	_ repo.AuditLogRepository     = (*AuditRepoMock)(nil)
	_ repo.AddressRepository      = (*AddressRepoMock)(nil)
	_ repo.UserRepository         = (*UserRepoMock)(nil)
	_ repo.RefreshTokenRepository = (*RefreshTokenRepoMock)(nil)
	_ payment.Gateway             = (*GatewayMock)(nil)
	_ payment.SessionCloser       = (*GatewayMock)(nil)
	_ payment.WebhookVerifier     = (*VerifierMock)(nil)
	_ usecase.EventDeduper        = (*DeduperMock)(nil)
	_ usecase.EventPublisher      = (*PublisherMock)(nil)
	_ usecase.ReceiptRenderer     = (*ReceiptRendererMock)(nil)
	_ usecase.CurrencyConverter   = (*ConverterMock)(nil)
)

// =====================
// Helpers
// =====================

// HTTPErrorの実装詳細に依存しない
func assertErrContains(t *testing.T, err error, wantSubstr string) {
	t.Helper()
	if assert.Error(t, err) {
		assert.True(t, strings.Contains(err.Error(), wantSubstr), "err=%q want contains %q", err.Error(), wantSubstr)
	}
}

func assertKind(t *testing.T, err error, want usecase.ErrorKind) {
	t.Helper()
	he, ok := usecase.AsHTTPError(err)
	if assert.True(t, ok, "want HTTPError, got %v", err) {
		assert.Equal(t, want, he.Kind)
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

const (
	testOrderID  = "7c9e6679-7425-40de-944b-e07fc1f90ae7"
	otherOrderID = "16fd2706-8baf-433b-82eb-8c7fada847da"
)

func int64p(v int64) *int64 { return &v }

func strp(v string) *string { return &v }
