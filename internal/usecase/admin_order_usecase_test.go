package usecase_test

import (
	"context"
	"testing"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"
	"storefront/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type adminOrderDeps struct {
	tx        *TxManagerMock
	orders    *OrderRepoMock
	items     *OrderItemRepoMock
	inventory *InventoryRepoMock
	audits    *AuditRepoMock
}

func newAdminOrderDeps() *adminOrderDeps {
	d := &adminOrderDeps{
		tx:        new(TxManagerMock),
		orders:    new(OrderRepoMock),
		items:     new(OrderItemRepoMock),
		inventory: new(InventoryRepoMock),
		audits:    new(AuditRepoMock),
	}
	d.tx.Repos = &TxReposMock{orders: d.orders, orderItems: d.items, inventory: d.inventory, auditLogs: d.audits}
	return d
}

func (d *adminOrderDeps) usecase() *usecase.AdminOrderUsecase {
	return usecase.NewAdminOrderUsecase(d.tx, d.orders, d.items, zap.NewNop())
}

var adminActor = model.Identity{UserID: 1, Role: model.RoleAdmin}

// =====================
// UpdateStatus
// =====================

func TestAdminOrderUsecase_UpdateStatus_Ship(t *testing.T) {
	d := newAdminOrderDeps()
	o := pendingOrder()
	o.Status = model.OrderStatusPaid

	d.tx.On("WithinTx", mock.Anything).Return(nil)
	d.orders.On("FindByID", mock.Anything, testOrderID).Return(o, nil)
	d.orders.On("TransitionStatus", mock.Anything, testOrderID, model.OrderStatusPaid, model.OrderStatusShipped).Return(true, nil)
	d.audits.On("Create", mock.Anything, mock.MatchedBy(func(l model.AuditLog) bool {
		return l.ActorUserID == 1 &&
			l.Action == model.AuditActionUpdateOrderStatus &&
			l.ResourceType == model.AuditResourceOrder &&
			l.ResourceID == testOrderID &&
			l.BeforeJSON == `{"status":"PAID"}` &&
			l.AfterJSON == `{"status":"SHIPPED"}`
	})).Return(nil)

	err := d.usecase().UpdateStatus(context.Background(), adminActor, testOrderID, usecase.AdminUpdateOrderStatusInput{Status: "shipped"})
	require.NoError(t, err)

	d.audits.AssertExpectations(t)
	d.orders.AssertNotCalled(t, "ReleaseStockReservation", mock.Anything, mock.Anything)
}

func TestAdminOrderUsecase_UpdateStatus_CancelReleasesStock(t *testing.T) {
	d := newAdminOrderDeps()

	d.tx.On("WithinTx", mock.Anything).Return(nil)
	d.orders.On("FindByID", mock.Anything, testOrderID).Return(pendingOrder(), nil)
	d.orders.On("TransitionStatus", mock.Anything, testOrderID, model.OrderStatusPending, model.OrderStatusCancelled).Return(true, nil)
	d.orders.On("ReleaseStockReservation", mock.Anything, testOrderID).Return(true, nil)
	d.items.On("ListByOrderID", mock.Anything, testOrderID).Return([]model.OrderItem{
		{ProductID: 1, Quantity: 2},
		{ProductID: 2, Quantity: 1},
	}, nil)
	d.inventory.On("Release", mock.Anything, int64(1), int64(2), testOrderID, "order cancelled").Return(nil)
	d.inventory.On("Release", mock.Anything, int64(2), int64(1), testOrderID, "order cancelled").Return(nil)
	d.audits.On("Create", mock.Anything, mock.Anything).Return(nil)

	err := d.usecase().UpdateStatus(context.Background(), adminActor, testOrderID, usecase.AdminUpdateOrderStatusInput{Status: "CANCELLED"})
	require.NoError(t, err)

	d.inventory.AssertNumberOfCalls(t, "Release", 2)
	d.inventory.AssertExpectations(t)
}

func TestAdminOrderUsecase_UpdateStatus_CannotSetPaid(t *testing.T) {
	d := newAdminOrderDeps()

	err := d.usecase().UpdateStatus(context.Background(), adminActor, testOrderID, usecase.AdminUpdateOrderStatusInput{Status: "PAID"})
	assertErrContains(t, err, "payment confirmation")
	d.tx.AssertNotCalled(t, "WithinTx", mock.Anything)
}

func TestAdminOrderUsecase_UpdateStatus_InvalidTransition(t *testing.T) {
	d := newAdminOrderDeps()

	d.tx.On("WithinTx", mock.Anything).Return(nil)
	d.orders.On("FindByID", mock.Anything, testOrderID).Return(pendingOrder(), nil)

	err := d.usecase().UpdateStatus(context.Background(), adminActor, testOrderID, usecase.AdminUpdateOrderStatusInput{Status: "SHIPPED"})
	assertErrContains(t, err, "cannot change PENDING order to SHIPPED")
	d.orders.AssertNotCalled(t, "TransitionStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAdminOrderUsecase_UpdateStatus_SameStatusIsNoop(t *testing.T) {
	d := newAdminOrderDeps()
	o := pendingOrder()
	o.Status = model.OrderStatusShipped

	d.tx.On("WithinTx", mock.Anything).Return(nil)
	d.orders.On("FindByID", mock.Anything, testOrderID).Return(o, nil)

	err := d.usecase().UpdateStatus(context.Background(), adminActor, testOrderID, usecase.AdminUpdateOrderStatusInput{Status: "SHIPPED"})
	require.NoError(t, err)
	d.audits.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestAdminOrderUsecase_UpdateStatus_RaceWithWebhook(t *testing.T) {
	d := newAdminOrderDeps()

	d.tx.On("WithinTx", mock.Anything).Return(nil)
	d.orders.On("FindByID", mock.Anything, testOrderID).Return(pendingOrder(), nil)
	d.orders.On("TransitionStatus", mock.Anything, testOrderID, model.OrderStatusPending, model.OrderStatusCancelled).Return(false, nil)

	err := d.usecase().UpdateStatus(context.Background(), adminActor, testOrderID, usecase.AdminUpdateOrderStatusInput{Status: "CANCELLED"})
	assertKind(t, err, usecase.KindConflict)
}

func TestAdminOrderUsecase_UpdateStatus_NotFound(t *testing.T) {
	d := newAdminOrderDeps()

	d.tx.On("WithinTx", mock.Anything).Return(nil)
	d.orders.On("FindByID", mock.Anything, testOrderID).Return(model.Order{}, repo.ErrNotFound)

	err := d.usecase().UpdateStatus(context.Background(), adminActor, testOrderID, usecase.AdminUpdateOrderStatusInput{Status: "SHIPPED"})
	assertKind(t, err, usecase.KindNotFound)
}

// =====================
// List
// =====================

func TestAdminOrderUsecase_List_Validation(t *testing.T) {
	d := newAdminOrderDeps()
	from := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		f    repo.AdminOrderListFilter
		want string
	}{
		{"page", repo.AdminOrderListFilter{Page: 0, Limit: 10}, "invalid page"},
		{"limit", repo.AdminOrderListFilter{Page: 1, Limit: 101}, "invalid limit"},
		{"status", repo.AdminOrderListFilter{Page: 1, Limit: 10, Status: "LOST"}, "invalid status"},
		{"range", repo.AdminOrderListFilter{Page: 1, Limit: 10, From: &from, To: &to}, "from must be before to"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := d.usecase().List(context.Background(), tc.f)
			assertErrContains(t, err, tc.want)
		})
	}
	d.orders.AssertNotCalled(t, "ListAdmin", mock.Anything, mock.Anything)
}

func TestAdminOrderUsecase_List(t *testing.T) {
	d := newAdminOrderDeps()
	f := repo.AdminOrderListFilter{Page: 2, Limit: 10, Status: "PAID"}

	d.orders.On("ListAdmin", mock.Anything, f).Return([]model.Order{{ID: testOrderID, Status: model.OrderStatusPaid}}, int64(11), nil)
	d.items.On("ListByOrderID", mock.Anything, testOrderID).Return([]model.OrderItem{}, nil)

	out, err := d.usecase().List(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, int64(11), out.Total)
	assert.Equal(t, 2, out.Page)
	require.Len(t, out.Items, 1)
}

// =====================
// Audit logs
// =====================

func TestAuditLogUsecase_List(t *testing.T) {
	audits := new(AuditRepoMock)
	uc := usecase.NewAuditLogUsecase(audits)

	// 1件多く要求する
	audits.On("List", mock.Anything, repo.AuditLogFilter{Limit: 51}).Return(nil, nil)

	page, err := uc.List(context.Background(), repo.AuditLogFilter{})
	require.NoError(t, err)
	assert.NotNil(t, page.Items)
	assert.Empty(t, page.Items)
	assert.Zero(t, page.NextCursor)

	_, err = uc.List(context.Background(), repo.AuditLogFilter{Limit: 201})
	assertErrContains(t, err, "invalid limit")

	_, err = uc.List(context.Background(), repo.AuditLogFilter{BeforeID: -1})
	assertErrContains(t, err, "invalid cursor")
}

func TestAuditLogUsecase_List_NextCursor(t *testing.T) {
	audits := new(AuditRepoMock)
	uc := usecase.NewAuditLogUsecase(audits)

	audits.On("List", mock.Anything, repo.AuditLogFilter{Limit: 3, BeforeID: 100}).Return([]model.AuditLog{
		{ID: 99}, {ID: 97}, {ID: 96},
	}, nil)

	page, err := uc.List(context.Background(), repo.AuditLogFilter{Limit: 2, BeforeID: 100})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, int64(97), page.NextCursor)
}

func TestAuditLogUsecase_List_EmptyRange(t *testing.T) {
	uc := usecase.NewAuditLogUsecase(new(AuditRepoMock))

	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := uc.List(context.Background(), repo.AuditLogFilter{From: &at, To: &at})
	assertKind(t, err, usecase.KindValidation)
}
