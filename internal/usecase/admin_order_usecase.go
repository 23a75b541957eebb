package usecase

import (
	"context"
	"net/http"
	"strings"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"go.uber.org/zap"
)

type AdminOrderUsecase struct {
	tx         repo.TransactionManager
	orders     repo.OrderRepository
	orderItems repo.OrderItemRepository
	log        *zap.Logger
	now        func() time.Time
}

func NewAdminOrderUsecase(tx repo.TransactionManager, orders repo.OrderRepository, orderItems repo.OrderItemRepository, log *zap.Logger) *AdminOrderUsecase {
	return &AdminOrderUsecase{tx: tx, orders: orders, orderItems: orderItems, log: log, now: time.Now}
}

type AdminUpdateOrderStatusInput struct {
	Status string
}

// 管理者が行える遷移。PAIDへはWebhookでしか行かない。
var adminTransitions = map[model.OrderStatus][]model.OrderStatus{
	model.OrderStatusShipped:   {model.OrderStatusPaid},
	model.OrderStatusDelivered: {model.OrderStatusShipped},
	model.OrderStatusCancelled: {model.OrderStatusPending, model.OrderStatusPaid, model.OrderStatusFailed},
}

func canTransition(from, to model.OrderStatus) bool {
	for _, s := range adminTransitions[to] {
		if s == from {
			return true
		}
	}
	return false
}

// 注文一覧
func (u *AdminOrderUsecase) List(ctx context.Context, f repo.AdminOrderListFilter) (OrderListOutput, error) {
	// page/limitの最低限チェック
	if f.Page < 1 {
		return OrderListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid page")
	}
	if f.Limit < 1 || f.Limit > 100 {
		return OrderListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}
	if f.Status != "" {
		if _, ok := model.ParseOrderStatus(f.Status); !ok {
			return OrderListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid status")
		}
	}
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return OrderListOutput{}, NewHTTPError(http.StatusBadRequest, "from must be before to")
	}

	orders, total, err := u.orders.ListAdmin(ctx, f)
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
	return OrderListOutput{Items: outs, Total: total, Page: f.Page, Limit: f.Limit}, nil
}

// UpdateStatus は管理者による状態変更。CANCELLEDなら確保中の在庫を戻す。
func (u *AdminOrderUsecase) UpdateStatus(ctx context.Context, actor model.Identity, orderID string, in AdminUpdateOrderStatusInput) error {
	if actor.UserID <= 0 {
		return errUnauthenticated()
	}
	if !validOrderID(orderID) {
		return errOrderNotFound()
	}

	newStatus, ok := model.ParseOrderStatus(strings.ToUpper(strings.TrimSpace(in.Status)))
	if !ok {
		return NewHTTPError(http.StatusBadRequest, "invalid status")
	}
	if newStatus == model.OrderStatusPaid {
		return NewHTTPError(http.StatusBadRequest, "PAID is set only by payment confirmation")
	}

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if err != nil {
			return err
		}

		// すでに同じなら何もしない（200）
		if o.Status == newStatus {
			return nil
		}
		if !canTransition(o.Status, newStatus) {
			return NewHTTPError(http.StatusBadRequest, "cannot change "+string(o.Status)+" order to "+string(newStatus))
		}

		// Webhookと競合したら0件になる
		changed, err := r.Orders().TransitionStatus(ctx, orderID, o.Status, newStatus)
		if err != nil {
			return err
		}
		if !changed {
			return NewHTTPError(http.StatusConflict, "order status changed, retry")
		}

		if newStatus == model.OrderStatusCancelled {
			if err := releaseReservedStock(ctx, r, orderID, "order cancelled"); err != nil {
				return err
			}
		}

		// 監査ログ（UPDATE_ORDER_STATUS）
		return r.AuditLogs().Create(ctx, model.AuditLog{
			ActorUserID:  actor.UserID,
			Action:       model.AuditActionUpdateOrderStatus,
			ResourceType: model.AuditResourceOrder,
			ResourceID:   orderID,
			BeforeJSON:   `{"status":"` + string(o.Status) + `"}`,
			AfterJSON:    `{"status":"` + string(newStatus) + `"}`,
			CreatedAt:    u.now(),
		})
	})
	if err != nil {
		return storeError(err)
	}

	u.log.Info("order status changed by admin",
		zap.String("order_id", orderID),
		zap.String("status", string(newStatus)),
		zap.Int64("actor_user_id", actor.UserID),
	)
	return nil
}
