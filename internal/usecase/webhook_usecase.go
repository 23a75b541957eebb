package usecase

import (
	"context"
	"errors"
	"net/http"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/payment"
	repo "storefront/internal/repository"

	"go.uber.org/zap"
)

// 処理済みイベントIDの記録（重複配信を早く返すためだけ。正はDB）
type EventDeduper interface {
	Seen(ctx context.Context, provider string, eventID string) (bool, error)
	Mark(ctx context.Context, provider string, eventID string) error
}

// 確定した状態遷移を外へ流す
type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, ev model.OrderEvent) error
}

type WebhookOutcome string

const (
	OutcomePaid        WebhookOutcome = "paid"
	OutcomeFailed      WebhookOutcome = "failed"
	OutcomeAlreadyPaid WebhookOutcome = "already_paid"
	OutcomeIgnored     WebhookOutcome = "ignored"
	OutcomeDuplicate   WebhookOutcome = "duplicate"
	OutcomeUnresolved  WebhookOutcome = "unresolved"
	// 期限切れ・取消のセッションを外した（注文はPENDINGのまま）
	OutcomeSessionClosed WebhookOutcome = "session_closed"
	// 状態が変わらなかった（PENDING以外、または競合で負けた）
	OutcomeNoop WebhookOutcome = "noop"
)

type WebhookResult struct {
	Outcome WebhookOutcome
	OrderID string
}

// WebhookUsecase は決済プロバイダの通知を注文状態へ反映する。
// PAIDにできるのはここだけ。
type WebhookUsecase struct {
	tx        repo.TransactionManager
	orders    repo.OrderRepository
	verifiers map[model.PaymentMethod]payment.WebhookVerifier
	dedupe    EventDeduper
	publisher EventPublisher
	log       *zap.Logger
	now       func() time.Time
}

func NewWebhookUsecase(
	tx repo.TransactionManager,
	orders repo.OrderRepository,
	verifiers []payment.WebhookVerifier,
	dedupe EventDeduper,
	publisher EventPublisher,
	log *zap.Logger,
) *WebhookUsecase {
	byMethod := make(map[model.PaymentMethod]payment.WebhookVerifier, len(verifiers))
	for _, v := range verifiers {
		byMethod[v.Method()] = v
	}
	return &WebhookUsecase{
		tx:        tx,
		orders:    orders,
		verifiers: byMethod,
		dedupe:    dedupe,
		publisher: publisher,
		log:       log,
		now:       time.Now,
	}
}

// Handle は通知1件を処理する。
// 署名不一致・壊れた本文以外はエラーにせず、プロバイダの再送を止める。
func (u *WebhookUsecase) Handle(ctx context.Context, provider string, header http.Header, body []byte) (WebhookResult, error) {
	v, ok := u.verifiers[model.PaymentMethod(provider)]
	if !ok {
		return WebhookResult{}, NewHTTPError(http.StatusNotFound, "unknown provider")
	}

	//署名検証より前にDBへは触らない
	ev, err := v.ParseEvent(header, body)
	if errors.Is(err, payment.ErrSignatureInvalid) {
		u.log.Warn("webhook signature rejected", zap.String("provider", provider))
		return WebhookResult{}, errSignatureInvalid()
	}
	if err != nil {
		u.log.Warn("webhook payload rejected", zap.String("provider", provider), zap.Error(err))
		return WebhookResult{}, NewHTTPError(http.StatusBadRequest, "malformed event")
	}

	log := u.log.With(
		zap.String("provider", provider),
		zap.String("event_id", ev.EventID),
		zap.String("event_type", ev.EventType),
	)

	if ev.Kind == payment.EventIgnored {
		log.Debug("webhook event ignored")
		return WebhookResult{Outcome: OutcomeIgnored}, nil
	}

	if u.dedupe != nil {
		seen, err := u.dedupe.Seen(ctx, provider, ev.EventID)
		if err != nil {
			log.Warn("webhook dedupe lookup failed", zap.Error(err))
		} else if seen {
			log.Info("webhook event already processed")
			return WebhookResult{Outcome: OutcomeDuplicate}, nil
		}
	}

	orderID, err := u.resolveOrderID(ctx, ev)
	if err != nil {
		return WebhookResult{}, storeError(err)
	}
	if orderID == "" {
		log.Warn("webhook order unresolved",
			zap.String("metadata_order_id", ev.OrderID),
			zap.String("provider_ref", ev.ProviderRef),
		)
		return WebhookResult{Outcome: OutcomeUnresolved}, nil
	}
	log = log.With(zap.String("order_id", orderID))

	if ev.Kind == payment.EventSessionExpired {
		cleared, err := u.orders.ClearCheckoutSession(ctx, orderID, ev.ProviderRef)
		if err != nil {
			return WebhookResult{}, storeError(err)
		}
		outcome := OutcomeNoop
		if cleared {
			outcome = OutcomeSessionClosed
			log.Info("payment session closed", zap.String("provider_ref", ev.ProviderRef))
		}
		u.markProcessed(ctx, log, provider, ev.EventID)
		return WebhookResult{Outcome: outcome, OrderID: orderID}, nil
	}

	var outcome WebhookOutcome
	var updated model.Order

	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if err != nil {
			return err
		}

		switch o.Status {
		case model.OrderStatusPending:
		case model.OrderStatusPaid, model.OrderStatusShipped, model.OrderStatusDelivered:
			outcome = OutcomeAlreadyPaid
			return nil
		default:
			if ev.Kind == payment.EventSucceeded {
				log.Error("payment succeeded for non-pending order", zap.String("status", string(o.Status)))
			}
			outcome = OutcomeNoop
			return nil
		}

		if ev.Kind == payment.EventFailed {
			return u.fail(ctx, r, &o, &outcome, &updated)
		}

		if ev.AmountMinor != o.TotalMinor || (ev.Currency != "" && ev.Currency != o.Currency) {
			log.Error("webhook amount mismatch",
				zap.Int64("expected_minor", o.TotalMinor),
				zap.Int64("got_minor", ev.AmountMinor),
				zap.String("expected_currency", o.Currency),
				zap.String("got_currency", ev.Currency),
			)
			return u.fail(ctx, r, &o, &outcome, &updated)
		}

		ref := ev.TransactionRef
		if ref == "" {
			ref = ev.ProviderRef
		}
		paidAt := u.now()
		ok, err := r.Orders().MarkPaid(ctx, o.ID, ref, paidAt)
		if err != nil {
			return err
		}
		if !ok {
			//同時に別の通知が勝った
			outcome = OutcomeNoop
			return nil
		}

		o.Status = model.OrderStatusPaid
		o.PaidAt = &paidAt
		if ref != "" {
			o.PaymentRef = &ref
		}
		updated = o
		outcome = OutcomePaid
		return nil
	})
	if err != nil {
		if errors.Is(err, repo.ErrBusy) {
			log.Warn("webhook store busy, provider will retry", zap.Error(err))
		}
		return WebhookResult{}, storeError(err)
	}

	switch outcome {
	case OutcomePaid:
		log.Info("order paid")
		u.publish(ctx, log, model.OrderEventPaid, ev, updated)
	case OutcomeFailed:
		log.Info("order failed")
		u.publish(ctx, log, model.OrderEventFailed, ev, updated)
	default:
		log.Info("webhook no-op", zap.String("outcome", string(outcome)))
	}

	u.markProcessed(ctx, log, provider, ev.EventID)
	return WebhookResult{Outcome: outcome, OrderID: orderID}, nil
}

func (u *WebhookUsecase) markProcessed(ctx context.Context, log *zap.Logger, provider string, eventID string) {
	if u.dedupe == nil {
		return
	}
	if err := u.dedupe.Mark(ctx, provider, eventID); err != nil {
		log.Warn("webhook dedupe mark failed", zap.Error(err))
	}
}

// PENDING→FAILEDにして確保していた在庫を戻す
func (u *WebhookUsecase) fail(ctx context.Context, r repo.TxRepos, o *model.Order, outcome *WebhookOutcome, updated *model.Order) error {
	ok, err := r.Orders().TransitionStatus(ctx, o.ID, model.OrderStatusPending, model.OrderStatusFailed)
	if err != nil {
		return err
	}
	if !ok {
		*outcome = OutcomeNoop
		return nil
	}
	if err := releaseReservedStock(ctx, r, o.ID, "payment failed"); err != nil {
		return err
	}
	o.Status = model.OrderStatusFailed
	*updated = *o
	*outcome = OutcomeFailed
	return nil
}

// metadataの注文ID → paymentRef（セッション/リンクID）→ 取引ID の順で探す
func (u *WebhookUsecase) resolveOrderID(ctx context.Context, ev payment.WebhookEvent) (string, error) {
	if validOrderID(ev.OrderID) {
		o, err := u.orders.FindByID(ctx, ev.OrderID)
		if err == nil {
			return o.ID, nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return "", err
		}
	}

	for _, ref := range []string{ev.ProviderRef, ev.TransactionRef} {
		if ref == "" {
			continue
		}
		o, err := u.orders.FindByPaymentRef(ctx, ref)
		if err == nil {
			return o.ID, nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return "", err
		}
	}
	return "", nil
}

// 配信失敗は記録だけ（状態遷移はコミット済み）
func (u *WebhookUsecase) publish(ctx context.Context, log *zap.Logger, typ model.OrderEventType, ev payment.WebhookEvent, o model.Order) {
	if u.publisher == nil {
		return
	}
	out := model.OrderEvent{
		EventID:       string(ev.Provider) + ":" + ev.EventID,
		Type:          typ,
		OrderID:       o.ID,
		Status:        o.Status,
		TotalMinor:    o.TotalMinor,
		Currency:      o.Currency,
		PaymentMethod: string(ev.Provider),
		CustomerEmail: o.CustomerEmail,
		OccurredAt:    u.now(),
	}
	if o.PaymentRef != nil {
		out.PaymentRef = *o.PaymentRef
	}
	if err := u.publisher.PublishOrderEvent(ctx, out); err != nil {
		log.Error("order event publish failed", zap.String("type", string(typ)), zap.Error(err))
	}
}
