// Package payment はゲートウェイ実装に依存しない決済の約束を定める。
package payment

import (
	"context"
	"errors"
	"net/http"
	"time"

	"storefront/internal/domain/model"
)

var (
	// 署名不一致。詳細は返さない。
	ErrSignatureInvalid = errors.New("webhook signature invalid")
	ErrMalformedEvent   = errors.New("webhook payload malformed")
)

// SessionRequest はリモートの決済セッション作成に渡す内容
type SessionRequest struct {
	OrderID        string
	AmountMinor    int64
	Currency       string
	Description    string
	CustomerName   string
	CustomerEmail  string
	CustomerPhone  string
	SuccessURL     string
	CancelURL      string
	IdempotencyKey string
	// 同じ注文で何回目のセッションか（0始まり）
	Attempt int
}

type Session struct {
	RedirectURL string
	ProviderRef string
	// プロバイダ側の有効期限。無期限ならnil
	ExpiresAt *time.Time
}

// Gateway は注文をリモートの決済セッションへ変換する
type Gateway interface {
	Method() model.PaymentMethod
	CreateSession(ctx context.Context, req SessionRequest) (Session, error)
}

// SessionCloser は開いたままのリモートセッションを閉じる。
// 別プロバイダへ切り替えるとき、古い方で二重に払われないようにする。
type SessionCloser interface {
	CloseSession(ctx context.Context, providerRef string) error
}

type EventKind string

const (
	EventSucceeded EventKind = "succeeded"
	EventFailed    EventKind = "failed"
	EventIgnored   EventKind = "ignored"
	// セッション/リンクが期限切れ・取消になった（注文はPENDINGのまま）
	EventSessionExpired EventKind = "session_expired"
)

// WebhookEvent は各社の通知を正規化したもの
type WebhookEvent struct {
	Provider  model.PaymentMethod
	EventID   string
	EventType string
	Kind      EventKind
	// metadata/notesに入れた注文ID
	OrderID string
	// セッションID / PaymentLink ID（paymentRefの逆引き用）
	ProviderRef string
	// 実際の取引ID（payment_intent / pay_xxx）
	TransactionRef string
	AmountMinor    int64
	Currency       string
}

// WebhookVerifier は署名検証してからイベントを読む。
// 署名が合わなければ ErrSignatureInvalid を返し、本文は解釈しない。
type WebhookVerifier interface {
	Method() model.PaymentMethod
	ParseEvent(header http.Header, body []byte) (WebhookEvent, error)
}
