package razorpay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"storefront/internal/domain/model"
	"storefront/internal/payment"
)

const (
	signatureHeader = "X-Razorpay-Signature"
	eventIDHeader   = "X-Razorpay-Event-Id"
)

type event struct {
	Event   string `json:"event"`
	Payload struct {
		PaymentLink *struct {
			Entity linkEntity `json:"entity"`
		} `json:"payment_link"`
		Payment *struct {
			Entity paymentEntity `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

type linkEntity struct {
	ID          string            `json:"id"`
	Amount      int64             `json:"amount"`
	AmountPaid  int64             `json:"amount_paid"`
	Currency    string            `json:"currency"`
	ReferenceID string            `json:"reference_id"`
	Notes       map[string]string `json:"notes"`
}

type paymentEntity struct {
	ID       string            `json:"id"`
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Notes    map[string]string `json:"notes"`
}

// ParseEvent は署名を検証してからイベントを正規化する
func (c *Client) ParseEvent(header http.Header, body []byte) (payment.WebhookEvent, error) {
	if err := c.verify(header.Get(signatureHeader), body); err != nil {
		return payment.WebhookEvent{}, err
	}

	var ev event
	if err := json.Unmarshal(body, &ev); err != nil || ev.Event == "" {
		return payment.WebhookEvent{}, payment.ErrMalformedEvent
	}

	out := payment.WebhookEvent{
		Provider:  model.PaymentMethodRazorpay,
		EventID:   header.Get(eventIDHeader),
		EventType: ev.Event,
		Kind:      payment.EventIgnored,
	}

	if pl := ev.Payload.PaymentLink; pl != nil {
		out.ProviderRef = pl.Entity.ID
		out.OrderID = pl.Entity.Notes["order_id"]
		if out.OrderID == "" {
			out.OrderID = pl.Entity.ReferenceID
		}
		out.AmountMinor = pl.Entity.AmountPaid
		out.Currency = strings.ToUpper(pl.Entity.Currency)
	}
	if p := ev.Payload.Payment; p != nil {
		out.TransactionRef = p.Entity.ID
		if out.OrderID == "" {
			out.OrderID = p.Entity.Notes["order_id"]
		}
		if out.AmountMinor == 0 {
			out.AmountMinor = p.Entity.Amount
		}
		if out.Currency == "" {
			out.Currency = strings.ToUpper(p.Entity.Currency)
		}
	}
	if out.EventID == "" {
		// ヘッダが無い場合は取引単位で一意にする
		out.EventID = ev.Event + ":" + out.TransactionRef + out.ProviderRef
	}

	// payment.failed は1回のカード失敗でリンクは開いたまま。再試行で払えるので状態は変えない。
	switch ev.Event {
	case "payment_link.paid":
		out.Kind = payment.EventSucceeded
	case "payment_link.expired", "payment_link.cancelled":
		out.Kind = payment.EventSessionExpired
	}
	return out, nil
}

// X-Razorpay-Signature: hex(HMAC-SHA256(secret, body))
func (c *Client) verify(sig string, body []byte) error {
	if c.webhookSecret == "" || sig == "" {
		return payment.ErrSignatureInvalid
	}
	got, err := hex.DecodeString(strings.TrimSpace(sig))
	if err != nil {
		return payment.ErrSignatureInvalid
	}
	if !hmac.Equal(got, computeSignature(c.webhookSecret, body)) {
		return payment.ErrSignatureInvalid
	}
	return nil
}

func computeSignature(secret string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}
