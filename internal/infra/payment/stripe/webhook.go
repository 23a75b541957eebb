package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/payment"
)

const signatureHeader = "Stripe-Signature"

type event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object sessionObject `json:"object"`
	} `json:"data"`
}

type sessionObject struct {
	ID                string            `json:"id"`
	AmountTotal       int64             `json:"amount_total"`
	Currency          string            `json:"currency"`
	PaymentStatus     string            `json:"payment_status"`
	PaymentIntent     json.RawMessage   `json:"payment_intent"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
}

// ParseEvent は署名を検証してからイベントを正規化する
func (c *Client) ParseEvent(header http.Header, body []byte) (payment.WebhookEvent, error) {
	if err := c.verify(header.Get(signatureHeader), body); err != nil {
		return payment.WebhookEvent{}, err
	}

	var ev event
	if err := json.Unmarshal(body, &ev); err != nil || ev.ID == "" || ev.Type == "" {
		return payment.WebhookEvent{}, payment.ErrMalformedEvent
	}

	obj := ev.Data.Object
	out := payment.WebhookEvent{
		Provider:       model.PaymentMethodStripe,
		EventID:        ev.ID,
		EventType:      ev.Type,
		Kind:           payment.EventIgnored,
		OrderID:        obj.Metadata["order_id"],
		ProviderRef:    obj.ID,
		TransactionRef: intentID(obj.PaymentIntent),
		AmountMinor:    obj.AmountTotal,
		Currency:       strings.ToUpper(obj.Currency),
	}
	if out.OrderID == "" {
		out.OrderID = obj.ClientReferenceID
	}

	switch ev.Type {
	case "checkout.session.completed":
		// 遅延決済（銀行振込など）はasync_payment_succeededを待つ
		if obj.PaymentStatus == "paid" {
			out.Kind = payment.EventSucceeded
		}
	case "checkout.session.async_payment_succeeded":
		out.Kind = payment.EventSucceeded
	case "checkout.session.async_payment_failed":
		out.Kind = payment.EventFailed
	case "checkout.session.expired":
		out.Kind = payment.EventSessionExpired
	}
	return out, nil
}

// Stripe-Signature: t=1700000000,v1=<hex>[,v1=<hex>]
func (c *Client) verify(sigHeader string, body []byte) error {
	if c.webhookSecret == "" || sigHeader == "" {
		return payment.ErrSignatureInvalid
	}

	var ts string
	var sigs []string
	for _, part := range strings.Split(sigHeader, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			sigs = append(sigs, v)
		}
	}
	if ts == "" || len(sigs) == 0 {
		return payment.ErrSignatureInvalid
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return payment.ErrSignatureInvalid
	}
	if d := c.now().Sub(time.Unix(unix, 0)); d > c.tolerance || d < -c.tolerance {
		return payment.ErrSignatureInvalid
	}

	expected := computeSignature(c.webhookSecret, ts, body)
	for _, s := range sigs {
		got, err := hex.DecodeString(s)
		if err != nil {
			continue
		}
		if hmac.Equal(got, expected) {
			return nil
		}
	}
	return payment.ErrSignatureInvalid
}

func computeSignature(secret string, ts string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	return mac.Sum(nil)
}

// payment_intentは文字列か展開済みオブジェクト
func intentID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.ID
	}
	return ""
}
