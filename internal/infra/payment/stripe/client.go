// Package stripe はStripe Checkout Sessionsのアダプタ。
package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/payment"
)

const (
	defaultBaseURL = "https://api.stripe.com"
	// 署名タイムスタンプの許容ずれ
	defaultTolerance = 5 * time.Minute
)

type Config struct {
	SecretKey     string
	WebhookSecret string
	BaseURL       string
	HTTP          *http.Client
	Tolerance     time.Duration
	Now           func() time.Time
}

type Client struct {
	secretKey     string
	webhookSecret string
	baseURL       string
	http          *http.Client
	tolerance     time.Duration
	now           func() time.Time
}

func NewClient(cfg Config) *Client {
	c := &Client{
		secretKey:     cfg.SecretKey,
		webhookSecret: cfg.WebhookSecret,
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		http:          cfg.HTTP,
		tolerance:     cfg.Tolerance,
		now:           cfg.Now,
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 10 * time.Second}
	}
	if c.tolerance <= 0 {
		c.tolerance = defaultTolerance
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

func (c *Client) Method() model.PaymentMethod {
	return model.PaymentMethodStripe
}

type sessionResp struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	ExpiresAt int64  `json:"expires_at"`
}

type errorResp struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// CreateSession は POST /v1/checkout/sessions を呼ぶ
func (c *Client) CreateSession(ctx context.Context, req payment.SessionRequest) (payment.Session, error) {
	if req.AmountMinor <= 0 {
		return payment.Session{}, fmt.Errorf("stripe: amount must be positive")
	}

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", req.SuccessURL)
	form.Set("cancel_url", req.CancelURL)
	form.Set("client_reference_id", req.OrderID)
	if req.CustomerEmail != "" {
		form.Set("customer_email", req.CustomerEmail)
	}
	form.Set("metadata[order_id]", req.OrderID)
	form.Set("payment_intent_data[metadata][order_id]", req.OrderID)
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", strings.ToLower(req.Currency))
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(req.AmountMinor, 10))
	name := req.Description
	if name == "" {
		name = "Order " + req.OrderID
	}
	form.Set("line_items[0][price_data][product_data][name]", name)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return payment.Session{}, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Authorization", "Bearer "+c.secretKey)
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}

	var out sessionResp
	if err := c.do(httpReq, &out); err != nil {
		return payment.Session{}, err
	}
	if out.ID == "" || out.URL == "" {
		return payment.Session{}, fmt.Errorf("stripe: missing session id or url")
	}
	session := payment.Session{RedirectURL: out.URL, ProviderRef: out.ID}
	if out.ExpiresAt > 0 {
		exp := time.Unix(out.ExpiresAt, 0)
		session.ExpiresAt = &exp
	}
	return session, nil
}

// CloseSession は POST /v1/checkout/sessions/:id/expire を呼ぶ。
// 支払い済みのセッションはStripeが拒否するのでエラーになる。
func (c *Client) CloseSession(ctx context.Context, sessionID string) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/checkout/sessions/"+url.PathEscape(sessionID)+"/expire", nil)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.secretKey)
	return c.do(httpReq, nil)
}

func (c *Client) do(httpReq *http.Request, out any) error {
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("stripe: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("stripe: read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e errorResp
		_ = json.Unmarshal(body, &e)
		return fmt.Errorf("stripe: status %d: %s", resp.StatusCode, strings.TrimSpace(e.Error.Message))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("stripe: decode response: %w", err)
	}
	return nil
}

var (
	_ payment.Gateway         = (*Client)(nil)
	_ payment.SessionCloser   = (*Client)(nil)
	_ payment.WebhookVerifier = (*Client)(nil)
)
