// Package razorpay はRazorpay Payment Linksのアダプタ。
package razorpay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
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

const defaultBaseURL = "https://api.razorpay.com"

type Config struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
	BaseURL       string
	HTTP          *http.Client
}

type Client struct {
	keyID         string
	keySecret     string
	webhookSecret string
	baseURL       string
	http          *http.Client
}

func NewClient(cfg Config) *Client {
	c := &Client{
		keyID:         cfg.KeyID,
		keySecret:     cfg.KeySecret,
		webhookSecret: cfg.WebhookSecret,
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		http:          cfg.HTTP,
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 10 * time.Second}
	}
	return c
}

func (c *Client) Method() model.PaymentMethod {
	return model.PaymentMethodRazorpay
}

type linkCustomer struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Contact string `json:"contact,omitempty"`
}

type linkReq struct {
	Amount         int64             `json:"amount"`
	Currency       string            `json:"currency"`
	ReferenceID    string            `json:"reference_id"`
	Description    string            `json:"description,omitempty"`
	Customer       linkCustomer      `json:"customer"`
	CallbackURL    string            `json:"callback_url,omitempty"`
	CallbackMethod string            `json:"callback_method,omitempty"`
	Notes          map[string]string `json:"notes"`
}

type linkResp struct {
	ID       string `json:"id"`
	ShortURL string `json:"short_url"`
	Status   string `json:"status"`
	Amount   int64  `json:"amount"`
	ExpireBy int64  `json:"expire_by"`
}

type linkList struct {
	PaymentLinks []linkResp `json:"payment_links"`
}

type errorResp struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// APIError はRazorpayが2xx以外で返した内容
type APIError struct {
	Status      int
	Code        string
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("razorpay: status %d: %s", e.Status, e.Description)
}

// reference_id の重複で作成を拒否されたか
func (e *APIError) duplicateReference() bool {
	return e.Status == http.StatusBadRequest && strings.Contains(strings.ToLower(e.Description), "reference_id")
}

// reference_id は40文字まで。2回目以降は連番を付けて別のリンクにする。
func referenceFor(orderID string, attempt int) string {
	if attempt <= 0 {
		return orderID
	}
	ref := strings.ReplaceAll(orderID, "-", "")
	suffix := "-" + strconv.Itoa(attempt)
	if len(ref)+len(suffix) > 40 {
		ref = ref[:40-len(suffix)]
	}
	return ref + suffix
}

// CreateSession は POST /v1/payment_links を呼ぶ。
// 同じ reference_id のリンクが既にあれば（前回の応答を取りこぼした場合）それを返す。
func (c *Client) CreateSession(ctx context.Context, req payment.SessionRequest) (payment.Session, error) {
	if req.AmountMinor <= 0 {
		return payment.Session{}, fmt.Errorf("razorpay: amount must be positive")
	}
	ref := referenceFor(req.OrderID, req.Attempt)

	raw, err := json.Marshal(linkReq{
		Amount:      req.AmountMinor,
		Currency:    strings.ToUpper(req.Currency),
		ReferenceID: ref,
		Description: req.Description,
		Customer: linkCustomer{
			Name:    req.CustomerName,
			Email:   req.CustomerEmail,
			Contact: req.CustomerPhone,
		},
		CallbackURL:    req.SuccessURL,
		CallbackMethod: "get",
		Notes: map[string]string{
			"order_id":        req.OrderID,
			"idempotency_key": req.IdempotencyKey,
		},
	})
	if err != nil {
		return payment.Session{}, err
	}

	httpReq, err := c.newRequest(ctx, http.MethodPost, "/v1/payment_links", bytes.NewReader(raw))
	if err != nil {
		return payment.Session{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var out linkResp
	err = c.do(httpReq, &out)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.duplicateReference() {
		existing, found, lookupErr := c.findOpenLink(ctx, ref, req.AmountMinor)
		if lookupErr != nil {
			return payment.Session{}, lookupErr
		}
		if !found {
			return payment.Session{}, err
		}
		out = existing
	} else if err != nil {
		return payment.Session{}, err
	}

	if out.ID == "" || out.ShortURL == "" {
		return payment.Session{}, fmt.Errorf("razorpay: missing link id or short_url")
	}
	return toSession(out), nil
}

// まだ支払える（created / partially_paid）リンクだけ再利用する
func (c *Client) findOpenLink(ctx context.Context, ref string, amount int64) (linkResp, bool, error) {
	httpReq, err := c.newRequest(ctx, http.MethodGet, "/v1/payment_links?reference_id="+url.QueryEscape(ref), nil)
	if err != nil {
		return linkResp{}, false, err
	}
	var list linkList
	if err := c.do(httpReq, &list); err != nil {
		return linkResp{}, false, err
	}
	for _, l := range list.PaymentLinks {
		if (l.Status == "created" || l.Status == "partially_paid") && l.Amount == amount {
			return l, true, nil
		}
	}
	return linkResp{}, false, nil
}

// CloseSession は POST /v1/payment_links/:id/cancel を呼ぶ
func (c *Client) CloseSession(ctx context.Context, linkID string) error {
	httpReq, err := c.newRequest(ctx, http.MethodPost, "/v1/payment_links/"+url.PathEscape(linkID)+"/cancel", nil)
	if err != nil {
		return err
	}
	return c.do(httpReq, nil)
}

func toSession(l linkResp) payment.Session {
	s := payment.Session{RedirectURL: l.ShortURL, ProviderRef: l.ID}
	if l.ExpireBy > 0 {
		exp := time.Unix(l.ExpireBy, 0)
		s.ExpiresAt = &exp
	}
	return s
}

func (c *Client) newRequest(ctx context.Context, method string, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	return req, nil
}

func (c *Client) do(httpReq *http.Request, out any) error {
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("razorpay: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("razorpay: read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e errorResp
		_ = json.Unmarshal(body, &e)
		return &APIError{Status: resp.StatusCode, Code: e.Error.Code, Description: strings.TrimSpace(e.Error.Description)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("razorpay: decode response: %w", err)
	}
	return nil
}

var (
	_ payment.Gateway         = (*Client)(nil)
	_ payment.SessionCloser   = (*Client)(nil)
	_ payment.WebhookVerifier = (*Client)(nil)
)
