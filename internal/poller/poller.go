// Package poller は決済からのリダイレクト後に注文ステータスを追いかける。
// Webhookより先に戻ってきた場合でも、PAIDを観測した時点で一度だけ後処理を走らせる。
package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	DefaultInterval = 5 * time.Second
	defaultTimeout  = 10 * time.Second

	statusPending = "PENDING"
	statusPaid    = "PAID"
)

// ErrOrderNotFound は注文IDが存在しない（ポーリングしても変わらない）
var ErrOrderNotFound = errors.New("order not found")

// Status は GET /orders/:id/status の応答
type Status struct {
	ID         string          `json:"id"`
	Status     string          `json:"status"`
	Total      decimal.Decimal `json:"total"`
	TotalMinor int64           `json:"total_minor"`
	Currency   string          `json:"currency"`
	PaymentRef *string         `json:"payment_ref"`
	PaidAt     *time.Time      `json:"paid_at"`
}

// Terminal はPENDING以外
func (s Status) Terminal() bool {
	return s.Status != statusPending
}

type Poller struct {
	baseURL  string
	client   *http.Client
	interval time.Duration
	log      *zap.Logger

	// PAIDを最初に見たときに1回だけ
	onPaid func(Status)
	// 一時的な取得失敗。ポーリングは続ける
	onError func(error)

	paidOnce sync.Once
}

type Option func(*Poller)

func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(p *Poller) { p.client = c }
}

func WithLogger(log *zap.Logger) Option {
	return func(p *Poller) { p.log = log }
}

func OnPaid(fn func(Status)) Option {
	return func(p *Poller) { p.onPaid = fn }
}

func OnError(fn func(error)) Option {
	return func(p *Poller) { p.onError = fn }
}

func New(baseURL string, opts ...Option) *Poller {
	p := &Poller{
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: defaultTimeout},
		interval: DefaultInterval,
		log:      zap.NewNop(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run はすぐに1回取得し、その後はPENDINGの間だけInterval毎に取得する。
// 終端ステータスを見たらそれを返す。ctxのキャンセルで止まる。
func (p *Poller) Run(ctx context.Context, orderID string) (Status, error) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		st, err := p.Fetch(ctx, orderID)
		switch {
		case errors.Is(err, ErrOrderNotFound):
			return Status{}, err
		case err != nil:
			if ctx.Err() != nil {
				return Status{}, ctx.Err()
			}
			p.log.Warn("order status fetch failed", zap.String("order_id", orderID), zap.Error(err))
			if p.onError != nil {
				p.onError(err)
			}
		case st.Terminal():
			if st.Status == statusPaid {
				p.firePaid(st)
			}
			p.log.Info("order reached terminal status", zap.String("order_id", orderID), zap.String("status", st.Status))
			return st, nil
		}

		select {
		case <-ctx.Done():
			return Status{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Poller) firePaid(st Status) {
	p.paidOnce.Do(func() {
		if p.onPaid != nil {
			p.onPaid(st)
		}
	})
}

// Fetch は1回分の取得
func (p *Poller) Fetch(ctx context.Context, orderID string) (Status, error) {
	endpoint := p.baseURL + "/orders/" + url.PathEscape(orderID) + "/status"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Status{}, err
	}
	req.Header.Set("Accept", "application/json")

	res, err := p.client.Do(req)
	if err != nil {
		return Status{}, err
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return Status{}, ErrOrderNotFound
	}
	if res.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, res.Body)
		return Status{}, fmt.Errorf("order status: unexpected http %d", res.StatusCode)
	}

	var st Status
	if err := json.NewDecoder(res.Body).Decode(&st); err != nil {
		return Status{}, fmt.Errorf("order status: decode: %w", err)
	}
	if st.Status == "" {
		return Status{}, errors.New("order status: empty status")
	}
	return st, nil
}
