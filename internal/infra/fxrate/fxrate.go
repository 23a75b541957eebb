// Package fxrate は表示用の為替レートをTTL付きで保持する。
// 注文の決済通貨には使わない。
package fxrate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

var ErrUnknownCurrency = errors.New("unknown currency")

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Fetcher は base通貨に対する各通貨のレートを返す
type Fetcher interface {
	Fetch(ctx context.Context, base string) (map[string]decimal.Decimal, error)
}

type entry struct {
	rates     map[string]decimal.Decimal
	fetchedAt time.Time
}

// Cache はbase通貨ごとにレート表を持つ。
// 期限切れで取得に失敗した場合は古い表を返す。
type Cache struct {
	fetcher Fetcher
	clock   Clock
	ttl     time.Duration

	mu      sync.Mutex
	entries map[string]entry
}

func NewCache(fetcher Fetcher, clock Clock, ttl time.Duration) *Cache {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Cache{fetcher: fetcher, clock: clock, ttl: ttl, entries: map[string]entry{}}
}

func (c *Cache) Rate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	if from == to {
		return decimal.NewFromInt(1), nil
	}

	rates, err := c.rates(ctx, from)
	if err != nil {
		return decimal.Zero, err
	}
	r, ok := rates[to]
	if !ok || !r.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownCurrency, to)
	}
	return r, nil
}

// Convert は金額を変換して小数2桁に丸める
func (c *Cache) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	r, err := c.Rate(ctx, from, to)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(r).Round(2), nil
}

func (c *Cache) rates(ctx context.Context, base string) (map[string]decimal.Decimal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	e, ok := c.entries[base]
	if ok && now.Sub(e.fetchedAt) < c.ttl {
		return e.rates, nil
	}

	fresh, err := c.fetcher.Fetch(ctx, base)
	if err != nil {
		if ok {
			return e.rates, nil
		}
		return nil, fmt.Errorf("fetch rates %s: %w", base, err)
	}

	normalized := make(map[string]decimal.Decimal, len(fresh))
	for k, v := range fresh {
		normalized[strings.ToUpper(k)] = v
	}
	c.entries[base] = entry{rates: normalized, fetchedAt: now}
	return normalized, nil
}

// HTTPFetcher は {"base":"USD","rates":{"INR":83.1,...}} を返すAPIを読む
type HTTPFetcher struct {
	URL  string
	HTTP *http.Client
}

type ratesResp struct {
	Base  string                     `json:"base"`
	Rates map[string]decimal.Decimal `json:"rates"`
}

func (f *HTTPFetcher) Fetch(ctx context.Context, base string) (map[string]decimal.Decimal, error) {
	hc := f.HTTP
	if hc == nil {
		hc = &http.Client{Timeout: 5 * time.Second}
	}

	u, err := url.Parse(f.URL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("base", base)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fx rates: status %d", resp.StatusCode)
	}
	var out ratesResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if len(out.Rates) == 0 {
		return nil, fmt.Errorf("fx rates: empty response")
	}
	return out.Rates, nil
}
