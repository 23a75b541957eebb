package fxrate

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type FetcherMock struct{ mock.Mock }

func (m *FetcherMock) Fetch(ctx context.Context, base string) (map[string]decimal.Decimal, error) {
	args := m.Called(ctx, base)
	rates, _ := args.Get(0).(map[string]decimal.Decimal)
	return rates, args.Error(1)
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func TestCache_RateUsesTTL(t *testing.T) {
	ctx := context.Background()
	f := new(FetcherMock)
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewCache(f, clock, time.Hour)

	f.On("Fetch", ctx, "USD").Return(map[string]decimal.Decimal{"inr": decimal.RequireFromString("83.5")}, nil).Once()

	r, err := c.Rate(ctx, "usd", "INR")
	require.NoError(t, err)
	assert.Equal(t, "83.5", r.String())

	// TTL内はキャッシュ
	clock.now = clock.now.Add(30 * time.Minute)
	_, err = c.Rate(ctx, "USD", "INR")
	require.NoError(t, err)
	f.AssertNumberOfCalls(t, "Fetch", 1)

	// 期限切れで再取得
	clock.now = clock.now.Add(time.Hour)
	f.On("Fetch", ctx, "USD").Return(map[string]decimal.Decimal{"INR": decimal.RequireFromString("84")}, nil).Once()
	r, err = c.Rate(ctx, "USD", "INR")
	require.NoError(t, err)
	assert.Equal(t, "84", r.String())
	f.AssertNumberOfCalls(t, "Fetch", 2)
}

func TestCache_StaleOnFetchError(t *testing.T) {
	ctx := context.Background()
	f := new(FetcherMock)
	clock := &fakeClock{now: time.Unix(0, 0)}
	c := NewCache(f, clock, time.Minute)

	f.On("Fetch", ctx, "USD").Return(map[string]decimal.Decimal{"EUR": decimal.RequireFromString("0.9")}, nil).Once()
	_, err := c.Rate(ctx, "USD", "EUR")
	require.NoError(t, err)

	clock.now = clock.now.Add(2 * time.Minute)
	f.On("Fetch", ctx, "USD").Return(nil, errors.New("timeout")).Once()
	r, err := c.Rate(ctx, "USD", "EUR")
	require.NoError(t, err)
	assert.Equal(t, "0.9", r.String())
}

func TestCache_Errors(t *testing.T) {
	ctx := context.Background()
	f := new(FetcherMock)
	c := NewCache(f, &fakeClock{}, time.Minute)

	f.On("Fetch", ctx, "USD").Return(nil, errors.New("down")).Once()
	_, err := c.Rate(ctx, "USD", "EUR")
	assert.Error(t, err)

	f.On("Fetch", ctx, "USD").Return(map[string]decimal.Decimal{"EUR": decimal.RequireFromString("0.9")}, nil).Once()
	_, err = c.Rate(ctx, "USD", "XYZ")
	assert.ErrorIs(t, err, ErrUnknownCurrency)
}

func TestCache_SameCurrencyAndConvert(t *testing.T) {
	ctx := context.Background()
	f := new(FetcherMock)
	c := NewCache(f, &fakeClock{}, time.Minute)

	r, err := c.Rate(ctx, "USD", "usd")
	require.NoError(t, err)
	assert.True(t, r.Equal(decimal.NewFromInt(1)))
	f.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)

	f.On("Fetch", ctx, "USD").Return(map[string]decimal.Decimal{"INR": decimal.RequireFromString("83.333")}, nil)
	v, err := c.Convert(ctx, decimal.RequireFromString("10"), "USD", "INR")
	require.NoError(t, err)
	assert.Equal(t, "833.33", v.String())
}

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "USD", r.URL.Query().Get("base"))
		_, _ = w.Write([]byte(`{"base":"USD","rates":{"INR":83.12,"EUR":0.92}}`))
	}))
	defer srv.Close()

	rates, err := (&HTTPFetcher{URL: srv.URL + "/latest"}).Fetch(context.Background(), "USD")
	require.NoError(t, err)
	assert.Equal(t, "83.12", rates["INR"].String())
}
