package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const orderID = "6f1c1f7e-8a43-4d1b-9c55-0d3c2b1a9e10"

func TestWatch_ClearsCartOnPaid(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := "PENDING"
		if atomic.AddInt32(&calls, 1) >= 2 {
			status = "PAID"
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"` + orderID + `","status":"` + status + `","total":"2000","currency":"USD"}`))
	}))
	defer ts.Close()

	cart := filepath.Join(t.TempDir(), "cart.json")
	require.NoError(t, os.WriteFile(cart, []byte(`[{"product_id":1,"quantity":2}]`), 0o600))

	var out bytes.Buffer
	st, err := watch(context.Background(), ts.URL, orderID, cart, 5*time.Millisecond, zap.NewNop(), &out)
	require.NoError(t, err)
	assert.Equal(t, "PAID", st.Status)

	_, err = os.Stat(cart)
	assert.True(t, os.IsNotExist(err))
	assert.Contains(t, out.String(), "Payment received for order "+orderID+" (2000.00 USD)")
}

func TestWatch_FailedKeepsCart(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"` + orderID + `","status":"FAILED","total":"2000","currency":"USD"}`))
	}))
	defer ts.Close()

	cart := filepath.Join(t.TempDir(), "cart.json")
	require.NoError(t, os.WriteFile(cart, []byte(`[]`), 0o600))

	var out bytes.Buffer
	st, err := watch(context.Background(), ts.URL, orderID, cart, 5*time.Millisecond, zap.NewNop(), &out)
	require.NoError(t, err)
	assert.Equal(t, "FAILED", st.Status)

	_, err = os.Stat(cart)
	assert.NoError(t, err)
	assert.Contains(t, out.String(), "ended as FAILED")
}

func TestClearCart_MissingFile(t *testing.T) {
	assert.NoError(t, clearCart(filepath.Join(t.TempDir(), "nope.json")))
	assert.NoError(t, clearCart(""))
}
