// orderwatch は決済後に注文ステータスを追いかけ、PAIDになったらローカルのカートを消す。
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront/internal/logger"
	"storefront/internal/poller"

	"go.uber.org/zap"
)

func main() {
	api := flag.String("api", envOr("API_URL", "http://localhost:8080"), "API base url")
	orderID := flag.String("order", "", "order id to watch")
	cartFile := flag.String("cart-file", envOr("CART_FILE", "cart.json"), "local cart file cleared on PAID")
	interval := flag.Duration("interval", poller.DefaultInterval, "poll interval")
	flag.Parse()

	if *orderID == "" {
		fmt.Fprintln(os.Stderr, "-order is required")
		os.Exit(2)
	}

	log, err := logger.New(envOr("GO_ENV", "dev"), envOr("LOG_LEVEL", "warn"))
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := watch(ctx, *api, *orderID, *cartFile, *interval, log, os.Stdout)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if st.Status != "PAID" {
		os.Exit(1)
	}
}

func watch(ctx context.Context, api, orderID, cartFile string, interval time.Duration, log *zap.Logger, out io.Writer) (poller.Status, error) {
	p := poller.New(api,
		poller.WithInterval(interval),
		poller.WithLogger(log),
		poller.OnPaid(func(st poller.Status) {
			if err := clearCart(cartFile); err != nil {
				log.Warn("clear local cart failed", zap.String("file", cartFile), zap.Error(err))
			}
			fmt.Fprintf(out, "Payment received for order %s (%s %s)\n", st.ID, st.Total.StringFixed(2), st.Currency)
		}),
		poller.OnError(func(err error) {
			fmt.Fprintln(out, "status check failed, retrying:", err)
		}),
	)

	fmt.Fprintf(out, "Waiting for payment of order %s...\n", orderID)
	st, err := p.Run(ctx, orderID)
	if err != nil {
		return st, err
	}
	if st.Status != "PAID" {
		fmt.Fprintf(out, "Order %s ended as %s\n", st.ID, st.Status)
	}
	return st, nil
}

// 無ければ何もしない
func clearCart(path string) error {
	if path == "" {
		return nil
	}
	err := os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
