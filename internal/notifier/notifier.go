// Package notifier は order.paid を受けて領収書PDFを書き出す。
package notifier

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"storefront/internal/domain/model"
	"storefront/internal/repository"

	"go.uber.org/zap"
)

const QueueName = "storefront.notifier"

// QueueNameにbindするrouting key
var RoutingKeys = []string{string(model.OrderEventPaid)}

type ReceiptRenderer interface {
	Render(o model.Order, items []model.OrderItem) ([]byte, error)
}

type Notifier struct {
	orders   repository.OrderRepository
	items    repository.OrderItemRepository
	receipts ReceiptRenderer
	dir      string
	log      *zap.Logger
}

func New(orders repository.OrderRepository, items repository.OrderItemRepository, receipts ReceiptRenderer, dir string, log *zap.Logger) *Notifier {
	return &Notifier{orders: orders, items: items, receipts: receipts, dir: dir, log: log}
}

// Handle はイベント1件分。同じイベントが再配信されても同じファイルを上書きするだけ。
func (n *Notifier) Handle(ctx context.Context, ev model.OrderEvent) error {
	if ev.Type != model.OrderEventPaid {
		return nil
	}

	o, err := n.orders.FindByID(ctx, ev.OrderID)
	if errors.Is(err, repository.ErrNotFound) {
		n.log.Warn("paid event for unknown order", zap.String("order_id", ev.OrderID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("load order: %w", err)
	}
	//Webhookより後にキャンセルされていても領収書は出す（PAIDを経由している）
	if o.PaidAt == nil {
		n.log.Warn("paid event for unpaid order", zap.String("order_id", o.ID), zap.String("status", string(o.Status)))
		return nil
	}

	items, err := n.items.ListByOrderID(ctx, o.ID)
	if err != nil {
		return fmt.Errorf("load items: %w", err)
	}

	pdf, err := n.receipts.Render(o, items)
	if err != nil {
		return fmt.Errorf("render receipt: %w", err)
	}

	path, err := n.write(o.ID, pdf)
	if err != nil {
		return err
	}

	n.log.Info("payment confirmation ready",
		zap.String("order_id", o.ID),
		zap.String("customer_email", o.CustomerEmail),
		zap.Int64("total_minor", o.TotalMinor),
		zap.String("currency", o.Currency),
		zap.String("receipt", path),
	)
	return nil
}

// 一時ファイルに書いてからrenameする
func (n *Notifier) write(orderID string, pdf []byte) (string, error) {
	if err := os.MkdirAll(n.dir, 0o755); err != nil {
		return "", fmt.Errorf("create receipt dir: %w", err)
	}
	path := filepath.Join(n.dir, "receipt-"+orderID+".pdf")

	tmp, err := os.CreateTemp(n.dir, ".receipt-*")
	if err != nil {
		return "", fmt.Errorf("create temp: %w", err)
	}
	if _, err := tmp.Write(pdf); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write receipt: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close receipt: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("rename receipt: %w", err)
	}
	return path, nil
}
