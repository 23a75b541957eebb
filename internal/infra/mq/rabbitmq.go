package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"storefront/internal/domain/model"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Conn はRabbitMQの接続とチャンネル
type Conn struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

// Dial は接続してtopic exchangeを宣言する
func Dial(url string, exchange string) (*Conn, error) {
	c, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}
	ch, err := c.Channel()
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	); err != nil {
		ch.Close()
		c.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &Conn{conn: c, ch: ch, exchange: exchange}, nil
}

func (c *Conn) Close() error {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Conn) Publisher(log *zap.Logger) *Publisher {
	return NewPublisher(c.ch, c.exchange, log)
}

type publishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Publisher は注文イベントをJSONで流す。routing keyはイベント種別。
type Publisher struct {
	ch       publishChannel
	exchange string
	log      *zap.Logger
}

func NewPublisher(ch publishChannel, exchange string, log *zap.Logger) *Publisher {
	return &Publisher{ch: ch, exchange: exchange, log: log}
}

func (p *Publisher) PublishOrderEvent(ctx context.Context, ev model.OrderEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	err = p.ch.PublishWithContext(ctx, p.exchange, string(ev.Type), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.EventID,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}

	p.log.Debug("order event published",
		zap.String("type", string(ev.Type)),
		zap.String("order_id", ev.OrderID),
	)
	return nil
}

// OrderEventHandler はイベント1件を処理する
type OrderEventHandler func(ctx context.Context, ev model.OrderEvent) error

// Consume はキューを宣言・バインドして、ctxが終わるまで処理する。
func (c *Conn) Consume(ctx context.Context, queue string, keys []string, log *zap.Logger, h OrderEventHandler) error {
	q, err := c.ch.QueueDeclare(queue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	for _, k := range keys {
		if err := c.ch.QueueBind(q.Name, k, c.exchange, false, nil); err != nil {
			return fmt.Errorf("bind %s: %w", k, err)
		}
	}
	if err := c.ch.Qos(10, 0, false); err != nil {
		return fmt.Errorf("qos: %w", err)
	}

	deliveries, err := c.ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			handleDelivery(ctx, d, log, h)
		}
	}
}

// 失敗したメッセージは再キューしない（同じ失敗を繰り返すため）
func handleDelivery(ctx context.Context, d amqp.Delivery, log *zap.Logger, h OrderEventHandler) {
	var ev model.OrderEvent
	if err := json.Unmarshal(d.Body, &ev); err != nil {
		log.Error("drop malformed message", zap.String("routing_key", d.RoutingKey), zap.Error(err))
		_ = d.Nack(false, false)
		return
	}

	if err := h(ctx, ev); err != nil {
		log.Error("order event handler failed",
			zap.String("type", string(ev.Type)),
			zap.String("order_id", ev.OrderID),
			zap.Error(err),
		)
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
}
