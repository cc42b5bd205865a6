// Package queue доставляет отложенные задачи бронирований через RabbitMQ.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/ignatzorin/consult-backend/internal/jobs"
)

// Exchange типа x-delayed-message требует плагин rabbitmq_delayed_message_exchange.
const delayedExchangeKind = "x-delayed-message"

type Publisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

func NewPublisher(url, exchange string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := declareExchange(ch, exchange); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &Publisher{conn: conn, ch: ch, exchange: exchange}, nil
}

func declareExchange(ch *amqp.Channel, exchange string) error {
	args := amqp.Table{"x-delayed-type": "topic"}
	if err := ch.ExchangeDeclare(exchange, delayedExchangeKind, true, false, false, false, args); err != nil {
		return fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return nil
}

// Publish отправляет задачу; delay передаётся плагину в заголовке x-delay.
func (p *Publisher) Publish(ctx context.Context, job jobs.Job, delay time.Duration) error {
	msg, err := newPublishing(job, delay)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ch.PublishWithContext(ctx, p.exchange, job.RoutingKey(), false, false, msg); err != nil {
		return fmt.Errorf("publish %s: %w", job.Key, err)
	}
	return nil
}

func newPublishing(job jobs.Job, delay time.Duration) (amqp.Publishing, error) {
	body, err := json.Marshal(job)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal job: %w", err)
	}
	headers := amqp.Table{}
	if delay > 0 {
		headers["x-delay"] = delay.Milliseconds()
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.Key,
		Type:         string(job.Type),
		Timestamp:    time.Now().UTC(),
		Headers:      headers,
		Body:         body,
	}, nil
}

func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
