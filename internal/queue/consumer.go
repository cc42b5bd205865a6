package queue

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

type ConsumerConfig struct {
	URL      string
	Exchange string
	Queue    string
	Bindings []string
	Prefetch int
	// DLXName пустой - без dead-letter очереди.
	DLXName  string
	DLXQueue string
}

type Consumer struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

func NewConsumer(cfg ConsumerConfig) (*Consumer, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	c := &Consumer{conn: conn, ch: ch}
	if err := c.setup(cfg); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Consumer) setup(cfg ConsumerConfig) error {
	if err := declareExchange(c.ch, cfg.Exchange); err != nil {
		return err
	}

	args := amqp.Table{}
	if cfg.DLXName != "" {
		args["x-dead-letter-exchange"] = cfg.DLXName
		if err := c.ch.ExchangeDeclare(cfg.DLXName, "topic", true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare dlx: %w", err)
		}
		if _, err := c.ch.QueueDeclare(cfg.DLXQueue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare dlq: %w", err)
		}
		if err := c.ch.QueueBind(cfg.DLXQueue, "#", cfg.DLXName, false, nil); err != nil {
			return fmt.Errorf("bind dlq: %w", err)
		}
	}

	q, err := c.ch.QueueDeclare(cfg.Queue, true, false, false, false, args)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	bindings := cfg.Bindings
	if len(bindings) == 0 {
		bindings = []string{"jobs.#"}
	}
	for _, rk := range bindings {
		if err := c.ch.QueueBind(q.Name, rk, cfg.Exchange, false, nil); err != nil {
			return fmt.Errorf("bind %s: %w", rk, err)
		}
	}

	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 8
	}
	if err := c.ch.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("qos: %w", err)
	}
	c.queue = q.Name
	return nil
}

func (c *Consumer) Deliveries(ctx context.Context) (<-chan amqp.Delivery, error) {
	return c.ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
}

func (c *Consumer) Close() error {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
