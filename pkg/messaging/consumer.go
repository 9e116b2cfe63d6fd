package messaging

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rabbitmq/amqp091-go"
)

const defaultPrefetch = 32

type Consumer struct {
	conn     *amqp091.Connection
	queue    string
	prefetch int
	logger   *slog.Logger
}

// NewRabbitConsumer declares a durable queue bound to exchange once per
// routing key. No keys binds with "#", i.e. every event. Rejected messages
// land in "<queue>.dead".
func NewRabbitConsumer(url, exchange, queue string, routingKeys []string, logger *slog.Logger) (*Consumer, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := declareExchange(ch, exchange); err != nil {
		conn.Close()
		return nil, err
	}

	dlx, err := declareDeadLetter(ch, queue)
	if err != nil {
		conn.Close()
		return nil, err
	}

	if _, err := ch.QueueDeclare(
		queue,
		true,
		false,
		false,
		false,
		amqp091.Table{"x-dead-letter-exchange": dlx},
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	if len(routingKeys) == 0 {
		routingKeys = []string{"#"}
	}
	for _, key := range routingKeys {
		if err := ch.QueueBind(queue, key, exchange, false, nil); err != nil {
			conn.Close()
			return nil, fmt.Errorf("bind queue %s to %s: %w", queue, key, err)
		}
	}

	return &Consumer{
		conn:     conn,
		queue:    queue,
		prefetch: defaultPrefetch,
		logger:   logger,
	}, nil
}

// Start blocks, handing each delivery to handler until ctx is done or the
// broker closes the channel. handler must ack or nack.
func (c *Consumer) Start(ctx context.Context, handler func(context.Context, amqp091.Delivery)) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		ch.Close()
		return fmt.Errorf("set qos: %w", err)
	}

	msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return fmt.Errorf("consume queue: %w", err)
	}

	go func() {
		<-ctx.Done()
		_ = ch.Cancel("", false)
		ch.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				if ctx.Err() == nil {
					return fmt.Errorf("consumer channel for %s closed", c.queue)
				}
				return nil
			}
			handler(ctx, msg)
		}
	}
}

// declareDeadLetter declares the fanout exchange and parking queue that
// receive messages nacked without requeue, returning the exchange name.
func declareDeadLetter(ch *amqp091.Channel, queue string) (string, error) {
	exchange := deadLetterName(queue) + ".x"
	if err := ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		return "", fmt.Errorf("declare dead-letter exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(deadLetterName(queue), true, false, false, false, nil); err != nil {
		return "", fmt.Errorf("declare dead-letter queue: %w", err)
	}
	if err := ch.QueueBind(deadLetterName(queue), "", exchange, false, nil); err != nil {
		return "", fmt.Errorf("bind dead-letter queue: %w", err)
	}
	return exchange, nil
}

func deadLetterName(queue string) string {
	return queue + ".dead"
}

func (c *Consumer) Close() error {
	return c.conn.Close()
}
