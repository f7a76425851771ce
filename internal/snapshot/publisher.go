package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RoutingKey routes snapshot events on the exchange.
const RoutingKey = "dashboard.snapshot"

// Publisher announces stored snapshots.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes snapshot events to a RabbitMQ direct exchange.
type AMQPPublisher struct {
	conn     *amqp.Connection
	channel  amqpChannel
	exchange string
	logger   *slog.Logger
}

// DialPublisher connects to RabbitMQ and declares the exchange.
func DialPublisher(url, exchange string, logger *slog.Logger) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "direct", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	p := newAMQPPublisher(ch, exchange, logger)
	p.conn = conn
	return p, nil
}

func newAMQPPublisher(ch amqpChannel, exchange string, logger *slog.Logger) *AMQPPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &AMQPPublisher{channel: ch, exchange: exchange, logger: logger}
}

// Publish sends the event as a persistent JSON message.
func (p *AMQPPublisher) Publish(ctx context.Context, event Event) error {
	if p == nil || p.channel == nil {
		return nil
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = p.channel.PublishWithContext(ctx, p.exchange, RoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID.String(),
		Timestamp:    event.At,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish snapshot event: %w", err)
	}
	p.logger.InfoContext(ctx, "snapshot event published",
		slog.String("kind", event.Kind),
		slog.String("period", event.Period),
		slog.String("exchange", p.exchange))
	return nil
}

// Close releases the channel and connection.
func (p *AMQPPublisher) Close() error {
	if p == nil {
		return nil
	}
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
