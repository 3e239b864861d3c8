package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const publishTimeout = 5 * time.Second

// RabbitPublisher publishes activation emails to a durable RabbitMQ queue and
// can consume them back for delivery.
type RabbitPublisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   amqp.Queue
}

// NewRabbitPublisher dials RabbitMQ and declares the activation queue.
// Declaration is idempotent, so publisher and worker can both call this.
func NewRabbitPublisher(url, queueName string) (*RabbitPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	queue, err := channel.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue %q: %w", queueName, err)
	}
	return &RabbitPublisher{conn: conn, channel: channel, queue: queue}, nil
}

func (p *RabbitPublisher) Close() {
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			slog.Warn("close rabbitmq channel", "error", err)
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			slog.Warn("close rabbitmq connection", "error", err)
		}
	}
}

// PublishActivation implements Publisher.
func (p *RabbitPublisher) PublishActivation(ctx context.Context, msg ActivationMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal activation message: %w", err)
	}
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	err = p.channel.PublishWithContext(pubCtx, "", p.queue.Name, false, false, amqp.Publishing{
		ContentType:  "application/json",
		MessageId:    msg.ID,
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish activation message: %w", err)
	}
	return nil
}

// Consume drains the queue until ctx is cancelled, invoking handler per
// message. Handler failures requeue the message; undecodable messages are
// dropped.
func (p *RabbitPublisher) Consume(ctx context.Context, handler func(context.Context, ActivationMessage) error) error {
	deliveries, err := p.channel.Consume(p.queue.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("rabbitmq channel closed")
			}
			var msg ActivationMessage
			if err := json.Unmarshal(delivery.Body, &msg); err != nil {
				slog.Error("drop malformed activation message", "error", err)
				_ = delivery.Nack(false, false)
				continue
			}
			if err := handler(ctx, msg); err != nil {
				slog.Error("activation delivery failed", "message_id", msg.ID, "error", err)
				_ = delivery.Nack(false, true)
				continue
			}
			_ = delivery.Ack(false)
		}
	}
}
