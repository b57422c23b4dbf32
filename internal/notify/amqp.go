package notify

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPSender publishes events to a topic exchange, routed by
// "notify.<kind>", for a push or email worker to consume.
type AMQPSender struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

// NewAMQPSender dials url and declares a durable topic exchange.
func NewAMQPSender(url, exchange string) (*AMQPSender, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dialing rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("opening channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declaring exchange: %w", err)
	}
	return &AMQPSender{conn: conn, ch: ch, exchange: exchange}, nil
}

// Send implements Sender.
func (s *AMQPSender) Send(ctx context.Context, e Event) error {
	key, msg, err := publishing(e)
	if err != nil {
		return err
	}
	if err := s.ch.PublishWithContext(ctx, s.exchange, key, false, false, msg); err != nil {
		return fmt.Errorf("publishing %s: %w", key, err)
	}
	return nil
}

// Close closes the channel and connection.
func (s *AMQPSender) Close() error {
	if s.ch != nil {
		_ = s.ch.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func publishing(e Event) (string, amqp.Publishing, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return "", amqp.Publishing{}, fmt.Errorf("encoding %s notification: %w", e.Kind, err)
	}
	return "notify." + e.Kind, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    e.At,
		Body:         body,
	}, nil
}
