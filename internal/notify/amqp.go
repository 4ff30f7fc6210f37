package notify

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Broker is the slice of the AMQP adapter the publisher needs.
type Broker interface {
	Publish(ctx context.Context, routingKey string, msg amqp.Publishing) error
}

// AMQPPublisher sends every event to the exchange with its type as the
// routing key.
type AMQPPublisher struct {
	broker Broker
}

func NewAMQPPublisher(broker Broker) *AMQPPublisher {
	return &AMQPPublisher{broker: broker}
}

func (p *AMQPPublisher) Publish(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", e.Type, err)
	}
	return p.broker.Publish(ctx, e.Type, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    e.At,
		Type:         e.Type,
		Body:         body,
	})
}
