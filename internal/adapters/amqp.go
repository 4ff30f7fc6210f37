package adapters

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"givetrack/internal/bootstrap"
)

// AdapterAMQP keeps one connection and one channel to the broker.
// The channel is not safe for concurrent publishing, so Publish serializes.
type AdapterAMQP struct {
	cfg  *bootstrap.Config
	log  *zap.SugaredLogger
	conn *amqp.Connection
	ch   *amqp.Channel
	mu   sync.Mutex
}

func NewAdapterAMQP(cfg *bootstrap.Config, log *zap.SugaredLogger) *AdapterAMQP {
	return &AdapterAMQP{
		cfg: cfg,
		log: log,
	}
}

func (a *AdapterAMQP) Init(ctx context.Context) error {
	conn, err := amqp.Dial(a.cfg.AmqpUrl)
	if err != nil {
		return fmt.Errorf("dial AMQP broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open AMQP channel: %w", err)
	}
	if err := ch.ExchangeDeclare(a.cfg.AmqpExchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("declare exchange %s: %w", a.cfg.AmqpExchange, err)
	}

	a.conn = conn
	a.ch = ch
	a.log.Infow("connected to AMQP broker", "exchange", a.cfg.AmqpExchange)
	return nil
}

func (a *AdapterAMQP) Publish(ctx context.Context, routingKey string, msg amqp.Publishing) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ch == nil {
		return fmt.Errorf("amqp adapter is not initialized")
	}
	return a.ch.PublishWithContext(ctx, a.cfg.AmqpExchange, routingKey, false, false, msg)
}

func (a *AdapterAMQP) Close(ctx context.Context) error {
	if a.ch != nil {
		_ = a.ch.Close()
	}
	if a.conn != nil {
		return a.conn.Close()
	}
	return nil
}
