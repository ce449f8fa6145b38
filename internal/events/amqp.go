package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const dialAttempts = 5

// AMQPPublisher publishes events to a durable topic exchange with routing key
// "restaurant.<type>".
type AMQPPublisher struct {
	url      string
	exchange string
	log      *zap.Logger

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

func NewAMQPPublisher(url, exchange string, log *zap.Logger) (*AMQPPublisher, error) {
	p := &AMQPPublisher{url: url, exchange: exchange, log: log}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *AMQPPublisher) connect() error {
	var err error
	for i := 0; i < dialAttempts; i++ {
		if err = p.dial(); err == nil {
			return nil
		}
		if i < dialAttempts-1 {
			wait := time.Duration(i+1) * 2 * time.Second
			p.log.Warn("rabbitmq connection failed, retrying",
				zap.Duration("wait", wait),
				zap.Error(err),
			)
			time.Sleep(wait)
		}
	}
	return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", dialAttempts, err)
}

func (p *AMQPPublisher) dial() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return err
	}
	ch, err := p.openChannel(conn)
	if err != nil {
		conn.Close()
		return err
	}
	p.conn = conn
	p.channel = ch
	return nil
}

func (p *AMQPPublisher) openChannel(conn *amqp.Connection) (*amqp.Channel, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	err = ch.ExchangeDeclare(
		p.exchange, // name
		"topic",    // type
		true,       // durable
		false,      // auto-deleted
		false,      // internal
		false,      // no-wait
		nil,        // arguments
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", p.exchange, err)
	}
	return ch, nil
}

// ensureChannel redials a dropped connection and reopens a channel the broker
// closed after a channel-level exception. The caller holds p.mu.
func (p *AMQPPublisher) ensureChannel() error {
	if p.conn == nil || p.conn.IsClosed() {
		if err := p.dial(); err != nil {
			return fmt.Errorf("failed to reconnect: %w", err)
		}
		return nil
	}
	if p.channel != nil && !p.channel.IsClosed() {
		return nil
	}
	ch, err := p.openChannel(p.conn)
	if err != nil {
		return fmt.Errorf("failed to reopen channel: %w", err)
	}
	p.log.Warn("rabbitmq channel reopened", zap.String("exchange", p.exchange))
	p.channel = ch
	return nil
}

func RoutingKey(t Type) string {
	return "restaurant." + string(t)
}

func (p *AMQPPublisher) Publish(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensureChannel(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err = p.channel.PublishWithContext(ctx,
		p.exchange,          // exchange
		RoutingKey(ev.Type), // routing key
		false,               // mandatory
		false,               // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    ev.ID.String(),
			Timestamp:    ev.OccurredAt,
			Type:         string(ev.Type),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", ev.Type, err)
	}

	p.log.Debug("event published",
		zap.String("exchange", p.exchange),
		zap.String("routing_key", RoutingKey(ev.Type)),
		zap.Int("size", len(body)),
	)
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
