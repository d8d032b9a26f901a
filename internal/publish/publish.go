// Package publish fans connection state out to an AMQP exchange so remote
// actuators (lights, displays) can follow the score without polling.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/ayusman/heartsync/internal/log"
)

// ErrClosed is returned by Publish after Close or after the broker dropped
// the connection.
var ErrClosed = errors.New("publisher closed")

// RoutingKey returns the routing key for a state at the given level.
func RoutingKey(level string) string {
	if level == "" {
		return "state.unknown"
	}
	return "state." + level
}

// Message builds the AMQP message for one state value.
func Message(v any, now time.Time) (amqp.Publishing, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("encode state: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient,
		Body:         body,
		Timestamp:    now,
	}, nil
}

// Publisher owns one AMQP connection and channel.
type Publisher struct {
	exchange string

	mu     sync.Mutex
	conn   *amqp.Connection
	ch     *amqp.Channel
	closed bool
}

// Dial connects to the broker and declares a durable fanout exchange.
func Dial(url, exchange string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	p := &Publisher{exchange: exchange, conn: conn, ch: ch}
	go p.watch(conn.NotifyClose(make(chan *amqp.Error, 1)))

	log.Info("amqp publisher ready", "exchange", exchange)
	return p, nil
}

func (p *Publisher) watch(closed <-chan *amqp.Error) {
	err, ok := <-closed
	if ok && err != nil {
		log.Warn("amqp connection closed", "error", err)
	}
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

// Publish sends v as JSON under the routing key for level.
func (p *Publisher) Publish(ctx context.Context, level string, v any) error {
	msg, err := Message(v, time.Now())
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if err := p.ch.PublishWithContext(ctx, p.exchange, RoutingKey(level), false, false, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", p.exchange, err)
	}
	return nil
}

// Exchange returns the exchange name.
func (p *Publisher) Exchange() string { return p.exchange }

// Close closes the channel and connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	var errs []error
	if err := p.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		errs = append(errs, err)
	}
	if err := p.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
