package publish

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/tiroq/focusflow/internal/config"
	"github.com/tiroq/focusflow/internal/eventbus"
	"github.com/tiroq/focusflow/internal/log"
)

// redialInterval limits how often a broken AMQP connection is re-dialled.
const redialInterval = 5 * time.Second

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type amqpDialer func(cfg config.AMQPConfig) (amqpChannel, func() error, error)

// AMQP publishes events to a topic exchange with the event type as the
// routing key. A broken connection is re-dialled lazily on the next send.
type AMQP struct {
	cfg  config.AMQPConfig
	dial amqpDialer

	mu        sync.Mutex
	ch        amqpChannel
	closeConn func() error
	lastDial  time.Time
}

// NewAMQP returns a publisher for cfg. Nothing is dialled until the first
// Send or Connect.
func NewAMQP(cfg config.AMQPConfig) *AMQP {
	return &AMQP{cfg: cfg, dial: dialAMQP}
}

func dialAMQP(cfg config.AMQPConfig) (amqpChannel, func() error, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("amqp declare exchange %s: %w", cfg.Exchange, err)
	}
	return ch, conn.Close, nil
}

// Connect dials the broker now.
func (a *AMQP) Connect() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connectLocked()
}

func (a *AMQP) connectLocked() error {
	a.lastDial = time.Now()
	ch, closeConn, err := a.dial(a.cfg)
	if err != nil {
		return err
	}
	a.ch, a.closeConn = ch, closeConn
	log.Info("amqp connected", "exchange", a.cfg.Exchange)
	return nil
}

// Send implements Sender.
func (a *AMQP) Send(ctx context.Context, ev eventbus.Event) error {
	body, err := Encode(ev)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.ch == nil {
		if time.Since(a.lastDial) < redialInterval {
			return ErrNotConnected
		}
		if err := a.connectLocked(); err != nil {
			return err
		}
	}

	err = a.ch.PublishWithContext(ctx, a.cfg.Exchange, string(ev.Type), false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   ev.Timestamp,
		Type:        string(ev.Type),
		Body:        body,
	})
	if err != nil {
		a.resetLocked()
		return fmt.Errorf("amqp publish %s: %w", ev.Type, err)
	}
	return nil
}

func (a *AMQP) resetLocked() {
	if a.ch != nil {
		_ = a.ch.Close()
	}
	if a.closeConn != nil {
		_ = a.closeConn()
	}
	a.ch, a.closeConn = nil, nil
}

// Name implements Sender.
func (a *AMQP) Name() string { return "amqp" }

// Close closes the channel and connection.
func (a *AMQP) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resetLocked()
	return nil
}
