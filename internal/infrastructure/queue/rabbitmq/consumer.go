package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/phennig/dms-pipeline/internal/core/ports"
)

type state int

const (
	stateDisconnected state = iota
	stateConnected
	stateConsuming
)

func (s state) String() string {
	switch s {
	case stateConnected:
		return "connected"
	case stateConsuming:
		return "consuming"
	default:
		return "disconnected"
	}
}

var errChannelClosed = errors.New("delivery channel closed")

// Consumer owns one broker connection and drains the durable queue with
// prefetch 1: one unacked message at a time, so competing worker instances
// share the backlog fairly and a slow OCR job is its own backpressure.
//
// Lifecycle is a loop over three states: disconnected (dial with fixed
// backoff), connected (declare queue, set QoS, register consumer) and
// consuming. Connection loss drops back to disconnected; the broker
// redelivers whatever was in flight and unacknowledged.
type Consumer struct {
	url         string
	queue       string
	name        string
	handler     ports.MessageHandler
	log         *slog.Logger
	dialBackoff time.Duration

	conn *amqp.Connection
	ch   *amqp.Channel
}

type ConsumerOptions struct {
	Name        string
	DialBackoff time.Duration
	Logger      *slog.Logger
}

func NewConsumer(url, queue string, handler ports.MessageHandler, options ConsumerOptions) *Consumer {
	name := options.Name
	if name == "" {
		name = "dms-ocr-worker"
	}
	backoff := options.DialBackoff
	if backoff <= 0 {
		backoff = 2 * time.Second
	}
	log := options.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Consumer{
		url:         url,
		queue:       queue,
		name:        name,
		handler:     handler,
		log:         log,
		dialBackoff: backoff,
	}
}

// Run blocks until ctx is cancelled. Every unrecoverable connection loss
// restarts the connect/consume cycle.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		if err := c.connect(); err != nil {
			c.log.Warn("broker not ready, retrying",
				"queue", c.queue,
				"backoff", c.dialBackoff.String(),
				"error", err,
			)
			if !sleepCtx(ctx, c.dialBackoff) {
				return nil
			}
			continue
		}

		err := c.consume(ctx)
		c.close()
		if ctx.Err() != nil {
			return nil
		}
		c.log.Warn("connection lost, reconnecting", "state", stateDisconnected.String(), "error", err)
	}
}

func (c *Consumer) connect() error {
	conn, err := amqp.DialConfig(c.url, amqp.Config{
		Heartbeat: 30 * time.Second,
		Properties: amqp.Table{
			"connection_name": c.name,
		},
	})
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if _, err := declareQueue(ch, c.queue); err != nil {
		_ = conn.Close()
		return err
	}

	// Fairness across competing workers: hand this instance one unacked
	// message at a time.
	if err := ch.Qos(1, 0, false); err != nil {
		_ = conn.Close()
		return fmt.Errorf("set qos: %w", err)
	}

	c.conn = conn
	c.ch = ch
	c.log.Info("broker connected", "state", stateConnected.String(), "queue", c.queue)
	return nil
}

func (c *Consumer) consume(ctx context.Context) error {
	deliveries, err := c.ch.Consume(c.queue, c.name, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}
	closed := c.conn.NotifyClose(make(chan *amqp.Error, 1))
	c.log.Info("consumer registered", "state", stateConsuming.String(), "consumer", c.name)

	for {
		select {
		case <-ctx.Done():
			// In-flight work already finished or will be redelivered;
			// just stop accepting deliveries.
			return nil
		case amqpErr := <-closed:
			if amqpErr == nil {
				return errChannelClosed
			}
			return amqpErr
		case delivery, ok := <-deliveries:
			if !ok {
				return errChannelClosed
			}
			c.dispatch(ctx, delivery)
		}
	}
}

// dispatch processes one message synchronously. A nil handler result acks; an
// error nacks without requeue so a poison message is dropped after a single
// attempt instead of looping forever. Shutdown mid-message is neither: the
// delivery stays unacked and the broker redelivers it once the connection
// closes.
func (c *Consumer) dispatch(ctx context.Context, delivery amqp.Delivery) {
	err := c.handler.HandleMessage(ctx, delivery.Body)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			c.log.Info("processing interrupted, leaving message for redelivery",
				"message_id", delivery.MessageId,
			)
			return
		}
		c.log.Error("message processing failed, dropping",
			"message_id", delivery.MessageId,
			"error", err,
		)
		if nackErr := delivery.Nack(false, false); nackErr != nil {
			c.log.Error("nack failed", "message_id", delivery.MessageId, "error", nackErr)
		}
		return
	}
	if ackErr := delivery.Ack(false); ackErr != nil {
		c.log.Error("ack failed", "message_id", delivery.MessageId, "error", ackErr)
	}
}

func (c *Consumer) close() {
	if c.ch != nil {
		_ = c.ch.Close()
		c.ch = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
