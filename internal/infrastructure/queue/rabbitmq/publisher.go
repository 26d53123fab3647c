package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/phennig/dms-pipeline/internal/core/domain"
	"github.com/phennig/dms-pipeline/internal/infrastructure/resilience"
)

// Publisher writes pipeline events to the shared durable queue. Messages are
// persistent JSON with a type discriminator; the queue is declared on every
// publish so publisher and consumer can start in any order.
type Publisher struct {
	conn     *amqp.Connection
	queue    string
	executor *resilience.Executor
}

type PublisherOptions struct {
	ClientName         string
	ResilienceExecutor *resilience.Executor
}

func NewPublisher(url, queue string, options PublisherOptions) (*Publisher, error) {
	name := options.ClientName
	if name == "" {
		name = "dms-publisher"
	}
	conn, err := amqp.DialConfig(url, amqp.Config{
		Heartbeat: 30 * time.Second,
		Properties: amqp.Table{
			"connection_name": name,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}
	return &Publisher{
		conn:     conn,
		queue:    queue,
		executor: options.ResilienceExecutor,
	}, nil
}

func (p *Publisher) Close() {
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

func (p *Publisher) PublishDocumentCreated(ctx context.Context, event domain.DocumentCreated) error {
	return p.publish(ctx, event.ID, event)
}

func (p *Publisher) PublishOcrRequested(ctx context.Context, event domain.OcrRequested) error {
	return p.publish(ctx, event.DocumentID, event)
}

func (p *Publisher) publish(ctx context.Context, messageID string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	call := func(callCtx context.Context) error {
		ch, err := p.conn.Channel()
		if err != nil {
			return fmt.Errorf("open channel: %w", err)
		}
		defer ch.Close()

		if _, err := declareQueue(ch, p.queue); err != nil {
			return err
		}

		err = ch.PublishWithContext(callCtx, "", p.queue, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    messageID,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		})
		if err != nil {
			return fmt.Errorf("publish to %s: %w", p.queue, err)
		}
		return nil
	}

	if p.executor != nil {
		err = p.executor.Execute(ctx, "queue.publish", call, classifyAMQPError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

func declareQueue(ch *amqp.Channel, name string) (amqp.Queue, error) {
	q, err := ch.QueueDeclare(name, true, false, false, false, nil)
	if err != nil {
		return amqp.Queue{}, fmt.Errorf("declare queue %s: %w", name, err)
	}
	return q, nil
}
