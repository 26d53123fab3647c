package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/phennig/dms-pipeline/internal/observability/logging"
)

type handlerFake struct {
	err    error
	bodies [][]byte
}

func (f *handlerFake) HandleMessage(_ context.Context, body []byte) error {
	f.bodies = append(f.bodies, body)
	return f.err
}

type acknowledgerFake struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (f *acknowledgerFake) Ack(uint64, bool) error {
	f.acked = true
	return nil
}

func (f *acknowledgerFake) Nack(_ uint64, _ bool, requeue bool) error {
	f.nacked = true
	f.requeue = requeue
	return nil
}

func (f *acknowledgerFake) Reject(_ uint64, requeue bool) error {
	f.nacked = true
	f.requeue = requeue
	return nil
}

func newTestConsumer(handler *handlerFake) *Consumer {
	return NewConsumer("amqp://localhost", "documents", handler, ConsumerOptions{
		Logger: logging.NewJSONLogger("test", "error"),
	})
}

func TestDispatchAcksOnSuccess(t *testing.T) {
	handler := &handlerFake{}
	ack := &acknowledgerFake{}
	c := newTestConsumer(handler)

	c.dispatch(context.Background(), amqp.Delivery{
		Acknowledger: ack,
		Body:         []byte(`{"type":"OcrRequested"}`),
	})

	if !ack.acked {
		t.Fatalf("expected ack for successful handling")
	}
	if ack.nacked {
		t.Fatalf("unexpected nack")
	}
	if len(handler.bodies) != 1 {
		t.Fatalf("expected handler to receive the body once, got %d", len(handler.bodies))
	}
}

func TestDispatchNacksWithoutRequeueOnFailure(t *testing.T) {
	handler := &handlerFake{err: errors.New("poison")}
	ack := &acknowledgerFake{requeue: true}
	c := newTestConsumer(handler)

	c.dispatch(context.Background(), amqp.Delivery{
		Acknowledger: ack,
		Body:         []byte(`{broken`),
	})

	if !ack.nacked {
		t.Fatalf("expected nack for failed handling")
	}
	if ack.requeue {
		t.Fatalf("poison messages must not be requeued")
	}
	if ack.acked {
		t.Fatalf("unexpected ack")
	}
}

func TestDispatchLeavesMessageUnackedOnShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	handler := &handlerFake{err: ctx.Err()}
	ack := &acknowledgerFake{}
	c := newTestConsumer(handler)

	c.dispatch(ctx, amqp.Delivery{
		Acknowledger: ack,
		Body:         []byte(`{"type":"OcrRequested"}`),
	})

	if ack.acked {
		t.Fatalf("an interrupted message must not be acked")
	}
	if ack.nacked {
		t.Fatalf("an interrupted message must stay unacked for broker redelivery, got nack")
	}
}

func TestDispatchLeavesMessageUnackedOnWrappedContextError(t *testing.T) {
	handler := &handlerFake{err: fmt.Errorf("extract text: %w", context.Canceled)}
	ack := &acknowledgerFake{}
	c := newTestConsumer(handler)

	c.dispatch(context.Background(), amqp.Delivery{
		Acknowledger: ack,
		Body:         []byte(`{"type":"OcrRequested"}`),
	})

	if ack.acked || ack.nacked {
		t.Fatalf("a context-cancelled handler error must leave the delivery unacked")
	}
}

func TestSleepCtxStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	if sleepCtx(ctx, time.Minute) {
		t.Fatalf("expected sleep to report cancellation")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("sleep did not return promptly on cancel")
	}
}
