// Package events publishes order status changes to Kafka for the
// reservation subsystem.
package events

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/xenking/respa-payments/internal/domain/order"
)

const (
	// EventOrderStatusChanged is the event type of status change envelopes.
	EventOrderStatusChanged = "OrderStatusChanged"
	eventVersion            = 1
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var _ order.Publisher = (*Publisher)(nil)

// Publisher writes order status changes as JSON envelopes keyed by order
// number, so all events of one order land in the same partition.
type Publisher struct {
	w        messageWriter
	producer string
	newID    func() string
}

// Config describes the Kafka destination.
type Config struct {
	Brokers      []string      `usage:"Kafka bootstrap brokers; empty disables event publishing"`
	Topic        string        `default:"respa.orders.status" usage:"Topic for order status change events"`
	WriteTimeout time.Duration `default:"5s" usage:"Timeout for a single publish"`
}

// NewPublisher returns a Publisher writing to cfg.Topic.
func NewPublisher(cfg Config, producer string) *Publisher {
	return &Publisher{
		w: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			WriteTimeout: cfg.WriteTimeout,
		},
		producer: producer,
		newID:    uuid.NewString,
	}
}

// PublishStatusChange writes c synchronously.
func (p *Publisher) PublishStatusChange(ctx context.Context, c order.StatusChange) error {
	msg := kafka.Message{
		Key:   []byte(c.OrderNumber),
		Value: p.envelope(c),
		Time:  c.At,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventOrderStatusChanged)},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return errors.Wrap(err, "write status change")
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.w.Close()
}

func (p *Publisher) envelope(c order.StatusChange) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("event_id")
	e.Str(p.newID())
	e.FieldStart("event_type")
	e.Str(EventOrderStatusChanged)
	e.FieldStart("event_version")
	e.Int(eventVersion)
	e.FieldStart("occurred_at")
	e.Str(c.At.UTC().Format(time.RFC3339Nano))
	e.FieldStart("producer")
	e.Str(p.producer)
	e.FieldStart("correlation_id")
	e.Str(c.OrderNumber)
	e.FieldStart("payload")
	e.ObjStart()
	e.FieldStart("order_number")
	e.Str(c.OrderNumber)
	e.FieldStart("reservation_id")
	e.Str(c.ReservationID)
	e.FieldStart("from")
	e.Str(string(c.From))
	e.FieldStart("to")
	e.Str(string(c.To))
	e.ObjEnd()
	e.ObjEnd()
	return e.Bytes()
}
