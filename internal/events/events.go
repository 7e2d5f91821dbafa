// Package events publishes order lifecycle events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"

	"github.com/xenking/mercado/internal/domain/order"
)

const (
	// publishTimeout bounds the broker round trip inside an order request. It
	// stays well under the storefront's upstream timeout.
	publishTimeout = time.Second
	// batchTimeout caps how long a lone message waits for a batch to fill.
	batchTimeout = 10 * time.Millisecond
)

var (
	_ order.Publisher = (*KafkaPublisher)(nil)
	_ order.Publisher = Nop{}
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes order events to one topic, keyed by order id so that
// events of one order stay ordered within a partition.
type KafkaPublisher struct {
	writer  messageWriter
	timeout time.Duration
}

// NewKafkaPublisher creates a publisher writing to topic on brokers.
func NewKafkaPublisher(topic string, brokers ...string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           batchTimeout,
		WriteTimeout:           publishTimeout,
	}
	return &KafkaPublisher{writer: w, timeout: publishTimeout}
}

// Publish writes e. It blocks until the broker acknowledges or the publish
// timeout elapses.
func (p *KafkaPublisher) Publish(ctx context.Context, e order.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(e.OrderID, 10)),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return errors.Wrap(err, "write message")
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Nop discards events. It is used when no brokers are configured.
type Nop struct{}

func (Nop) Publish(context.Context, order.Event) error { return nil }
