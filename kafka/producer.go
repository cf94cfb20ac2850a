// Package kafka publishes crawled pages to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fwojciec/sitecrawl"
	"github.com/segmentio/kafka-go"
)

var _ sitecrawl.PageSink = (*PageProducer)(nil)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// PageProducer implements sitecrawl.PageSink by writing each page as a JSON
// message keyed by its URL.
type PageProducer struct {
	writer messageWriter

	// Now stamps outgoing messages.
	Now func() time.Time
}

// NewPageProducer creates a producer for the given broker and topic.
func NewPageProducer(broker, topic string) *PageProducer {
	return NewPageProducerWithWriter(&kafka.Writer{
		Addr:                   kafka.TCP(broker),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: false,
	})
}

// NewPageProducerWithWriter builds a producer over a custom writer.
func NewPageProducerWithWriter(writer messageWriter) *PageProducer {
	return &PageProducer{writer: writer, Now: time.Now}
}

// Close flushes and shuts down the underlying writer.
func (p *PageProducer) Close() error {
	return p.writer.Close()
}

// SavePage publishes page.
func (p *PageProducer) SavePage(ctx context.Context, page *sitecrawl.Page) error {
	if err := page.Validate(); err != nil {
		return err
	}

	payload, err := json.Marshal(page)
	if err != nil {
		return err
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(page.URL),
		Value: payload,
		Time:  p.Now().UTC(),
	})
}
