// Package broker carries the best-effort thumbnail-warm notification
// described in SPEC_FULL.md §4.8: after a committed ApplyOp invalidates the
// thumbnail cache, the Revision Service publishes {imageId} so a worker can
// eagerly re-derive the thumbnail. If this message is lost, the thumb bucket
// keeps the thumbnail derived earlier and a cache miss serves that copy; it
// is never on the correctness path (§4.8, §9).
//
// Grounded directly on segmentio/kafka-go (the teacher's underlying Kafka
// client, normally reached through wb-go/wbf/kafka, which this module
// cannot import — see DESIGN.md).
package broker

import (
	"context"
	"fmt"

	kafka "github.com/segmentio/kafka-go"

	"image-processor/internal/domain"
	"image-processor/internal/retry"
)

const ThumbnailWarmTopic = "thumbnail-warm"

type Producer struct {
	writer  *kafka.Writer
	retries retry.Strategy
}

func NewProducer(brokers []string, retries retry.Strategy) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    ThumbnailWarmTopic,
			Balancer: &kafka.LeastBytes{},
		},
		retries: retries,
	}
}

// NotifyThumbnailWarm is fire-and-forget: callers log and swallow its
// error, never block apply_op's response on it.
func (p *Producer) NotifyThumbnailWarm(ctx context.Context, imageID string) error {
	err := p.retries.Do(ctx, func() error {
		return p.writer.WriteMessages(ctx, kafka.Message{
			Key:   []byte(imageID),
			Value: []byte(imageID),
		})
	})
	if err != nil {
		return fmt.Errorf("%w: notify thumbnail warm for %s: %v", domain.ErrCache, imageID, err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

type Consumer struct {
	reader *kafka.Reader
}

func NewConsumer(brokers []string, groupID string) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: brokers,
			Topic:   ThumbnailWarmTopic,
			GroupID: groupID,
		}),
	}
}

func (c *Consumer) FetchMessage(ctx context.Context) (kafka.Message, error) {
	return c.reader.FetchMessage(ctx)
}

func (c *Consumer) CommitMessage(ctx context.Context, msg kafka.Message) error {
	return c.reader.CommitMessages(ctx, msg)
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
