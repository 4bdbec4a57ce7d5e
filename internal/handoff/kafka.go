package handoff

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// Kafka publishes one message per cluster, keyed by cluster ID so repeated
// runs over the same window land on the same partition.
type Kafka struct {
	w      *kafka.Writer
	logger zerolog.Logger
}

// NewKafka creates a writer for topic. No connection is made until the
// first Send.
func NewKafka(brokers []string, topic string, logger zerolog.Logger) (*Kafka, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, fmt.Errorf("kafka sink: brokers and topic required")
	}
	return &Kafka{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			MaxAttempts:  3,
			RequiredAcks: kafka.RequireAll,
		},
		logger: logger,
	}, nil
}

func (s *Kafka) Send(ctx context.Context, b *Batch) error {
	msgs, err := kafkaMessages(b, time.Now().UTC())
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}
	if err := s.w.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d messages to %s: %w", len(msgs), s.w.Topic, err)
	}
	s.logger.Debug().
		Str("topic", b.Scope.Topic).
		Str("run_id", b.RunID).
		Int("clusters", len(msgs)).
		Msg("clusters published")
	return nil
}

func (s *Kafka) Close() error { return s.w.Close() }

func kafkaMessages(b *Batch, now time.Time) ([]kafka.Message, error) {
	var out []kafka.Message
	for _, msg := range b.Messages() {
		value, err := json.Marshal(msg)
		if err != nil {
			return nil, fmt.Errorf("encode cluster %s: %w", msg.ClusterID, err)
		}
		out = append(out, kafka.Message{
			Key:   []byte(msg.ClusterID),
			Value: value,
			Headers: []kafka.Header{
				{Key: "run_id", Value: []byte(msg.RunID)},
				{Key: "topic", Value: []byte(msg.Topic)},
			},
			Time: now,
		})
	}
	return out, nil
}
