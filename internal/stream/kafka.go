package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

const (
	DefaultKafkaTopic       = "notification-email-events"
	defaultKafkaGroupPrefix = "notifyconsole"
	defaultKafkaBuffer      = 64
)

// KafkaTransport reads a topic with a consumer group that is unique to each
// connection and starts at the newest offset, so nothing published while
// disconnected is replayed.
type KafkaTransport struct {
	Brokers     []string
	GroupPrefix string
	MaxWait     time.Duration
	Buffer      int
}

func (t *KafkaTransport) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	brokers := make([]string, 0, len(t.Brokers))
	for _, broker := range t.Brokers {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	if len(brokers) == 0 {
		return nil, fmt.Errorf("%w: kafka transport requires at least one broker", ErrInvalidInput)
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, fmt.Errorf("%w: topic is required", ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := strings.TrimSpace(t.GroupPrefix)
	if prefix == "" {
		prefix = defaultKafkaGroupPrefix
	}
	maxWait := t.MaxWait
	if maxWait <= 0 {
		maxWait = 500 * time.Millisecond
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     prefix + "-" + uuid.NewString(),
		Topic:       topic,
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     maxWait,
	})

	buffer := t.Buffer
	if buffer <= 0 {
		buffer = defaultKafkaBuffer
	}
	readCtx, cancelRead := context.WithCancel(context.Background())
	pipe := newPipeSubscription(buffer, func() error {
		cancelRead()
		return reader.Close()
	})
	go pumpKafka(readCtx, pipe, reader)
	return pipe, nil
}

func pumpKafka(ctx context.Context, pipe *pipeSubscription, reader *kafka.Reader) {
	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			switch {
			case errors.Is(err, context.Canceled), errors.Is(err, io.EOF):
				pipe.finish(nil)
			default:
				pipe.finish(err)
			}
			return
		}
		if !pipe.deliver(Message{Topic: msg.Topic, Body: msg.Value, ReceivedAt: time.Now()}) {
			pipe.finish(nil)
			return
		}
	}
}
