// Package kafka publishes message_sent events for downstream consumers
// (notifications, search indexing). Publishing is best effort: failures are
// logged by callers and never gate delivery to connected clients.
package kafka

import (
	"context"
	"encoding/json"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/fathima-sithara/realtime-chat/internal/store"
)

type Producer struct {
	writer *kafkago.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Producer{writer: w}
}

// MessageSent publishes a persisted message keyed by its channel so
// consumers see per-channel ordering.
func (p *Producer) MessageSent(ctx context.Context, channelID string, msg *store.Message) error {
	payload := map[string]any{
		"message_id": msg.ID,
		"channel":    channelID,
		"username":   msg.Username,
		"content":    msg.Body,
		"created_at": msg.Timestamp.UTC().Format(time.RFC3339),
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(channelID),
		Value: b,
		Time:  msg.Timestamp,
	})
}

func (p *Producer) Close() error { return p.writer.Close() }
