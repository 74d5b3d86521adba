package presence

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fathima-sithara/realtime-chat/internal/hub"
)

// frame is the cross-node envelope. Node lets a subscriber drop its own
// publishes so local delivery never happens twice.
type frame struct {
	Node    string          `json:"node"`
	Channel string          `json:"channel"`
	Payload json.RawMessage `json:"payload"`
}

// Bridge fans broadcasts out to sibling nodes over one Redis pub/sub topic
// and feeds remote frames back into the local hub.
type Bridge struct {
	rdb   *redis.Client
	topic string
	node  string
	hub   *hub.Hub
	log   *zap.SugaredLogger
}

func NewBridge(rdb *redis.Client, topic string, h *hub.Hub, log *zap.SugaredLogger) *Bridge {
	return &Bridge{
		rdb:   rdb,
		topic: topic,
		node:  uuid.NewString(),
		hub:   h,
		log:   log,
	}
}

// Publish implements hub.PeerPublisher.
func (b *Bridge) Publish(ctx context.Context, channelID string, payload []byte) error {
	f := frame{Node: b.node, Channel: channelID, Payload: payload}
	raw, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.topic, raw).Err()
}

// Run subscribes to the bridge topic and replays remote frames into the
// local hub until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) {
	pubsub := b.rdb.Subscribe(ctx, b.topic)
	defer pubsub.Close()
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				b.log.Warn("peer subscription closed")
				return
			}
			var f frame
			if err := json.Unmarshal([]byte(msg.Payload), &f); err != nil {
				continue
			}
			if f.Node == b.node {
				continue
			}
			b.hub.PublishLocal(f.Channel, f.Payload)
		}
	}
}
