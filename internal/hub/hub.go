// Package hub holds the subscription registry and the broadcast dispatcher.
// It is the only mutable state shared between connection goroutines.
package hub

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Subscriber is one delivery target. Enqueue must not block: it reports
// false when the outbound queue is full or already closed, which the hub
// treats as a delivery failure. CloseSlow tears the subscriber down after
// such a failure.
type Subscriber interface {
	Enqueue(payload []byte) bool
	CloseSlow()
}

// PeerPublisher forwards a broadcast to other nodes through an external
// pub/sub backbone. Optional; nil means single-node operation.
type PeerPublisher func(ctx context.Context, channelID string, payload []byte) error

type Hub struct {
	mu       sync.RWMutex
	channels map[string]map[Subscriber]struct{}

	peers PeerPublisher
	log   *zap.SugaredLogger
}

func New(log *zap.SugaredLogger) *Hub {
	return &Hub{
		channels: make(map[string]map[Subscriber]struct{}),
		log:      log,
	}
}

// SetPeerPublisher installs the cross-node bridge. Must be called before the
// hub starts taking traffic.
func (h *Hub) SetPeerPublisher(p PeerPublisher) { h.peers = p }

// Join adds s to the channel's subscriber set. Re-joining is a no-op.
func (h *Hub) Join(channelID string, s Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.channels[channelID]
	if !ok {
		set = make(map[Subscriber]struct{})
		h.channels[channelID] = set
	}
	set[s] = struct{}{}
}

// Leave removes s from the channel's subscriber set and prunes the entry
// when it empties. Leaving a channel s is not in is a no-op, so duplicate
// disconnect signals are harmless.
func (h *Hub) Leave(channelID string, s Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.channels[channelID]
	if !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(h.channels, channelID)
	}
}

// Snapshot returns a point-in-time copy of the channel's subscribers. The
// internal set is never handed out.
func (h *Hub) Snapshot(channelID string) []Subscriber {
	h.mu.RLock()
	defer h.mu.RUnlock()
	set := h.channels[channelID]
	out := make([]Subscriber, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	return out
}

// Subscribers reports the current size of a channel's subscriber set.
func (h *Hub) Subscribers(channelID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channelID])
}

// Publish delivers payload to every subscriber in the channel's current
// snapshot, then forwards it to peer nodes when a bridge is installed.
// Delivery happens outside the registry lock. A subscriber that cannot
// accept the payload is removed and closed; the failure never aborts
// delivery to the rest. Returns the number of local deliveries.
func (h *Hub) Publish(ctx context.Context, channelID string, payload []byte) int {
	n := h.PublishLocal(channelID, payload)
	if h.peers != nil {
		if err := h.peers(ctx, channelID, payload); err != nil {
			h.log.Warnw("peer publish failed", "channel", channelID, "err", err)
		}
	}
	return n
}

// PublishLocal is Publish without the peer hop. The pub/sub bridge calls it
// for frames arriving from other nodes.
func (h *Hub) PublishLocal(channelID string, payload []byte) int {
	delivered := 0
	for _, s := range h.Snapshot(channelID) {
		if s.Enqueue(payload) {
			delivered++
			continue
		}
		// Slow or dead consumer: disconnect it rather than silently drop
		// chat frames into a gap it would never notice.
		h.log.Infow("dropping slow subscriber", "channel", channelID)
		h.Leave(channelID, s)
		s.CloseSlow()
	}
	return delivered
}
