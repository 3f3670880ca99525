package realtime

import (
	"encoding/json"
	"log"
	"sync"
)

// Channel is a single live outbound stream to one connected client session.
// Send must be safe for concurrent use; a failed send means the channel is
// dead and will be dropped from the hub.
type Channel interface {
	Send(data []byte) error
	Close() error
}

// Hub routes push events to every live channel of a user. A user may hold
// several channels at once (multiple devices). Delivery is at-most-once and
// best-effort; users with no channels simply miss the event and catch up via
// the sync endpoint.
type Hub struct {
	mu       sync.RWMutex
	channels map[string]map[Channel]struct{}
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{channels: make(map[string]map[Channel]struct{})}
}

// Register adds a channel to a user's set.
func (h *Hub) Register(userID string, ch Channel) {
	h.mu.Lock()
	if h.channels[userID] == nil {
		h.channels[userID] = make(map[Channel]struct{})
	}
	h.channels[userID][ch] = struct{}{}
	h.mu.Unlock()
	log.Printf("[Hub] registered channel for user %s", userID)
}

// Unregister removes a channel from a user's set and closes it.
func (h *Hub) Unregister(userID string, ch Channel) {
	h.mu.Lock()
	if set := h.channels[userID]; set != nil {
		delete(set, ch)
		if len(set) == 0 {
			delete(h.channels, userID)
		}
	}
	h.mu.Unlock()
	_ = ch.Close()
}

// Publish delivers an event to all of the user's live channels. Channels
// whose send fails are dropped. Publish never returns an error: a push that
// reaches nobody is not a failure of the analysis that produced it.
func (h *Hub) Publish(userID string, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("[Hub] failed to encode event for user %s: %v", userID, err)
		return
	}

	h.mu.RLock()
	targets := make([]Channel, 0, len(h.channels[userID]))
	for ch := range h.channels[userID] {
		targets = append(targets, ch)
	}
	h.mu.RUnlock()

	for _, ch := range targets {
		if err := ch.Send(data); err != nil {
			log.Printf("[Hub] dropping dead channel for user %s: %v", userID, err)
			h.Unregister(userID, ch)
		}
	}
}

// ChannelCount returns the number of live channels for a user.
func (h *Hub) ChannelCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[userID])
}
