package chat

import (
	"sync"

	"github.com/google/uuid"
)

// Client is one live connection joined to a pair channel. Send is
// buffered; a client that cannot drain it in time is dropped from the
// channel rather than allowed to stall the sender.
type Client struct {
	UserID uuid.UUID
	Send   chan Event

	// replayed holds message ids already delivered through history
	// replay. A message persisted between hub registration and the
	// history snapshot sits in Send as a live copy too; the write loop
	// consumes this set to drop that duplicate. Populated once before
	// the write loop starts, then owned by it.
	replayed map[uuid.UUID]struct{}
}

func NewClient(userID uuid.UUID) *Client {
	return &Client{UserID: userID, Send: make(chan Event, 64)}
}

func (c *Client) markReplayed(events []Event) {
	if len(events) == 0 {
		return
	}
	c.replayed = make(map[uuid.UUID]struct{}, len(events))
	for _, ev := range events {
		c.replayed[ev.MessageID] = struct{}{}
	}
}

// dropReplayed reports whether the event was already sent during
// history replay, consuming the id so it is skipped at most once.
func (c *Client) dropReplayed(id uuid.UUID) bool {
	if _, ok := c.replayed[id]; !ok {
		return false
	}
	delete(c.replayed, id)
	return true
}

// Hub maps canonical pair ids to the set of live connections joined to
// that conversation. Entries are created lazily on first join and
// removed when the last connection leaves. All operations are
// thread-safe via sync.RWMutex.
type Hub struct {
	mu       sync.RWMutex
	channels map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{channels: make(map[string]map[*Client]struct{})}
}

func (h *Hub) Register(pairID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.channels[pairID] == nil {
		h.channels[pairID] = make(map[*Client]struct{})
	}
	h.channels[pairID][client] = struct{}{}
}

// Unregister removes the client and closes its Send channel. Safe to
// call for a client that was already dropped.
func (h *Hub) Unregister(pairID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(pairID, client)
}

func (h *Hub) remove(pairID string, client *Client) {
	clients, ok := h.channels[pairID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.channels, pairID)
	}
	close(client.Send)
}

// Broadcast delivers the event to every connection joined to the pair,
// including the sender's own other connections. Clients whose buffers
// are full are dropped from the channel.
func (h *Hub) Broadcast(pairID string, ev Event) {
	h.mu.RLock()
	var stalled []*Client
	for client := range h.channels[pairID] {
		select {
		case client.Send <- ev:
		default:
			stalled = append(stalled, client)
		}
	}
	h.mu.RUnlock()

	if len(stalled) == 0 {
		return
	}
	h.mu.Lock()
	for _, client := range stalled {
		h.remove(pairID, client)
	}
	h.mu.Unlock()
}

// ChannelSize reports the live connection count for a pair.
func (h *Hub) ChannelSize(pairID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[pairID])
}
