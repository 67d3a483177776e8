package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Message is a change notification pushed to connected clients.
type Message struct {
	Type   string         `json:"type"`
	Entity string         `json:"entity"`
	Action string         `json:"action"`
	ID     int64          `json:"id,omitempty"`
	Extra  map[string]any `json:"extra,omitempty"`
	// MemberID, when set, limits delivery to that member's subscribers and
	// to family-wide subscribers.
	MemberID int64 `json:"member_id,omitempty"`
}

// NewMessage creates a family-wide Message with the Type field derived from
// entity and action.
func NewMessage(entity, action string, id int64, extra map[string]any) Message {
	return Message{
		Type:   fmt.Sprintf("%s_%s", entity, action),
		Entity: entity,
		Action: action,
		ID:     id,
		Extra:  extra,
	}
}

// For targets the message at one member.
func (m Message) For(memberID int64) Message {
	m.MemberID = memberID
	return m
}

// maxDrops is how many messages in a row a client may miss before the hub
// disconnects it. The client reconnects and refetches.
const maxDrops = 8

// Hub fans messages out to connected clients, indexed by the member each
// subscription is scoped to. Index 0 holds family-wide subscribers.
type Hub struct {
	mu       sync.RWMutex
	byMember map[int64]map[*Client]struct{}
	count    int
	logger   *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		byMember: make(map[int64]map[*Client]struct{}),
		logger:   logger,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	set, ok := h.byMember[c.memberID]
	if !ok {
		set = make(map[*Client]struct{})
		h.byMember[c.memberID] = set
	}
	set[c] = struct{}{}
	h.count++
	h.mu.Unlock()
	h.logger.Debug("client connected", "member_id", c.memberID)
}

// Unregister removes c and closes its send channel. Repeat calls are no-ops.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(c)
}

func (h *Hub) remove(c *Client) {
	set := h.byMember[c.memberID]
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.byMember, c.memberID)
	}
	h.count--
	close(c.send)
}

// Broadcast delivers msg to family-wide subscribers and, for a targeted
// message, to that member's subscribers; an untargeted message goes to
// everyone. A client whose buffer is full misses the message, and one that
// misses maxDrops in a row is disconnected.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	var slow []*Client
	h.mu.RLock()
	for id, set := range h.byMember {
		if msg.MemberID != 0 && id != 0 && id != msg.MemberID {
			continue
		}
		for c := range set {
			select {
			case c.send <- data:
				c.drops.Store(0)
			default:
				if c.drops.Add(1) >= maxDrops {
					slow = append(slow, c)
				}
			}
		}
	}
	h.mu.RUnlock()

	if len(slow) == 0 {
		return
	}
	h.mu.Lock()
	for _, c := range slow {
		h.logger.Warn("disconnecting slow client", "member_id", c.memberID, "type", msg.Type)
		h.remove(c)
	}
	h.mu.Unlock()
}

// CloseAll disconnects every client.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, set := range h.byMember {
		for c := range set {
			h.remove(c)
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}
