// Package net exposes the simulation to renderer clients: a websocket hub
// broadcasting tick-stamped state, and a small HTTP surface for health,
// snapshots, and keyframe resync. Clients only ever receive value snapshots;
// the registry and grid stay owned by the simulation loop.
package net

import (
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"emberfall/server/internal/journal"
	"emberfall/server/internal/sim"
	"emberfall/server/internal/telemetry"
)

// StateMessage is the per-tick broadcast payload.
type StateMessage struct {
	Type        string          `json:"type" msgpack:"type"`
	Tick        uint64          `json:"tick" msgpack:"tick"`
	Snapshot    sim.Snapshot    `json:"snapshot" msgpack:"snapshot"`
	Patches     []journal.Patch `json:"patches,omitempty" msgpack:"patches"`
	KeyframeSeq uint64          `json:"keyframeSeq,omitempty" msgpack:"keyframeSeq"`
}

// Hub owns the set of subscribed renderer connections.
type Hub struct {
	mu          sync.Mutex
	subscribers map[uint64]*subscriber
	nextID      atomic.Uint64
	logger      telemetry.Logger
}

type subscriber struct {
	id   uint64
	conn *websocket.Conn
	mu   sync.Mutex
}

// NewHub creates an empty hub.
func NewHub(logger telemetry.Logger) *Hub {
	return &Hub{
		subscribers: make(map[uint64]*subscriber),
		logger:      logger,
	}
}

// Subscribe registers a connection and returns its subscriber id.
func (h *Hub) Subscribe(conn *websocket.Conn) uint64 {
	if h == nil || conn == nil {
		return 0
	}
	id := h.nextID.Add(1)
	sub := &subscriber{id: id, conn: conn}
	h.mu.Lock()
	h.subscribers[id] = sub
	h.mu.Unlock()
	return id
}

// Unsubscribe removes and closes a connection.
func (h *Hub) Unsubscribe(id uint64) {
	if h == nil {
		return
	}
	h.mu.Lock()
	sub, ok := h.subscribers[id]
	if ok {
		delete(h.subscribers, id)
	}
	h.mu.Unlock()
	if ok {
		sub.conn.Close()
	}
}

// SubscriberCount reports active connections.
func (h *Hub) SubscriberCount() int {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// BroadcastState encodes the message once and fans it out. Connections that
// fail to write are dropped.
func (h *Hub) BroadcastState(msg StateMessage) {
	if h == nil {
		return
	}
	if msg.Type == "" {
		msg.Type = "state"
	}
	data, err := msgpack.Marshal(msg)
	if err != nil {
		if h.logger != nil {
			h.logger.Printf("[hub] state encode failed: %v", err)
		}
		return
	}

	h.mu.Lock()
	subs := make([]*subscriber, 0, len(h.subscribers))
	for _, sub := range h.subscribers {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		sub.mu.Lock()
		err := sub.conn.WriteMessage(websocket.BinaryMessage, data)
		sub.mu.Unlock()
		if err != nil {
			if h.logger != nil {
				h.logger.Printf("[hub] dropping subscriber %d: %v", sub.id, err)
			}
			h.Unsubscribe(sub.id)
		}
	}
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	if h == nil {
		return
	}
	h.mu.Lock()
	subs := h.subscribers
	h.subscribers = make(map[uint64]*subscriber)
	h.mu.Unlock()
	for _, sub := range subs {
		sub.conn.Close()
	}
}
