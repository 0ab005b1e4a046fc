// Package hub fans subscriber-record events out to the websocket connections
// of the affected account.
package hub

import (
	"encoding/json"
	"sync"

	"gm-dapp/internal/metrics"
	"gm-dapp/internal/model"
)

const EventTypeSubscriber = "subscriber"

// Event is the JSON frame sent on /v1/updates.
type Event struct {
	Type       string            `json:"type"`
	Event      string            `json:"event"`
	Account    string            `json:"account"`
	Subscriber *model.Subscriber `json:"subscriber,omitempty"`
}

type Writer interface {
	Write(message []byte) error
	Close() error
}

type Connection struct {
	Account string
	Writer  Writer
}

type Hub struct {
	mu          sync.RWMutex
	connections map[string]map[*Connection]struct{}
}

func New() *Hub {
	return &Hub{connections: make(map[string]map[*Connection]struct{})}
}

func (h *Hub) Register(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.connections[conn.Account] == nil {
		h.connections[conn.Account] = make(map[*Connection]struct{})
	}
	if _, ok := h.connections[conn.Account][conn]; !ok {
		h.connections[conn.Account][conn] = struct{}{}
		metrics.UpdateConnections.Inc()
	}
}

func (h *Hub) Unregister(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.connections[conn.Account]
	if set == nil {
		return
	}
	if _, ok := set[conn]; !ok {
		return
	}
	delete(set, conn)
	metrics.UpdateConnections.Dec()
	if len(set) == 0 {
		delete(h.connections, conn.Account)
	}
}

// Count returns the number of live connections for account.
func (h *Hub) Count(account string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[account])
}

// Publish encodes ev and broadcasts it to ev.Account.
func (h *Hub) Publish(ev Event) error {
	if ev.Type == "" {
		ev.Type = EventTypeSubscriber
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	h.Broadcast(ev.Account, data)
	return nil
}

func (h *Hub) Broadcast(account string, message []byte) {
	h.mu.RLock()
	set := h.connections[account]
	conns := make([]*Connection, 0, len(set))
	for c := range set {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	var failed []*Connection
	for _, c := range conns {
		if err := c.Writer.Write(message); err != nil {
			failed = append(failed, c)
		}
	}
	for _, c := range failed {
		_ = c.Writer.Close()
		h.Unregister(c)
	}
}
