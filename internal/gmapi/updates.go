package gmapi

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"gm-dapp/internal/hub"
)

// Watcher receives subscriber events from /v1/updates.
type Watcher struct {
	conn   *websocket.Conn
	events chan hub.Event
	done   chan struct{}
	once   sync.Once

	mu  sync.Mutex
	err error
}

// WatchUpdates opens the update stream for the registered identity. The
// first event is always a snapshot of the current subscriber record.
func (c *Client) WatchUpdates(ctx context.Context) (*Watcher, error) {
	token := c.Token()
	if token == "" {
		return nil, errors.New("watch updates: not registered")
	}

	u := *c.baseURL
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/v1/updates"
	u.RawQuery = url.Values{"token": []string{token}}.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: c.config.Timeout}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("watch updates: %w", err)
	}

	w := &Watcher{
		conn:   conn,
		events: make(chan hub.Event, 16),
		done:   make(chan struct{}),
	}
	go w.readLoop()
	go func() {
		select {
		case <-ctx.Done():
			_ = w.Close()
		case <-w.done:
		}
	}()
	return w, nil
}

// Events is closed when the stream ends; Err reports why.
func (w *Watcher) Events() <-chan hub.Event {
	return w.events
}

func (w *Watcher) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Ping asks the server for a pong frame.
func (w *Watcher) Ping() error {
	_ = w.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.conn.WriteJSON(map[string]string{"type": "ping"})
}

func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.conn.Close()
	})
	return err
}

func (w *Watcher) readLoop() {
	defer close(w.events)
	for {
		var ev hub.Event
		if err := w.conn.ReadJSON(&ev); err != nil {
			select {
			case <-w.done:
			default:
				w.mu.Lock()
				w.err = err
				w.mu.Unlock()
			}
			return
		}
		select {
		case w.events <- ev:
		case <-w.done:
			return
		}
	}
}
