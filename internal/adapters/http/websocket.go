package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/fleetview/internal/core/domain"
	"github.com/samirrijal/fleetview/internal/pkg/metrics"
)

// wsMessage is sent by clients to change which fields they follow.
type wsMessage struct {
	Action string   `json:"action"` // "subscribe" | "unsubscribe" | "snapshot"
	Fields []string `json:"fields"` // empty = all fields
}

// wsEvent is pushed to clients for every relevant state change.
type wsEvent struct {
	Type    string    `json:"type"`
	Fields  []string  `json:"fields"`
	Version uint64    `json:"version"`
	At      time.Time `json:"at"`
}

// fieldFilter tracks the fields a client follows. An empty set follows all.
type fieldFilter struct {
	mu     sync.Mutex
	fields map[string]bool
}

func newFieldFilter(csv string) *fieldFilter {
	f := &fieldFilter{fields: make(map[string]bool)}
	for _, name := range strings.Split(csv, ",") {
		if name = strings.TrimSpace(name); name != "" {
			f.fields[name] = true
		}
	}
	return f
}

func (f *fieldFilter) add(names []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(names) == 0 {
		clear(f.fields)
		return
	}
	for _, n := range names {
		f.fields[n] = true
	}
}

func (f *fieldFilter) remove(names []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range names {
		delete(f.fields, n)
	}
}

// match returns the changed fields the client follows.
func (f *fieldFilter) match(changed []string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.fields) == 0 {
		return changed
	}
	var out []string
	for _, n := range changed {
		if f.fields[n] {
			out = append(out, n)
		}
	}
	return out
}

func unknownFields(names []string) []string {
	var bad []string
	for _, n := range names {
		if _, ok := fieldBindings[n]; !ok {
			bad = append(bad, n)
		}
	}
	return bad
}

// outbox queues frames for one client. push never blocks; when the queue
// is full the client is marked as lagging.
type outbox struct {
	frames chan []byte
	lagged chan struct{}
	once   sync.Once
}

func newOutbox(size int) *outbox {
	return &outbox{frames: make(chan []byte, size), lagged: make(chan struct{})}
}

func (o *outbox) push(data []byte) bool {
	select {
	case o.frames <- data:
		return true
	default:
		o.once.Do(func() { close(o.lagged) })
		return false
	}
}

const (
	wsOutboxSize   = 64
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// WebSocketHandler returns a handler that relays state-change events to
// connected clients. Clients may pass ?fields=path,route to follow a subset
// and later send {"action":"subscribe","fields":[...]}, "unsubscribe", or
// "snapshot" to receive the current state.
//
// All frames go through a bounded outbox drained by a single writer. A
// client that falls wsOutboxSize frames behind is disconnected and is
// expected to reconnect and request a snapshot.
func WebSocketHandler(deps *Dependencies) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()

		remoteAddr := c.RemoteAddr().String()
		slog.Info("ws client connected", "remote", remoteAddr)

		write := func(messageType int, data []byte) error {
			_ = c.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			return c.WriteMessage(messageType, data)
		}

		if deps.Events == nil {
			data, _ := json.Marshal(map[string]string{"error": "live updates are not enabled"})
			_ = write(websocket.TextMessage, data)
			return
		}

		out := newOutbox(wsOutboxSize)
		send := func(v any) {
			data, err := json.Marshal(v)
			if err != nil {
				return
			}
			out.push(data)
		}

		filter := newFieldFilter(c.Query("fields"))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		unsubscribe, err := deps.Events.SubscribeStateChanges(ctx, func(change *domain.StateChange) {
			fields := filter.match(change.Fields)
			if len(fields) == 0 {
				return
			}
			send(wsEvent{Type: "state.changed", Fields: fields, Version: change.Version, At: change.At})
		})
		if err != nil {
			slog.Warn("ws subscribe failed", "error", err)
			data, _ := json.Marshal(map[string]string{"error": "subscribe failed"})
			_ = write(websocket.TextMessage, data)
			return
		}
		defer unsubscribe()

		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			// Unblocks the read loop below once the writer gives up.
			defer func() { _ = c.SetReadDeadline(time.Now()) }()

			ticker := time.NewTicker(wsPingInterval)
			defer ticker.Stop()
			for {
				select {
				case data := <-out.frames:
					if err := write(websocket.TextMessage, data); err != nil {
						slog.Debug("ws write failed", "remote", remoteAddr, "error", err)
						return
					}
				case <-ticker.C:
					if err := write(websocket.PingMessage, nil); err != nil {
						return
					}
				case <-out.lagged:
					metrics.DroppedEvents.WithLabelValues("ws").Inc()
					slog.Warn("ws client too slow, disconnecting", "remote", remoteAddr)
					_ = write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "client too slow"))
					return
				case <-ctx.Done():
					return
				}
			}
		}()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				break
			}

			var m wsMessage
			if err := json.Unmarshal(msg, &m); err != nil {
				send(map[string]string{"error": "invalid JSON"})
				continue
			}
			if bad := unknownFields(m.Fields); len(bad) > 0 {
				send(map[string]any{"error": "unknown fields", "fields": bad})
				continue
			}

			switch m.Action {
			case "subscribe":
				filter.add(m.Fields)
				send(map[string]any{"status": "subscribed", "fields": m.Fields})
			case "unsubscribe":
				filter.remove(m.Fields)
				send(map[string]any{"status": "unsubscribed", "fields": m.Fields})
			case "snapshot":
				s := deps.store()
				send(map[string]any{"type": "state", "version": s.Version(), "state": s.State()})
			default:
				send(map[string]string{"error": "unknown action: " + m.Action})
			}
		}

		cancel()
		<-writerDone
		slog.Info("ws client disconnected", "remote", remoteAddr)
	}
}
