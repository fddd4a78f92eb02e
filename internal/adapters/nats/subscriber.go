package natsadapter

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/fleetview/internal/core/domain"
)

// Subscriber delivers state-change events from NATS.
type Subscriber struct {
	conn *nats.Conn
}

// NewSubscriber wraps an existing connection.
func NewSubscriber(conn *nats.Conn) *Subscriber {
	return &Subscriber{conn: conn}
}

// SubscribeStateChanges calls handler for every state change until the
// returned cancel function is called or ctx is done.
func (s *Subscriber) SubscribeStateChanges(ctx context.Context, handler func(change *domain.StateChange)) (func(), error) {
	sub, err := s.conn.Subscribe(SubjectStateChanged, func(msg *nats.Msg) {
		var change domain.StateChange
		if err := json.Unmarshal(msg.Data, &change); err != nil {
			slog.Warn("dropping malformed state change", "error", err)
			return
		}
		handler(&change)
	})
	if err != nil {
		return nil, err
	}

	stop := context.AfterFunc(ctx, func() { _ = sub.Unsubscribe() })
	return func() {
		stop()
		_ = sub.Unsubscribe()
	}, nil
}

// Connected reports whether the connection is currently up.
func (s *Subscriber) Connected() bool {
	return s.conn != nil && s.conn.IsConnected()
}

// SubscribePathUpdates calls handler for every path update until the
// returned cancel function is called or ctx is done.
func (s *Subscriber) SubscribePathUpdates(ctx context.Context, handler func(update *domain.PathUpdate)) (func(), error) {
	sub, err := s.conn.Subscribe(SubjectPathUpdated, func(msg *nats.Msg) {
		var update domain.PathUpdate
		if err := json.Unmarshal(msg.Data, &update); err != nil {
			slog.Warn("dropping malformed path update", "error", err)
			return
		}
		handler(&update)
	})
	if err != nil {
		return nil, err
	}

	stop := context.AfterFunc(ctx, func() { _ = sub.Unsubscribe() })
	return func() {
		stop()
		_ = sub.Unsubscribe()
	}, nil
}
