package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/fleetview/internal/core/domain"
)

const (
	// SubjectStateChanged carries every domain.StateChange as JSON.
	SubjectStateChanged = "tracking.state.changed"
	// SubjectPathUpdated carries domain.PathUpdate values from the poller.
	SubjectPathUpdated = "tracking.path.updated"
)

// Publisher implements ports.EventPublisher using core NATS. State changes
// are notifications, not work items, so nothing is persisted.
type Publisher struct {
	conn *nats.Conn
}

// NewPublisher connects to NATS.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := Connect(url)
	if err != nil {
		return nil, err
	}
	return &Publisher{conn: conn}, nil
}

// PublishStateChange broadcasts change on SubjectStateChanged.
func (p *Publisher) PublishStateChange(ctx context.Context, change *domain.StateChange) error {
	data, err := json.Marshal(change)
	if err != nil {
		return err
	}
	return p.conn.Publish(SubjectStateChanged, data)
}

// PublishPathUpdate sends a committed path on SubjectPathUpdated.
func (p *Publisher) PublishPathUpdate(ctx context.Context, update *domain.PathUpdate) error {
	data, err := json.Marshal(update)
	if err != nil {
		return err
	}
	return p.conn.Publish(SubjectPathUpdated, data)
}

// Conn exposes the underlying connection for subscribers sharing it.
func (p *Publisher) Conn() *nats.Conn {
	return p.conn
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// Connect opens a NATS connection that keeps retrying in the background.
func Connect(url string) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name("fleetview"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return conn, nil
}
