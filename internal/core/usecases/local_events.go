package usecases

import (
	"context"
	"log/slog"
	"sync"

	"github.com/samirrijal/fleetview/internal/core/domain"
	"github.com/samirrijal/fleetview/internal/pkg/metrics"
)

// DefaultEventBuffer is how many changes a subscriber may lag behind before
// further changes are dropped for it.
const DefaultEventBuffer = 64

// LocalEvents fans state changes out to in-process subscribers. It serves
// the WebSocket relay when NATS is not configured.
//
// Each subscriber runs on its own goroutine behind a bounded queue, so
// PublishStateChange never waits on a handler.
type LocalEvents struct {
	mu     sync.RWMutex
	next   int
	buffer int
	subs   map[int]*localSub
}

type localSub struct {
	ch   chan *domain.StateChange
	done chan struct{}
	once sync.Once
}

func (s *localSub) stop() {
	s.once.Do(func() { close(s.done) })
}

// NewLocalEvents creates an empty hub with DefaultEventBuffer per subscriber.
func NewLocalEvents() *LocalEvents {
	return NewLocalEventsWithBuffer(DefaultEventBuffer)
}

// NewLocalEventsWithBuffer creates an empty hub with the given per-subscriber
// queue length.
func NewLocalEventsWithBuffer(buffer int) *LocalEvents {
	if buffer < 1 {
		buffer = 1
	}
	return &LocalEvents{buffer: buffer, subs: make(map[int]*localSub)}
}

// PublishStateChange queues a copy of change for every subscriber. A
// subscriber whose queue is full misses this change.
func (e *LocalEvents) PublishStateChange(_ context.Context, change *domain.StateChange) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for id, sub := range e.subs {
		c := *change
		c.Fields = append([]string(nil), change.Fields...)
		select {
		case sub.ch <- &c:
		default:
			metrics.DroppedEvents.WithLabelValues("local").Inc()
			slog.Warn("subscriber lagging, dropping state change", "subscriber", id, "version", change.Version)
		}
	}
	return nil
}

// SubscribeStateChanges registers handler until the returned func is called
// or ctx is done. Changes reach handler in publish order.
func (e *LocalEvents) SubscribeStateChanges(ctx context.Context, handler func(*domain.StateChange)) (func(), error) {
	sub := &localSub{
		ch:   make(chan *domain.StateChange, e.buffer),
		done: make(chan struct{}),
	}

	e.mu.Lock()
	id := e.next
	e.next++
	e.subs[id] = sub
	e.mu.Unlock()

	go func() {
		for {
			select {
			case c := <-sub.ch:
				handler(c)
			case <-sub.done:
				return
			}
		}
	}()

	remove := func() {
		e.mu.Lock()
		delete(e.subs, id)
		e.mu.Unlock()
		sub.stop()
	}
	stop := context.AfterFunc(ctx, remove)
	return func() {
		stop()
		remove()
	}, nil
}

// Subscribers reports how many handlers are registered.
func (e *LocalEvents) Subscribers() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.subs)
}
