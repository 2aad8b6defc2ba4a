package relay

import (
	"context"
	"sync"

	"github.com/nbd-wtf/go-nostr"
)

// Memory is a Transport that keeps events in memory. It behaves like a
// single well-behaved relay and is meant for tests and offline use.
type Memory struct {
	mu         sync.Mutex
	events     []*nostr.Event
	fetchErr   error
	publishErr error
}

func NewMemory(events ...*nostr.Event) *Memory {
	m := &Memory{}
	m.Add(events...)
	return m
}

// Add stores events without going through Publish.
func (m *Memory) Add(events ...*nostr.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, event := range events {
		copied := *event
		m.events = append(m.events, &copied)
	}
}

func (m *Memory) FetchEvents(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}

	events := make([]*nostr.Event, 0)
	for _, event := range m.events {
		if filter.Matches(event) {
			copied := *event
			events = append(events, &copied)
		}
	}
	return events, nil
}

func (m *Memory) Publish(ctx context.Context, event nostr.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	for _, existing := range m.events {
		if existing.ID == event.ID {
			return nil
		}
	}
	m.events = append(m.events, &event)
	return nil
}

// Events returns every stored event in publish order.
func (m *Memory) Events() []*nostr.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	events := make([]*nostr.Event, len(m.events))
	for i, event := range m.events {
		copied := *event
		events[i] = &copied
	}
	return events
}

// EventsOfKind is Events filtered by kind.
func (m *Memory) EventsOfKind(kind int) []*nostr.Event {
	events := make([]*nostr.Event, 0)
	for _, event := range m.Events() {
		if event.Kind == kind {
			events = append(events, event)
		}
	}
	return events
}

func (m *Memory) SetFetchError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchErr = err
}

func (m *Memory) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishErr = err
}
