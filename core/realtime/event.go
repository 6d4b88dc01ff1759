package realtime

import (
	"context"
	"errors"
	"time"
)

// Topics clients can subscribe to.
const (
	TopicTracks  = "tracks"
	TopicVideos  = "background_videos"
	TopicUploads = "uploads"
)

// EventType mirrors the change kinds a catalog subscriber reacts to.
type EventType string

const (
	EventInsert   EventType = "INSERT"
	EventUpdate   EventType = "UPDATE"
	EventDelete   EventType = "DELETE"
	EventProgress EventType = "PROGRESS"
)

// Event is one change notification. Record carries the row after the change,
// or nothing for deletes.
type Event struct {
	Table     string    `json:"table"`
	Type      EventType `json:"type"`
	ID        string    `json:"id"`
	Record    any       `json:"record,omitempty"`
	Timestamp int64     `json:"timestamp"`
}

// NewEvent stamps an event with the current time.
func NewEvent(table string, typ EventType, id string, record any) Event {
	return Event{
		Table:     table,
		Type:      typ,
		ID:        id,
		Record:    record,
		Timestamp: time.Now().UnixMilli(),
	}
}

// Publisher delivers change events to subscribers.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// MultiPublisher fans an event out to every publisher and joins their errors.
type MultiPublisher []Publisher

func (m MultiPublisher) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, ev Event) error

func (f PublisherFunc) Publish(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}
