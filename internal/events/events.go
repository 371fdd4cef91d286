package events

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"powerbank-rental-backend/internal/domain"
)

type Type string

const (
	RentalOpened        Type = "rental.opened"
	RentalClosed        Type = "rental.closed"
	DeviceStatusChanged Type = "device.status_changed"
	MembershipUpgraded  Type = "membership.upgraded"
	MembershipExpired   Type = "membership.expired"
)

// Event is published after the transaction that produced it has committed.
type Event struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	Key        string    `json:"key"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

func New(t Type, key string, payload any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		Key:        key,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}

// DeviceKey and AccountKey build partition keys so that every event about one
// row lands on the same partition.
func DeviceKey(id int32) string {
	return "device-" + strconv.Itoa(int(id))
}

func AccountKey(id int32) string {
	return "account-" + strconv.Itoa(int(id))
}

// StatusChange is the payload of DeviceStatusChanged.
type StatusChange struct {
	DeviceID int32               `json:"device_id"`
	From     domain.DeviceStatus `json:"from"`
	To       domain.DeviceStatus `json:"to"`
	Battery  int                 `json:"battery_level"`
	Reason   string              `json:"reason"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Close() error { return nil }

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *Recorder) OfType(t Type) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
