// Package tracking publishes visitor interaction events.
package tracking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Event types.
const (
	EventFilter   = "filter"
	EventSort     = "sort"
	EventFavorite = "favorite"
	EventVisit    = "visit"
	EventDoorway  = "doorway"
)

// Event is one visitor interaction.
type Event struct {
	Type    string    `json:"type"`
	Session string    `json:"session"`
	Path    string    `json:"path,omitempty"`
	Value   string    `json:"value,omitempty"`
	At      time.Time `json:"at"`
}

// Tracker receives events. Implementations must be safe for concurrent use.
type Tracker interface {
	Track(ctx context.Context, ev Event) error
	Close() error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Track(context.Context, Event) error { return nil }
func (Nop) Close() error                       { return nil }

// Recorder keeps events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Track(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Topic is the exchange suffix events are published under.
const Topic = "tracking"

// ExchangeName joins prefix and topic the way every exchange here is named.
func ExchangeName(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, Topic)
}

// Rabbit publishes events to a durable topic exchange. The routing key is
// the event type.
type Rabbit struct {
	conn     *amqp.Connection
	exchange string

	mu sync.Mutex
	ch *amqp.Channel
}

// NewRabbit dials url and declares the exchange.
func NewRabbit(url, prefix string) (*Rabbit, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	name := ExchangeName(prefix)
	if err := ch.ExchangeDeclare(
		name,    // name
		"topic", // type
		true,    // durable
		false,   // auto-delete
		false,   // internal
		false,   // noWait
		nil,     // arguments
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", name, err)
	}
	return &Rabbit{conn: conn, exchange: name, ch: ch}, nil
}

func (r *Rabbit) Track(ctx context.Context, ev Event) error {
	body, err := sonic.Marshal(ev)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ch.PublishWithContext(ctx,
		r.exchange,
		ev.Type,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Timestamp:   ev.At,
			Body:        body,
		},
	)
}

func (r *Rabbit) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ch.Close()
	return r.conn.Close()
}
