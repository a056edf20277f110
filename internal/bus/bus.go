package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Topic naming shared by publishers and the socket front-end.
func RoomTopic(roomId string) string { return "room:" + roomId }

func UserTopic(userId string) string { return "user:" + userId }

// Bus is the cluster-wide fan-out. A publish reaches every subscriber once
// per subscription; Redis preserves order per topic per publisher.
type Bus struct {
	rdb    *redis.Client
	logger *slog.Logger
}

func New(rdb *redis.Client, logger *slog.Logger) *Bus {
	return &Bus{rdb: rdb, logger: logger}
}

// Except names recipients a delivering node must skip. Ref excludes a single
// socket (the drawer's own stroke echo); User excludes every socket of one
// user (the drawer gets a private copy of turn_started instead of the masked
// room one). Both are stripped before frames reach clients.
type Except struct {
	Ref  string `json:"ref,omitempty"`
	User string `json:"user,omitempty"`
}

func (e Except) isZero() bool { return e.Ref == "" && e.User == "" }

// envelope is the wire form on the bus.
type envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Exclude *Except         `json:"exclude,omitempty"`
}

func (b *Bus) Publish(ctx context.Context, topic, event string, payload any) error {
	return b.PublishExcept(ctx, topic, Except{}, event, payload)
}

// PublishExcept publishes an event that delivering nodes must not forward to
// the sockets named by except.
func (b *Bus) PublishExcept(ctx context.Context, topic string, except Except, event string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}
	env := envelope{Event: event, Payload: raw}
	if !except.isZero() {
		env.Exclude = &except
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", event, err)
	}
	if err := b.rdb.Publish(ctx, topic, data).Err(); err != nil {
		return fmt.Errorf("publish %s to %s: %w", event, topic, err)
	}
	return nil
}

// Delivery is one event received from a subscription.
type Delivery struct {
	Topic   string
	Event   string
	Payload json.RawMessage
	Exclude Except
}

// Frame renders the client-facing JSON frame, without bus-only fields.
func (d Delivery) Frame() ([]byte, error) {
	return json.Marshal(struct {
		Event   string          `json:"event"`
		Payload json.RawMessage `json:"payload"`
	}{d.Event, d.Payload})
}

type Subscription struct {
	pubsub *redis.PubSub
	ch     chan Delivery
}

// Subscribe opens a subscription on the given topics and starts the consumer
// goroutine. The channel closes when ctx ends or the subscription is closed.
func (b *Bus) Subscribe(ctx context.Context, topics ...string) (*Subscription, error) {
	pubsub := b.rdb.Subscribe(ctx, topics...)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe %v: %w", topics, err)
	}

	sub := &Subscription{pubsub: pubsub, ch: make(chan Delivery, 64)}
	go func() {
		defer close(sub.ch)
		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var env envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					b.logger.Warn("dropping unreadable bus message", "topic", msg.Channel, "error", err)
					continue
				}
				d := Delivery{Topic: msg.Channel, Event: env.Event, Payload: env.Payload}
				if env.Exclude != nil {
					d.Exclude = *env.Exclude
				}
				select {
				case sub.ch <- d:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return sub, nil
}

func (s *Subscription) Channel() <-chan Delivery { return s.ch }

func (s *Subscription) Close() error { return s.pubsub.Close() }
