package store

import (
	"context"
	"fmt"
)

// EnableKeyExpiryNotifications turns on keyspace notifications for expired
// events. Managed Redis deployments often lock CONFIG down; the watcher still
// works if the operator has set notify-keyspace-events themselves, so a denial
// is logged and not fatal.
func (s *Store) EnableKeyExpiryNotifications(ctx context.Context) {
	if err := s.rdb.ConfigSet(ctx, "notify-keyspace-events", "Ex").Err(); err != nil {
		s.logger.Warn("could not enable keyspace notifications", "error", err)
	}
}

// WatchExpired streams every expired key in the store's database until ctx is
// done. Callers filter for the keys they own.
func (s *Store) WatchExpired(ctx context.Context) (<-chan string, error) {
	channel := fmt.Sprintf("__keyevent@%d__:expired", s.db)
	pubsub := s.rdb.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	out := make(chan string, 64)
	go func() {
		defer close(out)
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- msg.Payload:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
