package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DeadlineKind identifies which sentinel key expired.
type DeadlineKind string

const (
	DeadlineWordPick DeadlineKind = "pick_deadline"
	DeadlineTurn     DeadlineKind = "turn_deadline"
)

// Turn deadlines are short-TTL sentinel keys. The TTL firing in Redis is the
// durable source of truth: if the node owning the in-process timer dies, the
// key still expires and the expiry notification drives a surviving node to
// run the same turn-over handler.

func (s *Store) SetDeadline(ctx context.Context, roomId string, kind DeadlineKind, deadline time.Time, ttl time.Duration) error {
	value := strconv.FormatInt(deadline.Unix(), 10)
	if err := s.rdb.Set(ctx, roomSub(roomId, string(kind)), value, ttl).Err(); err != nil {
		return fmt.Errorf("set %s for %s: %w", kind, roomId, err)
	}
	return nil
}

func (s *Store) ClearDeadline(ctx context.Context, roomId string, kind DeadlineKind) error {
	if err := s.rdb.Del(ctx, roomSub(roomId, string(kind))).Err(); err != nil {
		return fmt.Errorf("clear %s for %s: %w", kind, roomId, err)
	}
	return nil
}

// DeadlineExists reports whether the sentinel is still pending. Expiry
// handlers use this to tell a live deadline from one that already fired.
func (s *Store) DeadlineExists(ctx context.Context, roomId string, kind DeadlineKind) (bool, error) {
	n, err := s.rdb.Exists(ctx, roomSub(roomId, string(kind))).Result()
	if err != nil {
		return false, fmt.Errorf("check %s for %s: %w", kind, roomId, err)
	}
	return n > 0, nil
}

// DeadlineValue reads the pending deadline back, ok=false when the sentinel
// already fired or was never set.
func (s *Store) DeadlineValue(ctx context.Context, roomId string, kind DeadlineKind) (time.Time, bool, error) {
	value, err := s.rdb.Get(ctx, roomSub(roomId, string(kind))).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read %s for %s: %w", kind, roomId, err)
	}
	unix, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse %s for %s: %w", kind, roomId, err)
	}
	return time.Unix(unix, 0), true, nil
}

// ParseDeadlineKey recognizes expired sentinel keys. Returns ok=false for any
// other key under watch.
func ParseDeadlineKey(key string) (roomId string, kind DeadlineKind, ok bool) {
	rest, found := strings.CutPrefix(key, "room:")
	if !found {
		return "", "", false
	}
	for _, k := range []DeadlineKind{DeadlineWordPick, DeadlineTurn} {
		if id, found := strings.CutSuffix(rest, ":"+string(k)); found {
			return id, k, true
		}
	}
	return "", "", false
}
