package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/sketchwars/sketchwars-backend/internal"
)

const (
	lockTTL        = 3 * time.Second
	lockRetryDelay = 25 * time.Millisecond
	lockRetries    = 40
)

// Only the holder's token may delete the lock, so an expired-and-reacquired
// lock is never released by the previous holder.
var releaseLock = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

func lockKey(roomId string) string { return "lock:room:" + roomId }

// AcquireRoomLock takes the per-room advisory lock, retrying briefly on
// contention. Returns the holder token needed for release.
func (s *Store) AcquireRoomLock(ctx context.Context, roomId string) (string, error) {
	token := uuid.NewString()
	for i := 0; i < lockRetries; i++ {
		ok, err := s.rdb.SetNX(ctx, lockKey(roomId), token, lockTTL).Result()
		if err != nil {
			return "", fmt.Errorf("acquire lock for %s: %w", roomId, err)
		}
		if ok {
			return token, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(lockRetryDelay):
		}
	}
	return "", internal.ErrLockNotAcquired
}

func (s *Store) ReleaseRoomLock(ctx context.Context, roomId, token string) {
	if err := releaseLock.Run(ctx, s.rdb, []string{lockKey(roomId)}, token).Err(); err != nil && err != redis.Nil {
		s.logger.Warn("failed to release room lock", "room", roomId, "error", err)
	}
}
