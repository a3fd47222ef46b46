package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/meetdating/chat-core/internal/messaging"
)

// KeyPrefix namespaces all realtime store keys in Redis.
const KeyPrefix = "rt:"

// refreshTimeout bounds the re-read triggered by a change notification.
const refreshTimeout = 5 * time.Second

// RedisStore keeps scalar paths as Redis string keys and collection paths as
// Redis hashes (field = push id). Every mutation publishes a NATS
// notification for the affected path, and subscribers re-read the full
// snapshot on each notification.
type RedisStore struct {
	rdb  *redis.Client
	nats *messaging.NATSClient
	ids  *pushIDGenerator
}

// NewRedisStore creates a store on top of an existing Redis client and NATS
// client. Both connections stay owned by the caller.
func NewRedisStore(rdb *redis.Client, nats *messaging.NATSClient) *RedisStore {
	return &RedisStore{
		rdb:  rdb,
		nats: nats,
		ids:  newPushIDGenerator(nil),
	}
}

func redisKey(path string) string {
	return KeyPrefix + strings.Trim(path, "/")
}

// splitParent returns the parent path and final segment, or ok=false for a
// single-segment path.
func splitParent(path string) (parent, leaf string, ok bool) {
	path = strings.Trim(path, "/")
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return "", path, false
	}
	return path[:i], path[i+1:], true
}

// Get reads the full snapshot at path. The Redis value type decides the
// snapshot shape: hash keys are collections, string keys are scalars.
func (s *RedisStore) Get(ctx context.Context, path string) (Snapshot, error) {
	key := redisKey(path)
	snap := Snapshot{Path: path}

	kind, err := s.rdb.Type(ctx, key).Result()
	if err != nil {
		return snap, fmt.Errorf("realtime: type %s: %w", path, err)
	}

	switch kind {
	case "none":
		return snap, nil

	case "string":
		val, err := s.rdb.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return snap, nil // removed between TYPE and GET
		}
		if err != nil {
			return snap, fmt.Errorf("realtime: get %s: %w", path, err)
		}
		snap.Value = json.RawMessage(val)
		return snap, nil

	case "hash":
		fields, err := s.rdb.HGetAll(ctx, key).Result()
		if err != nil {
			return snap, fmt.Errorf("realtime: hgetall %s: %w", path, err)
		}
		snap.Children = make(map[string]json.RawMessage, len(fields))
		for id, val := range fields {
			snap.Children[id] = json.RawMessage(val)
		}
		snap.Keys = sortedKeys(snap.Children)
		return snap, nil

	default:
		return snap, fmt.Errorf("realtime: unexpected redis type %q at %s", kind, path)
	}
}

// Set writes a scalar value at path and notifies watchers.
func (s *RedisStore) Set(ctx context.Context, path string, value any) error {
	raw, err := marshalValue(value)
	if err != nil {
		return fmt.Errorf("realtime: marshal %s: %w", path, err)
	}
	if err := s.rdb.Set(ctx, redisKey(path), []byte(raw), 0).Err(); err != nil {
		return fmt.Errorf("realtime: set %s: %w", path, err)
	}
	s.notify(path)
	return nil
}

// Push appends value to the collection at path under a fresh push id.
func (s *RedisStore) Push(ctx context.Context, path string, value any) (string, error) {
	raw, err := marshalValue(value)
	if err != nil {
		return "", fmt.Errorf("realtime: marshal %s: %w", path, err)
	}
	id := s.ids.Next()
	if err := s.rdb.HSet(ctx, redisKey(path), id, []byte(raw)).Err(); err != nil {
		return "", fmt.Errorf("realtime: push %s: %w", path, err)
	}
	s.notify(path)
	return id, nil
}

// Remove deletes path, covering both a scalar key and a collection child.
// Removing something that is already gone is not an error.
func (s *RedisStore) Remove(ctx context.Context, path string) error {
	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, redisKey(path))
	parent, leaf, hasParent := splitParent(path)
	if hasParent {
		pipe.HDel(ctx, redisKey(parent), leaf)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("realtime: remove %s: %w", path, err)
	}
	s.notify(path)
	if hasParent {
		s.notify(parent)
	}
	return nil
}

// Subscribe opens a live snapshot feed for path. The current snapshot is
// delivered first; afterwards every NATS notification for the path triggers
// a full re-read.
func (s *RedisStore) Subscribe(ctx context.Context, path string) (Subscription, error) {
	sub := newSubscription(nil)

	// readMu keeps delivery order equal to read order. The initial read and
	// the notification-triggered re-reads run on different goroutines; an
	// unserialized initial read could deliver its snapshot after a refresh
	// already delivered a newer one, settling the view on stale state.
	var readMu sync.Mutex
	read := func(ctx context.Context) error {
		readMu.Lock()
		defer readMu.Unlock()
		snap, err := s.Get(ctx, path)
		if err != nil {
			return err
		}
		sub.deliver(snap)
		return nil
	}

	natsSub, err := s.nats.SubscribePath(path, func() {
		rctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()
		if err := read(rctx); err != nil {
			log.Printf("[rt] refresh %s: %v", path, err)
		}
	})
	if err != nil {
		sub.Close()
		return nil, fmt.Errorf("realtime: subscribe %s: %w", path, err)
	}
	sub.stop = func() {
		if err := natsSub.Unsubscribe(); err != nil {
			log.Printf("[rt] unsubscribe %s: %v", path, err)
		}
	}

	if err := read(ctx); err != nil {
		sub.Close()
		return nil, err
	}
	return sub, nil
}

// notify publishes a change notification; delivery is best-effort, a lost
// notification only delays the next rebuild.
func (s *RedisStore) notify(path string) {
	if err := s.nats.NotifyPathChanged(path); err != nil {
		log.Printf("[rt] notify %s: %v", path, err)
	}
}
