package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const listKey = "studio:history"

// RedisStore keeps history in a Redis list so it survives restarts and can
// be shared between studio instances.
type RedisStore struct {
	rdb   *redis.Client
	limit int
}

// NewRedisStore connects to the Redis server at url (redis://host:port/db).
func NewRedisStore(url string, limit int) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &RedisStore{rdb: redis.NewClient(opts), limit: limit}, nil
}

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *RedisStore) Record(ctx context.Context, e Entry) error {
	e.Params.Melody = nil
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.LPush(ctx, listKey, payload)
	pipe.LTrim(ctx, listKey, 0, int64(s.limit-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record %s: %w", e.TaskID, err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context, limit int) ([]Entry, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	raw, err := s.rdb.LRange(ctx, listKey, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return decodeEntries(raw)
}

// PublishProgress publishes a task state snapshot on progress:<taskID>.
func (s *RedisStore) PublishProgress(ctx context.Context, taskID string, state any) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	return s.rdb.Publish(ctx, ProgressChannel(taskID), payload).Err()
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// ProgressChannel names the pub/sub channel for a task.
func ProgressChannel(taskID string) string {
	return "progress:" + taskID
}

func decodeEntries(raw []string) ([]Entry, error) {
	out := make([]Entry, 0, len(raw))
	for _, r := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			return nil, fmt.Errorf("decode history entry: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}
