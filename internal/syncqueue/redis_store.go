package syncqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	pendingKey    = "syncq:pending"
	deadLetterKey = "syncq:dead"
	idemKeyPrefix = "syncq:idem:"
	idemKeyTTL    = 7 * 24 * time.Hour
)

// RedisStore keeps the queue in a Redis list. List order is enqueue order,
// and the keys are stable, so replay survives a process crash.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Append(ctx context.Context, m PendingMutation) (bool, error) {
	inserted, err := s.client.SetNX(ctx, idemKeyPrefix+m.IdempotencyKey, m.ID.String(), idemKeyTTL).Result()
	if err != nil {
		return false, fmt.Errorf("mark idempotency key: %w", err)
	}
	if !inserted {
		return false, nil
	}

	data, err := json.Marshal(m)
	if err != nil {
		return false, fmt.Errorf("marshal mutation: %w", err)
	}
	if err := s.client.RPush(ctx, pendingKey, data).Err(); err != nil {
		return false, fmt.Errorf("push mutation: %w", err)
	}
	return true, nil
}

func (s *RedisStore) Pending(ctx context.Context) ([]PendingMutation, error) {
	raw, err := s.client.LRange(ctx, pendingKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read pending mutations: %w", err)
	}

	mutations := make([]PendingMutation, 0, len(raw))
	for _, item := range raw {
		var m PendingMutation
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			return nil, fmt.Errorf("unmarshal pending mutation: %w", err)
		}
		mutations = append(mutations, m)
	}
	return mutations, nil
}

func (s *RedisStore) Remove(ctx context.Context, m PendingMutation) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal mutation: %w", err)
	}
	if err := s.client.LRem(ctx, pendingKey, 1, data).Err(); err != nil {
		return fmt.Errorf("remove mutation: %w", err)
	}
	return nil
}

func (s *RedisStore) DeadLetter(ctx context.Context, d DeadLetter) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}
	if err := s.client.RPush(ctx, deadLetterKey, data).Err(); err != nil {
		return fmt.Errorf("push dead letter: %w", err)
	}
	return nil
}

func (s *RedisStore) DeadLetters(ctx context.Context) ([]DeadLetter, error) {
	raw, err := s.client.LRange(ctx, deadLetterKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read dead letters: %w", err)
	}

	letters := make([]DeadLetter, 0, len(raw))
	for _, item := range raw {
		var d DeadLetter
		if err := json.Unmarshal([]byte(item), &d); err != nil {
			return nil, fmt.Errorf("unmarshal dead letter: %w", err)
		}
		letters = append(letters, d)
	}
	return letters, nil
}
