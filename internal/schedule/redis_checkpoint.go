package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const checkpointKey = "newsflow:frontier:checkpoint"

// RedisCheckpoint stores the frontier snapshot as one JSON value in
// Redis, so a restarted process on any node resumes the same frontier.
type RedisCheckpoint struct {
	client *redis.Client
}

// NewRedisCheckpoint connects to Redis and verifies it responds.
func NewRedisCheckpoint(ctx context.Context, addr string) (*RedisCheckpoint, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisCheckpoint{client: client}, nil
}

// Save implements Checkpoint.
func (r *RedisCheckpoint) Save(ctx context.Context, state *State) error {
	state.SavedAt = time.Now()

	body, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	if err := r.client.Set(ctx, checkpointKey, body, 0).Err(); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// Load implements Checkpoint.
func (r *RedisCheckpoint) Load(ctx context.Context) (*State, error) {
	body, err := r.client.Get(ctx, checkpointKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return NewState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	state := NewState()
	if err := json.Unmarshal(body, state); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	return state, nil
}

// Close releases the Redis connection.
func (r *RedisCheckpoint) Close() error {
	return r.client.Close()
}
