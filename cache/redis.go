package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable is returned by every operation on a disconnected client
var ErrUnavailable = errors.New("redis client not initialized")

// RedisClient wraps redis.Client with JSON encoding of values and messages
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient connects to Redis and returns nil when the server is unreachable
func NewRedisClient(host, port, password string) *RedisClient {
	addr := fmt.Sprintf("%s:%s", host, port)
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("⚠️  Failed to connect to Redis at %s: %v", addr, err)
		client.Close()
		return nil
	}

	log.Printf("✅ Connected to Redis at %s", addr)
	return &RedisClient{client: client}
}

func (r *RedisClient) ready() bool {
	return r != nil && r.client != nil
}

// Set stores a JSON-encoded value with expiration
func (r *RedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if !r.ready() {
		return ErrUnavailable
	}

	jsonBytes, err := json.Marshal(value)
	if err != nil {
		return err
	}

	return r.client.Set(ctx, key, jsonBytes, expiration).Err()
}

// Get decodes a JSON value into dest. A missing key returns redis.Nil.
func (r *RedisClient) Get(ctx context.Context, key string, dest interface{}) error {
	if !r.ready() {
		return ErrUnavailable
	}

	val, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}

	return json.Unmarshal(val, dest)
}

// Delete removes keys
func (r *RedisClient) Delete(ctx context.Context, keys ...string) error {
	if !r.ready() {
		return ErrUnavailable
	}
	return r.client.Del(ctx, keys...).Err()
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	if r.ready() {
		return r.client.Close()
	}
	return nil
}

// Publish sends a JSON-encoded message to a channel
func (r *RedisClient) Publish(ctx context.Context, channel string, message interface{}) error {
	if !r.ready() {
		return ErrUnavailable
	}

	jsonBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}

	return r.client.Publish(ctx, channel, jsonBytes).Err()
}

// Subscribe subscribes to a channel. It returns nil on a disconnected client.
func (r *RedisClient) Subscribe(ctx context.Context, channel string) *redis.PubSub {
	if !r.ready() {
		return nil
	}
	return r.client.Subscribe(ctx, channel)
}
