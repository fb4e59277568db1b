package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisConfig describes the Redis pub/sub sink.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Channel  string
}

type redisPublisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Close() error
}

// RedisPublisher publishes every event as JSON on a Redis channel so that
// dashboards in other processes can follow a swarm run live.
type RedisPublisher struct {
	*forwarder
	client  redisPublisher
	channel string
}

// NewRedisPublisher connects to Redis and verifies the connection.
func NewRedisPublisher(ctx context.Context, cfg RedisConfig) (*RedisPublisher, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return newRedisPublisher(client, cfg.Channel), nil
}

func newRedisPublisher(client redisPublisher, channel string) *RedisPublisher {
	if channel == "" {
		channel = "danni:swarm:events"
	}
	p := &RedisPublisher{client: client, channel: channel}
	p.forwarder = newForwarder("redis", 0, 0, p.publish)
	return p
}

func (p *RedisPublisher) publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("Redis 发布事件失败: %w", err)
	}
	return nil
}

// Close flushes pending events and closes the connection.
func (p *RedisPublisher) Close() error {
	if p == nil {
		return nil
	}
	p.forwarder.close()
	return p.client.Close()
}
