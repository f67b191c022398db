package broadcast

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dushixiang/tfc/internal/metrics"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
)

// RedisPublisher 通过 Redis Pub/Sub 把事件广播给其他实例
type RedisPublisher struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisPublisher 创建 Redis 广播，频道名为 prefix:topic
func NewRedisPublisher(rdb *redis.Client, prefix string) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, prefix: prefix}
}

// Channel 事件对应的 Redis 频道
func (p *RedisPublisher) Channel(topic string) string {
	return p.prefix + ":" + topic
}

func (p *RedisPublisher) Publish(ctx context.Context, topic string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}
	if err := p.rdb.Publish(ctx, p.Channel(topic), payload).Err(); err != nil {
		metrics.BroadcastErrors.WithLabelValues("redis").Inc()
		return fmt.Errorf("redis: publish %s: %w", topic, err)
	}
	return nil
}

// Fanout 依次发布到多个 Publisher，单个失败不影响其余
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, topic string, event Event) error {
	var errs error
	for _, p := range f {
		if p == nil {
			continue
		}
		errs = multierr.Append(errs, p.Publish(ctx, topic, event))
	}
	return errs
}

var (
	_ Publisher = (*RedisPublisher)(nil)
	_ Publisher = (Fanout)(nil)
	_ Publisher = (*Hub)(nil)
)
