package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"taskflow/domain"
)

// DefaultChannel is used when no notify.channel is configured.
const DefaultChannel = "taskflow:notifications"

// RedisPublisher sends notifications over a Redis pub/sub channel so every
// client sharing the session sees them.
type RedisPublisher struct {
	rc      *redis.Client
	channel string
}

func NewRedisPublisher(rc *redis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{rc: rc, channel: channel}
}

func (p *RedisPublisher) Channel() string { return p.channel }

func (p *RedisPublisher) Publish(ctx context.Context, n domain.Notification) error {
	payload, err := sonic.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := p.rc.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", p.channel, err)
	}
	return nil
}

// Subscribe delivers notifications published on the channel to handle until
// ctx is done. A dropped subscription is re-established after a second.
func (p *RedisPublisher) Subscribe(ctx context.Context, logger *log.Logger, handle func(domain.Notification)) {
	for {
		sub := p.rc.Subscribe(ctx, p.channel)
		ch := sub.Channel()
	recv:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				var n domain.Notification
				if err := sonic.Unmarshal([]byte(msg.Payload), &n); err != nil {
					logger.WithError(err).Error("unable to parse notification")
					continue
				}
				handle(n)
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		logger.Error("pubsub channel closed, reconnecting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}
