package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const publishTimeout = 5 * time.Second

// RedisPublisher relays messages from remote workers to the API process over pub/sub.
// A nil publisher is a no-op.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	log     *zap.SugaredLogger
}

func NewRedisPublisher(client *redis.Client, channel string, log *zap.SugaredLogger) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel, log: log}
}

// Notify publishes in the background so the caller never waits on Redis
func (p *RedisPublisher) Notify(msg Message) {
	if p == nil || p.client == nil {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		p.log.Warnw("⚠️ Failed to encode notification", "type", msg.Type, "error", err)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
			p.log.Warnw("⚠️ Failed to publish notification", "channel", p.channel, "type", msg.Type, "error", err)
		}
	}()
}

// RedisSubscriber forwards relayed messages into a local notifier (the websocket hub)
type RedisSubscriber struct {
	client  *redis.Client
	channel string
	log     *zap.SugaredLogger
}

func NewRedisSubscriber(client *redis.Client, channel string, log *zap.SugaredLogger) *RedisSubscriber {
	return &RedisSubscriber{client: client, channel: channel, log: log}
}

// Run blocks until ctx is done or the subscription fails
func (s *RedisSubscriber) Run(ctx context.Context, target Notifier) error {
	sub := s.client.Subscribe(ctx, s.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	s.log.Infow("📡 Subscribed to notification relay", "channel", s.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var msg Message
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				s.log.Warnw("⚠️ Ignoring malformed relayed notification", "error", err)
				continue
			}
			target.Notify(msg)
		}
	}
}
