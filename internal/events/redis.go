package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisBus fans events out between service instances through Redis pub/sub;
// every instance delivers to its own websocket clients.
type RedisBus struct {
	client  *redis.Client
	channel string
	log     *slog.Logger
}

func NewRedisBus(ctx context.Context, url, channel string, log *slog.Logger) (*RedisBus, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	c := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := c.Ping(pingCtx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}

	return &RedisBus{client: c, channel: channel, log: log}, nil
}

func (b *RedisBus) Publish(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, data).Err()
}

// Subscribe opens one pub/sub subscription per call; handlers run on its goroutine.
func (b *RedisBus) Subscribe(ctx context.Context, h Handler) {
	ps := b.client.Subscribe(ctx, b.channel)

	go func() {
		defer ps.Close()
		ch := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var e Event
				if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
					b.log.Warn("events: bad payload", "channel", msg.Channel, "err", err)
					continue
				}
				h(ctx, e)
			}
		}
	}()
}

func (b *RedisBus) Close() error { return b.client.Close() }
