package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type redisBus struct {
	rdb        *redis.Client
	instanceID string
}

// NewRedis connects to redisURL and verifies connectivity.
func NewRedis(ctx context.Context, redisURL string) (Bus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	return newRedisBus(ctx, redis.NewClient(opts))
}

func newRedisBus(ctx context.Context, rdb *redis.Client) (*redisBus, error) {
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &redisBus{rdb: rdb, instanceID: ulid.Make().String()}, nil
}

func (b *redisBus) Publish(ctx context.Context, msg Message) error {
	msg.Origin = b.instanceID
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, channel(msg.NoteID), raw).Err()
}

func (b *redisBus) Subscribe(ctx context.Context, handler Handler) error {
	pubsub := b.rdb.PSubscribe(ctx, channel("*"))
	// Wait for the subscription confirmation so no message published after return is lost.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-ch:
				if !ok {
					return
				}
				var msg Message
				if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
					logrus.WithError(err).WithField("channel", raw.Channel).Warn("Dropping malformed bus message")
					continue
				}
				if msg.NoteID == "" || msg.Origin == b.instanceID {
					continue
				}
				handler(msg)
			}
		}
	}()
	return nil
}

func (b *redisBus) Close() error {
	return b.rdb.Close()
}

func channel(noteID string) string { return "note:" + noteID }
