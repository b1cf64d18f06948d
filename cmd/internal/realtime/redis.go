package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"

	v1 "rsvp/shared/contracts/rsvpfeed/v1"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisChannel is the pub/sub channel shared by all instances.
const DefaultRedisChannel = "rsvp:feed:v1"

// NewRedisClient builds a client from a redis:// or rediss:// URL.
func NewRedisClient(rawURL string) (*redis.Client, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, errors.New("redis url is empty")
	}
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opts), nil
}

// RedisPublisher publishes feed envelopes to a Redis channel so every
// instance's RedisRelay can fan them out locally.
type RedisPublisher struct {
	rdb     *redis.Client
	channel string
}

// NewRedisPublisher constructs a RedisPublisher. An empty channel uses DefaultRedisChannel.
func NewRedisPublisher(rdb *redis.Client, channel string) *RedisPublisher {
	if strings.TrimSpace(channel) == "" {
		channel = DefaultRedisChannel
	}
	return &RedisPublisher{rdb: rdb, channel: channel}
}

// Publish implements Publisher.
func (p *RedisPublisher) Publish(ctx context.Context, env v1.Envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return p.rdb.Publish(ctx, p.channel, b).Err()
}

// RedisRelay subscribes to the feed channel and forwards envelopes to a Hub.
type RedisRelay struct {
	log     *slog.Logger
	rdb     *redis.Client
	channel string
	hub     *Hub

	mu     sync.Mutex
	sub    *redis.PubSub
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRedisRelay constructs a relay. An empty channel uses DefaultRedisChannel.
func NewRedisRelay(log *slog.Logger, rdb *redis.Client, channel string, hub *Hub) *RedisRelay {
	if log == nil {
		log = slog.Default()
	}
	if strings.TrimSpace(channel) == "" {
		channel = DefaultRedisChannel
	}
	return &RedisRelay{log: log, rdb: rdb, channel: channel, hub: hub}
}

// Start subscribes and waits for the subscription to be confirmed, then
// forwards messages in the background until ctx ends or Close is called.
func (r *RedisRelay) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sub != nil {
		return errors.New("relay already started")
	}

	sub := r.rdb.Subscribe(ctx, r.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.sub = sub
	r.cancel = cancel
	r.done = make(chan struct{})

	go r.loop(runCtx, sub.Channel(), r.done)

	r.log.Info("feed.relay.start", "channel", r.channel)
	return nil
}

func (r *RedisRelay) loop(ctx context.Context, ch <-chan *redis.Message, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env v1.Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.log.Warn("feed.relay.bad_json", "err", err)
				continue
			}
			if err := env.Validate(); err != nil {
				r.log.Warn("feed.relay.bad_envelope", "err", err)
				continue
			}
			_ = r.hub.Publish(ctx, env)
		}
	}
}

// Close stops forwarding and releases the subscription.
func (r *RedisRelay) Close() error {
	r.mu.Lock()
	sub, cancel, done := r.sub, r.cancel, r.done
	r.sub, r.cancel, r.done = nil, nil, nil
	r.mu.Unlock()

	if sub == nil {
		return nil
	}
	cancel()
	err := sub.Close()
	<-done
	r.log.Info("feed.relay.stop", "channel", r.channel)
	return err
}
