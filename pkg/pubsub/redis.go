package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/weiawesome/wes-io-live/viewer/pkg/log"
)

const redisEventBuffer = 100

type redisSubscription struct {
	ps     *redis.PubSub
	cancel context.CancelFunc
	done   chan struct{}
}

// RedisPubSub carries change feeds over Redis channels. Each subscribed
// channel holds its own connection so that one feed can be dropped without
// touching the others.
type RedisPubSub struct {
	client *redis.Client

	mu   sync.Mutex
	subs map[string]*redisSubscription
}

// NewRedisPubSub connects and pings Redis.
func NewRedisPubSub(cfg RedisConfig) (*RedisPubSub, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisPubSub{client: client, subs: make(map[string]*redisSubscription)}, nil
}

func (r *RedisPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := r.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

// Subscribe returns once Redis has confirmed the subscription, so nothing
// published after the call returns is missed. Subscribing to a channel
// twice replaces the earlier subscription and closes its event channel.
func (r *RedisPubSub) Subscribe(ctx context.Context, channel string) (<-chan *Event, error) {
	ps := r.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &redisSubscription{ps: ps, cancel: cancel, done: make(chan struct{})}
	events := make(chan *Event, redisEventBuffer)

	r.mu.Lock()
	prev := r.subs[channel]
	r.subs[channel] = sub
	r.mu.Unlock()
	if prev != nil {
		prev.stop()
	}

	go func() {
		defer close(sub.done)
		forward(subCtx, ps, events)
	}()
	return events, nil
}

func (r *RedisPubSub) Unsubscribe(_ context.Context, channel string) error {
	r.mu.Lock()
	sub, ok := r.subs[channel]
	delete(r.subs, channel)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	return sub.stop()
}

// Close drops every subscription, then the client.
func (r *RedisPubSub) Close() error {
	r.mu.Lock()
	subs := r.subs
	r.subs = make(map[string]*redisSubscription)
	r.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
	return r.client.Close()
}

func (s *redisSubscription) stop() error {
	s.cancel()
	err := s.ps.Close()
	<-s.done
	return err
}

// forward decodes messages onto events until ctx ends or the connection
// closes. A full buffer drops the event rather than stalling the socket.
func forward(ctx context.Context, ps *redis.PubSub, events chan<- *Event) {
	defer close(events)
	l := log.L()

	msgs := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				l.Warn().Err(err).Str(log.FieldChannel, msg.Channel).Msg("redis pubsub: invalid event")
				continue
			}

			select {
			case events <- &event:
			case <-ctx.Done():
				return
			default:
				l.Warn().Str(log.FieldChannel, msg.Channel).Str("type", event.Type).Msg("redis pubsub: subscriber buffer full, event dropped")
			}
		}
	}
}
