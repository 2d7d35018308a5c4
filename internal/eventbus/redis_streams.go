package eventbus

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// StreamsClient is the subset of Redis Streams operations the bus needs.
// The abstraction keeps tests independent of a live server.
type StreamsClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) (string, error)
	XReadGroup(ctx context.Context, args *redis.XReadGroupArgs) ([]redis.XStream, error)
	XAck(ctx context.Context, stream, group string, ids ...string) (int64, error)
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) error
	XPending(ctx context.Context, stream, group string) (*redis.XPending, error)
	XLen(ctx context.Context, stream string) (int64, error)
}

// GoRedisAdapter adapts a go-redis client to StreamsClient.
type GoRedisAdapter struct {
	Client *redis.Client
}

func (a *GoRedisAdapter) XAdd(ctx context.Context, args *redis.XAddArgs) (string, error) {
	return a.Client.XAdd(ctx, args).Result()
}

func (a *GoRedisAdapter) XReadGroup(ctx context.Context, args *redis.XReadGroupArgs) ([]redis.XStream, error) {
	return a.Client.XReadGroup(ctx, args).Result()
}

func (a *GoRedisAdapter) XAck(ctx context.Context, stream, group string, ids ...string) (int64, error) {
	return a.Client.XAck(ctx, stream, group, ids...).Result()
}

func (a *GoRedisAdapter) XGroupCreateMkStream(ctx context.Context, stream, group, start string) error {
	return a.Client.XGroupCreateMkStream(ctx, stream, group, start).Err()
}

func (a *GoRedisAdapter) XPending(ctx context.Context, stream, group string) (*redis.XPending, error) {
	return a.Client.XPending(ctx, stream, group).Result()
}

func (a *GoRedisAdapter) XLen(ctx context.Context, stream string) (int64, error) {
	return a.Client.XLen(ctx, stream).Result()
}

// StreamsConfig holds configuration for the Redis Streams event bus.
type StreamsConfig struct {
	StreamKey     string        // Redis stream key name
	ConsumerGroup string        // Consumer group name
	ConsumerName  string        // Unique consumer name within the group
	MaxLen        int64         // Max stream length (0 = unlimited, uses MAXLEN ~)
	BlockTimeout  time.Duration // Block timeout for XREADGROUP
	BatchSize     int64         // Number of messages to read at once
}

// DefaultStreamsConfig returns default configuration.
func DefaultStreamsConfig() StreamsConfig {
	return StreamsConfig{
		StreamKey:     "llm-observer-records",
		ConsumerGroup: "llm-observer-dispatchers",
		ConsumerName:  "dispatcher-1",
		MaxLen:        10000,
		BlockTimeout:  5 * time.Second,
		BatchSize:     100,
	}
}

// RedisStreamsEventBus implements EventBus on Redis Streams with consumer
// groups: durable, distributed, at-least-once delivery with acknowledgment.
type RedisStreamsEventBus struct {
	client       StreamsClient
	config       StreamsConfig
	published    atomic.Int64
	dropped      atomic.Int64
	stopCh       chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
	groupCreated atomic.Bool
}

// NewRedisStreamsEventBus creates a new Redis Streams event bus.
func NewRedisStreamsEventBus(client StreamsClient, config StreamsConfig) *RedisStreamsEventBus {
	return &RedisStreamsEventBus{
		client: client,
		config: config,
		stopCh: make(chan struct{}),
	}
}

// EnsureConsumerGroup creates the consumer group if it doesn't exist yet.
func (b *RedisStreamsEventBus) EnsureConsumerGroup(ctx context.Context) error {
	if b.groupCreated.Load() {
		return nil
	}
	err := b.client.XGroupCreateMkStream(ctx, b.config.StreamKey, b.config.ConsumerGroup, "0")
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return err
	}
	b.groupCreated.Store(true)
	return nil
}

// Publish adds an event to the stream using XADD. Failures drop the event;
// delivery stays best-effort even through the durable pipeline.
func (b *RedisStreamsEventBus) Publish(ctx context.Context, evt Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		b.dropped.Add(1)
		return
	}
	args := &redis.XAddArgs{
		Stream: b.config.StreamKey,
		Values: map[string]interface{}{"data": string(data)},
	}
	if b.config.MaxLen > 0 {
		args.MaxLen = b.config.MaxLen
		args.Approx = true
	}
	if _, err := b.client.XAdd(ctx, args); err != nil {
		b.dropped.Add(1)
		return
	}
	b.published.Add(1)
}

// Subscribe starts a consumer-group reader and returns its event channel.
func (b *RedisStreamsEventBus) Subscribe() <-chan Event {
	ch := make(chan Event, b.config.BatchSize)
	b.wg.Add(1)
	go b.consumeLoop(ch)
	return ch
}

func (b *RedisStreamsEventBus) consumeLoop(ch chan Event) {
	defer b.wg.Done()
	defer close(ch)

	ctx := context.Background()
	if err := b.EnsureConsumerGroup(ctx); err != nil {
		return
	}

	// ">" reads only messages never delivered to this group; messages read
	// but not acked before a crash are redelivered from the pending list on
	// the next XREADGROUP with "0".
	cursor := "0"
	for {
		select {
		case <-b.stopCh:
			return
		default:
		}

		streams, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    b.config.ConsumerGroup,
			Consumer: b.config.ConsumerName,
			Streams:  []string{b.config.StreamKey, cursor},
			Count:    b.config.BatchSize,
			Block:    b.config.BlockTimeout,
		})
		if err != nil {
			if err == redis.Nil {
				cursor = ">"
				continue
			}
			select {
			case <-b.stopCh:
				return
			case <-time.After(time.Second):
				continue
			}
		}

		delivered := 0
		for _, stream := range streams {
			for _, msg := range stream.Messages {
				delivered++
				raw, ok := msg.Values["data"].(string)
				if !ok {
					_, _ = b.client.XAck(ctx, b.config.StreamKey, b.config.ConsumerGroup, msg.ID)
					continue
				}
				var evt Event
				if err := json.Unmarshal([]byte(raw), &evt); err != nil {
					_, _ = b.client.XAck(ctx, b.config.StreamKey, b.config.ConsumerGroup, msg.ID)
					continue
				}
				select {
				case ch <- evt:
					_, _ = b.client.XAck(ctx, b.config.StreamKey, b.config.ConsumerGroup, msg.ID)
				case <-b.stopCh:
					return
				}
			}
		}
		if cursor == "0" && delivered == 0 {
			// pending backlog drained, switch to new messages
			cursor = ">"
		}
	}
}

// Stop shuts down the consumer loops.
func (b *RedisStreamsEventBus) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopCh)
		b.wg.Wait()
	})
}

// PendingCount returns the number of delivered-but-unacked messages.
func (b *RedisStreamsEventBus) PendingCount(ctx context.Context) (int64, error) {
	p, err := b.client.XPending(ctx, b.config.StreamKey, b.config.ConsumerGroup)
	if err != nil {
		return 0, err
	}
	return p.Count, nil
}

// StreamLength returns the total number of messages in the stream.
func (b *RedisStreamsEventBus) StreamLength(ctx context.Context) (int64, error) {
	return b.client.XLen(ctx, b.config.StreamKey)
}

// Stats returns published and dropped counters.
func (b *RedisStreamsEventBus) Stats() (published, dropped int64) {
	return b.published.Load(), b.dropped.Load()
}
