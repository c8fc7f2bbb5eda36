package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const eventsChannel = "shulelink:concern-events"

// Bus is what mutation sites publish to and feeds subscribe through.
// The plain Broker satisfies it for single-process setups; RedisBus
// extends the same broker across processes.
type Bus interface {
	Publish(ev Event)
	Subscribe() (<-chan Event, func())
}

// RedisBus mirrors every locally published event onto a Redis pub/sub
// channel and republishes events arriving from other processes into the
// local broker, so a reply handled by one instance reaches feeds served
// by another.
type RedisBus struct {
	broker *Broker
	client *redis.Client
	origin string
	logger *zap.Logger
	cancel context.CancelFunc
}

// NewRedisBus connects to Redis, verifies the connection, and starts
// the relay goroutine. Close stops the relay.
func NewRedisBus(ctx context.Context, redisURL string, broker *Broker, logger *zap.Logger) (*RedisBus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	relayCtx, cancel := context.WithCancel(context.Background())
	bus := &RedisBus{
		broker: broker,
		client: client,
		origin: uuid.NewString(),
		logger: logger,
		cancel: cancel,
	}
	go bus.relay(relayCtx)

	logger.Info("redis event bus connected", zap.String("channel", eventsChannel))
	return bus, nil
}

func (b *RedisBus) Publish(ev Event) {
	ev.Origin = b.origin
	b.broker.Publish(ev)

	payload, err := json.Marshal(ev)
	if err != nil {
		b.logger.Error("marshal event", zap.Error(err))
		return
	}
	// Local delivery already happened; a Redis hiccup only delays other
	// instances, so log and carry on.
	if err := b.client.Publish(context.Background(), eventsChannel, payload).Err(); err != nil {
		b.logger.Error("publish event to redis", zap.Error(err))
	}
}

func (b *RedisBus) Subscribe() (<-chan Event, func()) {
	return b.broker.Subscribe()
}

// relay consumes the Redis channel and republishes remote events into
// the local broker. go-redis reconnects the subscription on transport
// errors; malformed payloads are logged and skipped.
func (b *RedisBus) relay(ctx context.Context) {
	sub := b.client.Subscribe(ctx, eventsChannel)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Channel():
			if !ok {
				return
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.logger.Warn("skipping malformed event", zap.Error(err))
				continue
			}
			if ev.Origin == b.origin {
				continue
			}
			b.broker.Publish(ev)
		}
	}
}

func (b *RedisBus) Close() error {
	b.cancel()
	return b.client.Close()
}
