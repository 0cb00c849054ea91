package notifications

import (
	"context"
	"runtime/debug"

	"replied/internal/observability"

	"github.com/redis/go-redis/v9"
)

const (
	userChannelPrefix = "inbox:user:"
	userChannelGlob   = userChannelPrefix + "*"
)

// UserChannel returns the Redis channel carrying userID's inbox events.
func UserChannel(userID string) string {
	return userChannelPrefix + userID
}

// Notifier publishes inbox events into Redis channels.
type Notifier struct {
	rdb *redis.Client
	log *observability.ComponentLogger
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb, log: observability.For("notifier")}
}

// Enabled reports whether events cross replicas through Redis.
func (n *Notifier) Enabled() bool { return n.rdb != nil }

// PublishUser sends payload to userID's channel.
func (n *Notifier) PublishUser(ctx context.Context, userID string, payload string) error {
	if n.rdb == nil {
		return nil
	}
	if err := n.rdb.Publish(ctx, UserChannel(userID), payload).Err(); err != nil {
		observability.RedisErrorRate.WithLabelValues("publish").Inc()
		return err
	}
	return nil
}

// StartPatternSubscriber subscribes to inbox:user:* and calls onMessage with
// the channel and payload of each event until ctx ends.
func (n *Notifier) StartPatternSubscriber(ctx context.Context, onMessage func(channel string, payload string)) error {
	if n.rdb == nil {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, userChannelGlob)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		observability.RedisErrorRate.WithLabelValues("psubscribe").Inc()
		return err
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							n.log.Error(ctx, "panic in inbox subscriber", nil, map[string]any{
								"panic": r,
								"stack": string(debug.Stack()),
							})
						}
					}()
					onMessage(msg.Channel, msg.Payload)
				}()
			}
		}
	}()

	return nil
}
