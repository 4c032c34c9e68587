package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jmylchreest/autoclip/internal/config"
	"github.com/jmylchreest/autoclip/internal/models"
	"github.com/jmylchreest/autoclip/internal/version"
)

const (
	defaultChannel = "autoclip:events"
	publishTimeout = 3 * time.Second
)

// publisher is the subset of the redis client used here.
type publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisNotifier publishes events as JSON on a Redis pub/sub channel, where
// a chat front-end picks them up and relays them to users.
type RedisNotifier struct {
	client  publisher
	closer  func() error
	channel string
	logger  *slog.Logger
	now     func() time.Time
}

// NewRedisNotifier connects to Redis and verifies the connection.
func NewRedisNotifier(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (*RedisNotifier, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		ClientName: version.UserAgent(),
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Addr, err)
	}

	n := newRedisNotifier(client, cfg.Channel, logger)
	n.closer = client.Close
	return n, nil
}

func newRedisNotifier(client publisher, channel string, logger *slog.Logger) *RedisNotifier {
	if channel == "" {
		channel = defaultChannel
	}
	return &RedisNotifier{
		client:  client,
		channel: channel,
		logger:  logger.With(slog.String("component", "notify.redis")),
		now:     time.Now,
	}
}

// Channel returns the channel events are published on.
func (n *RedisNotifier) Channel() string {
	return n.channel
}

// Close releases the Redis connection.
func (n *RedisNotifier) Close() error {
	if n.closer == nil {
		return nil
	}
	return n.closer()
}

func (n *RedisNotifier) Notify(ctx context.Context, requesterID, text string) {
	n.publish(ctx, Event{Type: EventMessage, RequesterID: requesterID, Text: text})
}

func (n *RedisNotifier) NotifyProgress(ctx context.Context, requesterID string, jobID models.ULID, percent int) {
	n.publish(ctx, Event{Type: EventProgress, RequesterID: requesterID, JobID: jobID.String(), Percent: percent})
}

func (n *RedisNotifier) DeliverArtifact(ctx context.Context, requesterID string, jobID models.ULID, path string) {
	n.publish(ctx, Event{Type: EventArtifact, RequesterID: requesterID, JobID: jobID.String(), Path: path})
}

func (n *RedisNotifier) publish(ctx context.Context, ev Event) {
	ev.Timestamp = n.now().UTC()
	payload, err := json.Marshal(ev)
	if err != nil {
		n.logger.Error("failed to encode event", slog.String("error", err.Error()))
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := n.client.Publish(pubCtx, n.channel, payload).Err(); err != nil {
		n.logger.Warn("failed to publish event",
			slog.String("type", string(ev.Type)),
			slog.String("requester_id", ev.RequesterID),
			slog.String("error", err.Error()),
		)
	}
}
