// Package events fans attempt lifecycle events out to live monitors over
// Redis Pub/Sub.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/examcore/internal/config"
	"github.com/stemsi/examcore/internal/model"
)

const publishTimeout = 2 * time.Second

// RedisPublisher publishes monitor events on the exam's channel. Failures
// are logged and swallowed: monitoring must never fail an attempt operation.
type RedisPublisher struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewRedisPublisher creates a new RedisPublisher.
func NewRedisPublisher(rdb *redis.Client, log zerolog.Logger) *RedisPublisher {
	return &RedisPublisher{
		rdb: rdb,
		log: log.With().Str("component", "event_publisher").Logger(),
	}
}

// Publish sends ev to the exam's monitor channel.
func (p *RedisPublisher) Publish(ctx context.Context, ev model.MonitorEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		p.log.Error().Err(err).Str("type", string(ev.Type)).Msg("Failed to encode monitor event")
		return
	}

	// The request may already be finished; the event should still go out.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	channel := config.CacheKey.ExamMonitorChannel(ev.ExamID.String())
	if err := p.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		p.log.Warn().Err(err).
			Str("channel", channel).
			Str("type", string(ev.Type)).
			Msg("Failed to publish monitor event")
	}
}

// Subscribe attaches to an exam's monitor channel. The caller must close the
// returned subscription.
func (p *RedisPublisher) Subscribe(ctx context.Context, examID uuid.UUID) *redis.PubSub {
	return p.rdb.Subscribe(ctx, config.CacheKey.ExamMonitorChannel(examID.String()))
}
