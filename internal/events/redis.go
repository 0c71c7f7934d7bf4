package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hvac_dispatch/backend/internal/metrics"
	"github.com/hvac_dispatch/backend/internal/models"
)

const (
	DefaultChannel = "dispatch:events"
	DefaultBackoff = 5 * time.Second

	relayTimeout = 3 * time.Second
)

// RedisRelay forwards bus events to a Redis pub/sub channel. Subscribe Handle on the bus.
type RedisRelay struct {
	Client  redis.Cmdable
	Channel string
	Logger  zerolog.Logger
}

func (r *RedisRelay) Handle(ev models.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		r.Logger.Error().Err(err).Uint64("sequence", ev.Sequence).Msg("encode event")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), relayTimeout)
	defer cancel()
	if err := r.Client.Publish(ctx, r.channel(), data).Err(); err != nil {
		r.Logger.Warn().Err(err).Uint64("sequence", ev.Sequence).Msg("redis relay publish failed")
	}
}

func (r *RedisRelay) channel() string {
	if r.Channel == "" {
		return DefaultChannel
	}
	return r.Channel
}

// RedisListener consumes relayed events. After every (re)subscription it calls
// Reconcile, since anything published while it was disconnected is lost. Between
// attempts it waits a fixed Backoff.
type RedisListener struct {
	Client    *redis.Client
	Channel   string
	Backoff   time.Duration
	Handler   Handler
	Reconcile func(ctx context.Context) error
	Logger    zerolog.Logger
}

// Run blocks until ctx is cancelled.
func (l *RedisListener) Run(ctx context.Context) {
	backoff := l.Backoff
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return
		}
		metrics.RelayReconnects.WithLabelValues("redis").Inc()
		l.Logger.Warn().Err(err).Dur("backoff", backoff).Msg("redis listener disconnected")

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (l *RedisListener) listen(ctx context.Context) error {
	channel := l.Channel
	if channel == "" {
		channel = DefaultChannel
	}
	ps := l.Client.Subscribe(ctx, channel)
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}
	l.Logger.Info().Str("channel", channel).Msg("redis listener subscribed")
	if l.Reconcile != nil {
		if err := l.Reconcile(ctx); err != nil {
			l.Logger.Error().Err(err).Msg("reconcile after subscribe failed")
		}
	}

	for {
		msg, err := ps.ReceiveMessage(ctx)
		if err != nil {
			return err
		}
		var ev models.Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			l.Logger.Warn().Err(err).Msg("drop malformed event")
			continue
		}
		l.Handler(ev)
	}
}
