// Package notify publishes alert findings.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/becomeliminal/nim-assistant/core"
)

// Notifier delivers alerts somewhere a person will see them.
type Notifier interface {
	Notify(ctx context.Context, alerts []core.Alert) error
}

// Event is the published payload.
type Event struct {
	ID     string       `json:"id"`
	Type   string       `json:"type"`
	At     time.Time    `json:"at"`
	Alerts []core.Alert `json:"alerts"`
}

// NewEvent wraps alerts in an Event stamped at.
func NewEvent(alerts []core.Alert, at time.Time) Event {
	return Event{ID: uuid.New().String(), Type: "alerts", At: at.UTC(), Alerts: alerts}
}

// Publisher is the part of a Redis client used for publishing.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Redis publishes alert events as JSON on a pub/sub channel.
type Redis struct {
	client  Publisher
	channel string
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a notifier.
type Option func(*options)

type options struct {
	logger *slog.Logger
	now    func() time.Time
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock overrides the event timestamp clock.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = o.logger.With("component", "notify")
	return o
}

// NewRedis creates a Redis notifier publishing on channel.
func NewRedis(client Publisher, channel string, opts ...Option) *Redis {
	o := buildOptions(opts)
	return &Redis{client: client, channel: channel, logger: o.logger, now: o.now}
}

// Notify publishes one event carrying every alert. An empty slice
// publishes nothing.
func (r *Redis) Notify(ctx context.Context, alerts []core.Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	payload, err := json.Marshal(NewEvent(alerts, r.now()))
	if err != nil {
		return fmt.Errorf("marshal alerts: %w", err)
	}
	receivers, err := r.client.Publish(ctx, r.channel, payload).Result()
	if err != nil {
		return core.NewDependencyError("redis", "publish", err)
	}
	r.logger.Debug("alerts published", "channel", r.channel, "count", len(alerts), "receivers", receivers)
	return nil
}

// Log writes alerts to a logger, one record per alert.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a logging notifier.
func NewLog(opts ...Option) *Log {
	return &Log{logger: buildOptions(opts).logger}
}

// Notify logs each alert at a level matching its severity.
func (l *Log) Notify(ctx context.Context, alerts []core.Alert) error {
	for _, a := range alerts {
		level := slog.LevelInfo
		switch a.Severity {
		case core.SeverityCritical:
			level = slog.LevelError
		case core.SeverityHigh:
			level = slog.LevelWarn
		}
		l.logger.Log(ctx, level, "task alert",
			"kind", a.Kind,
			"severity", a.Severity,
			"task_id", a.TaskID,
			"title", a.Title,
			"elapsed", a.Elapsed)
	}
	return nil
}
