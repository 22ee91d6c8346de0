package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/becomeliminal/nim-assistant/core"
)

type fakePublisher struct {
	channel  string
	messages [][]byte
	err      error
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.channel = channel
	if b, ok := message.([]byte); ok {
		f.messages = append(f.messages, b)
	}
	return redis.NewIntResult(1, f.err)
}

var sample = []core.Alert{
	{TaskID: "t1", Title: "Pay invoice", Kind: core.AlertOverdue, Severity: core.SeverityCritical, Elapsed: 80 * time.Hour},
	{TaskID: "t2", Title: "Draft plan", Kind: core.AlertStuck, Severity: core.SeverityMedium, Elapsed: 4 * 24 * time.Hour},
}

func TestRedisNotify(t *testing.T) {
	pub := &fakePublisher{}
	at := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	n := NewRedis(pub, "nim:alerts", WithClock(func() time.Time { return at }))

	if err := n.Notify(context.Background(), sample); err != nil {
		t.Fatal(err)
	}
	if pub.channel != "nim:alerts" || len(pub.messages) != 1 {
		t.Fatalf("published %d messages on %q", len(pub.messages), pub.channel)
	}

	var ev Event
	if err := json.Unmarshal(pub.messages[0], &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Type != "alerts" || ev.ID == "" || !ev.At.Equal(at) || len(ev.Alerts) != 2 || ev.Alerts[0].TaskID != "t1" {
		t.Errorf("unexpected event %+v", ev)
	}
}

func TestRedisNotifyEmpty(t *testing.T) {
	pub := &fakePublisher{}
	if err := NewRedis(pub, "c").Notify(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if len(pub.messages) != 0 {
		t.Error("empty alert list should not publish")
	}
}

func TestRedisNotifyError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("connection refused")}
	err := NewRedis(pub, "c").Notify(context.Background(), sample)
	if !core.IsDependency(err) {
		t.Errorf("got %v, want dependency error", err)
	}
}

func TestLogNotify(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	if err := NewLog(WithLogger(logger)).Notify(context.Background(), sample); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "level=ERROR") || !strings.Contains(out, "task_id=t1") {
		t.Errorf("critical alert not logged at error: %s", out)
	}
	if !strings.Contains(out, "level=INFO") || !strings.Contains(out, "component=notify") {
		t.Errorf("medium alert not logged at info: %s", out)
	}
}
