package assistant_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/becomeliminal/nim-assistant/assistant"
	"github.com/becomeliminal/nim-assistant/core"
	"github.com/becomeliminal/nim-assistant/engine"
	"github.com/becomeliminal/nim-assistant/llm"
	"github.com/becomeliminal/nim-assistant/memory"
	"github.com/becomeliminal/nim-assistant/memory/embedder/mock"
	"github.com/becomeliminal/nim-assistant/memory/index/chromem"
	"github.com/becomeliminal/nim-assistant/priority"
	"github.com/becomeliminal/nim-assistant/store/sqlite"
	"github.com/becomeliminal/nim-assistant/tools"
)

var now = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

type fakeClient struct {
	mu    sync.Mutex
	calls int
	text  string
	err   error
}

func (c *fakeClient) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	return &llm.Response{Text: c.text, StopReason: "end_turn"}, nil
}

func (c *fakeClient) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type fixture struct {
	svc    *assistant.Service
	store  *sqlite.Store
	client *fakeClient
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := func() time.Time { return now }
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "assistant.db"), sqlite.WithClock(clock))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	idx, err := chromem.New()
	if err != nil {
		t.Fatal(err)
	}
	mem := memory.NewManager(s, idx, mock.New(64), memory.DefaultConfig, memory.WithClock(clock))
	prio := priority.New(s, s, priority.DefaultConfig, priority.WithClock(clock))
	client := &fakeClient{text: "Hi Dana, just checking in on the report."}
	registry := engine.NewToolRegistry(tools.CreateTools(&tools.Deps{Tasks: s, Memory: mem, Priority: prio})...)
	eng := engine.NewEngine(client, registry, s, nil, engine.WithMemory(mem), engine.WithClock(clock))

	svc := assistant.New(assistant.Deps{Engine: eng, Memory: mem, Priority: prio, Tasks: s}, assistant.WithClock(clock))
	t.Cleanup(svc.Wait)
	return &fixture{svc: svc, store: s, client: client}
}

func (f *fixture) task(t *testing.T, title string, status core.TaskStatus, due *time.Time) *core.Task {
	t.Helper()
	task, err := f.svc.CreateTask(context.Background(), core.NewTask{Title: title, Status: status, DueAt: due})
	if err != nil {
		t.Fatalf("create %q: %v", title, err)
	}
	return task
}

func at(t time.Time) *time.Time { return &t }

func TestChat(t *testing.T) {
	f := newFixture(t)
	f.client.text = "Start with the report."

	resp, err := f.svc.Chat(context.Background(), assistant.ChatRequest{ThreadID: "t1", Message: "what now?"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Response != "Start with the report." || resp.ThreadID != "t1" || resp.Outcome != "complete" {
		t.Errorf("unexpected response %+v", resp)
	}
	if !resp.Timestamp.Equal(now) {
		t.Errorf("timestamp %v, want %v", resp.Timestamp, now)
	}

	if _, err := f.svc.Chat(context.Background(), assistant.ChatRequest{ThreadID: "t1"}); !core.IsValidation(err) {
		t.Errorf("empty message: got %v, want validation error", err)
	}
}

func TestChatDegraded(t *testing.T) {
	f := newFixture(t)
	f.client.err = errors.New("upstream 529")

	resp, err := f.svc.Chat(context.Background(), assistant.ChatRequest{ThreadID: "t1", Message: "hello there"})
	if err != nil {
		t.Fatalf("degraded chat should not error: %v", err)
	}
	if resp.Outcome != "degraded" || resp.Response == "" || len(resp.Warnings) == 0 {
		t.Errorf("unexpected degraded response %+v", resp)
	}
}

func TestComposeDraftCaches(t *testing.T) {
	f := newFixture(t)
	task := f.task(t, "Send Q2 report to Dana", core.StatusOpen, at(now.Add(24*time.Hour)))
	ctx := context.Background()

	resp, err := f.svc.ComposeDraft(ctx, assistant.DraftRequest{TaskID: task.ID, MessageType: "Reminder", HTML: true})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Cached || resp.Draft != f.client.text {
		t.Errorf("first draft %+v", resp)
	}
	if !strings.Contains(resp.HTML, "<p>") {
		t.Errorf("html not rendered: %q", resp.HTML)
	}

	stored, err := f.store.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Recommendations[assistant.DraftKey("reminder", "english")] != f.client.text {
		t.Errorf("draft not cached: %v", stored.Recommendations)
	}

	again, err := f.svc.ComposeDraft(ctx, assistant.DraftRequest{TaskID: task.ID, MessageType: "reminder"})
	if err != nil {
		t.Fatal(err)
	}
	if !again.Cached || again.Draft != f.client.text {
		t.Errorf("second draft %+v", again)
	}
	if f.client.count() != 1 {
		t.Errorf("generation calls %d, want 1", f.client.count())
	}

	if _, err := f.svc.ComposeDraft(ctx, assistant.DraftRequest{TaskID: task.ID, MessageType: "reminder", Refresh: true}); err != nil {
		t.Fatal(err)
	}
	if f.client.count() != 2 {
		t.Errorf("refresh did not regenerate")
	}
}

func TestComposeDraftErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.ComposeDraft(ctx, assistant.DraftRequest{TaskID: "missing"}); !core.IsNotFound(err) {
		t.Errorf("unknown task: got %v, want not found", err)
	}
	if _, err := f.svc.ComposeDraft(ctx, assistant.DraftRequest{}); !core.IsValidation(err) {
		t.Errorf("empty id: got %v, want validation", err)
	}

	task := f.task(t, "Call the bank", core.StatusOpen, nil)
	f.client.err = errors.New("timeout")
	if _, err := f.svc.ComposeDraft(ctx, assistant.DraftRequest{TaskID: task.ID}); !core.IsDependency(err) {
		t.Errorf("generation failure: got %v, want dependency", err)
	}
}

func TestRememberAndSearchMemory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.RememberMemory(ctx, assistant.RememberRequest{Content: " "}); !core.IsValidation(err) {
		t.Errorf("empty content: got %v, want validation", err)
	}

	imp := 0.9
	rem, err := f.svc.RememberMemory(ctx, assistant.RememberRequest{
		Content:    "Dana prefers email over phone calls",
		Type:       "preference",
		Importance: &imp,
		EntityID:   "contact:dana",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !rem.Saved || !rem.Searchable || rem.DurableID == "" || rem.IndexID == "" || rem.Warning != "" {
		t.Errorf("unexpected remember response %+v", rem)
	}

	res, err := f.svc.SearchMemory(ctx, assistant.SearchRequest{Query: "Dana prefers email over phone calls"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Count != 1 || res.Results[0].DurableID != rem.DurableID {
		t.Errorf("unexpected search response %+v", res)
	}

	none, err := f.svc.SearchMemory(ctx, assistant.SearchRequest{Query: "anything", Filter: map[string]string{"type": "fact"}})
	if err != nil {
		t.Fatal(err)
	}
	if none.Count != 0 || none.Results == nil {
		t.Errorf("filtered search should be empty, got %+v", none)
	}
}

func TestPriorityOperations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	overdue := f.task(t, "Pay invoice", core.StatusOpen, at(now.Add(-24*time.Hour)))
	f.task(t, "Plan offsite", core.StatusOpen, at(now.Add(10*24*time.Hour)))
	f.task(t, "Learn piano", core.StatusOpen, nil)

	rec, err := f.svc.RecalculatePriorities(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if rec.UpdatedCount != 3 || len(rec.Tasks) != 3 {
		t.Errorf("recalculate %+v", rec)
	}

	next, err := f.svc.GetNextAction(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if next.Recommendation == nil || next.Recommendation.ID != overdue.ID {
		t.Errorf("next action %+v, want %s", next.Recommendation, overdue.ID)
	}

	alerts, err := f.svc.CheckAlerts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if alerts.OverdueCount != 1 || alerts.OverdueTasks[0].TaskID != overdue.ID || alerts.OverdueTasks[0].Severity != core.SeverityHigh {
		t.Errorf("alerts %+v", alerts)
	}
	if alerts.StuckCount != 0 {
		t.Errorf("stuck count %d, want 0", alerts.StuckCount)
	}

	sug, err := f.svc.SuggestDeadlines(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !sug.Success || sug.Updated != 1 || len(sug.Suggestions) != 1 {
		t.Errorf("suggestions %+v", sug)
	}
}

func TestNextActionNone(t *testing.T) {
	f := newFixture(t)
	f.task(t, "Already done", core.StatusDone, nil)

	next, err := f.svc.GetNextAction(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if next.Recommendation != nil {
		t.Errorf("got %+v, want no recommendation", next.Recommendation)
	}
}

func TestUpdateTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.task(t, "Renew passport", core.StatusOpen, nil)

	if _, err := f.svc.UpdateTask(ctx, task.ID, core.TaskUpdate{}); !core.IsValidation(err) {
		t.Errorf("empty update: got %v, want validation", err)
	}

	status := core.StatusInProgress
	updated, err := f.svc.UpdateTask(ctx, task.ID, core.TaskUpdate{Status: &status})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != core.StatusInProgress || updated.PriorityScore <= task.PriorityScore {
		t.Errorf("update not rescored: before %v after %+v", task.PriorityScore, updated)
	}

	if _, err := f.svc.UpdateTask(ctx, "missing", core.TaskUpdate{Status: &status}); !core.IsNotFound(err) {
		t.Errorf("unknown task: got %v, want not found", err)
	}
}
