package engine

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/becomeliminal/nim-assistant/core"
	"github.com/becomeliminal/nim-assistant/llm"
	"github.com/becomeliminal/nim-assistant/memory"
	"github.com/becomeliminal/nim-assistant/memory/embedder/mock"
	"github.com/becomeliminal/nim-assistant/memory/index/chromem"
	"github.com/becomeliminal/nim-assistant/metrics"
	"github.com/becomeliminal/nim-assistant/store/sqlite"
	"github.com/becomeliminal/nim-assistant/tools"
)

// scriptedClient answers Generate calls from a function and records
// every request.
type scriptedClient struct {
	mu       sync.Mutex
	requests []*llm.Request
	respond  func(n int, req *llm.Request) (*llm.Response, error)
}

func (c *scriptedClient) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	c.mu.Lock()
	n := len(c.requests)
	c.requests = append(c.requests, req)
	c.mu.Unlock()
	return c.respond(n, req)
}

func (c *scriptedClient) calls() []*llm.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*llm.Request(nil), c.requests...)
}

func textReply(text string) func(int, *llm.Request) (*llm.Response, error) {
	return func(int, *llm.Request) (*llm.Response, error) {
		return &llm.Response{Text: text, StopReason: "end_turn", Usage: llm.Usage{InputTokens: 10, OutputTokens: 5}}, nil
	}
}

func toolCall(id, name string, input interface{}) llm.ToolCall {
	raw, _ := json.Marshal(input)
	return llm.ToolCall{ID: id, Name: name, Input: raw}
}

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "engine.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newMemory(t *testing.T, s *sqlite.Store, emb memory.Embedder) *memory.Manager {
	t.Helper()
	idx, err := chromem.New()
	if err != nil {
		t.Fatal(err)
	}
	if emb == nil {
		emb = mock.New(64)
	}
	return memory.NewManager(s, idx, emb, memory.DefaultConfig)
}

type lookupCounter struct {
	calls atomic.Int32
}

func (l *lookupCounter) tool() core.Tool {
	return tools.New("lookup").
		Description("Look something up").
		Schema(tools.BuildSchemaWithThought(tools.Schema{"key": tools.StringProperty("key")}, false, "key")).
		Handler(func(ctx context.Context, params *core.ToolParams) (*core.ToolResult, error) {
			l.calls.Add(1)
			var in struct {
				Key string `json:"key"`
			}
			json.Unmarshal(params.Input, &in)
			return &core.ToolResult{Success: true, Data: map[string]interface{}{"value": "value-of-" + in.Key}}, nil
		})
}

func TestRunPlainAnswer(t *testing.T) {
	s := newStore(t)
	client := &scriptedClient{respond: textReply("  Call Miller first.  ")}

	var mu sync.Mutex
	var states []State
	e := NewEngine(client, nil, s, nil, WithStateObserver(func(threadID string, from, to State) {
		mu.Lock()
		states = append(states, to)
		mu.Unlock()
	}))

	out, err := e.Run(context.Background(), &Input{ThreadID: "t1", Message: "what should I do next?"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Type != OutputComplete || out.Text != "Call Miller first." {
		t.Errorf("unexpected output %+v", out)
	}
	if out.RequestID == "" || out.Timestamp.IsZero() || out.ThreadID != "t1" {
		t.Errorf("missing identifiers: %+v", out)
	}
	if out.TokensUsed.InputTokens != 10 {
		t.Errorf("tokens not accounted: %+v", out.TokensUsed)
	}

	want := []State{StateRetrieving, StateGenerating, StateResponding, StateIdle}
	if len(states) != len(want) {
		t.Fatalf("states %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("state %d: got %s, want %s", i, states[i], want[i])
		}
	}

	th, err := s.GetThread(context.Background(), "t1")
	if err != nil {
		t.Fatal(err)
	}
	if len(th.Turns) != 2 || th.Turns[0].Role != core.RoleUser || th.Turns[1].Text != "Call Miller first." {
		t.Errorf("unexpected turns %+v", th.Turns)
	}
	if th.Scratch.Values["last_request_id"] != out.RequestID {
		t.Errorf("scratch not updated: %+v", th.Scratch)
	}
}

func TestRunValidation(t *testing.T) {
	e := NewEngine(&scriptedClient{respond: textReply("x")}, nil, newStore(t), nil)
	if _, err := e.Run(context.Background(), &Input{ThreadID: "", Message: "hi"}); !core.IsValidation(err) {
		t.Errorf("expected ValidationError for empty thread, got %v", err)
	}
	if _, err := e.Run(context.Background(), &Input{ThreadID: "t1", Message: "   "}); !core.IsValidation(err) {
		t.Errorf("expected ValidationError for empty message, got %v", err)
	}
}

func TestRunToolLoop(t *testing.T) {
	s := newStore(t)
	counter := &lookupCounter{}
	client := &scriptedClient{respond: func(n int, req *llm.Request) (*llm.Response, error) {
		if n == 0 {
			return &llm.Response{Text: "Let me check.", ToolCalls: []llm.ToolCall{toolCall("call-1", "lookup", map[string]string{"key": "t1"})}}, nil
		}
		return &llm.Response{Text: "The value is value-of-t1."}, nil
	}}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	e := NewEngine(client, NewToolRegistry(counter.tool()), s, nil, WithMetrics(m))

	out, err := e.Run(context.Background(), &Input{ThreadID: "t1", Message: "look up t1"})
	if err != nil {
		t.Fatal(err)
	}
	if out.Type != OutputComplete || out.Text != "The value is value-of-t1." {
		t.Errorf("unexpected output %+v", out)
	}
	if counter.calls.Load() != 1 || len(out.ToolsUsed) != 1 || out.Iterations != 1 {
		t.Errorf("expected one tool round, got calls=%d used=%d iterations=%d", counter.calls.Load(), len(out.ToolsUsed), out.Iterations)
	}

	reqs := client.calls()
	if len(reqs) != 2 {
		t.Fatalf("expected 2 generations, got %d", len(reqs))
	}
	if len(reqs[0].Tools) != 1 || reqs[0].Tools[0].Name != "lookup" {
		t.Errorf("tool descriptors not sent: %+v", reqs[0].Tools)
	}
	second := reqs[1].Messages
	last := second[len(second)-1]
	if last.Role != llm.RoleUser || len(last.ToolResults) != 1 || last.ToolResults[0].CallID != "call-1" {
		t.Fatalf("tool result not fed back: %+v", last)
	}
	if !strings.Contains(last.ToolResults[0].Content, "value-of-t1") || last.ToolResults[0].IsError {
		t.Errorf("unexpected tool result %+v", last.ToolResults[0])
	}
	if assistant := second[len(second)-2]; assistant.Role != llm.RoleAssistant || len(assistant.ToolCalls) != 1 {
		t.Errorf("assistant tool call not replayed: %+v", assistant)
	}
	if v := testutil.ToFloat64(m.ToolCalls.WithLabelValues("lookup", metrics.OK)); v != 1 {
		t.Errorf("expected tool metric 1, got %v", v)
	}
	if v := testutil.ToFloat64(m.ChatRequests.WithLabelValues("complete")); v != 1 {
		t.Errorf("expected chat metric 1, got %v", v)
	}

	th, _ := s.GetThread(context.Background(), "t1")
	if len(th.Scratch.LastToolResults) != 1 || th.Scratch.LastToolResults[0].Tool != "lookup" {
		t.Errorf("scratch should carry tool results, got %+v", th.Scratch)
	}
}

func TestRunLoopBound(t *testing.T) {
	counter := &lookupCounter{}
	client := &scriptedClient{respond: func(n int, req *llm.Request) (*llm.Response, error) {
		return &llm.Response{ToolCalls: []llm.ToolCall{toolCall("c", "lookup", map[string]string{"key": "again"})}}, nil
	}}
	e := NewEngine(client, NewToolRegistry(counter.tool()), newStore(t), &Config{MaxToolIterations: 2})

	out, err := e.Run(context.Background(), &Input{ThreadID: "loop", Message: "keep going"})
	if err != nil {
		t.Fatalf("loop bound must not fail the turn: %v", err)
	}
	if out.Type != OutputPartial || !out.IsLoopBound() {
		t.Errorf("expected partial output with loop bound, got %v %v", out.Type, out.Err)
	}
	if !errors.Is(out.Err, core.ErrLoopBoundExceeded) {
		t.Errorf("expected ErrLoopBoundExceeded, got %v", out.Err)
	}
	if counter.calls.Load() != 2 || len(client.calls()) != 3 {
		t.Errorf("expected 2 tool rounds and 3 generations, got %d and %d", counter.calls.Load(), len(client.calls()))
	}
	if len(out.Warnings) == 0 || !strings.Contains(out.Text, "value-of-again") {
		t.Errorf("expected warning and partial findings, got %+v", out)
	}
}

func TestWriteToolRequiresThought(t *testing.T) {
	var executed atomic.Bool
	write := tools.New("write_note").
		Description("Write a note").
		Schema(tools.BuildSchemaWithThought(tools.Schema{}, true)).
		Writes().
		Handler(func(ctx context.Context, params *core.ToolParams) (*core.ToolResult, error) {
			executed.Store(true)
			return &core.ToolResult{Success: true, Data: "ok"}, nil
		})

	client := &scriptedClient{respond: func(n int, req *llm.Request) (*llm.Response, error) {
		switch n {
		case 0:
			return &llm.Response{ToolCalls: []llm.ToolCall{toolCall("w1", "write_note", map[string]string{})}}, nil
		case 1:
			return &llm.Response{ToolCalls: []llm.ToolCall{
				toolCall("w2", "write_note", map[string]string{"thought": "user asked to note this"}),
				toolCall("w3", "missing_tool", map[string]string{}),
			}}, nil
		default:
			return &llm.Response{Text: "Done."}, nil
		}
	}}
	e := NewEngine(client, NewToolRegistry(write), newStore(t), nil)

	out, err := e.Run(context.Background(), &Input{ThreadID: "w", Message: "note that"})
	if err != nil {
		t.Fatal(err)
	}
	reqs := client.calls()
	first := reqs[1].Messages[len(reqs[1].Messages)-1].ToolResults[0]
	if !first.IsError || !strings.Contains(first.Content, "thought") {
		t.Errorf("expected thought rejection, got %+v", first)
	}
	second := reqs[2].Messages[len(reqs[2].Messages)-1].ToolResults
	if len(second) != 2 || second[0].IsError || !second[1].IsError || !strings.Contains(second[1].Content, "unknown tool") {
		t.Errorf("unexpected results %+v", second)
	}
	if !executed.Load() || len(out.ToolsUsed) != 1 {
		t.Errorf("write tool should run once with a thought, used=%d", len(out.ToolsUsed))
	}
}

func TestGenerationFailureApologizes(t *testing.T) {
	s := newStore(t)
	client := &scriptedClient{respond: func(int, *llm.Request) (*llm.Response, error) {
		return nil, errors.New("503 overloaded")
	}}
	e := NewEngine(client, nil, s, nil)

	out, err := e.Run(context.Background(), &Input{ThreadID: "t1", Message: "hello there"})
	if err != nil {
		t.Fatalf("generation failure must not be returned: %v", err)
	}
	if out.Type != OutputDegraded || out.Text != apologyText {
		t.Errorf("expected apology, got %+v", out)
	}
	if !core.IsDependency(out.Err) {
		t.Errorf("expected DependencyError, got %v", out.Err)
	}
	th, err := s.GetThread(context.Background(), "t1")
	if err != nil || len(th.Turns) != 2 {
		t.Errorf("degraded exchange should still be recorded: %v %+v", err, th)
	}
}

func TestFollowUpSeesPreviousExchange(t *testing.T) {
	s := newStore(t)
	client := &scriptedClient{respond: func(n int, req *llm.Request) (*llm.Response, error) {
		if n == 0 {
			return &llm.Response{Text: "Send the Miller proposal."}, nil
		}
		return &llm.Response{Text: "Then book the dentist."}, nil
	}}
	e := NewEngine(client, nil, s, nil)
	ctx := context.Background()

	if _, err := e.Run(ctx, &Input{ThreadID: "t1", Message: "what should I do next?"}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Run(ctx, &Input{ThreadID: "t1", Message: "and after that?"}); err != nil {
		t.Fatal(err)
	}

	msgs := client.calls()[1].Messages
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages in the follow-up, got %+v", msgs)
	}
	want := []struct {
		role llm.Role
		text string
	}{
		{llm.RoleUser, "what should I do next?"},
		{llm.RoleAssistant, "Send the Miller proposal."},
		{llm.RoleUser, "and after that?"},
	}
	for i, w := range want {
		if msgs[i].Role != w.role || msgs[i].Text != w.text {
			t.Errorf("message %d: got %s %q, want %s %q", i, msgs[i].Role, msgs[i].Text, w.role, w.text)
		}
	}

	th, _ := s.GetThread(ctx, "t1")
	if len(th.Turns) != 4 {
		t.Fatalf("expected 4 turns, got %d", len(th.Turns))
	}
	for i, tn := range th.Turns {
		wantRole := core.RoleUser
		if i%2 == 1 {
			wantRole = core.RoleAssistant
		}
		if tn.Role != wantRole {
			t.Errorf("turn %d has role %s", i, tn.Role)
		}
	}
}

func TestRetrievalQueryIncludesRecentTurns(t *testing.T) {
	got := retrievalQuery("and after that?", []core.Turn{
		{Role: core.RoleUser, Text: "what should I do next?"},
		{Role: core.RoleAssistant, Text: "Send the Miller proposal."},
	})
	if !strings.Contains(got, "Miller proposal") || !strings.HasSuffix(got, "and after that?") {
		t.Errorf("unexpected query %q", got)
	}
}

// gatedClient blocks every Generate until released.
type gatedClient struct {
	entered chan string
	release chan struct{}
	active  atomic.Int32
	maxSeen atomic.Int32
}

func newGatedClient() *gatedClient {
	return &gatedClient{entered: make(chan string, 8), release: make(chan struct{})}
}

func (c *gatedClient) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	n := c.active.Add(1)
	defer c.active.Add(-1)
	for {
		old := c.maxSeen.Load()
		if n <= old || c.maxSeen.CompareAndSwap(old, n) {
			break
		}
	}
	last := req.Messages[len(req.Messages)-1].Text
	c.entered <- last
	select {
	case <-c.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &llm.Response{Text: "reply to " + last}, nil
}

func TestSameThreadIsSerialized(t *testing.T) {
	s := newStore(t)
	client := newGatedClient()
	e := NewEngine(client, nil, s, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, msg := range []string{"first message", "second message"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.Run(ctx, &Input{ThreadID: "t1", Message: msg}); err != nil {
				t.Errorf("run %q: %v", msg, err)
			}
		}()
	}

	<-client.entered
	select {
	case msg := <-client.entered:
		t.Fatalf("second turn %q started while the first was in flight", msg)
	case <-time.After(50 * time.Millisecond):
	}
	client.release <- struct{}{}
	<-client.entered
	client.release <- struct{}{}
	wg.Wait()

	if client.maxSeen.Load() != 1 {
		t.Errorf("same-thread turns overlapped: %d in flight", client.maxSeen.Load())
	}
	th, err := s.GetThread(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if len(th.Turns) != 4 {
		t.Fatalf("expected 4 turns, got %d", len(th.Turns))
	}
	if th.Turns[1].Text != "reply to "+th.Turns[0].Text || th.Turns[3].Text != "reply to "+th.Turns[2].Text {
		t.Errorf("turns interleaved: %+v", th.Turns)
	}
	if e.locks.len() != 0 {
		t.Errorf("thread locks leaked: %d", e.locks.len())
	}
}

func TestDifferentThreadsRunInParallel(t *testing.T) {
	client := newGatedClient()
	e := NewEngine(client, nil, newStore(t), nil)

	var wg sync.WaitGroup
	for _, id := range []string{"a", "b"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.Run(context.Background(), &Input{ThreadID: id, Message: "hello from " + id})
		}()
	}
	for i := 0; i < 2; i++ {
		select {
		case <-client.entered:
		case <-time.After(2 * time.Second):
			t.Fatal("threads did not run in parallel")
		}
	}
	client.release <- struct{}{}
	client.release <- struct{}{}
	wg.Wait()
	if client.maxSeen.Load() != 2 {
		t.Errorf("expected 2 concurrent generations, got %d", client.maxSeen.Load())
	}
}

func TestWaitForThreadHonoursContext(t *testing.T) {
	client := newGatedClient()
	e := NewEngine(client, nil, newStore(t), nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		e.Run(context.Background(), &Input{ThreadID: "t1", Message: "slow"})
	}()
	<-client.entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := e.Run(ctx, &Input{ThreadID: "t1", Message: "impatient"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error, got %v", err)
	}
	client.release <- struct{}{}
	<-done
}

type blockingEmbedder struct{}

func (blockingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingEmbedder) Dimensions() int { return 64 }

func TestRetrievalTimeoutDegradesToNoMemories(t *testing.T) {
	s := newStore(t)
	client := &scriptedClient{respond: textReply("fine")}
	e := NewEngine(client, nil, s, &Config{RetrievalTimeout: 20 * time.Millisecond, SummaryPolicy: memory.SummaryNever},
		WithMemory(newMemory(t, s, blockingEmbedder{})))

	out, err := e.Run(context.Background(), &Input{ThreadID: "t1", Message: "what did Miller say?"})
	if err != nil {
		t.Fatal(err)
	}
	if out.Type != OutputComplete || len(out.Memories) != 0 {
		t.Errorf("expected complete turn without memories, got %+v", out)
	}
	if strings.Contains(client.calls()[0].System, "RELEVANT MEMORIES") {
		t.Error("no memory block expected")
	}
}

func TestRetrievedMemoriesGroundThePrompt(t *testing.T) {
	s := newStore(t)
	mem := newMemory(t, s, nil)
	ctx := context.Background()
	if _, err := mem.Remember(ctx, "Client Miller prefers email over phone", memory.RememberOptions{Type: core.MemoryPreference}); err != nil {
		t.Fatal(err)
	}

	client := &scriptedClient{respond: textReply("Email Miller.")}
	e := NewEngine(client, nil, s, &Config{SummaryPolicy: memory.SummaryNever}, WithMemory(mem))

	out, err := e.Run(ctx, &Input{ThreadID: "t1", Message: "Client Miller prefers email over phone"})
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Memories) == 0 {
		t.Fatal("expected retrieved memories")
	}
	system := client.calls()[0].System
	if !strings.Contains(system, "=== RELEVANT MEMORIES ===") || !strings.Contains(system, "prefers email") {
		t.Errorf("memories missing from system prompt:\n%s", system)
	}
	th, _ := s.GetThread(ctx, "t1")
	if len(th.Scratch.LastMemories) != len(out.Memories) {
		t.Errorf("scratch should record retrieved memories, got %+v", th.Scratch.LastMemories)
	}
}

func TestSummaryMemoryWrittenInBackground(t *testing.T) {
	s := newStore(t)
	mem := newMemory(t, s, nil)
	client := &scriptedClient{respond: textReply("Noted, I'll remember that.")}
	e := NewEngine(client, nil, s, &Config{SummaryPolicy: memory.SummaryAlways}, WithMemory(mem))
	ctx := context.Background()

	if _, err := e.Run(ctx, &Input{ThreadID: "t1", Message: "My dentist is Dr. Park"}); err != nil {
		t.Fatal(err)
	}
	e.Wait()

	summary := memory.Summarize(memory.Exchange{User: "My dentist is Dr. Park", Assistant: "Noted, I'll remember that."})
	results, err := mem.Search(ctx, summary, memory.SearchOptions{Filter: map[string]string{memory.FilterType: string(core.MemoryConversation)}})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Source != "thread:t1" {
		t.Errorf("expected one conversation memory from thread t1, got %+v", results)
	}
}

func TestGuardrailsRejectFloods(t *testing.T) {
	s := newStore(t)
	client := &scriptedClient{respond: textReply("ok")}
	e := NewEngine(client, nil, s, nil, WithGuardrails(NewRateLimiter(1, 1)))
	ctx := context.Background()

	if out, _ := e.Run(ctx, &Input{ThreadID: "t1", Message: "one"}); out.Type != OutputComplete {
		t.Fatalf("first message should pass, got %v", out.Type)
	}
	out, err := e.Run(ctx, &Input{ThreadID: "t1", Message: "two"})
	if err != nil {
		t.Fatal(err)
	}
	if out.Type != OutputRejected || out.Text != rejectText {
		t.Errorf("expected rejection, got %+v", out)
	}
	if out, _ := e.Run(ctx, &Input{ThreadID: "t2", Message: "other thread"}); out.Type != OutputComplete {
		t.Errorf("other threads are limited separately, got %v", out.Type)
	}
	th, _ := s.GetThread(ctx, "t1")
	if len(th.Turns) != 2 {
		t.Errorf("rejected message must not be recorded, got %d turns", len(th.Turns))
	}
	if len(client.calls()) != 2 {
		t.Errorf("expected 2 generations, got %d", len(client.calls()))
	}
}

func TestGenerateMessageDraft(t *testing.T) {
	client := &scriptedClient{respond: textReply("\nHola Miller, ¿podemos hablar mañana?\n")}
	e := NewEngine(client, NewToolRegistry((&lookupCounter{}).tool()), newStore(t), nil)
	due := time.Date(2026, 6, 1, 17, 0, 0, 0, time.UTC)
	task := &core.Task{ID: "t1", Title: "Follow up with Miller", Status: core.StatusOpen, DueAt: &due}

	draft, err := e.GenerateMessageDraft(context.Background(), task, "reminder", "Spanish")
	if err != nil {
		t.Fatal(err)
	}
	if draft != "Hola Miller, ¿podemos hablar mañana?" {
		t.Errorf("unexpected draft %q", draft)
	}
	req := client.calls()[0]
	if len(req.Tools) != 0 {
		t.Error("drafts must not offer tools")
	}
	prompt := req.Messages[0].Text
	for _, want := range []string{"Follow up with Miller", "Spanish", "reminder", "2026"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}

	if _, err := e.GenerateMessageDraft(context.Background(), nil, "", ""); !core.IsValidation(err) {
		t.Errorf("expected ValidationError, got %v", err)
	}

	failing := NewEngine(&scriptedClient{respond: func(int, *llm.Request) (*llm.Response, error) {
		return nil, errors.New("down")
	}}, nil, newStore(t), nil)
	if _, err := failing.GenerateMessageDraft(context.Background(), task, "", ""); !core.IsDependency(err) {
		t.Errorf("expected DependencyError, got %v", err)
	}
}

func TestHistoryMessages(t *testing.T) {
	msgs := historyMessages([]core.Turn{
		{Role: core.RoleAssistant, Text: "orphan"},
		{Role: core.RoleUser, Text: "a"},
		{Role: core.RoleUser, Text: "b"},
		{Role: core.RoleAssistant, Text: "c"},
	})
	if len(msgs) != 2 || msgs[0].Text != "a\n\nb" || msgs[1].Role != llm.RoleAssistant {
		t.Errorf("unexpected history %+v", msgs)
	}
}

func TestStateTransitions(t *testing.T) {
	if !StateGenerating.CanTransition(StateToolDispatch) || !StateToolDispatch.CanTransition(StateGenerating) {
		t.Error("tool loop transitions must be allowed")
	}
	if StateRetrieving.CanTransition(StateToolDispatch) || StateIdle.CanTransition(StateResponding) {
		t.Error("unexpected allowed transition")
	}
	if StateToolDispatch.String() != "tool_dispatch" {
		t.Errorf("unexpected name %s", StateToolDispatch)
	}
}
