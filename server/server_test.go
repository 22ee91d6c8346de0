package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/becomeliminal/nim-assistant/assistant"
	"github.com/becomeliminal/nim-assistant/core"
	"github.com/becomeliminal/nim-assistant/engine"
	"github.com/becomeliminal/nim-assistant/llm"
	"github.com/becomeliminal/nim-assistant/memory"
	"github.com/becomeliminal/nim-assistant/memory/embedder/mock"
	"github.com/becomeliminal/nim-assistant/memory/index/chromem"
	"github.com/becomeliminal/nim-assistant/metrics"
	"github.com/becomeliminal/nim-assistant/priority"
	"github.com/becomeliminal/nim-assistant/store/sqlite"
	"github.com/becomeliminal/nim-assistant/tools"
)

type echoClient struct{}

func (echoClient) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	last := req.Messages[len(req.Messages)-1]
	return &llm.Response{Text: "echo: " + last.Text, StopReason: "end_turn"}, nil
}

type fakePinger struct{ err error }

func (p *fakePinger) Ping(ctx context.Context) error { return p.err }

func newTestServer(t *testing.T, pinger Pinger) (*Server, *httptest.Server) {
	t.Helper()
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "server.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	idx, err := chromem.New()
	if err != nil {
		t.Fatal(err)
	}

	reg := prometheus.NewRegistry()
	mt := metrics.New(reg)
	mem := memory.NewManager(s, idx, mock.New(64), memory.DefaultConfig, memory.WithMetrics(mt))
	prio := priority.New(s, s, priority.DefaultConfig, priority.WithMetrics(mt))
	registry := engine.NewToolRegistry(tools.CreateTools(&tools.Deps{Tasks: s, Memory: mem, Priority: prio})...)
	eng := engine.NewEngine(echoClient{}, registry, s, nil, engine.WithMemory(mem), engine.WithMetrics(mt))
	svc := assistant.New(assistant.Deps{Engine: eng, Memory: mem, Priority: prio, Tasks: s})
	t.Cleanup(svc.Wait)

	srv := New(svc, Config{}, WithPinger(pinger), WithGatherer(reg))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func doJSON(t *testing.T, method, url string, body any, out any) int {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, r)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decode: %v", method, url, err)
		}
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	pinger := &fakePinger{}
	srv, ts := newTestServer(t, pinger)

	var body map[string]string
	if code := doJSON(t, "GET", ts.URL+"/health", nil, &body); code != http.StatusOK || body["status"] != "healthy" {
		t.Errorf("healthy: %d %v", code, body)
	}
	if got := srv.updateHealth(context.Background()); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("grpc status %v", got)
	}

	pinger.err = errors.New("disk I/O error")
	if code := doJSON(t, "GET", ts.URL+"/health", nil, &body); code != http.StatusServiceUnavailable {
		t.Errorf("unhealthy: got %d", code)
	}
	srv.updateHealth(context.Background())
	resp, err := srv.health.Check(context.Background(), &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("grpc status %v, want NOT_SERVING", resp.Status)
	}
}

func TestTaskEndpoints(t *testing.T) {
	_, ts := newTestServer(t, nil)

	var task core.Task
	code := doJSON(t, "POST", ts.URL+"/v1/tasks", map[string]string{"title": "Send Q2 report", "due_at": "2020-01-02"}, &task)
	if code != http.StatusCreated || task.ID == "" || task.DueAt == nil {
		t.Fatalf("create: %d %+v", code, task)
	}

	var errBody errorBody
	if code := doJSON(t, "POST", ts.URL+"/v1/tasks", map[string]string{"title": ""}, &errBody); code != http.StatusBadRequest || errBody.Error.Field != "title" {
		t.Errorf("invalid create: %d %+v", code, errBody)
	}
	if code := doJSON(t, "GET", ts.URL+"/v1/tasks/missing", nil, &errBody); code != http.StatusNotFound || errBody.Error.Kind != "not_found" {
		t.Errorf("missing task: %d %+v", code, errBody)
	}

	var updated core.Task
	if code := doJSON(t, "PATCH", ts.URL+"/v1/tasks/"+task.ID, map[string]string{"status": "in-progress"}, &updated); code != http.StatusOK || updated.Status != core.StatusInProgress {
		t.Errorf("update: %d %+v", code, updated)
	}

	var list struct {
		Tasks []core.Task `json:"tasks"`
		Count int         `json:"count"`
	}
	if code := doJSON(t, "GET", ts.URL+"/v1/tasks?status=in_progress", nil, &list); code != http.StatusOK || list.Count != 1 {
		t.Errorf("list: %d %+v", code, list)
	}
	if code := doJSON(t, "GET", ts.URL+"/v1/tasks?status=someday", nil, &errBody); code != http.StatusBadRequest {
		t.Errorf("bad status filter: %d", code)
	}

	var alerts assistant.AlertsResponse
	if code := doJSON(t, "GET", ts.URL+"/v1/alerts", nil, &alerts); code != http.StatusOK || alerts.OverdueCount != 1 {
		t.Errorf("alerts: %d %+v", code, alerts)
	}

	var next assistant.NextActionResponse
	if code := doJSON(t, "GET", ts.URL+"/v1/next-action", nil, &next); code != http.StatusOK || next.Recommendation == nil || next.Recommendation.ID != task.ID {
		t.Errorf("next action: %d %+v", code, next)
	}

	var rec assistant.RecalculateResponse
	if code := doJSON(t, "POST", ts.URL+"/v1/priorities/recalculate", nil, &rec); code != http.StatusOK || rec.UpdatedCount != 1 {
		t.Errorf("recalculate: %d %+v", code, rec)
	}
}

func TestMemoryEndpoints(t *testing.T) {
	_, ts := newTestServer(t, nil)

	var rem assistant.RememberResponse
	if code := doJSON(t, "POST", ts.URL+"/v1/memories", map[string]any{"content": "Dana's birthday is June 3", "type": "fact"}, &rem); code != http.StatusCreated || !rem.Searchable {
		t.Fatalf("remember: %d %+v", code, rem)
	}

	var res assistant.SearchResponse
	if code := doJSON(t, "POST", ts.URL+"/v1/memories/search", map[string]any{"query": "Dana's birthday is June 3"}, &res); code != http.StatusOK || res.Count != 1 {
		t.Errorf("search: %d %+v", code, res)
	}

	var errBody errorBody
	if code := doJSON(t, "POST", ts.URL+"/v1/memories", map[string]any{"content": "x", "type": "gossip"}, &errBody); code != http.StatusBadRequest {
		t.Errorf("bad type: %d %+v", code, errBody)
	}
	if code := doJSON(t, "POST", ts.URL+"/v1/memories/reconcile?limit=zero", nil, &errBody); code != http.StatusBadRequest {
		t.Errorf("bad limit: %d", code)
	}
}

func TestChatEndpoint(t *testing.T) {
	_, ts := newTestServer(t, nil)

	var resp assistant.ChatResponse
	if code := doJSON(t, "POST", ts.URL+"/v1/chat", map[string]string{"message": "hello"}, &resp); code != http.StatusOK {
		t.Fatalf("chat: %d", code)
	}
	if resp.Response != "echo: hello" || resp.ThreadID == "" {
		t.Errorf("chat response %+v", resp)
	}

	var errBody errorBody
	if code := doJSON(t, "POST", ts.URL+"/v1/chat", map[string]string{"message": " "}, &errBody); code != http.StatusBadRequest {
		t.Errorf("empty message: %d", code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts := newTestServer(t, nil)
	doJSON(t, "POST", ts.URL+"/v1/chat", map[string]string{"message": "hello", "thread_id": "m1"}, nil)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "nim_chat_requests_total") {
		t.Errorf("metrics missing chat counter:\n%s", body)
	}
}

func TestWebSocketChat(t *testing.T) {
	_, ts := newTestServer(t, nil)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))

	read := func() ServerMessage {
		t.Helper()
		var msg ServerMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatal(err)
		}
		return msg
	}

	if err := conn.WriteJSON(ClientMessage{Type: MsgNewConversation}); err != nil {
		t.Fatal(err)
	}
	started := read()
	if started.Type != MsgConversationStarted || started.ThreadID == "" {
		t.Fatalf("got %+v", started)
	}

	conn.WriteJSON(ClientMessage{Type: MsgMessage, Content: "what is due?"})
	if msg := read(); msg.Type != MsgThinking {
		t.Errorf("got %+v, want thinking", msg)
	}
	text := read()
	if text.Type != MsgText || text.Content != "echo: what is due?" || text.ThreadID != started.ThreadID || text.Outcome != "complete" {
		t.Errorf("got %+v", text)
	}

	conn.WriteJSON(ClientMessage{Type: MsgPing})
	if msg := read(); msg.Type != MsgPong {
		t.Errorf("got %+v, want pong", msg)
	}

	conn.WriteJSON(ClientMessage{Type: "dance"})
	if msg := read(); msg.Type != MsgError {
		t.Errorf("got %+v, want error", msg)
	}

	conn.WriteJSON(ClientMessage{Type: MsgMessage, Content: ""})
	read() // thinking
	if msg := read(); msg.Type != MsgError {
		t.Errorf("empty message: got %+v, want error", msg)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&core.ValidationError{Field: "x", Constraint: "bad"}, http.StatusBadRequest},
		{&core.NotFoundError{Kind: "task", ID: "t1"}, http.StatusNotFound},
		{core.NewDependencyError(core.DepGeneration, "generate", errors.New("529")), http.StatusServiceUnavailable},
		{core.NewDependencyError(core.DepStore, "read", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got, _ := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
