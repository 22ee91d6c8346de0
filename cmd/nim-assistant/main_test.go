package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/becomeliminal/nim-assistant/assistant"
	"github.com/becomeliminal/nim-assistant/config"
	"github.com/becomeliminal/nim-assistant/core"
	"github.com/becomeliminal/nim-assistant/notify"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Embeddings.Provider = "mock"
	cfg.Embeddings.Dimensions = 32
	cfg.Storage.SQLitePath = filepath.Join(dir, "nim.db")
	cfg.Storage.IndexPath = ""
	cfg.Anthropic.APIKey = ""
	cfg.Log.Level = "error"
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"serve", "chat", "draft", "task", "recalc", "next", "deadlines", "alerts", "remember", "search", "reconcile", "config", "jobs"}
	for _, name := range want {
		if cmd, _, err := rootCmd.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Errorf("command %q not registered", name)
		}
	}
}

func TestAppWiring(t *testing.T) {
	a, err := newApp(testConfig(t))
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	ctx := context.Background()

	task, err := a.svc.CreateTask(ctx, core.NewTask{Title: "File taxes"})
	if err != nil {
		t.Fatal(err)
	}
	if task.PriorityScore == 0 {
		t.Errorf("new task not scored: %+v", task)
	}

	// Without an API key chat degrades instead of failing.
	resp, err := a.svc.Chat(ctx, assistantRequest("t1", "hi there"))
	if err != nil {
		t.Fatal(err)
	}
	if resp.Outcome != "degraded" {
		t.Errorf("outcome %q, want degraded", resp.Outcome)
	}

	if _, ok := a.notifier().(*notify.Log); !ok {
		t.Error("notifier without redis should log")
	}
	sched, err := a.scheduler()
	if err != nil {
		t.Fatal(err)
	}
	defer sched.Stop()
	if err := sched.RunAll(ctx); err != nil {
		t.Errorf("RunAll: %v", err)
	}
}

func TestLoadConfigFlag(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "embeddings:\n  provider: mock\nstorage:\n  sqlite_path: " + filepath.Join(dir, "x.db") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	old := configPath
	configPath = path
	defer func() { configPath = old }()

	cfg, err := loadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Embeddings.Provider != "mock" {
		t.Errorf("provider = %q", cfg.Embeddings.Provider)
	}
}

func assistantRequest(thread, msg string) assistant.ChatRequest {
	return assistant.ChatRequest{ThreadID: thread, Message: msg}
}
