package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/nbalepur/fact-repetition/config"
	"github.com/nbalepur/fact-repetition/pkg/api"
	"github.com/nbalepur/fact-repetition/pkg/api/handlers"
	"github.com/nbalepur/fact-repetition/pkg/fact"
	"github.com/nbalepur/fact-repetition/pkg/logger"
	"github.com/nbalepur/fact-repetition/pkg/predict"
	"github.com/nbalepur/fact-repetition/pkg/replay"
	"github.com/nbalepur/fact-repetition/pkg/sched"
	"github.com/nbalepur/fact-repetition/pkg/stats"
	"github.com/nbalepur/fact-repetition/pkg/storage/memory"
)

func TestServerStartup(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 18090 // Use different port for testing
	cfg.Metrics.Enabled = false

	log := logger.New(&logger.Config{
		Level:  logger.ErrorLevel,
		Format: "json",
		Output: "stdout",
	})

	store := memory.NewMemoryStorage()
	defer store.Close()

	engine := sched.NewEngine(predict.NewEmpirical(),
		sched.WithHorizonDays(float64(cfg.Scheduler.HorizonDays)),
	)
	scheduler := sched.NewScheduler(store, engine,
		sched.WithLogger(log),
		sched.WithDefaultPolicy(cfg.Scheduler.DefaultPolicy),
	)

	apiHandlers := &api.Handlers{
		Schedule: handlers.NewScheduleHandler(scheduler, log),
		User:     handlers.NewUserHandler(scheduler, log),
		Stats:    handlers.NewStatsHandler(stats.NewService(store), log),
		Records:  handlers.NewRecordsHandler(store, replay.NewReplayer(store, engine), log),
		Health:   handlers.NewHealthHandler(store, "test"),
	}

	httpServer := api.NewHTTPServer(cfg, log, apiHandlers)

	serverErrChan := make(chan error, 1)
	go func() {
		if err := httpServer.Start(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- err
		}
	}()

	// Wait for server to start
	time.Sleep(100 * time.Millisecond)

	select {
	case err := <-serverErrChan:
		t.Fatalf("Server failed to start: %v", err)
	default:
	}

	for _, path := range []string{"/health", "/ready", "/status"} {
		resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d%s", cfg.Server.Port, path))
		if err != nil {
			t.Fatalf("Failed to call %s endpoint: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s returned status %d, want %d", path, resp.StatusCode, http.StatusOK)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		t.Errorf("Failed to shutdown server: %v", err)
	}
}

func TestBuildPredictor(t *testing.T) {
	log := logger.New(&logger.Config{
		Level:  logger.ErrorLevel,
		Format: "json",
		Output: "stdout",
	})

	cfg := config.DefaultConfig()
	cfg.Predictor.Type = "empirical"
	p, err := buildPredictor(cfg, log)
	if err != nil {
		t.Fatalf("buildPredictor(empirical) failed: %v", err)
	}
	if p == nil {
		t.Fatal("expected non-nil predictor")
	}

	cfg.Predictor.Type = "http"
	cfg.Predictor.URL = "http://localhost:8000/api/predict"
	p, err = buildPredictor(cfg, log)
	if err != nil {
		t.Fatalf("buildPredictor(http) failed: %v", err)
	}
	if p == nil {
		t.Fatal("expected non-nil predictor")
	}
}

func TestBuildEngine(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Scheduler.HorizonDays = 14

	engine := buildEngine(cfg, predict.NewEmpirical(), func() {})
	if engine == nil {
		t.Fatal("expected non-nil engine")
	}

	user := fact.NewUser("u-1")
	facts := []*fact.Fact{
		{ID: "f-1", Text: "capital of France", Answer: "Paris"},
		{ID: "f-2", Text: "capital of Japan", Answer: "Tokyo"},
	}
	ranking := engine.ScoreAndRank(context.Background(), user, facts, nil, time.Now())
	if len(ranking.Order) != 2 {
		t.Fatalf("expected 2 ranked facts, got %d", len(ranking.Order))
	}
}

func TestBuildOverrides(t *testing.T) {
	// Save original values
	origAppName := *appName
	origServerPort := *serverPort
	origLogLevel := *logLevel
	origDebugMode := *debugMode

	defer func() {
		*appName = origAppName
		*serverPort = origServerPort
		*logLevel = origLogLevel
		*debugMode = origDebugMode
	}()

	*appName = ""
	*serverPort = 0
	*logLevel = ""
	*debugMode = false

	overrides := buildOverrides()
	if len(overrides) != 0 {
		t.Errorf("Expected empty overrides, got %d items", len(overrides))
	}

	*appName = "test-app"
	*serverPort = 9090
	*logLevel = "debug"
	*debugMode = true

	overrides = buildOverrides()
	if len(overrides) != 4 {
		t.Errorf("Expected 4 overrides, got %d", len(overrides))
	}

	if overrides["app.name"] != "test-app" {
		t.Errorf("Expected app.name=test-app, got %v", overrides["app.name"])
	}
	if overrides["server.port"] != 9090 {
		t.Errorf("Expected server.port=9090, got %v", overrides["server.port"])
	}
	if overrides["log.level"] != "debug" {
		t.Errorf("Expected log.level=debug, got %v", overrides["log.level"])
	}
	if overrides["app.debug"] != true {
		t.Errorf("Expected app.debug=true, got %v", overrides["app.debug"])
	}
}

func TestPrintVersion(t *testing.T) {
	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	printVersion()

	w.Close()
	os.Stdout = oldStdout

	buf := make([]byte, 1024)
	n, _ := r.Read(buf)
	output := string(buf[:n])

	expectedStrings := []string{"Factsched", "Version:", "Build Time:", "Git Commit:", "Go Version:"}
	for _, expected := range expectedStrings {
		if !contains(output, expected) {
			t.Errorf("Expected output to contain %q, but it didn't. Output: %s", expected, output)
		}
	}
}

func TestPrintHelp(t *testing.T) {
	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	printHelp()

	w.Close()
	os.Stdout = oldStdout

	buf := make([]byte, 2048)
	n, _ := r.Read(buf)
	output := string(buf[:n])

	expectedStrings := []string{"Factsched", "Usage:", "Options:", "Examples:"}
	for _, expected := range expectedStrings {
		if !contains(output, expected) {
			t.Errorf("Expected output to contain %q, but it didn't. Output: %s", expected, output)
		}
	}
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && (s == substr || len(s) > len(substr) && containsHelper(s, substr))
}

func containsHelper(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
