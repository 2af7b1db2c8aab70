package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ravi-parthasarathy/codecrew/pkg/pipeline"
)

// isolate runs the test from an empty directory with HOME pointing at it, so
// no stray codecrew.yaml or .env is picked up.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("server.addr = %q", cfg.Server.Addr)
	}
	if cfg.LLM.Provider != "openai" || cfg.LLM.BaseURL != "http://localhost:11434/v1" || cfg.LLM.DefaultModel != "mistral:7b-instruct" {
		t.Errorf("llm = %+v", cfg.LLM)
	}
	if cfg.Pipeline.StageTimeout != 2*time.Minute || cfg.Pipeline.MaxAttempts != 1 {
		t.Errorf("pipeline = %+v", cfg.Pipeline)
	}
	if cfg.Stream.CodeChunkSize != 120 || cfg.Stream.ProseChunkSize != 160 || cfg.Stream.ChunkDelay != 40*time.Millisecond {
		t.Errorf("stream = %+v", cfg.Stream)
	}
	if cfg.Store.RedisAddr != "" || cfg.Store.TTL != 24*time.Hour || cfg.Store.MaxRuns != 1000 {
		t.Errorf("store = %+v", cfg.Store)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("log = %+v", cfg.Log)
	}
	if got := cfg.PipelineOptions().RefinePolicy; got != pipeline.RefineOnFindings {
		t.Errorf("refine policy = %q", got)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.yaml")
	writeFile(t, path, `
server:
  addr: ":9090"
llm:
  default_model: qwen2.5-coder
  request_timeout: 30s
pipeline:
  refine_policy: marker
  max_attempts: 3
stream:
  chunk_delay: 0s
store:
  redis_addr: localhost:6379
  redis_db: 2
  ttl: 1h
`)
	t.Setenv("CODECREW_SERVER_ADDR", ":7070")
	t.Setenv("CODECREW_LLM_USE_STREAMING", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":7070" {
		t.Errorf("env should override file: addr = %q", cfg.Server.Addr)
	}
	if cfg.LLM.DefaultModel != "qwen2.5-coder" || cfg.LLM.RequestTimeout != 30*time.Second || !cfg.LLM.UseStreaming {
		t.Errorf("llm = %+v", cfg.LLM)
	}
	opts := cfg.PipelineOptions()
	if opts.RefinePolicy != pipeline.RefineOnMarker || opts.MaxAttempts != 3 {
		t.Errorf("pipeline options = %+v", opts)
	}
	if cfg.StreamOptions().ChunkDelay != 0 {
		t.Errorf("chunk delay = %v", cfg.StreamOptions().ChunkDelay)
	}

	if rc := cfg.RedisConfig(); rc.Addr != "localhost:6379" || rc.DB != 2 || rc.TTL != time.Hour {
		t.Errorf("redis config = %+v", rc)
	}

	lc := cfg.LLMClientConfig()
	if lc.DefaultModel != "qwen2.5-coder" || lc.Provider != "openai" || !lc.UseStreaming {
		t.Errorf("llm client config = %+v", lc)
	}
}

func TestLoad_SearchPath(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, "codecrew.yaml"), "log:\n  level: debug\n")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log.level = %q, want codecrew.yaml from working directory", cfg.Log.Level)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	dir := isolate(t)
	const key = "CODECREW_LLM_GEMINI_API_KEY"
	if _, set := os.LookupEnv(key); set {
		t.Skipf("%s already set in the environment", key)
	}
	t.Cleanup(func() { os.Unsetenv(key) })
	writeFile(t, filepath.Join(dir, ".env"), key+"=from-dotenv\n")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.GeminiAPIKey != "from-dotenv" {
		t.Errorf("gemini key = %q", cfg.LLM.GeminiAPIKey)
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := isolate(t)
	cases := map[string]string{
		"bad policy":   "pipeline:\n  refine_policy: always\n",
		"bad attempts": "pipeline:\n  max_attempts: 0\n",
		"bad chunk":    "stream:\n  code_chunk_size: -1\n",
		"bad ttl":      "store:\n  ttl: -1h\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, strings.ReplaceAll(name, " ", "_")+".yaml")
			writeFile(t, path, body)
			if _, err := Load(path); err == nil {
				t.Error("want error")
			}
		})
	}
	t.Run("missing explicit file", func(t *testing.T) {
		if _, err := Load(filepath.Join(dir, "nope.yaml")); err == nil {
			t.Error("want error")
		}
	})
}
