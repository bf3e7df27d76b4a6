package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alphabot-ai/threadline/internal/client"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "threadline.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.API.BaseURL != client.DefaultBaseURL {
		t.Errorf("unexpected base url %s", cfg.API.BaseURL)
	}
	if cfg.Cache.Comments != 150 || cfg.Cache.Links != 100 {
		t.Errorf("unexpected cache capacities %+v", cfg.Cache)
	}
	if cfg.Store.Driver != StoreSQLite {
		t.Errorf("unexpected store driver %s", cfg.Store.Driver)
	}
	if len(cfg.OAuth.Scopes) != 2 {
		t.Errorf("unexpected scopes %v", cfg.OAuth.Scopes)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("THREADLINE_RPM", "30")
	t.Setenv("THREADLINE_TIMEOUT", "5s")
	t.Setenv("THREADLINE_ALLOW_NSFW", "true")
	t.Setenv("THREADLINE_CACHE_COMMENTS", "not-a-number")

	cfg := FromEnv()
	if cfg.API.RequestsPerMinute != 30 {
		t.Errorf("expected 30 rpm, got %d", cfg.API.RequestsPerMinute)
	}
	if cfg.API.Timeout != 5*time.Second {
		t.Errorf("expected 5s timeout, got %s", cfg.API.Timeout)
	}
	if !cfg.AllowNSFW {
		t.Error("expected allow nsfw")
	}
	if cfg.Cache.Comments != 150 {
		t.Errorf("invalid numbers must fall back to the default, got %d", cfg.Cache.Comments)
	}

	cc := cfg.Client()
	if cc.RequestsPerMinute != 30 || cc.Timeout != 5*time.Second {
		t.Errorf("unexpected client config %+v", cc)
	}
}

func TestFileOverridesEnv(t *testing.T) {
	t.Setenv("THREADLINE_CLIENT_ID", "from-env")
	t.Setenv("BUCKET_NAME", "cursors")
	path := writeFile(t, `
log_level: debug
api:
  timeout: 10s
  page_limit: 50
oauth:
  scopes: [read, history]
store:
  driver: nats
  bucket: ${BUCKET_NAME}
cache:
  comments: 500
tree:
  auto_expand_depth: 3
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "debug" || cfg.API.Timeout != 10*time.Second || cfg.API.PageLimit != 50 {
		t.Errorf("unexpected api config %+v", cfg.API)
	}
	if cfg.OAuth.ClientID != "from-env" {
		t.Errorf("keys missing from the file must keep the env value, got %q", cfg.OAuth.ClientID)
	}
	if strings.Join(cfg.OAuth.Scopes, " ") != "read history" {
		t.Errorf("unexpected scopes %v", cfg.OAuth.Scopes)
	}
	if cfg.Store.Driver != StoreNATS || cfg.Store.Bucket != "cursors" {
		t.Errorf("unexpected store config %+v", cfg.Store)
	}
	if cfg.Cache.Comments != 500 || cfg.Cache.Links != 100 {
		t.Errorf("unexpected cache config %+v", cfg.Cache)
	}
	if cfg.Tree.AutoExpandDepth != 3 {
		t.Errorf("unexpected auto expand depth %d", cfg.Tree.AutoExpandDepth)
	}
}

func TestValidation(t *testing.T) {
	cases := map[string]string{
		"log level":   "log_level: loud\n",
		"store":       "store:\n  driver: redis\n",
		"base url":    "api:\n  base_url: not a url\n",
		"page limit":  "api:\n  page_limit: 500\n",
		"capacity":    "cache:\n  links: -1\n",
		"bot alg":     "bot:\n  alg: rsa\n",
		"auto expand": "tree:\n  auto_expand_depth: -2\n",
	}
	for name, content := range cases {
		if _, err := Load(writeFile(t, content)); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
