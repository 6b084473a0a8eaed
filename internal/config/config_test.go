package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  database_path: "./kaiwa.db"
vectorization:
  update_debounce: 250ms
  workers: 4
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Debug {
		t.Error("debug should default to false")
	}
	if cfg.Vectorization.UpdateDebounce != 250*time.Millisecond || cfg.Vectorization.Workers != 4 {
		t.Errorf("vectorization = %+v", cfg.Vectorization)
	}
	if cfg.Embedding.Provider == "" || cfg.Storage.Driver != DriverSQLite {
		t.Errorf("defaults not applied: provider=%q driver=%q", cfg.Embedding.Provider, cfg.Storage.Driver)
	}
}

func TestLoad_debug(t *testing.T) {
	cfg, err := Load(writeConfig(t, "debug: true\n"))
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug: true was not honored")
	}
}

func TestLoad_errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := Load(writeConfig(t, "server: [not, a, map]\n")); err == nil {
		t.Error("expected parse error")
	}
	if _, err := Load(writeConfig(t, "storage:\n  driver: postgres\n")); err == nil {
		t.Error("expected validation error for postgres without dsn")
	}
}

func TestLoad_pathsRelativeToConfigDir(t *testing.T) {
	path := writeConfig(t, `
storage:
  database_path: "./data/db/kaiwa.db"
  bleve_index_path: "./data/segments.bleve"
embedding:
  persistent_cache_path: "./data/cache"
`)
	dir := filepath.Dir(path)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct{ got, want string }{
		{cfg.Storage.DatabasePath, filepath.Join(dir, "data", "db", "kaiwa.db")},
		{cfg.Storage.BleveIndexPath, filepath.Join(dir, "data", "segments.bleve")},
		{cfg.Embedding.PersistentCachePath, filepath.Join(dir, "data", "cache")},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %s, want %s", tt.got, tt.want)
		}
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	tests := []struct {
		in, want string
	}{
		{"/var/lib/kaiwa.db", "/var/lib/kaiwa.db"},
		{"./kaiwa.db", "/etc/kaiwa/kaiwa.db"},
		{".", "/etc/kaiwa"},
		{".kaiwa/kaiwa.db", filepath.Join(home, ".kaiwa", "kaiwa.db")},
	}
	for _, tt := range tests {
		if got := expandPath(tt.in, "/etc/kaiwa"); got != tt.want {
			t.Errorf("expandPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoad_envOverrides(t *testing.T) {
	t.Setenv(EnvPostgresDSN, "postgres://localhost/kaiwa")
	t.Setenv(EnvOpenAIAPIKey, "sk-test")
	cfg, err := Load(writeConfig(t, "storage:\n  driver: postgres\nembedding:\n  provider: openai\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Storage.PostgresDSN != "postgres://localhost/kaiwa" {
		t.Errorf("postgres_dsn = %q", cfg.Storage.PostgresDSN)
	}
	if cfg.Embedding.OpenAI.APIKey != "sk-test" {
		t.Errorf("openai api key = %q", cfg.Embedding.OpenAI.APIKey)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(*Config) {}, false},
		{"postgres with dsn", func(c *Config) {
			c.Storage.Driver = DriverPostgres
			c.Storage.PostgresDSN = "postgres://localhost/kaiwa"
		}, false},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "mysql" }, true},
		{"postgres without dsn", func(c *Config) { c.Storage.Driver = DriverPostgres }, true},
		{"unknown provider", func(c *Config) { c.Embedding.Provider = "bert" }, true},
		{"negative weight", func(c *Config) { c.Search.TextWeight = -1 }, true},
		{"threshold above one", func(c *Config) { c.Segmentation.ThematicThreshold = 1.5 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			ApplyDefaults(cfg)
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	checks := []struct {
		name string
		ok   bool
	}{
		{"host", cfg.Server.Host == "localhost"},
		{"port", cfg.Server.Port == 8080},
		{"driver", cfg.Storage.Driver == DriverSQLite},
		{"dimensions", cfg.Embedding.Dimensions == 384},
		{"weights", cfg.Search.VectorWeight == 0.7 && cfg.Search.TextWeight == 0.3},
		{"snippet length", cfg.Search.SnippetLength == 200},
		{"thematic threshold", cfg.Segmentation.ThematicThreshold == 0.7},
		{"workers", cfg.Vectorization.Workers == 1},
	}
	for _, c := range checks {
		if !c.ok {
			t.Errorf("unexpected default for %s: %+v", c.name, cfg)
		}
	}
}

func TestApplyDefaults_keepsExplicitWeights(t *testing.T) {
	cfg := &Config{Search: SearchConfig{VectorWeight: 1}}
	ApplyDefaults(cfg)
	if cfg.Search.VectorWeight != 1 || cfg.Search.TextWeight != 0 {
		t.Errorf("explicit weights overwritten: %v/%v", cfg.Search.VectorWeight, cfg.Search.TextWeight)
	}
}

func TestSave_roundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved.yaml")
	cfg := &Config{}
	ApplyDefaults(cfg)
	cfg.Server.Port = 9090
	cfg.Storage.DatabasePath = "/tmp/kaiwa.db"
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 || loaded.Storage.DatabasePath != "/tmp/kaiwa.db" {
		t.Errorf("loaded = %+v", loaded.Server)
	}
}
