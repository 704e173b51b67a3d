package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/Iron-Ham/agentsync/internal/store"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg == nil {
		t.Fatal("Default() returned nil")
	}

	if cfg.Store.Backend != store.BackendFile {
		t.Errorf("Store.Backend = %q, want %q", cfg.Store.Backend, store.BackendFile)
	}
	if cfg.Store.Namespace != "ai_collaboration" {
		t.Errorf("Store.Namespace = %q, want %q", cfg.Store.Namespace, "ai_collaboration")
	}
	if cfg.Store.TTL != time.Hour {
		t.Errorf("Store.TTL = %v, want 1h", cfg.Store.TTL)
	}
	if cfg.Wait.PollInterval != time.Second {
		t.Errorf("Wait.PollInterval = %v, want 1s", cfg.Wait.PollInterval)
	}
	if cfg.Wait.DefaultTimeout != 30*time.Second {
		t.Errorf("Wait.DefaultTimeout = %v, want 30s", cfg.Wait.DefaultTimeout)
	}
	if cfg.Cleanup.MaxAge != 24*time.Hour {
		t.Errorf("Cleanup.MaxAge = %v, want 24h", cfg.Cleanup.MaxAge)
	}
	if cfg.Orchestration.StallThreshold != 30*time.Minute {
		t.Errorf("Orchestration.StallThreshold = %v, want 30m", cfg.Orchestration.StallThreshold)
	}
	if cfg.Orchestration.AutoApprove {
		t.Error("Orchestration.AutoApprove should be false by default")
	}
	if cfg.Metrics.Addr != "" {
		t.Errorf("Metrics.Addr = %q, want empty", cfg.Metrics.Addr)
	}
}

func TestLoad_Defaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg, err := load(v)
	if err != nil {
		t.Fatalf("load() error = %v", err)
	}
	if cfg.Store.TTL != time.Hour {
		t.Errorf("Store.TTL = %v, want 1h", cfg.Store.TTL)
	}
	if cfg.Store.Redis.ConnectTimeout != store.DefaultConnectTimeout {
		t.Errorf("Store.Redis.ConnectTimeout = %v, want %v", cfg.Store.Redis.ConnectTimeout, store.DefaultConnectTimeout)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
store:
  backend: redis
  namespace: team_a
  ttl: 2h
  redis:
    addr: redis:6379
    db: 2
wait:
  poll_interval: 250ms
cleanup:
  finished_max_age: 1h
workflow:
  exempt_dependencies: [monitoring_system, design_review]
orchestration:
  auto_approve: true
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		t.Fatalf("ReadInConfig() error = %v", err)
	}

	cfg, err := load(v)
	if err != nil {
		t.Fatalf("load() error = %v", err)
	}
	if cfg.Store.Backend != store.BackendRedis || cfg.Store.Namespace != "team_a" {
		t.Errorf("Store = %+v", cfg.Store)
	}
	if cfg.Store.TTL != 2*time.Hour {
		t.Errorf("Store.TTL = %v, want 2h", cfg.Store.TTL)
	}
	if cfg.Store.Redis.Addr != "redis:6379" || cfg.Store.Redis.DB != 2 {
		t.Errorf("Store.Redis = %+v", cfg.Store.Redis)
	}
	if cfg.Wait.PollInterval != 250*time.Millisecond {
		t.Errorf("Wait.PollInterval = %v, want 250ms", cfg.Wait.PollInterval)
	}
	if cfg.Cleanup.FinishedMaxAge != time.Hour {
		t.Errorf("Cleanup.FinishedMaxAge = %v, want 1h", cfg.Cleanup.FinishedMaxAge)
	}
	if len(cfg.Workflow.ExemptDependencies) != 2 {
		t.Errorf("Workflow.ExemptDependencies = %v", cfg.Workflow.ExemptDependencies)
	}
	if !cfg.Orchestration.AutoApprove {
		t.Error("Orchestration.AutoApprove should be true")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("AGENTSYNC_STORE_NAMESPACE", "from_env")
	t.Setenv("AGENTSYNC_WAIT_DEFAULT_TIMEOUT", "90s")
	t.Setenv("AGENTSYNC_WORKFLOW_EXEMPT_DEPENDENCIES", "a,b")

	v := viper.New()
	setDefaults(v)
	bindEnv(v)

	cfg, err := load(v)
	if err != nil {
		t.Fatalf("load() error = %v", err)
	}
	if cfg.Store.Namespace != "from_env" {
		t.Errorf("Store.Namespace = %q, want from_env", cfg.Store.Namespace)
	}
	if cfg.Wait.DefaultTimeout != 90*time.Second {
		t.Errorf("Wait.DefaultTimeout = %v, want 90s", cfg.Wait.DefaultTimeout)
	}
	if len(cfg.Workflow.ExemptDependencies) != 2 || cfg.Workflow.ExemptDependencies[1] != "b" {
		t.Errorf("Workflow.ExemptDependencies = %v, want [a b]", cfg.Workflow.ExemptDependencies)
	}
}

func TestLoad_Invalid(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("store.backend", "etcd")

	if _, err := load(v); err == nil {
		t.Fatal("load() should reject an unknown backend")
	}
}

func TestGet(t *testing.T) {
	// Set defaults in viper first (normally done by cmd init)
	SetDefaults()

	cfg := Get()
	if cfg == nil {
		t.Fatal("Get() returned nil")
	}
	if cfg.Store.Backend != store.BackendFile {
		t.Errorf("Get().Store.Backend = %q, want %q", cfg.Store.Backend, store.BackendFile)
	}
}

func TestStoreConfig_ResolveFileDir(t *testing.T) {
	home, _ := os.UserHomeDir()
	tests := []struct {
		name string
		dir  string
		want string
	}{
		{"default", "", "/repo/.agentsync/shared"},
		{"relative", "data", "/repo/data"},
		{"absolute", "/var/agentsync", "/var/agentsync"},
		{"home", "~/agentsync", filepath.Join(home, "agentsync")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := StoreConfig{File: FileStoreConfig{Dir: tt.dir}}
			if got := s.ResolveFileDir("/repo"); got != tt.want {
				t.Errorf("ResolveFileDir() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStoreConfig_Options(t *testing.T) {
	cfg := Default()
	cfg.Store.Backend = store.BackendRedis
	cfg.Store.Redis.Password = "secret"

	opts := cfg.Store.Options("/repo")
	if opts.Backend != store.BackendRedis {
		t.Errorf("Backend = %q", opts.Backend)
	}
	if opts.FileDir != "/repo/.agentsync/shared" {
		t.Errorf("FileDir = %q", opts.FileDir)
	}
	if opts.Redis.Addr != "localhost:6379" || opts.Redis.Password != "secret" {
		t.Errorf("Redis = %+v", opts.Redis)
	}
}

func TestCleanupConfig_Retention(t *testing.T) {
	c := CleanupConfig{MaxAge: 24 * time.Hour}
	p := c.Retention()
	if p.ActiveMaxAge != 24*time.Hour || p.FinishedMaxAge != 24*time.Hour {
		t.Errorf("Retention() = %+v, want uniform 24h", p)
	}

	c.FinishedMaxAge = time.Hour
	if p := c.Retention(); p.FinishedMaxAge != time.Hour {
		t.Errorf("FinishedMaxAge = %v, want 1h", p.FinishedMaxAge)
	}
}

func TestWorkflowConfig_Graph(t *testing.T) {
	t.Run("built-in graph", func(t *testing.T) {
		w := WorkflowConfig{ExemptDependencies: []string{"design_review", "monitoring_system"}}
		g, err := w.Graph()
		if err != nil {
			t.Fatalf("Graph() error = %v", err)
		}
		if !g.IsExempt("design_review") || !g.IsExempt("monitoring_system") {
			t.Errorf("Exempt = %v", g.Exempt)
		}
		if len(g.Exempt) != 2 {
			t.Errorf("Exempt = %v, want no duplicates", g.Exempt)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		w := WorkflowConfig{File: filepath.Join(t.TempDir(), "missing.yaml")}
		if _, err := w.Graph(); err == nil {
			t.Error("Graph() should fail for a missing file")
		}
	})
}

func TestConfigDir(t *testing.T) {
	t.Run("with XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/custom/config")
		if got := ConfigDir(); got != "/custom/config/agentsync" {
			t.Errorf("ConfigDir() = %q, want %q", got, "/custom/config/agentsync")
		}
	})

	t.Run("without XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")
		home, _ := os.UserHomeDir()
		expected := filepath.Join(home, ".config", "agentsync")
		if got := ConfigDir(); got != expected {
			t.Errorf("ConfigDir() = %q, want %q", got, expected)
		}
	})
}

func TestConfigFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	if got := ConfigFile(); got != "/custom/config/agentsync/config.yaml" {
		t.Errorf("ConfigFile() = %q", got)
	}
}
