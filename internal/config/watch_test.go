package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func writeConfig(t *testing.T, path string, maxRounds int) {
	t.Helper()
	content := fmt.Sprintf(`negotiation:
  max_rounds: %d
  min_personas: 2
  max_personas: 4
  default_threshold: 0.6
  parallel_topics: 1
  top_k: 1
resilience:
  max_attempts: 2
  base_delay_ms: 10
  max_delay_ms: 40
dispatch:
  concurrency: 2
  segment_seconds: 5
providers:
  chains:
    video: [simulated]
logging:
  level: info
`, maxRounds)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

type reload struct {
	cfg *Config
	err error
}

func startWatcher(t *testing.T, path string) (*viper.Viper, chan reload) {
	t.Helper()
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		t.Fatalf("ReadInConfig: %v", err)
	}
	reloads := make(chan reload, 8)
	w, err := NewWatcher(v, func(cfg *Config, err error) {
		reloads <- reload{cfg, err}
	})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	w.SetDebounce(10 * time.Millisecond)
	w.Start()
	t.Cleanup(w.Stop)
	return v, reloads
}

func waitReload(t *testing.T, reloads chan reload) reload {
	t.Helper()
	select {
	case r := <-reloads:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
		return reload{}
	}
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, 3)
	_, reloads := startWatcher(t, path)

	writeConfig(t, path, 5)

	r := waitReload(t, reloads)
	if r.err != nil {
		t.Fatalf("reload error = %v", r.err)
	}
	if r.cfg.Negotiation.MaxRounds != 5 {
		t.Errorf("MaxRounds = %d, want 5", r.cfg.Negotiation.MaxRounds)
	}
	// Keys absent from the file come from the defaults.
	if want := Default().Logging.MaxSizeMB; r.cfg.Logging.MaxSizeMB != want {
		t.Errorf("Logging.MaxSizeMB = %d, want default %d", r.cfg.Logging.MaxSizeMB, want)
	}
}

func TestWatcher_RejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, 3)
	_, reloads := startWatcher(t, path)

	writeConfig(t, path, 0)

	r := waitReload(t, reloads)
	if r.err == nil || r.cfg != nil {
		t.Errorf("reload = %+v, want validation error", r)
	}
}

func TestNewWatcher_RequiresConfigFile(t *testing.T) {
	if _, err := NewWatcher(viper.New(), func(*Config, error) {}); err == nil {
		t.Error("NewWatcher() without a config file should fail")
	}
}
