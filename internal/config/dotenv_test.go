package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDotEnvMissingFile(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("expected missing file to be ignored, got %v", err)
	}
}

func TestLoadDotEnvReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("SHIRITORI_TEST_KEY=from-dotenv\n"), 0o644); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Cleanup(func() { _ = os.Unsetenv("SHIRITORI_TEST_KEY") })

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("load dotenv: %v", err)
	}
	if got := os.Getenv("SHIRITORI_TEST_KEY"); got != "from-dotenv" {
		t.Fatalf("expected value from file, got %q", got)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TIMER_TICK_MILLIS", "500")
	t.Setenv("DISCONNECT_GRACE_SECONDS", "5")
	t.Setenv("START_COUNTDOWN_SECONDS", "0")

	cfg := Load()
	if cfg.TimerTickMillis != 500 {
		t.Fatalf("expected tick override, got %d", cfg.TimerTickMillis)
	}
	if cfg.DisconnectGraceSeconds != 5 {
		t.Fatalf("expected grace override, got %d", cfg.DisconnectGraceSeconds)
	}
	if cfg.StartCountdownSeconds != 0 {
		t.Fatalf("expected countdown override, got %d", cfg.StartCountdownSeconds)
	}
}

func TestLoadIgnoresInvalidValues(t *testing.T) {
	t.Setenv("TIMER_TICK_MILLIS", "not-a-number")
	t.Setenv("DISCONNECT_GRACE_SECONDS", "-3")

	cfg := Load()
	defaults := Default()
	if cfg.TimerTickMillis != defaults.TimerTickMillis {
		t.Fatalf("expected default tick, got %d", cfg.TimerTickMillis)
	}
	if cfg.DisconnectGraceSeconds != defaults.DisconnectGraceSeconds {
		t.Fatalf("expected default grace, got %d", cfg.DisconnectGraceSeconds)
	}
}
