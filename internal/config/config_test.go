package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:8489" {
		t.Errorf("ListenAddr = %q, want default", cfg.ListenAddr)
	}
	if cfg.SendDelay() != time.Second {
		t.Errorf("SendDelay() = %v, want 1s", cfg.SendDelay())
	}
	if cfg.DialogLimit != 200 {
		t.Errorf("DialogLimit = %d, want 200", cfg.DialogLimit)
	}
}

func TestLoadMissingFileIsNotFatal(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load() error = %v, want nil for missing file", err)
	}
	if cfg.ErrorCap != 10 {
		t.Errorf("ErrorCap = %d, want default 10", cfg.ErrorCap)
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := Default()
	cfg.ListenAddr = "127.0.0.1:9000"
	cfg.SendDelaySeconds = 2.5
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.ListenAddr != "127.0.0.1:9000" {
		t.Errorf("ListenAddr = %q, want 127.0.0.1:9000", loaded.ListenAddr)
	}
	if loaded.SendDelay() != 2500*time.Millisecond {
		t.Errorf("SendDelay() = %v, want 2.5s", loaded.SendDelay())
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("TGMUX_LISTEN_ADDR", "0.0.0.0:7777")
	t.Setenv("TGMUX_DIALOG_LIMIT", "50")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ListenAddr != "0.0.0.0:7777" {
		t.Errorf("ListenAddr = %q, want env override", cfg.ListenAddr)
	}
	if cfg.DialogLimit != 50 {
		t.Errorf("DialogLimit = %d, want 50", cfg.DialogLimit)
	}
}

func TestValidateRejectsNegativeDelay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("send_delay_seconds = -1.0\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() should reject negative delay")
	}
}

func TestSavePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	if err := Save(path, Default()); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}
