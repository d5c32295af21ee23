package session

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFilePath(t *testing.T) {
	got := FilePath("/data", 42)
	want := filepath.Join("/data", "sessions", "42.session")
	if got != want {
		t.Errorf("FilePath(/data, 42) = %q, want %q", got, want)
	}
}

func TestCredentialsPath(t *testing.T) {
	got := CredentialsPath("/data")
	if got != filepath.Join("/data", "credentials.json") {
		t.Errorf("CredentialsPath(/data) = %q", got)
	}
}

func TestEnsureDirs(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "tgmux")

	if err := EnsureDirs(dataDir); err != nil {
		t.Fatalf("EnsureDirs() error = %v", err)
	}

	for _, d := range []string{dataDir, SessionsDir(dataDir), LogDir(dataDir)} {
		info, err := os.Stat(d)
		if err != nil {
			t.Fatalf("dir %s not created: %v", d, err)
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", d)
		}
		if perm := info.Mode().Perm(); perm != 0700 {
			t.Errorf("%s permission = %o, want 0700", d, perm)
		}
	}
}
