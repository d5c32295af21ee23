package session

import (
	"os"
	"path/filepath"
	"strconv"
)

// Path layout under the daemon data dir:
//
//	credentials.json       linked-account records
//	history.db             broadcast/join history
//	sessions/<owner>.session  MTProto session files (opaque, written by the client lib)
//	logs/tgmuxd.log

// CredentialsPath returns the credential document path.
func CredentialsPath(dataDir string) string {
	return filepath.Join(dataDir, "credentials.json")
}

// HistoryDBPath returns the history database path.
func HistoryDBPath(dataDir string) string {
	return filepath.Join(dataDir, "history.db")
}

// SessionsDir returns the directory holding MTProto session files.
func SessionsDir(dataDir string) string {
	return filepath.Join(dataDir, "sessions")
}

// FilePath returns the session file path for one owner identity.
func FilePath(dataDir string, ownerID int64) string {
	return filepath.Join(SessionsDir(dataDir), strconv.FormatInt(ownerID, 10)+".session")
}

// LogDir returns the daemon log directory.
func LogDir(dataDir string) string {
	return filepath.Join(dataDir, "logs")
}

// EnsureDirs creates the data directory tree with owner-only permissions.
func EnsureDirs(dataDir string) error {
	dirs := []string{
		dataDir,
		SessionsDir(dataDir),
		LogDir(dataDir),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
