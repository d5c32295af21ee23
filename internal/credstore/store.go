package credstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"go.uber.org/zap"
)

// Credential is one linked remote account. The JSON field names are the
// on-disk document format; the whole document is rewritten on every mutation.
type Credential struct {
	AppID       int32  `json:"applicationId"`
	AppHash     string `json:"applicationSecret"`
	SessionPath string `json:"sessionFilePath"`
	Phone       string `json:"phoneNumber"`
	Username    string `json:"remoteUsername"`
	FirstName   string `json:"remoteFirstName"`
	LastName    string `json:"remoteLastName"`
	AccountID   int64  `json:"remoteAccountId"`
}

// Handle returns the account's user-facing identifier: @username when the
// account has one, otherwise the phone number.
func (c Credential) Handle() string {
	if c.Username != "" {
		return "@" + c.Username
	}
	return c.Phone
}

// Store is the durable owner-id -> credential mapping backed by a single
// JSON document. Loads are tolerant (a broken file means an empty store);
// saves are strict (an I/O error means the mutation did not commit).
type Store struct {
	mu     sync.Mutex
	path   string
	creds  map[int64]Credential
	logger *zap.Logger
}

// New creates a store over the given document path and loads existing data.
func New(path string, logger *zap.Logger) *Store {
	s := &Store{
		path:   path,
		creds:  make(map[int64]Credential),
		logger: logger,
	}
	s.load()
	return s
}

func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("credential file unreadable, starting empty", zap.Error(err))
		}
		return
	}

	raw := make(map[string]Credential)
	if err := json.Unmarshal(data, &raw); err != nil {
		s.logger.Warn("credential file corrupt, starting empty",
			zap.String("path", s.path), zap.Error(err))
		return
	}

	for key, cred := range raw {
		ownerID, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			s.logger.Warn("skipping credential with non-numeric owner key", zap.String("key", key))
			continue
		}
		s.creds[ownerID] = cred
	}
}

// save writes the whole map. Caller holds s.mu.
func (s *Store) save() error {
	raw := make(map[string]Credential, len(s.creds))
	for ownerID, cred := range s.creds {
		raw[strconv.FormatInt(ownerID, 10)] = cred
	}

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("create credential dir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	return nil
}

// Upsert stores the credential for an owner and persists immediately.
// On save failure the in-memory map is rolled back: the mutation is not
// considered applied.
func (s *Store) Upsert(ownerID int64, cred Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.creds[ownerID]
	s.creds[ownerID] = cred
	if err := s.save(); err != nil {
		if existed {
			s.creds[ownerID] = prev
		} else {
			delete(s.creds, ownerID)
		}
		return err
	}
	return nil
}

// Remove deletes the credential for an owner and persists immediately.
// Removing an absent owner is a no-op.
func (s *Store) Remove(ownerID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.creds[ownerID]
	if !existed {
		return nil
	}
	delete(s.creds, ownerID)
	if err := s.save(); err != nil {
		s.creds[ownerID] = prev
		return err
	}
	return nil
}

// Get returns the credential for an owner.
func (s *Store) Get(ownerID int64) (Credential, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.creds[ownerID]
	return cred, ok
}

// Entry pairs an owner identity with its credential for listings.
type Entry struct {
	OwnerID    int64
	Credential Credential
}

// List returns all credentials ordered by owner id.
func (s *Store) List() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]Entry, 0, len(s.creds))
	for ownerID, cred := range s.creds {
		entries = append(entries, Entry{OwnerID: ownerID, Credential: cred})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].OwnerID < entries[j].OwnerID })
	return entries
}
