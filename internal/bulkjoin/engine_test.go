package bulkjoin

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rkudryashov/tgmux/internal/bus"
	"github.com/rkudryashov/tgmux/internal/credstore"
	"github.com/rkudryashov/tgmux/internal/pool"
	"github.com/rkudryashov/tgmux/internal/store"
	"github.com/rkudryashov/tgmux/internal/tg"
	"github.com/rkudryashov/tgmux/internal/tg/tgtest"
	"go.uber.org/zap"
)

func newEngine(t *testing.T, client *tgtest.FakeClient, db *store.DB) (*Engine, *[]time.Duration) {
	t.Helper()
	creds := credstore.New(filepath.Join(t.TempDir(), "credentials.json"), zap.NewNop())
	if err := creds.Upsert(42, credstore.Credential{AppID: 1}); err != nil {
		t.Fatal(err)
	}
	dial, _ := tgtest.Dialer(client)
	e := New(pool.New(creds, dial, zap.NewNop()), db, bus.New(), zap.NewNop())

	var sleeps []time.Duration
	e.sleep = func(d time.Duration) { sleeps = append(sleeps, d) }
	return e, &sleeps
}

// Every successfully joined chat is archived afterwards.
func TestJoinAndArchiveAllSucceed(t *testing.T) {
	client := &tgtest.FakeClient{}
	e, sleeps := newEngine(t, client, nil)

	res, err := e.JoinAndArchive(context.Background(), 42, []string{"@alpha", "@beta"}, 2*time.Second)
	if err != nil {
		t.Fatalf("JoinAndArchive() error = %v", err)
	}
	if res.Joined != 2 || res.Failed != 0 || len(res.Errors) != 0 {
		t.Errorf("result = %+v, want 2/0 with no errors", res)
	}
	if len(client.Joined) != 2 || len(client.Archived) != 2 {
		t.Errorf("joined=%v archived=%v, want two of each", client.Joined, client.Archived)
	}
	// One inter-join delay, not one per reference.
	if len(*sleeps) != 1 || (*sleeps)[0] != 2*time.Second {
		t.Errorf("sleeps = %v, want a single 2s delay", *sleeps)
	}
}

// An unresolvable reference fails alone; the rest still join.
func TestJoinAndArchiveIsolatesFailures(t *testing.T) {
	client := &tgtest.FakeClient{
		ResolveChatFunc: func(_ context.Context, ref string) (*tg.Chat, error) {
			if ref == "@gone" {
				return nil, errors.New("USERNAME_NOT_OCCUPIED")
			}
			return &tg.Chat{ID: 7, Title: ref, Kind: tg.KindChannel}, nil
		},
	}
	e, _ := newEngine(t, client, nil)

	res, err := e.JoinAndArchive(context.Background(), 42, []string{"@alpha", "@gone", "@beta"}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Joined != 2 || res.Failed != 1 {
		t.Errorf("result = %d/%d, want 2/1", res.Joined, res.Failed)
	}
	if len(res.Errors) != 1 || !strings.Contains(res.Errors[0], "@gone") {
		t.Errorf("errors = %v, want one entry mentioning @gone", res.Errors)
	}
	if len(client.Archived) != 2 {
		t.Errorf("archived %d chats, want 2", len(client.Archived))
	}
}

// A flood-control cooldown on a join is honored and the reference
// retried once.
func TestJoinAndArchiveFloodWaitRetry(t *testing.T) {
	attempts := 0
	client := &tgtest.FakeClient{
		JoinChatFunc: func(_ context.Context, chat *tg.Chat) error {
			if chat.Title == "@alpha" {
				attempts++
				if attempts == 1 {
					return &tg.FloodWaitError{RetryAfter: 12 * time.Second}
				}
			}
			return nil
		},
	}
	e, sleeps := newEngine(t, client, nil)

	res, err := e.JoinAndArchive(context.Background(), 42, []string{"@alpha"}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Joined != 1 || res.Failed != 0 {
		t.Errorf("result = %d/%d, want 1/0", res.Joined, res.Failed)
	}
	if attempts != 2 {
		t.Errorf("join attempted %d times, want 2", attempts)
	}
	if len(*sleeps) != 1 || (*sleeps)[0] != 12*time.Second {
		t.Errorf("sleeps = %v, want the 12s cooldown", *sleeps)
	}
}

// An archive failure does not demote the join; it is reported on its own.
func TestJoinAndArchiveArchiveFailureIsSeparate(t *testing.T) {
	client := &tgtest.FakeClient{
		ArchiveChatFunc: func(_ context.Context, chat *tg.Chat) error {
			if chat.Title == "@alpha" {
				return errors.New("FOLDER_ID_INVALID")
			}
			return nil
		},
	}
	e, _ := newEngine(t, client, nil)

	res, err := e.JoinAndArchive(context.Background(), 42, []string{"@alpha", "@beta"}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Joined != 2 || res.Failed != 0 || len(res.Errors) != 0 {
		t.Errorf("result = %+v, want 2/0 with empty join errors", res)
	}
	if len(res.ArchiveErrors) != 1 || !strings.Contains(res.ArchiveErrors[0], "@alpha") {
		t.Errorf("archive errors = %v, want one entry mentioning @alpha", res.ArchiveErrors)
	}
}

func TestJoinAndArchiveNoCredential(t *testing.T) {
	creds := credstore.New(filepath.Join(t.TempDir(), "credentials.json"), zap.NewNop())
	dial, _ := tgtest.Dialer()
	e := New(pool.New(creds, dial, zap.NewNop()), nil, bus.New(), zap.NewNop())

	if _, err := e.JoinAndArchive(context.Background(), 7, []string{"@alpha"}, 0); !errors.Is(err, pool.ErrNoCredential) {
		t.Errorf("JoinAndArchive() error = %v, want ErrNoCredential", err)
	}
}

func TestJoinAndArchiveRecordsHistory(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}

	client := &tgtest.FakeClient{
		JoinChatFunc: func(_ context.Context, chat *tg.Chat) error {
			if chat.Title == "@beta" {
				return errors.New("CHANNELS_TOO_MUCH")
			}
			return nil
		},
	}
	e, _ := newEngine(t, client, db)

	res, err := e.JoinAndArchive(context.Background(), 42, []string{"@alpha", "@beta"}, 0)
	if err != nil {
		t.Fatal(err)
	}

	batches, err := db.ListJoinBatches(42, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(batches) != 1 || batches[0].ID != res.BatchID {
		t.Fatalf("batches = %+v, want the recorded run", batches)
	}
	if batches[0].JoinedCount != 1 || batches[0].FailedCount != 1 {
		t.Errorf("recorded counts = %d/%d, want 1/1", batches[0].JoinedCount, batches[0].FailedCount)
	}
}
