package login

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rkudryashov/tgmux/internal/bus"
	"github.com/rkudryashov/tgmux/internal/credstore"
	"github.com/rkudryashov/tgmux/internal/pool"
	"github.com/rkudryashov/tgmux/internal/session"
	"github.com/rkudryashov/tgmux/internal/tg"
	"github.com/rkudryashov/tgmux/internal/tg/tgtest"
	"go.uber.org/zap"
)

const owner = int64(42)

type fixture struct {
	flow  *Flow
	creds *credstore.Store
	pool  *pool.Pool
	dir   string
}

func newFixture(t *testing.T, dial tg.Dialer) *fixture {
	t.Helper()
	dir := t.TempDir()
	creds := credstore.New(filepath.Join(dir, "credentials.json"), zap.NewNop())
	p := pool.New(creds, dial, zap.NewNop())
	f := New(dir, creds, p, dial, bus.New(), zap.NewNop())
	return &fixture{flow: f, creds: creds, pool: p, dir: dir}
}

func unauthorizedClient() *tgtest.FakeClient {
	return &tgtest.FakeClient{
		IsAuthorizedFunc: func(context.Context) (bool, error) { return false, nil },
	}
}

func TestBeginRequestsCode(t *testing.T) {
	client := unauthorizedClient()
	dial, calls := tgtest.Dialer(client)
	fx := newFixture(t, dial)

	res, err := fx.flow.Begin(context.Background(), owner, 123, "hash", "+1 555-123-4567")
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if res.State != BeginCodeSent {
		t.Errorf("State = %s, want code_sent", res.State)
	}
	if !fx.flow.HasPending(owner) {
		t.Error("Begin() did not stash a pending login")
	}
	if got := (*calls)[0].SessionPath; got != session.FilePath(fx.dir, owner) {
		t.Errorf("dialed session path = %q, want per-owner default", got)
	}
}

func TestBeginNormalizesPhone(t *testing.T) {
	var sentPhone string
	client := unauthorizedClient()
	client.SendCodeFunc = func(_ context.Context, phone string) (string, error) {
		sentPhone = phone
		return "hash", nil
	}
	dial, _ := tgtest.Dialer(client)
	fx := newFixture(t, dial)

	if _, err := fx.flow.Begin(context.Background(), owner, 1, "h", "1 (555) 123-4567"); err != nil {
		t.Fatal(err)
	}
	if sentPhone != "+15551234567" {
		t.Errorf("code requested for %q, want normalized +15551234567", sentPhone)
	}
}

func TestBeginRejectsBadPhone(t *testing.T) {
	dial, calls := tgtest.Dialer()
	fx := newFixture(t, dial)

	if _, err := fx.flow.Begin(context.Background(), owner, 1, "h", "not-a-phone"); err == nil {
		t.Fatal("Begin() accepted a garbage phone number")
	}
	if len(*calls) != 0 {
		t.Error("dialer invoked for an invalid phone number")
	}
}

// Begin twice against an already-authorized session is idempotent: the
// second call succeeds without a code request.
func TestBeginIdempotentWhenAuthorized(t *testing.T) {
	codeRequests := 0
	mkClient := func() *tgtest.FakeClient {
		return &tgtest.FakeClient{
			SendCodeFunc: func(context.Context, string) (string, error) {
				codeRequests++
				return "hash", nil
			},
			MeFunc: func(context.Context) (*tg.Account, error) {
				return &tg.Account{ID: 99, Username: "alice", Phone: "+15551234567"}, nil
			},
		}
	}
	dial, _ := tgtest.Dialer(mkClient(), mkClient())
	fx := newFixture(t, dial)

	for i := 0; i < 2; i++ {
		res, err := fx.flow.Begin(context.Background(), owner, 1, "h", "+15551234567")
		if err != nil {
			t.Fatalf("Begin() #%d error = %v", i+1, err)
		}
		if res.State != BeginAlreadyAuthorized {
			t.Fatalf("Begin() #%d state = %s, want already_authorized", i+1, res.State)
		}
	}
	if codeRequests != 0 {
		t.Errorf("requested %d codes, want 0 for authorized sessions", codeRequests)
	}
	if _, ok := fx.creds.Get(owner); !ok {
		t.Error("credential not persisted on authorized fast path")
	}
}

func TestCompleteWithoutBegin(t *testing.T) {
	dial, _ := tgtest.Dialer()
	fx := newFixture(t, dial)

	_, err := fx.flow.Complete(context.Background(), owner, "12345", "")
	if !errors.Is(err, ErrNoPendingLogin) {
		t.Fatalf("Complete() error = %v, want ErrNoPendingLogin", err)
	}
}

// Wrong code then right code must succeed on the same pending login
// without another Begin (code requests are rate limited remotely).
func TestCompleteRetriesAfterInvalidCode(t *testing.T) {
	client := unauthorizedClient()
	client.SignInFunc = func(_ context.Context, _, _, code string) (*tg.Account, error) {
		if code != "54321" {
			return nil, tg.ErrCodeInvalid
		}
		return &tg.Account{ID: 99, Username: "alice", Phone: "+15551234567"}, nil
	}
	dial, calls := tgtest.Dialer(client)
	fx := newFixture(t, dial)

	if _, err := fx.flow.Begin(context.Background(), owner, 1, "h", "+15551234567"); err != nil {
		t.Fatal(err)
	}

	res, err := fx.flow.Complete(context.Background(), owner, "11111", "")
	if err != nil {
		t.Fatalf("Complete(wrong code) error = %v", err)
	}
	if res.Outcome != OutcomeInvalidCode {
		t.Fatalf("Outcome = %s, want invalid_code", res.Outcome)
	}
	if !fx.flow.HasPending(owner) {
		t.Fatal("pending login discarded after invalid code")
	}

	res, err = fx.flow.Complete(context.Background(), owner, "54321", "")
	if err != nil {
		t.Fatalf("Complete(right code) error = %v", err)
	}
	if res.Outcome != OutcomeSuccess {
		t.Fatalf("Outcome = %s, want success", res.Outcome)
	}
	if len(*calls) != 1 {
		t.Errorf("dialer invoked %d times, want 1 (same pending connection)", len(*calls))
	}
	if fx.flow.HasPending(owner) {
		t.Error("pending login retained after success")
	}
	if fx.pool.Size() != 1 {
		t.Error("connection not promoted into the pool")
	}
}

func TestCompleteSecondFactor(t *testing.T) {
	client := unauthorizedClient()
	client.SignInFunc = func(context.Context, string, string, string) (*tg.Account, error) {
		return nil, tg.ErrPasswordNeeded
	}
	client.CheckPasswordFunc = func(_ context.Context, password string) (*tg.Account, error) {
		if password != "hunter2" {
			return nil, tg.ErrPasswordInvalid
		}
		return &tg.Account{ID: 99, Username: "alice", Phone: "+15551234567"}, nil
	}
	dial, _ := tgtest.Dialer(client)
	fx := newFixture(t, dial)

	if _, err := fx.flow.Begin(context.Background(), owner, 1, "h", "+15551234567"); err != nil {
		t.Fatal(err)
	}

	// No password supplied: distinguished outcome, challenge stays open.
	res, err := fx.flow.Complete(context.Background(), owner, "12345", "")
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeNeedPassword {
		t.Fatalf("Outcome = %s, want need_password", res.Outcome)
	}
	if !fx.flow.HasPending(owner) {
		t.Fatal("pending login discarded on need_password")
	}

	// Wrong password: generic failure, challenge still open.
	res, err = fx.flow.Complete(context.Background(), owner, "12345", "wrong")
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeFailed {
		t.Fatalf("Outcome = %s, want failed", res.Outcome)
	}
	if !fx.flow.HasPending(owner) {
		t.Fatal("pending login discarded on bad password")
	}

	// Right password resumes the same half-open connection.
	res, err = fx.flow.Complete(context.Background(), owner, "12345", "hunter2")
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeSuccess {
		t.Fatalf("Outcome = %s, want success", res.Outcome)
	}
	if res.Account == nil || res.Account.ID != 99 {
		t.Errorf("Account = %+v, want id 99", res.Account)
	}
}

func TestCompleteExpiredCodeDiscardsPending(t *testing.T) {
	client := unauthorizedClient()
	client.SignInFunc = func(context.Context, string, string, string) (*tg.Account, error) {
		return nil, tg.ErrCodeExpired
	}
	dial, _ := tgtest.Dialer(client)
	fx := newFixture(t, dial)

	if _, err := fx.flow.Begin(context.Background(), owner, 1, "h", "+15551234567"); err != nil {
		t.Fatal(err)
	}

	res, err := fx.flow.Complete(context.Background(), owner, "12345", "")
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeFailed {
		t.Fatalf("Outcome = %s, want failed", res.Outcome)
	}
	if fx.flow.HasPending(owner) {
		t.Error("expired challenge must discard the pending login")
	}
	if !client.Disconnected {
		t.Error("half-open connection left open after expiry")
	}
}

func TestCompletePersistsCredential(t *testing.T) {
	client := unauthorizedClient()
	client.SignInFunc = func(context.Context, string, string, string) (*tg.Account, error) {
		return &tg.Account{ID: 99, Username: "alice", FirstName: "Alice", Phone: "+15551234567"}, nil
	}
	dial, _ := tgtest.Dialer(client)
	fx := newFixture(t, dial)

	if _, err := fx.flow.Begin(context.Background(), owner, 123, "apphash", "+15551234567"); err != nil {
		t.Fatal(err)
	}
	if _, err := fx.flow.Complete(context.Background(), owner, "12345", ""); err != nil {
		t.Fatal(err)
	}

	cred, ok := fx.creds.Get(owner)
	if !ok {
		t.Fatal("credential not persisted")
	}
	if cred.AppID != 123 || cred.AppHash != "apphash" || cred.AccountID != 99 ||
		cred.Username != "alice" || cred.Phone != "+15551234567" {
		t.Errorf("credential = %+v", cred)
	}
	if cred.SessionPath != session.FilePath(fx.dir, owner) {
		t.Errorf("SessionPath = %q, want per-owner default", cred.SessionPath)
	}
}

func TestAttachRequiresExistingFile(t *testing.T) {
	dial, calls := tgtest.Dialer()
	fx := newFixture(t, dial)

	_, err := fx.flow.Attach(context.Background(), owner, 1, "h", filepath.Join(fx.dir, "missing.session"))
	if err == nil {
		t.Fatal("Attach() accepted a missing session file")
	}
	if len(*calls) != 0 {
		t.Error("dialer invoked for a missing session file")
	}
}

func TestAttachAuthorizedSession(t *testing.T) {
	client := &tgtest.FakeClient{
		MeFunc: func(context.Context) (*tg.Account, error) {
			return &tg.Account{ID: 99, Username: "alice", Phone: "+15551234567"}, nil
		},
	}
	dial, _ := tgtest.Dialer(client)
	fx := newFixture(t, dial)

	path := filepath.Join(fx.dir, "external.session")
	if err := os.WriteFile(path, []byte("opaque"), 0600); err != nil {
		t.Fatal(err)
	}

	account, err := fx.flow.Attach(context.Background(), owner, 1, "h", path)
	if err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	if account.ID != 99 {
		t.Errorf("account id = %d, want 99", account.ID)
	}
	cred, ok := fx.creds.Get(owner)
	if !ok || cred.SessionPath != path {
		t.Errorf("credential = %+v, want stored with supplied path", cred)
	}
	if fx.pool.Size() != 1 {
		t.Error("attached connection not pooled")
	}
}

func TestAttachRejectsUnauthorizedSession(t *testing.T) {
	client := unauthorizedClient()
	dial, _ := tgtest.Dialer(client)
	fx := newFixture(t, dial)

	path := filepath.Join(fx.dir, "stale.session")
	if err := os.WriteFile(path, []byte("opaque"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := fx.flow.Attach(context.Background(), owner, 1, "h", path); err == nil {
		t.Fatal("Attach() accepted an unauthorized session")
	}
	if !client.Disconnected {
		t.Error("unauthorized connection left open")
	}
}

func TestUnlinkRemovesCredentialAndSessionFile(t *testing.T) {
	client := unauthorizedClient()
	client.SignInFunc = func(context.Context, string, string, string) (*tg.Account, error) {
		return &tg.Account{ID: 99, Phone: "+15551234567"}, nil
	}
	dial, _ := tgtest.Dialer(client)
	fx := newFixture(t, dial)

	if _, err := fx.flow.Begin(context.Background(), owner, 1, "h", "+15551234567"); err != nil {
		t.Fatal(err)
	}
	if _, err := fx.flow.Complete(context.Background(), owner, "12345", ""); err != nil {
		t.Fatal(err)
	}

	// Simulate the opaque artifact the client library would have written.
	sessionPath := session.FilePath(fx.dir, owner)
	if err := os.WriteFile(sessionPath, []byte("opaque"), 0600); err != nil {
		t.Fatal(err)
	}

	if err := fx.flow.Unlink(context.Background(), owner); err != nil {
		t.Fatalf("Unlink() error = %v", err)
	}

	if _, ok := fx.creds.Get(owner); ok {
		t.Error("credential still present after Unlink")
	}
	if _, err := os.Stat(sessionPath); !os.IsNotExist(err) {
		t.Error("session file still present after Unlink")
	}
	if !client.Disconnected {
		t.Error("pooled connection not disconnected on Unlink")
	}
	if _, err := fx.pool.GetOrConnect(context.Background(), owner); !errors.Is(err, pool.ErrNoCredential) {
		t.Errorf("GetOrConnect() after Unlink error = %v, want ErrNoCredential", err)
	}
}

func TestUnlinkWithoutCredential(t *testing.T) {
	dial, _ := tgtest.Dialer()
	fx := newFixture(t, dial)

	if err := fx.flow.Unlink(context.Background(), owner); !errors.Is(err, pool.ErrNoCredential) {
		t.Errorf("Unlink() error = %v, want ErrNoCredential", err)
	}
}
