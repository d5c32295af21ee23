// Package login drives the interactive account-link handshake: phone
// number, one-time code, optional second factor. A successful handshake
// persists the credential and promotes its connection into the pool.
package login

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/rkudryashov/tgmux/internal/bus"
	"github.com/rkudryashov/tgmux/internal/credstore"
	"github.com/rkudryashov/tgmux/internal/pool"
	"github.com/rkudryashov/tgmux/internal/session"
	"github.com/rkudryashov/tgmux/internal/tg"
	"go.uber.org/zap"
)

// ErrNoPendingLogin means Complete was called without a preceding Begin
// (or after the pending login was discarded). The caller must restart.
var ErrNoPendingLogin = errors.New("no pending login for owner")

// Outcome tags the result of Complete. Challenge conditions are values,
// not errors: the operator is expected to retry with better input.
type Outcome string

const (
	// OutcomeSuccess: signed in; credential persisted, connection pooled.
	OutcomeSuccess Outcome = "success"
	// OutcomeInvalidCode: code rejected; the same challenge stays open so
	// the operator can re-enter without a fresh (rate-limited) code request.
	OutcomeInvalidCode Outcome = "invalid_code"
	// OutcomeNeedPassword: account has a second factor; call Complete
	// again with the password. The challenge stays open.
	OutcomeNeedPassword Outcome = "need_password"
	// OutcomeFailed: sign-in failed for another reason. The challenge
	// stays open unless the provider declared it expired.
	OutcomeFailed Outcome = "failed"
)

// BeginState tags the result of Begin.
type BeginState string

const (
	// BeginAlreadyAuthorized: the session file still authenticates, no
	// code challenge was needed. Re-linking is a no-op success.
	BeginAlreadyAuthorized BeginState = "already_authorized"
	// BeginCodeSent: a one-time code was requested; proceed to Complete.
	BeginCodeSent BeginState = "code_sent"
)

// BeginResult is the outcome of Begin.
type BeginResult struct {
	State   BeginState
	Message string
	Account *tg.Account
}

// CompleteResult is the tagged outcome of Complete.
type CompleteResult struct {
	Outcome Outcome
	Message string
	Account *tg.Account
}

// pendingLogin is one half-open handshake. Exists only between "code
// requested" and "code verified or terminally failed"; never persisted.
type pendingLogin struct {
	machine  *Machine
	client   tg.Client
	appID    int32
	appHash  string
	phone    string
	codeHash string
}

// Flow is the login state machine over all owners.
type Flow struct {
	mu      sync.Mutex
	pending map[int64]*pendingLogin

	dataDir string
	creds   *credstore.Store
	pool    *pool.Pool
	dial    tg.Dialer
	bus     *bus.Bus
	logger  *zap.Logger
}

// New creates a login flow.
func New(dataDir string, creds *credstore.Store, p *pool.Pool, dial tg.Dialer, b *bus.Bus, logger *zap.Logger) *Flow {
	return &Flow{
		pending: make(map[int64]*pendingLogin),
		dataDir: dataDir,
		creds:   creds,
		pool:    p,
		dial:    dial,
		bus:     b,
		logger:  logger,
	}
}

// Begin opens a fresh transport bound to the owner's session file and
// starts the handshake. When the session file already authenticates, the
// handshake short-circuits to success and the credential is refreshed.
// Any earlier pending login for the owner is discarded first.
func (f *Flow) Begin(ctx context.Context, ownerID int64, appID int32, appHash, rawPhone string) (*BeginResult, error) {
	phone, err := session.NormalizePhone(rawPhone)
	if err != nil {
		return nil, err
	}

	f.discardPending(ownerID)

	if err := session.EnsureDirs(f.dataDir); err != nil {
		return nil, fmt.Errorf("prepare data dir: %w", err)
	}
	sessionPath := session.FilePath(f.dataDir, ownerID)

	client, err := f.dial(ctx, tg.DialConfig{
		SessionPath: sessionPath,
		AppID:       appID,
		AppHash:     appHash,
	})
	if err != nil {
		f.bus.Emit(bus.KindLoginFailed, ownerID)
		return nil, fmt.Errorf("connect: %w", err)
	}

	authorized, err := client.IsAuthorized(ctx)
	if err != nil {
		_ = client.Disconnect()
		f.bus.Emit(bus.KindLoginFailed, ownerID)
		return nil, fmt.Errorf("check authorization: %w", err)
	}

	if authorized {
		// Idempotent re-entry: the durable session file still holds.
		account, err := f.finishLogin(ctx, ownerID, client, appID, appHash, sessionPath)
		if err != nil {
			_ = client.Disconnect()
			return nil, err
		}
		return &BeginResult{
			State:   BeginAlreadyAuthorized,
			Message: fmt.Sprintf("account %s is already linked", handleOf(account)),
			Account: account,
		}, nil
	}

	codeHash, err := client.SendCode(ctx, phone)
	if err != nil {
		_ = client.Disconnect()
		f.bus.Emit(bus.KindLoginFailed, ownerID)
		return nil, fmt.Errorf("request login code: %w", err)
	}

	machine := NewMachine()
	_ = machine.Transition(CodeRequested)

	f.mu.Lock()
	f.pending[ownerID] = &pendingLogin{
		machine:  machine,
		client:   client,
		appID:    appID,
		appHash:  appHash,
		phone:    phone,
		codeHash: codeHash,
	}
	f.mu.Unlock()

	f.bus.Emit(bus.KindLoginCodeRequested, ownerID)
	f.logger.Info("login code requested", zap.Int64("owner_id", ownerID))

	return &BeginResult{
		State:   BeginCodeSent,
		Message: fmt.Sprintf("login code sent to %s", phone),
	}, nil
}

// Complete attempts to finish the pending handshake with the supplied code
// and optional second-factor password. Challenge conditions come back as
// tagged outcomes with the pending login retained; only success and an
// expired code discard it.
func (f *Flow) Complete(ctx context.Context, ownerID int64, code, password string) (*CompleteResult, error) {
	f.mu.Lock()
	p, ok := f.pending[ownerID]
	f.mu.Unlock()
	if !ok {
		return nil, ErrNoPendingLogin
	}

	if err := session.ValidateCode(code); err != nil {
		return &CompleteResult{Outcome: OutcomeInvalidCode, Message: err.Error()}, nil
	}

	account, err := p.client.SignIn(ctx, p.phone, p.codeHash, code)
	if err != nil {
		switch {
		case errors.Is(err, tg.ErrPasswordNeeded):
			if password == "" {
				return &CompleteResult{
					Outcome: OutcomeNeedPassword,
					Message: "account has two-step verification enabled, password required",
				}, nil
			}
			account, err = p.client.CheckPassword(ctx, password)
			if err != nil {
				return &CompleteResult{Outcome: OutcomeFailed, Message: err.Error()}, nil
			}
		case errors.Is(err, tg.ErrCodeInvalid):
			return &CompleteResult{
				Outcome: OutcomeInvalidCode,
				Message: "login code rejected, try again",
			}, nil
		case errors.Is(err, tg.ErrCodeExpired):
			// Challenge is dead; force a restart from Begin.
			f.discardPending(ownerID)
			f.bus.Emit(bus.KindLoginFailed, ownerID)
			return &CompleteResult{
				Outcome: OutcomeFailed,
				Message: "login code expired, start over",
			}, nil
		default:
			return &CompleteResult{Outcome: OutcomeFailed, Message: err.Error()}, nil
		}
	}

	sessionPath := session.FilePath(f.dataDir, ownerID)
	if _, err := f.persist(ownerID, account, p.appID, p.appHash, sessionPath, p.phone); err != nil {
		// Not committed; the pending login stays so the operator can retry.
		return nil, err
	}

	_ = p.machine.Transition(Authenticated)
	f.pool.Put(ownerID, p.client)

	f.mu.Lock()
	delete(f.pending, ownerID)
	f.mu.Unlock()

	f.bus.Emit(bus.KindLoginAuthenticated, ownerID)
	f.logger.Info("account linked",
		zap.Int64("owner_id", ownerID), zap.Int64("account_id", account.ID))

	return &CompleteResult{
		Outcome: OutcomeSuccess,
		Message: fmt.Sprintf("linked %s (id %d)", handleOf(account), account.ID),
		Account: account,
	}, nil
}

// Attach links an already-authorized session file directly, skipping the
// code challenge. An empty sessionPath means the owner's default location.
func (f *Flow) Attach(ctx context.Context, ownerID int64, appID int32, appHash, sessionPath string) (*tg.Account, error) {
	if sessionPath == "" {
		sessionPath = session.FilePath(f.dataDir, ownerID)
	}
	if _, err := os.Stat(sessionPath); err != nil {
		return nil, fmt.Errorf("session file %s: %w", sessionPath, err)
	}

	client, err := f.dial(ctx, tg.DialConfig{
		SessionPath: sessionPath,
		AppID:       appID,
		AppHash:     appHash,
	})
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	authorized, err := client.IsAuthorized(ctx)
	if err != nil {
		_ = client.Disconnect()
		return nil, fmt.Errorf("check authorization: %w", err)
	}
	if !authorized {
		_ = client.Disconnect()
		return nil, fmt.Errorf("session file is not authorized, run the login flow instead")
	}

	account, err := f.finishLogin(ctx, ownerID, client, appID, appHash, sessionPath)
	if err != nil {
		_ = client.Disconnect()
		return nil, err
	}
	return account, nil
}

// Unlink removes the owner's linked account: the pooled connection is
// closed, the credential record removed, and the session file deleted.
func (f *Flow) Unlink(_ context.Context, ownerID int64) error {
	cred, ok := f.creds.Get(ownerID)
	if !ok {
		return pool.ErrNoCredential
	}

	f.discardPending(ownerID)
	f.pool.Remove(ownerID)

	if err := f.creds.Remove(ownerID); err != nil {
		return err
	}
	if err := os.Remove(cred.SessionPath); err != nil && !os.IsNotExist(err) {
		f.logger.Warn("session file not removed",
			zap.Int64("owner_id", ownerID), zap.Error(err))
	}

	f.bus.Emit(bus.KindAccountUnlinked, ownerID)
	f.logger.Info("account unlinked", zap.Int64("owner_id", ownerID))
	return nil
}

// HasPending reports whether the owner has a half-open handshake.
func (f *Flow) HasPending(ownerID int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.pending[ownerID]
	return ok
}

// finishLogin fetches the profile, persists the credential, and promotes
// the connection into the pool.
func (f *Flow) finishLogin(ctx context.Context, ownerID int64, client tg.Client, appID int32, appHash, sessionPath string) (*tg.Account, error) {
	account, err := client.Me(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}
	if _, err := f.persist(ownerID, account, appID, appHash, sessionPath, account.Phone); err != nil {
		return nil, err
	}
	f.pool.Put(ownerID, client)
	f.bus.Emit(bus.KindLoginAuthenticated, ownerID)
	return account, nil
}

func (f *Flow) persist(ownerID int64, account *tg.Account, appID int32, appHash, sessionPath, phone string) (credstore.Credential, error) {
	cred := credstore.Credential{
		AppID:       appID,
		AppHash:     appHash,
		SessionPath: sessionPath,
		Phone:       phone,
		Username:    account.Username,
		FirstName:   account.FirstName,
		LastName:    account.LastName,
		AccountID:   account.ID,
	}
	if err := f.creds.Upsert(ownerID, cred); err != nil {
		return credstore.Credential{}, fmt.Errorf("persist credential: %w", err)
	}
	return cred, nil
}

// discardPending drops a half-open handshake and closes its transport.
func (f *Flow) discardPending(ownerID int64) {
	f.mu.Lock()
	p, ok := f.pending[ownerID]
	delete(f.pending, ownerID)
	f.mu.Unlock()

	if ok {
		_ = p.machine.Transition(Failed)
		_ = p.client.Disconnect()
	}
}

func handleOf(account *tg.Account) string {
	if account.Username != "" {
		return "@" + account.Username
	}
	return account.Phone
}
