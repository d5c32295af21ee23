// Package pool owns the live protocol connections, one per owner identity.
// Handles are created lazily from stored credentials and released only by
// an explicit unlink or the shutdown sweep; nothing is garbage-collected
// behind the caller's back.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rkudryashov/tgmux/internal/credstore"
	"github.com/rkudryashov/tgmux/internal/tg"
	"go.uber.org/zap"
)

var (
	// ErrNoCredential means the owner never linked an account.
	ErrNoCredential = errors.New("no credential for owner")

	// ErrUnauthenticated means the stored session was revoked remotely;
	// the owner must re-run the login flow.
	ErrUnauthenticated = errors.New("stored session no longer authorized")
)

// Pool is the in-memory registry of live connections keyed by owner id.
// The map tolerates concurrent access from different owners; operations on
// one owner's handle are expected to be serialized by the caller.
type Pool struct {
	mu     sync.RWMutex
	conns  map[int64]tg.Client
	creds  *credstore.Store
	dial   tg.Dialer
	logger *zap.Logger
}

// New creates an empty pool over the given credential store and dialer.
func New(creds *credstore.Store, dial tg.Dialer, logger *zap.Logger) *Pool {
	return &Pool{
		conns:  make(map[int64]tg.Client),
		creds:  creds,
		dial:   dial,
		logger: logger,
	}
}

// GetOrConnect returns the cached connection for an owner, reconnecting
// from the stored credential when no handle is live. Fails with
// ErrNoCredential when the owner has no stored record and with
// ErrUnauthenticated when the remote side rejects the session.
func (p *Pool) GetOrConnect(ctx context.Context, ownerID int64) (tg.Client, error) {
	p.mu.RLock()
	conn, ok := p.conns[ownerID]
	p.mu.RUnlock()
	if ok {
		return conn, nil
	}

	cred, ok := p.creds.Get(ownerID)
	if !ok {
		return nil, ErrNoCredential
	}

	conn, err := p.dial(ctx, tg.DialConfig{
		SessionPath: cred.SessionPath,
		AppID:       cred.AppID,
		AppHash:     cred.AppHash,
	})
	if err != nil {
		return nil, fmt.Errorf("connect owner %d: %w", ownerID, err)
	}

	authorized, err := conn.IsAuthorized(ctx)
	if err != nil {
		_ = conn.Disconnect()
		return nil, fmt.Errorf("check authorization for owner %d: %w", ownerID, err)
	}
	if !authorized {
		_ = conn.Disconnect()
		return nil, ErrUnauthenticated
	}

	p.mu.Lock()
	// Another goroutine for the same owner may have connected in between;
	// keep the first handle so exactly one connection exists per owner.
	if existing, ok := p.conns[ownerID]; ok {
		p.mu.Unlock()
		_ = conn.Disconnect()
		return existing, nil
	}
	p.conns[ownerID] = conn
	p.mu.Unlock()

	p.logger.Info("connection established", zap.Int64("owner_id", ownerID))
	return conn, nil
}

// Put registers a connection produced outside the pool (the login flow
// promotes its half-open handle here on success). An existing handle for
// the owner is disconnected first.
func (p *Pool) Put(ownerID int64, conn tg.Client) {
	p.mu.Lock()
	old, had := p.conns[ownerID]
	p.conns[ownerID] = conn
	p.mu.Unlock()

	if had && old != conn {
		_ = old.Disconnect()
	}
}

// Remove disconnects and drops the owner's handle, if any.
func (p *Pool) Remove(ownerID int64) {
	p.mu.Lock()
	conn, ok := p.conns[ownerID]
	delete(p.conns, ownerID)
	p.mu.Unlock()

	if !ok {
		return
	}
	if err := conn.Disconnect(); err != nil {
		p.logger.Warn("disconnect failed", zap.Int64("owner_id", ownerID), zap.Error(err))
	}
}

// DisconnectAll closes every cached handle best-effort and clears the
// registry. Called once at daemon shutdown.
func (p *Pool) DisconnectAll() {
	p.mu.Lock()
	conns := p.conns
	p.conns = make(map[int64]tg.Client)
	p.mu.Unlock()

	for ownerID, conn := range conns {
		if err := conn.Disconnect(); err != nil {
			p.logger.Warn("disconnect failed", zap.Int64("owner_id", ownerID), zap.Error(err))
		}
	}
	p.logger.Info("all connections closed", zap.Int("count", len(conns)))
}

// Size returns the number of live handles.
func (p *Pool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.conns)
}
