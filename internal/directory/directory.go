// Package directory enumerates the conversations visible to a linked
// account, for operator selection of broadcast targets.
package directory

import (
	"context"
	"fmt"

	"github.com/rkudryashov/tgmux/internal/pool"
	"github.com/rkudryashov/tgmux/internal/tg"
	"go.uber.org/zap"
)

// Directory is a read-only view over a connected account's chat list.
type Directory struct {
	pool         *pool.Pool
	defaultLimit int
	logger       *zap.Logger
}

// New creates a directory. defaultLimit applies when a caller passes a
// non-positive limit.
func New(p *pool.Pool, defaultLimit int, logger *zap.Logger) *Directory {
	return &Directory{pool: p, defaultLimit: defaultLimit, logger: logger}
}

// List returns up to limit most-recent conversations for the owner's
// account, reconnecting through the pool if needed. A single transport
// error aborts the whole call.
func (d *Directory) List(ctx context.Context, ownerID int64, limit int) ([]tg.Dialog, error) {
	if limit <= 0 {
		limit = d.defaultLimit
	}

	conn, err := d.pool.GetOrConnect(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	dialogs, err := conn.Dialogs(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list dialogs: %w", err)
	}

	d.logger.Info("dialogs listed",
		zap.Int64("owner_id", ownerID), zap.Int("count", len(dialogs)))
	return dialogs, nil
}
