// Package bulkjoin joins a list of chat references and archives the
// joined chats so they do not clutter the main dialog list.
package bulkjoin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rkudryashov/tgmux/internal/bus"
	"github.com/rkudryashov/tgmux/internal/pool"
	"github.com/rkudryashov/tgmux/internal/store"
	"github.com/rkudryashov/tgmux/internal/tg"
	"go.uber.org/zap"
)

// Result is the outcome of one join-and-archive run. Archive failures
// are reported separately from join failures: the chat was joined, only
// the tidy-up step failed.
type Result struct {
	BatchID       string
	Joined        int
	Failed        int
	Errors        []string
	ArchiveErrors []string
}

// Engine resolves, joins, and archives chats sequentially.
type Engine struct {
	pool   *pool.Pool
	db     *store.DB // optional history; nil disables recording
	bus    *bus.Bus
	logger *zap.Logger
	sleep  func(time.Duration)
}

// New creates a bulk-join engine.
func New(p *pool.Pool, db *store.DB, b *bus.Bus, logger *zap.Logger) *Engine {
	return &Engine{
		pool:   p,
		db:     db,
		bus:    b,
		logger: logger,
		sleep:  time.Sleep,
	}
}

// JoinAndArchive joins every reference in input order, sleeping delay
// between join attempts, then archives each joined chat. References may
// be @usernames, t.me links, or invite links. A flood-control cooldown
// on a join is honored once and the reference retried; any other error
// marks that reference failed and the run continues. Archiving is best
// effort and never fails the run.
func (e *Engine) JoinAndArchive(ctx context.Context, ownerID int64, refs []string, delay time.Duration) (*Result, error) {
	client, err := e.pool.GetOrConnect(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	res := &Result{BatchID: uuid.NewString()}
	if e.db != nil {
		if err := e.db.CreateJoinBatch(res.BatchID, ownerID, len(refs)); err != nil {
			e.logger.Warn("record join batch", zap.Error(err))
		}
	}
	e.bus.Emit(bus.KindJoinStarted, map[string]any{
		"batch_id": res.BatchID,
		"owner_id": ownerID,
		"refs":     len(refs),
	})

	// Pass one: resolve and join. Joined chats are kept for the archive
	// pass; invite-link joins get their numeric id from the join response.
	type joined struct {
		position int
		chat     *tg.Chat
	}
	var ok []joined
	for i, raw := range refs {
		ref := strings.TrimSpace(raw)
		if i > 0 && delay > 0 {
			e.sleep(delay)
		}

		chat, err := e.joinOne(ctx, client, ref)
		if wait, isFlood := tg.AsFloodWait(err); isFlood {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: flood wait %s", ref, wait))
			e.logger.Warn("flood wait on join",
				zap.Int64("owner_id", ownerID),
				zap.String("ref", ref),
				zap.Duration("retry_after", wait))
			e.sleep(wait)
			chat, err = e.joinOne(ctx, client, ref)
		}
		if err != nil {
			res.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", ref, err))
			e.recordTarget(res.BatchID, i, ref, 0, store.StatusFailed, err.Error())
			e.logger.Warn("join failed",
				zap.Int64("owner_id", ownerID),
				zap.String("ref", ref),
				zap.Error(err))
			continue
		}

		res.Joined++
		ok = append(ok, joined{position: i, chat: chat})
		e.recordTarget(res.BatchID, i, ref, chat.ID, store.StatusJoined, "")
	}

	// Pass two: archive what was joined. Failures here do not undo the
	// join and are reported on their own.
	for _, j := range ok {
		if err := client.ArchiveChat(ctx, j.chat); err != nil {
			res.ArchiveErrors = append(res.ArchiveErrors, fmt.Sprintf("%s: %v", j.chat.Title, err))
			e.logger.Warn("archive failed",
				zap.Int64("owner_id", ownerID),
				zap.Int64("chat_id", j.chat.ID),
				zap.Error(err))
			continue
		}
		if e.db != nil {
			if err := e.db.MarkJoinArchived(res.BatchID, j.position); err != nil {
				e.logger.Warn("record archive", zap.Error(err))
			}
		}
	}

	if e.db != nil {
		if err := e.db.FinishJoinBatch(res.BatchID, res.Joined, res.Failed); err != nil {
			e.logger.Warn("finish join batch", zap.Error(err))
		}
	}
	e.bus.Emit(bus.KindJoinFinished, map[string]any{
		"batch_id": res.BatchID,
		"owner_id": ownerID,
		"joined":   res.Joined,
		"failed":   res.Failed,
	})
	e.logger.Info("join batch finished",
		zap.String("batch_id", res.BatchID),
		zap.Int64("owner_id", ownerID),
		zap.Int("joined", res.Joined),
		zap.Int("failed", res.Failed))
	return res, nil
}

func (e *Engine) joinOne(ctx context.Context, client tg.Client, ref string) (*tg.Chat, error) {
	chat, err := client.ResolveChat(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := client.JoinChat(ctx, chat); err != nil {
		return nil, err
	}
	return chat, nil
}

func (e *Engine) recordTarget(batchID string, position int, ref string, chatID int64, status, errMsg string) {
	if e.db == nil {
		return
	}
	if err := e.db.RecordJoinTarget(batchID, position, ref, chatID, status, errMsg); err != nil {
		e.logger.Warn("record join target", zap.Error(err))
	}
}
