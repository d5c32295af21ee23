// Package broadcast delivers one message to many chats sequentially.
// Sequential delivery with an enforced inter-send delay is the throttle
// that keeps the account under the provider's abuse-detection thresholds;
// do not parallelize it.
package broadcast

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rkudryashov/tgmux/internal/bus"
	"github.com/rkudryashov/tgmux/internal/pool"
	"github.com/rkudryashov/tgmux/internal/store"
	"github.com/rkudryashov/tgmux/internal/tg"
	"go.uber.org/zap"
)

// Result is the outcome of one fan-out run. Errors holds per-target
// detail strings, including flood-wait notices for targets that
// eventually succeeded.
type Result struct {
	JobID  string
	Sent   int
	Failed int
	Errors []string
}

// Engine is the rate-limited fan-out sender.
type Engine struct {
	pool   *pool.Pool
	db     *store.DB // optional history; nil disables recording
	bus    *bus.Bus
	logger *zap.Logger
	sleep  func(time.Duration)
}

// New creates a broadcast engine.
func New(p *pool.Pool, db *store.DB, b *bus.Bus, logger *zap.Logger) *Engine {
	return &Engine{
		pool:   p,
		db:     db,
		bus:    b,
		logger: logger,
		sleep:  time.Sleep,
	}
}

// SendToMany sends text to every target in strict input order, sleeping
// delay between sends. A flood-control cooldown is honored for exactly the
// mandated duration and the target retried once; any other per-target
// error is recorded and the run continues. The call returns only after
// every target has been attempted.
func (e *Engine) SendToMany(ctx context.Context, ownerID int64, text string, targets []int64, delay time.Duration) (*Result, error) {
	conn, err := e.pool.GetOrConnect(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	res := &Result{JobID: uuid.NewString()}
	if e.db != nil {
		if err := e.db.CreateBroadcast(res.JobID, ownerID, text, len(targets)); err != nil {
			e.logger.Warn("history record failed", zap.Error(err))
		}
	}
	e.bus.Emit(bus.KindBroadcastStarted, res.JobID)
	e.logger.Info("broadcast started",
		zap.String("job_id", res.JobID),
		zap.Int64("owner_id", ownerID),
		zap.Int("targets", len(targets)))

	for i, target := range targets {
		err := conn.SendMessage(ctx, target, text)
		if wait, ok := tg.AsFloodWait(err); ok {
			res.Errors = append(res.Errors, fmt.Sprintf("chat %d: flood wait %s", target, wait))
			e.logger.Warn("flood wait",
				zap.String("job_id", res.JobID),
				zap.Int64("chat_id", target),
				zap.Duration("wait", wait))
			e.sleep(wait)
			err = conn.SendMessage(ctx, target, text)
		}

		if err != nil {
			res.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("chat %d: %v", target, err))
			e.recordTarget(res.JobID, i, target, store.StatusFailed, err.Error())
			e.bus.Emit(bus.KindBroadcastTargetFailed, target)
			continue
		}

		res.Sent++
		e.recordTarget(res.JobID, i, target, store.StatusSent, "")
		if i < len(targets)-1 {
			e.sleep(delay)
		}
	}

	if e.db != nil {
		if err := e.db.FinishBroadcast(res.JobID, res.Sent, res.Failed); err != nil {
			e.logger.Warn("history record failed", zap.Error(err))
		}
	}
	e.bus.Emit(bus.KindBroadcastFinished, res.JobID)
	e.logger.Info("broadcast finished",
		zap.String("job_id", res.JobID),
		zap.Int("sent", res.Sent),
		zap.Int("failed", res.Failed))
	return res, nil
}

func (e *Engine) recordTarget(jobID string, position int, chatID int64, status, errMsg string) {
	if e.db == nil {
		return
	}
	if err := e.db.RecordBroadcastTarget(jobID, position, chatID, status, errMsg); err != nil {
		e.logger.Warn("history record failed", zap.Error(err))
	}
}
