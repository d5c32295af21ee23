package store

import "time"

// CreateBroadcast records the start of a fan-out run.
func (db *DB) CreateBroadcast(id string, ownerID int64, body string, targetCount int) error {
	_, err := db.Exec(`
		INSERT INTO broadcasts (id, owner_id, body, target_count, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		id, ownerID, body, targetCount, time.Now().UnixMilli())
	return err
}

// RecordBroadcastTarget records one per-target outcome.
func (db *DB) RecordBroadcastTarget(broadcastID string, position int, chatID int64, status, errMsg string) error {
	_, err := db.Exec(`
		INSERT INTO broadcast_targets (broadcast_id, position, chat_id, status, error)
		VALUES (?, ?, ?, ?, ?)`,
		broadcastID, position, chatID, status, errMsg)
	return err
}

// FinishBroadcast closes a run with its final counts.
func (db *DB) FinishBroadcast(id string, sent, failed int) error {
	_, err := db.Exec(`
		UPDATE broadcasts SET sent_count = ?, failed_count = ?, finished_at = ? WHERE id = ?`,
		sent, failed, time.Now().UnixMilli(), id)
	return err
}

// ListBroadcasts returns the owner's most recent runs, newest first.
func (db *DB) ListBroadcasts(ownerID int64, limit int) ([]BroadcastJob, error) {
	rows, err := db.Query(`
		SELECT id, owner_id, body, target_count, sent_count, failed_count,
		       created_at, COALESCE(finished_at, 0)
		FROM broadcasts WHERE owner_id = ?
		ORDER BY created_at DESC LIMIT ?`, ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var jobs []BroadcastJob
	for rows.Next() {
		var j BroadcastJob
		if err := rows.Scan(&j.ID, &j.OwnerID, &j.Body, &j.TargetCount,
			&j.SentCount, &j.FailedCount, &j.CreatedAt, &j.FinishedAt); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// BroadcastTargets returns the per-target outcomes of a run in input order.
func (db *DB) BroadcastTargets(broadcastID string) ([]BroadcastTarget, error) {
	rows, err := db.Query(`
		SELECT broadcast_id, position, chat_id, status, error
		FROM broadcast_targets WHERE broadcast_id = ? ORDER BY position ASC`, broadcastID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var targets []BroadcastTarget
	for rows.Next() {
		var t BroadcastTarget
		if err := rows.Scan(&t.BroadcastID, &t.Position, &t.ChatID, &t.Status, &t.Error); err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

// CreateJoinBatch records the start of a join-and-archive run.
func (db *DB) CreateJoinBatch(id string, ownerID int64, refCount int) error {
	_, err := db.Exec(`
		INSERT INTO join_batches (id, owner_id, ref_count, created_at)
		VALUES (?, ?, ?, ?)`,
		id, ownerID, refCount, time.Now().UnixMilli())
	return err
}

// RecordJoinTarget records one per-reference outcome.
func (db *DB) RecordJoinTarget(batchID string, position int, ref string, chatID int64, status, errMsg string) error {
	_, err := db.Exec(`
		INSERT INTO join_targets (batch_id, position, ref, chat_id, status, error)
		VALUES (?, ?, ?, ?, ?, ?)`,
		batchID, position, ref, chatID, status, errMsg)
	return err
}

// MarkJoinArchived flags a joined target as moved to the archived view.
func (db *DB) MarkJoinArchived(batchID string, position int) error {
	_, err := db.Exec(`
		UPDATE join_targets SET archived = 1 WHERE batch_id = ? AND position = ?`,
		batchID, position)
	return err
}

// FinishJoinBatch closes a run with its final counts.
func (db *DB) FinishJoinBatch(id string, joined, failed int) error {
	_, err := db.Exec(`
		UPDATE join_batches SET joined_count = ?, failed_count = ?, finished_at = ? WHERE id = ?`,
		joined, failed, time.Now().UnixMilli(), id)
	return err
}

// ListJoinBatches returns the owner's most recent join runs, newest first.
func (db *DB) ListJoinBatches(ownerID int64, limit int) ([]JoinBatch, error) {
	rows, err := db.Query(`
		SELECT id, owner_id, ref_count, joined_count, failed_count,
		       created_at, COALESCE(finished_at, 0)
		FROM join_batches WHERE owner_id = ?
		ORDER BY created_at DESC LIMIT ?`, ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var batches []JoinBatch
	for rows.Next() {
		var b JoinBatch
		if err := rows.Scan(&b.ID, &b.OwnerID, &b.RefCount, &b.JoinedCount,
			&b.FailedCount, &b.CreatedAt, &b.FinishedAt); err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}
