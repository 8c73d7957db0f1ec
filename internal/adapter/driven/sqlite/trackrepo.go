// Package sqlite implements the TrackStore port on an embedded SQLite
// database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avasilyev/issuegram/internal/domain/model"
	"github.com/avasilyev/issuegram/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.TrackStore = (*TrackRepo)(nil)

// TrackRepo is the SQLite implementation of the TrackStore port interface.
type TrackRepo struct {
	db *DB
}

// NewTrackRepo creates a new TrackRepo backed by the given DB.
func NewTrackRepo(db *DB) *TrackRepo {
	return &TrackRepo{db: db}
}

// AddRepo starts tracking a repository for a chat with the given initial
// labels. Returns driven.ErrAlreadyTracked if the pair already exists.
func (r *TrackRepo) AddRepo(ctx context.Context, chatID int64, repo model.RepoRef, labels []string) error {
	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin add repository: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const insertRepo = `INSERT INTO tracked_repos (chat_id, full_name, owner, name, added_at) VALUES (?, ?, ?, ?, ?)`

	result, err := tx.ExecContext(ctx, insertRepo,
		chatID, repo.FullName, repo.Owner, repo.Name, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return fmt.Errorf("add repository %s for chat %d: %w", repo.FullName, chatID, driven.ErrAlreadyTracked)
		}
		return fmt.Errorf("add repository %s for chat %d: %w", repo.FullName, chatID, err)
	}

	repoID, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("resolve repository row id: %w", err)
	}

	const insertLabel = `INSERT INTO tracked_labels (repo_id, label) VALUES (?, ?)`
	for _, label := range labels {
		if _, err := tx.ExecContext(ctx, insertLabel, repoID, label); err != nil {
			return fmt.Errorf("add label %q for %s: %w", label, repo.FullName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit add repository: %w", err)
	}

	return nil
}

// RemoveRepo stops tracking a repository for a chat. The label subscription
// and watermark are removed by foreign key cascade. Returns
// driven.ErrNotTracked if the pair does not exist.
func (r *TrackRepo) RemoveRepo(ctx context.Context, chatID int64, repo model.RepoRef) error {
	const query = `DELETE FROM tracked_repos WHERE chat_id = ? AND full_name = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, chatID, repo.FullName)
	if err != nil {
		return fmt.Errorf("remove repository %s for chat %d: %w", repo.FullName, chatID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("remove repository %s for chat %d: %w", repo.FullName, chatID, driven.ErrNotTracked)
	}

	return nil
}

// ListTracked returns every tracked pair, grouped by chat.
func (r *TrackRepo) ListTracked(ctx context.Context) (map[int64][]model.RepoRef, error) {
	const query = `SELECT chat_id, full_name, owner, name FROM tracked_repos ORDER BY chat_id, full_name`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list tracked pairs: %w", err)
	}
	defer rows.Close()

	tracked := make(map[int64][]model.RepoRef)
	for rows.Next() {
		var chatID int64
		var repo model.RepoRef
		if err := rows.Scan(&chatID, &repo.FullName, &repo.Owner, &repo.Name); err != nil {
			return nil, fmt.Errorf("scan tracked pair: %w", err)
		}
		tracked[chatID] = append(tracked[chatID], repo)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tracked pairs: %w", err)
	}

	return tracked, nil
}

// ListChatRepos returns the repositories tracked by one chat, ordered by
// full name.
func (r *TrackRepo) ListChatRepos(ctx context.Context, chatID int64) ([]model.RepoRef, error) {
	const query = `SELECT full_name, owner, name FROM tracked_repos WHERE chat_id = ? ORDER BY full_name`

	rows, err := r.db.Reader.QueryContext(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("list repositories for chat %d: %w", chatID, err)
	}
	defer rows.Close()

	var repos []model.RepoRef
	for rows.Next() {
		var repo model.RepoRef
		if err := rows.Scan(&repo.FullName, &repo.Owner, &repo.Name); err != nil {
			return nil, fmt.Errorf("scan repository: %w", err)
		}
		repos = append(repos, repo)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate repositories: %w", err)
	}

	return repos, nil
}

// TrackedLabels returns the label subscription for a pair. Returns
// driven.ErrNotTracked if the pair does not exist; a tracked pair with no
// labels yields an empty slice.
func (r *TrackRepo) TrackedLabels(ctx context.Context, chatID int64, repo model.RepoRef) ([]string, error) {
	repoID, err := r.pairID(ctx, r.db.Reader, chatID, repo)
	if err != nil {
		return nil, err
	}

	const query = `SELECT label FROM tracked_labels WHERE repo_id = ? ORDER BY label`

	rows, err := r.db.Reader.QueryContext(ctx, query, repoID)
	if err != nil {
		return nil, fmt.Errorf("list labels for %s: %w", repo.FullName, err)
	}
	defer rows.Close()

	labels := []string{}
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			return nil, fmt.Errorf("scan label: %w", err)
		}
		labels = append(labels, label)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate labels: %w", err)
	}

	return labels, nil
}

// SetTrackedLabels replaces the pair's label subscription atomically.
func (r *TrackRepo) SetTrackedLabels(ctx context.Context, chatID int64, repo model.RepoRef, labels []string) error {
	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin set labels: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	repoID, err := r.pairID(ctx, tx, chatID, repo)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM tracked_labels WHERE repo_id = ?`, repoID); err != nil {
		return fmt.Errorf("clear labels for %s: %w", repo.FullName, err)
	}

	const insertLabel = `INSERT INTO tracked_labels (repo_id, label) VALUES (?, ?)`
	for _, label := range labels {
		if _, err := tx.ExecContext(ctx, insertLabel, repoID, label); err != nil {
			return fmt.Errorf("set label %q for %s: %w", label, repo.FullName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit set labels: %w", err)
	}

	return nil
}

// LastNotified returns the pair's watermark, or nil if no notification has
// ever been delivered for it. Returns driven.ErrNotTracked for unknown
// pairs.
func (r *TrackRepo) LastNotified(ctx context.Context, chatID int64, repo model.RepoRef) (*time.Time, error) {
	const query = `SELECT last_notified_at FROM tracked_repos WHERE chat_id = ? AND full_name = ?`

	var lastNotified sql.NullInt64
	err := r.db.Reader.QueryRowContext(ctx, query, chatID, repo.FullName).Scan(&lastNotified)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("watermark for %s chat %d: %w", repo.FullName, chatID, driven.ErrNotTracked)
	}
	if err != nil {
		return nil, fmt.Errorf("load watermark for %s: %w", repo.FullName, err)
	}

	if !lastNotified.Valid {
		return nil, nil
	}

	t := time.Unix(lastNotified.Int64, 0).UTC()
	return &t, nil
}

// SetLastNotified advances the pair's watermark, stored as unix seconds.
func (r *TrackRepo) SetLastNotified(ctx context.Context, chatID int64, repo model.RepoRef, at time.Time) error {
	const query = `UPDATE tracked_repos SET last_notified_at = ? WHERE chat_id = ? AND full_name = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, at.Unix(), chatID, repo.FullName)
	if err != nil {
		return fmt.Errorf("set watermark for %s: %w", repo.FullName, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("set watermark for %s chat %d: %w", repo.FullName, chatID, driven.ErrNotTracked)
	}

	return nil
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// pairID resolves the tracked pair's row id, mapping a missing row to
// driven.ErrNotTracked.
func (r *TrackRepo) pairID(ctx context.Context, q querier, chatID int64, repo model.RepoRef) (int64, error) {
	const query = `SELECT id FROM tracked_repos WHERE chat_id = ? AND full_name = ?`

	var id int64
	err := q.QueryRowContext(ctx, query, chatID, repo.FullName).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("repository %s for chat %d: %w", repo.FullName, chatID, driven.ErrNotTracked)
	}
	if err != nil {
		return 0, fmt.Errorf("resolve tracked pair %s: %w", repo.FullName, err)
	}

	return id, nil
}
