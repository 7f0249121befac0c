package activity

import (
	"context"
	"database/sql"
	"fmt"
)

// ActivityRepository defines the data access contract for the activity log.
// All SQL lives in the concrete implementation -- no SQL leaks out.
type ActivityRepository interface {
	// Log inserts a new entry.
	Log(ctx context.Context, entry *Entry) error

	// LogTx inserts a new entry inside a caller-supplied transaction.
	// Workflow transitions use this so the status change and its log entry
	// commit or roll back together.
	LogTx(ctx context.Context, tx *sql.Tx, entry *Entry) error

	// ListByPost returns entries for a post in occurred_at order, oldest
	// first, optionally restricted to a set of actions.
	ListByPost(ctx context.Context, postID string, actions []string, limit int) ([]Entry, error)

	// PreviewStats aggregates preview_accessed entries for a post.
	PreviewStats(ctx context.Context, postID string) (*PreviewStats, error)
}

// activityRepository implements ActivityRepository with MariaDB queries.
type activityRepository struct {
	db *sql.DB
}

// NewActivityRepository creates a new repository backed by the given DB pool.
func NewActivityRepository(db *sql.DB) ActivityRepository {
	return &activityRepository{db: db}
}

const insertEntry = `INSERT INTO activity_log (post_id, action, description, actor_id, source_addr, occurred_at)
                     VALUES (?, ?, ?, ?, ?, ?)`

// Log inserts a new activity entry.
func (r *activityRepository) Log(ctx context.Context, entry *Entry) error {
	result, err := r.db.ExecContext(ctx, insertEntry,
		entry.PostID, entry.Action, entry.Description,
		entry.ActorID, entry.SourceAddr, entry.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("inserting activity entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting activity entry id: %w", err)
	}
	entry.ID = id

	return nil
}

// LogTx inserts a new activity entry inside tx.
func (r *activityRepository) LogTx(ctx context.Context, tx *sql.Tx, entry *Entry) error {
	result, err := tx.ExecContext(ctx, insertEntry,
		entry.PostID, entry.Action, entry.Description,
		entry.ActorID, entry.SourceAddr, entry.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("inserting activity entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting activity entry id: %w", err)
	}
	entry.ID = id

	return nil
}

// ListByPost returns entries for a post ordered by occurred_at ascending so
// history reads as a timeline. An empty actions slice means all actions.
func (r *activityRepository) ListByPost(ctx context.Context, postID string, actions []string, limit int) ([]Entry, error) {
	query := `SELECT id, post_id, action, description, actor_id, source_addr, occurred_at
	          FROM activity_log WHERE post_id = ?`
	args := []any{postID}

	if len(actions) > 0 {
		query += ` AND action IN (?` + repeatPlaceholder(len(actions)-1) + `)`
		for _, a := range actions {
			args = append(args, a)
		}
	}

	query += ` ORDER BY occurred_at ASC, id ASC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing activity entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var actorID, sourceAddr sql.NullString
		if err := rows.Scan(
			&e.ID, &e.PostID, &e.Action, &e.Description,
			&actorID, &sourceAddr, &e.OccurredAt,
		); err != nil {
			return nil, fmt.Errorf("scanning activity entry: %w", err)
		}
		if actorID.Valid {
			e.ActorID = &actorID.String
		}
		if sourceAddr.Valid {
			e.SourceAddr = &sourceAddr.String
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating activity rows: %w", err)
	}

	return entries, nil
}

// PreviewStats aggregates preview_accessed entries: total count, distinct
// source addresses, and the most recent access time.
func (r *activityRepository) PreviewStats(ctx context.Context, postID string) (*PreviewStats, error) {
	query := `SELECT COUNT(*), COUNT(DISTINCT source_addr), MAX(occurred_at)
	          FROM activity_log WHERE post_id = ? AND action = ?`

	stats := &PreviewStats{}
	var last sql.NullTime
	err := r.db.QueryRowContext(ctx, query, postID, ActionPreviewAccessed).Scan(
		&stats.TotalPreviews, &stats.UniqueVisitors, &last,
	)
	if err != nil {
		return nil, fmt.Errorf("querying preview stats: %w", err)
	}
	if last.Valid {
		stats.LastPreview = &last.Time
	}

	return stats, nil
}

// repeatPlaceholder returns n copies of ", ?" for IN clauses.
func repeatPlaceholder(n int) string {
	s := ""
	for i := 0; i < n; i++ {
		s += ", ?"
	}
	return s
}
