package posts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/inkwell-cms/inkwell/internal/apperror"
)

// PostRepository defines the data access contract for posts. All SQL lives
// in the concrete implementation -- no SQL leaks out.
//
// The Tx-suffixed methods run against a caller-supplied transaction: workflow
// transitions must update the post row and append the activity entry
// atomically, so the workflow store owns the transaction and threads it
// through here.
type PostRepository interface {
	// Create inserts a new post.
	Create(ctx context.Context, post *Post) error

	// FindByID returns a post by ID, or apperror.NotFound.
	FindByID(ctx context.Context, id string) (*Post, error)

	// FindBySlug returns a published post by slug, or apperror.NotFound.
	// Used for the canonical-URL redirect on stale preview links.
	FindBySlug(ctx context.Context, slug string) (*Post, error)

	// Update persists content edits (title, slug, body) and bumps
	// updated_at, which invalidates outstanding preview tokens.
	Update(ctx context.Context, post *Post) error

	// List returns posts ordered by most recently updated.
	List(ctx context.Context, limit, offset int) ([]Post, error)

	// ListReadyForPublishing returns scheduled posts whose publish_at has
	// passed. Safety-net query used by the periodic sweep.
	ListReadyForPublishing(ctx context.Context, now time.Time) ([]Post, error)

	// FindForUpdateTx reads a post inside tx with a row lock so two
	// concurrent workflow transitions on the same post serialize.
	FindForUpdateTx(ctx context.Context, tx *sql.Tx, id string) (*Post, error)

	// SetStatusTx updates status and publish_at inside tx. updated_at is
	// bumped to now as well: a status change is a new revision, so stale
	// preview tokens stop validating.
	SetStatusTx(ctx context.Context, tx *sql.Tx, id, status string, publishAt *time.Time, now time.Time) error
}

// postRepository implements PostRepository with MariaDB queries.
type postRepository struct {
	db *sql.DB
}

// NewPostRepository creates a new repository backed by the given DB pool.
func NewPostRepository(db *sql.DB) PostRepository {
	return &postRepository{db: db}
}

const postColumns = `id, title, slug, body, status, publish_at, created_at, updated_at`

// Create inserts a new post row.
func (r *postRepository) Create(ctx context.Context, post *Post) error {
	query := `INSERT INTO posts (id, title, slug, body, status, publish_at, created_at, updated_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		post.ID, post.Title, post.Slug, post.Body,
		post.Status, post.PublishAt, post.CreatedAt, post.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting post: %w", err)
	}
	return nil
}

// FindByID returns a post by ID.
func (r *postRepository) FindByID(ctx context.Context, id string) (*Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE id = ?`
	return scanPost(r.db.QueryRowContext(ctx, query, id))
}

// FindBySlug returns a published post by slug.
func (r *postRepository) FindBySlug(ctx context.Context, slug string) (*Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE slug = ? AND status = ? LIMIT 1`
	return scanPost(r.db.QueryRowContext(ctx, query, slug, StatusPublished))
}

// Update persists content edits. Status and publish_at are untouched here;
// only workflow transitions change those.
func (r *postRepository) Update(ctx context.Context, post *Post) error {
	query := `UPDATE posts SET title = ?, slug = ?, body = ?, updated_at = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		post.Title, post.Slug, post.Body, post.UpdatedAt, post.ID,
	)
	if err != nil {
		return fmt.Errorf("updating post: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if affected == 0 {
		return apperror.NewNotFound("post not found")
	}
	return nil
}

// List returns posts ordered by most recently updated.
func (r *postRepository) List(ctx context.Context, limit, offset int) ([]Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts ORDER BY updated_at DESC LIMIT ? OFFSET ?`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing posts: %w", err)
	}
	defer rows.Close()

	return scanPosts(rows)
}

// ListReadyForPublishing returns scheduled posts due for publication.
func (r *postRepository) ListReadyForPublishing(ctx context.Context, now time.Time) ([]Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts
	          WHERE status = ? AND publish_at IS NOT NULL AND publish_at <= ?
	          ORDER BY publish_at ASC`

	rows, err := r.db.QueryContext(ctx, query, StatusScheduled, now)
	if err != nil {
		return nil, fmt.Errorf("listing posts ready for publishing: %w", err)
	}
	defer rows.Close()

	return scanPosts(rows)
}

// FindForUpdateTx reads a post with SELECT ... FOR UPDATE inside tx.
func (r *postRepository) FindForUpdateTx(ctx context.Context, tx *sql.Tx, id string) (*Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE id = ? FOR UPDATE`
	return scanPost(tx.QueryRowContext(ctx, query, id))
}

// SetStatusTx updates status, publish_at, and updated_at inside tx.
func (r *postRepository) SetStatusTx(ctx context.Context, tx *sql.Tx, id, status string, publishAt *time.Time, now time.Time) error {
	query := `UPDATE posts SET status = ?, publish_at = ?, updated_at = ? WHERE id = ?`

	result, err := tx.ExecContext(ctx, query, status, publishAt, now, id)
	if err != nil {
		return fmt.Errorf("updating post status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking status update result: %w", err)
	}
	if affected == 0 {
		return apperror.NewNotFound("post not found")
	}
	return nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanPost scans a single post row, mapping sql.ErrNoRows to NotFound.
func scanPost(row rowScanner) (*Post, error) {
	var p Post
	var publishAt sql.NullTime
	err := row.Scan(
		&p.ID, &p.Title, &p.Slug, &p.Body,
		&p.Status, &publishAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NewNotFound("post not found")
		}
		return nil, fmt.Errorf("scanning post: %w", err)
	}
	if publishAt.Valid {
		t := publishAt.Time
		p.PublishAt = &t
	}
	return &p, nil
}

// scanPosts scans all rows from a posts query.
func scanPosts(rows *sql.Rows) ([]Post, error) {
	var result []Post
	for rows.Next() {
		var p Post
		var publishAt sql.NullTime
		if err := rows.Scan(
			&p.ID, &p.Title, &p.Slug, &p.Body,
			&p.Status, &publishAt, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning post row: %w", err)
		}
		if publishAt.Valid {
			t := publishAt.Time
			p.PublishAt = &t
		}
		result = append(result, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating post rows: %w", err)
	}

	return result, nil
}
