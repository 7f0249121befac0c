package workflow

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/inkwell-cms/inkwell/internal/plugins/activity"
	"github.com/inkwell-cms/inkwell/internal/plugins/posts"
)

// Store is the transactional persistence boundary for workflow operations.
// Every state transition must update the post row and append its activity
// entry atomically, so the service never touches the repositories directly:
// it describes the transition inside Transition and the store owns the
// transaction.
type Store interface {
	// GetPost reads a post outside any transaction.
	GetPost(ctx context.Context, id string) (*posts.Post, error)

	// ListReadyForPublishing returns scheduled posts due for publication.
	ListReadyForPublishing(ctx context.Context, now time.Time) ([]posts.Post, error)

	// Transition runs fn inside a single database transaction. The TxOps
	// passed to fn reads posts with row locks and stages status/activity
	// writes; returning an error rolls everything back.
	Transition(ctx context.Context, fn func(ops TxOps) error) error
}

// TxOps is the set of operations available inside a workflow transaction.
type TxOps interface {
	// GetPostForUpdate reads a post with a row lock so concurrent
	// transitions on the same post serialize.
	GetPostForUpdate(ctx context.Context, id string) (*posts.Post, error)

	// SetStatus updates the post's status and publish_at. updated_at is
	// bumped to now, invalidating outstanding preview tokens.
	SetStatus(ctx context.Context, id, status string, publishAt *time.Time, now time.Time) error

	// Log appends an activity entry in the same transaction.
	Log(ctx context.Context, entry *activity.Entry) error
}

// mariadbStore implements Store over the posts and activity repositories.
type mariadbStore struct {
	db       *sql.DB
	posts    posts.PostRepository
	activity activity.ActivityRepository
}

// NewStore creates a workflow store backed by MariaDB.
func NewStore(db *sql.DB, postRepo posts.PostRepository, activityRepo activity.ActivityRepository) Store {
	return &mariadbStore{db: db, posts: postRepo, activity: activityRepo}
}

func (s *mariadbStore) GetPost(ctx context.Context, id string) (*posts.Post, error) {
	return s.posts.FindByID(ctx, id)
}

func (s *mariadbStore) ListReadyForPublishing(ctx context.Context, now time.Time) ([]posts.Post, error) {
	return s.posts.ListReadyForPublishing(ctx, now)
}

// Transition begins a transaction, runs fn against it, and commits on
// success. Any error from fn rolls the whole transaction back, including
// activity entries staged by earlier iterations of a bulk loop.
func (s *mariadbStore) Transition(ctx context.Context, fn func(ops TxOps) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning workflow transaction: %w", err)
	}

	ops := &txOps{tx: tx, posts: s.posts, activity: s.activity}
	if err := fn(ops); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.Error("rolling back workflow transaction",
				slog.Any("error", rbErr),
			)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing workflow transaction: %w", err)
	}
	return nil
}

// txOps implements TxOps against a live transaction.
type txOps struct {
	tx       *sql.Tx
	posts    posts.PostRepository
	activity activity.ActivityRepository
}

func (o *txOps) GetPostForUpdate(ctx context.Context, id string) (*posts.Post, error) {
	return o.posts.FindForUpdateTx(ctx, o.tx, id)
}

func (o *txOps) SetStatus(ctx context.Context, id, status string, publishAt *time.Time, now time.Time) error {
	return o.posts.SetStatusTx(ctx, o.tx, id, status, publishAt, now)
}

func (o *txOps) Log(ctx context.Context, entry *activity.Entry) error {
	return o.activity.LogTx(ctx, o.tx, entry)
}
