package activity

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"
)

// --- Mock Repository ---

// mockActivityRepo implements ActivityRepository for testing.
type mockActivityRepo struct {
	logFn          func(ctx context.Context, entry *Entry) error
	listByPostFn   func(ctx context.Context, postID string, actions []string, limit int) ([]Entry, error)
	previewStatsFn func(ctx context.Context, postID string) (*PreviewStats, error)
}

func (m *mockActivityRepo) Log(ctx context.Context, entry *Entry) error {
	if m.logFn != nil {
		return m.logFn(ctx, entry)
	}
	return nil
}

func (m *mockActivityRepo) LogTx(ctx context.Context, tx *sql.Tx, entry *Entry) error {
	return nil
}

func (m *mockActivityRepo) ListByPost(ctx context.Context, postID string, actions []string, limit int) ([]Entry, error) {
	if m.listByPostFn != nil {
		return m.listByPostFn(ctx, postID, actions, limit)
	}
	return nil, nil
}

func (m *mockActivityRepo) PreviewStats(ctx context.Context, postID string) (*PreviewStats, error) {
	if m.previewStatsFn != nil {
		return m.previewStatsFn(ctx, postID)
	}
	return &PreviewStats{}, nil
}

// --- Tests ---

func TestLog_RequiresPostAndAction(t *testing.T) {
	svc := NewActivityService(&mockActivityRepo{})
	ctx := context.Background()

	err := svc.Log(ctx, &Entry{Action: ActionPublished})
	if err == nil {
		t.Error("expected missing post ID to be rejected")
	}

	err = svc.Log(ctx, &Entry{PostID: "p1"})
	if err == nil {
		t.Error("expected missing action to be rejected")
	}
}

func TestLog_PersistsEntry(t *testing.T) {
	var logged *Entry
	repo := &mockActivityRepo{
		logFn: func(ctx context.Context, entry *Entry) error {
			logged = entry
			return nil
		},
	}

	svc := NewActivityService(repo)
	entry := &Entry{
		PostID:     "p1",
		Action:     ActionPublished,
		OccurredAt: time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC),
	}
	if err := svc.Log(context.Background(), entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if logged != entry {
		t.Error("expected entry handed to repository")
	}
}

func TestLog_RepositoryFailureSurfaces(t *testing.T) {
	repo := &mockActivityRepo{
		logFn: func(ctx context.Context, entry *Entry) error {
			return errors.New("table locked")
		},
	}

	svc := NewActivityService(repo)
	err := svc.Log(context.Background(), &Entry{PostID: "p1", Action: ActionPublished})
	if err == nil {
		t.Error("expected repository failure to surface")
	}
}

func TestListByPost_AppliesLimit(t *testing.T) {
	var gotLimit int
	var gotActions []string
	repo := &mockActivityRepo{
		listByPostFn: func(ctx context.Context, postID string, actions []string, limit int) ([]Entry, error) {
			gotLimit = limit
			gotActions = actions
			return []Entry{{PostID: postID}}, nil
		},
	}

	svc := NewActivityService(repo)
	entries, err := svc.ListByPost(context.Background(), "p1", []string{ActionPublished})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected 1 entry, got %d", len(entries))
	}
	if gotLimit != maxHistoryEntries {
		t.Errorf("expected limit %d, got %d", maxHistoryEntries, gotLimit)
	}
	if len(gotActions) != 1 || gotActions[0] != ActionPublished {
		t.Errorf("expected action filter passed through, got %v", gotActions)
	}
}

func TestListByPost_RequiresPostID(t *testing.T) {
	svc := NewActivityService(&mockActivityRepo{})

	_, err := svc.ListByPost(context.Background(), "", nil)
	if err == nil {
		t.Error("expected empty post ID to be rejected")
	}
}

func TestPreviewStats_Delegates(t *testing.T) {
	last := time.Date(2026, 1, 2, 9, 30, 0, 0, time.UTC)
	repo := &mockActivityRepo{
		previewStatsFn: func(ctx context.Context, postID string) (*PreviewStats, error) {
			return &PreviewStats{TotalPreviews: 4, UniqueVisitors: 2, LastPreview: &last}, nil
		},
	}

	svc := NewActivityService(repo)
	stats, err := svc.PreviewStats(context.Background(), "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.TotalPreviews != 4 || stats.UniqueVisitors != 2 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.LastPreview == nil || !stats.LastPreview.Equal(last) {
		t.Errorf("expected last preview %v, got %v", last, stats.LastPreview)
	}
}
