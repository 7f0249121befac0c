package posts

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/inkwell-cms/inkwell/internal/apperror"
	"github.com/inkwell-cms/inkwell/internal/clock"
)

// --- Mock Repository ---

// mockPostRepo implements PostRepository for testing.
type mockPostRepo struct {
	createFn     func(ctx context.Context, post *Post) error
	findByIDFn   func(ctx context.Context, id string) (*Post, error)
	findBySlugFn func(ctx context.Context, slug string) (*Post, error)
	updateFn     func(ctx context.Context, post *Post) error
}

func (m *mockPostRepo) Create(ctx context.Context, post *Post) error {
	if m.createFn != nil {
		return m.createFn(ctx, post)
	}
	return nil
}

func (m *mockPostRepo) FindByID(ctx context.Context, id string) (*Post, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, apperror.NewNotFound("post not found")
}

func (m *mockPostRepo) FindBySlug(ctx context.Context, slug string) (*Post, error) {
	if m.findBySlugFn != nil {
		return m.findBySlugFn(ctx, slug)
	}
	return nil, apperror.NewNotFound("post not found")
}

func (m *mockPostRepo) Update(ctx context.Context, post *Post) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, post)
	}
	return nil
}

func (m *mockPostRepo) List(ctx context.Context, limit, offset int) ([]Post, error) {
	return nil, nil
}

func (m *mockPostRepo) ListReadyForPublishing(ctx context.Context, now time.Time) ([]Post, error) {
	return nil, nil
}

func (m *mockPostRepo) FindForUpdateTx(ctx context.Context, tx *sql.Tx, id string) (*Post, error) {
	return nil, apperror.NewNotFound("post not found")
}

func (m *mockPostRepo) SetStatusTx(ctx context.Context, tx *sql.Tx, id, status string, publishAt *time.Time, now time.Time) error {
	return nil
}

// --- Tests ---

var postNow = time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)

func TestCreatePost_StartsAsDraft(t *testing.T) {
	repo := &mockPostRepo{
		createFn: func(ctx context.Context, post *Post) error {
			if post.Status != StatusDraft {
				t.Errorf("expected new post to be draft, got %s", post.Status)
			}
			if post.ID == "" {
				t.Error("expected generated ID")
			}
			if post.PublishAt != nil {
				t.Errorf("expected no publish_at on a new draft, got %v", post.PublishAt)
			}
			return nil
		},
	}

	svc := NewPostService(repo, clock.NewFake(postNow))
	post, err := svc.CreatePost(context.Background(), CreatePostInput{
		Title: "Hello",
		Slug:  "hello",
		Body:  "some body",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !post.CreatedAt.Equal(postNow) || !post.UpdatedAt.Equal(postNow) {
		t.Errorf("expected timestamps %v, got created=%v updated=%v", postNow, post.CreatedAt, post.UpdatedAt)
	}
}

func TestCreatePost_TitleTooLong(t *testing.T) {
	svc := NewPostService(&mockPostRepo{}, clock.NewFake(postNow))

	_, err := svc.CreatePost(context.Background(), CreatePostInput{
		Title: strings.Repeat("x", 256),
		Slug:  "hello",
	})
	if err == nil {
		t.Fatal("expected over-long title to be rejected")
	}
}

func TestUpdatePost_BumpsRevision(t *testing.T) {
	existing := &Post{
		ID:        "p1",
		Title:     "Old",
		Slug:      "old",
		Body:      "old body",
		Status:    StatusDraft,
		CreatedAt: postNow.Add(-time.Hour),
		UpdatedAt: postNow.Add(-time.Hour),
	}

	var saved *Post
	repo := &mockPostRepo{
		findByIDFn: func(ctx context.Context, id string) (*Post, error) {
			cp := *existing
			return &cp, nil
		},
		updateFn: func(ctx context.Context, post *Post) error {
			saved = post
			return nil
		},
	}

	svc := NewPostService(repo, clock.NewFake(postNow))
	post, err := svc.UpdatePost(context.Background(), "p1", UpdatePostInput{
		Title: "New",
		Slug:  "new",
		Body:  "new body",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !post.UpdatedAt.Equal(postNow) {
		t.Errorf("expected updated_at bumped to %v, got %v", postNow, post.UpdatedAt)
	}
	if saved == nil || saved.Title != "New" {
		t.Errorf("expected edited post persisted, got %+v", saved)
	}
	// Status is workflow territory; edits must not change it.
	if post.Status != StatusDraft {
		t.Errorf("expected status untouched, got %s", post.Status)
	}
}

func TestGetPublishedBySlug(t *testing.T) {
	repo := &mockPostRepo{
		findBySlugFn: func(ctx context.Context, slug string) (*Post, error) {
			if slug == "live-post" {
				return &Post{ID: "p1", Slug: slug, Status: StatusPublished}, nil
			}
			return nil, apperror.NewNotFound("post not found")
		},
	}

	svc := NewPostService(repo, clock.NewFake(postNow))
	ctx := context.Background()

	post, err := svc.GetPublishedBySlug(ctx, "live-post")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if post.ID != "p1" {
		t.Errorf("expected p1, got %s", post.ID)
	}

	if _, err := svc.GetPublishedBySlug(ctx, "draft-post"); err == nil {
		t.Error("expected unknown slug to miss")
	}
	if _, err := svc.GetPublishedBySlug(ctx, ""); err == nil {
		t.Error("expected empty slug to be rejected")
	}
}

func TestGetPost_RequiresID(t *testing.T) {
	svc := NewPostService(&mockPostRepo{}, clock.NewFake(postNow))

	_, err := svc.GetPost(context.Background(), "")
	if err == nil {
		t.Fatal("expected empty ID to be rejected")
	}
}
