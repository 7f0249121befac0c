package posts

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/inkwell-cms/inkwell/internal/apperror"
	"github.com/inkwell-cms/inkwell/internal/clock"
)

// maxTitleLen caps post titles to match the schema column.
const maxTitleLen = 255

// PostService handles content-level CRUD for posts. Lifecycle transitions
// (publish, schedule, archive) live in the workflow plugin; this service
// only manages the editorial fields.
type PostService interface {
	CreatePost(ctx context.Context, input CreatePostInput) (*Post, error)
	GetPost(ctx context.Context, id string) (*Post, error)
	GetPublishedBySlug(ctx context.Context, slug string) (*Post, error)
	UpdatePost(ctx context.Context, id string, input UpdatePostInput) (*Post, error)
	ListPosts(ctx context.Context, limit, offset int) ([]Post, error)
}

// postService implements PostService.
type postService struct {
	repo  PostRepository
	clock clock.Clock
}

// NewPostService creates a new post service.
func NewPostService(repo PostRepository, clk clock.Clock) PostService {
	return &postService{repo: repo, clock: clk}
}

// CreatePost creates a new draft post. New posts always start as drafts;
// publishing is a separate workflow operation.
func (s *postService) CreatePost(ctx context.Context, input CreatePostInput) (*Post, error) {
	if len(input.Title) > maxTitleLen {
		return nil, apperror.NewBadRequest("title must be at most 255 characters")
	}

	now := s.clock.Now()
	post := &Post{
		ID:        uuid.NewString(),
		Title:     input.Title,
		Slug:      input.Slug,
		Body:      input.Body,
		Status:    StatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, post); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("creating post: %w", err))
	}

	return post, nil
}

// GetPost retrieves a post by ID.
func (s *postService) GetPost(ctx context.Context, id string) (*Post, error) {
	if id == "" {
		return nil, apperror.NewBadRequest("post ID is required")
	}
	return s.repo.FindByID(ctx, id)
}

// GetPublishedBySlug resolves a post by its public URL slug. Only published
// posts resolve; drafts and scheduled posts stay invisible to slug lookups.
func (s *postService) GetPublishedBySlug(ctx context.Context, slug string) (*Post, error) {
	if slug == "" {
		return nil, apperror.NewBadRequest("slug is required")
	}
	return s.repo.FindBySlug(ctx, slug)
}

// UpdatePost persists content edits. Bumping updated_at here is what
// invalidates any preview tokens issued against the previous revision.
func (s *postService) UpdatePost(ctx context.Context, id string, input UpdatePostInput) (*Post, error) {
	if len(input.Title) > maxTitleLen {
		return nil, apperror.NewBadRequest("title must be at most 255 characters")
	}

	post, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	post.Title = input.Title
	post.Slug = input.Slug
	post.Body = input.Body
	post.UpdatedAt = s.clock.Now()

	if err := s.repo.Update(ctx, post); err != nil {
		return nil, err
	}

	return post, nil
}

// ListPosts returns posts ordered by most recently updated.
func (s *postService) ListPosts(ctx context.Context, limit, offset int) ([]Post, error) {
	if limit < 1 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	result, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("listing posts: %w", err))
	}
	return result, nil
}
