package activity

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/inkwell-cms/inkwell/internal/apperror"
)

// maxHistoryEntries caps the number of entries returned for a single post
// to prevent unbounded result sets.
const maxHistoryEntries = 200

// ActivityService handles business logic for the activity log. It validates
// inputs, enforces limits, and delegates persistence to the repository.
type ActivityService interface {
	// Log records an activity entry. Designed to be fire-and-forget
	// friendly: errors are logged but callers may choose to ignore them
	// since a lost log entry should not block the primary operation.
	Log(ctx context.Context, entry *Entry) error

	// ListByPost returns the recent entries for a post, optionally
	// restricted to a set of actions, oldest first.
	ListByPost(ctx context.Context, postID string, actions []string) ([]Entry, error)

	// PreviewStats returns aggregate preview-access statistics for a post.
	PreviewStats(ctx context.Context, postID string) (*PreviewStats, error)
}

// activityService implements ActivityService.
type activityService struct {
	repo ActivityRepository
}

// NewActivityService creates a new activity service with the given repository.
func NewActivityService(repo ActivityRepository) ActivityService {
	return &activityService{repo: repo}
}

// Log validates and persists an activity entry. Missing required fields
// cause a validation error. Logging failures are recorded via slog so the
// caller can treat this as fire-and-forget when appropriate.
func (s *activityService) Log(ctx context.Context, entry *Entry) error {
	if entry.PostID == "" {
		return apperror.NewBadRequest("post ID is required for activity entry")
	}
	if entry.Action == "" {
		return apperror.NewBadRequest("action is required for activity entry")
	}

	if err := s.repo.Log(ctx, entry); err != nil {
		slog.Error("failed to write activity entry",
			slog.String("post_id", entry.PostID),
			slog.String("action", entry.Action),
			slog.Any("error", err),
		)
		return apperror.NewInternal(fmt.Errorf("writing activity entry: %w", err))
	}

	return nil
}

// ListByPost returns recent entries for a post, limited to maxHistoryEntries.
func (s *activityService) ListByPost(ctx context.Context, postID string, actions []string) ([]Entry, error) {
	if postID == "" {
		return nil, apperror.NewBadRequest("post ID is required")
	}

	entries, err := s.repo.ListByPost(ctx, postID, actions, maxHistoryEntries)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("listing post activity: %w", err))
	}

	return entries, nil
}

// PreviewStats returns aggregate preview statistics for a post.
func (s *activityService) PreviewStats(ctx context.Context, postID string) (*PreviewStats, error) {
	if postID == "" {
		return nil, apperror.NewBadRequest("post ID is required")
	}

	stats, err := s.repo.PreviewStats(ctx, postID)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("getting preview stats: %w", err))
	}

	return stats, nil
}
