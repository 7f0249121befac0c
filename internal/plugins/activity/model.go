// Package activity provides the append-only activity log for posts. Every
// workflow transition and every successful preview access is captured as an
// Entry and persisted to the activity_log table. Entries are never updated
// or deleted by the application -- retention is an operational concern.
package activity

import "time"

// --- Action Constants ---
// Each action string follows the pattern "resource.verb" for consistent
// filtering and display grouping.

const (
	// ActionDraftSaved is logged when a post is forced back to draft state.
	ActionDraftSaved = "post.draft_saved"

	// ActionPublished is logged when a post is published, manually or by a
	// scheduled task firing.
	ActionPublished = "post.published"

	// ActionUnpublished is logged when a published post is pulled back to draft.
	ActionUnpublished = "post.unpublished"

	// ActionScheduled is logged when a post is scheduled for future publication.
	ActionScheduled = "post.scheduled"

	// ActionRescheduled is logged when a scheduled post's publish time changes.
	ActionRescheduled = "post.rescheduled"

	// ActionBulkPublished is logged per post published through a bulk operation.
	ActionBulkPublished = "post.bulk_published"

	// ActionBulkScheduled is logged per post scheduled through a bulk operation.
	ActionBulkScheduled = "post.bulk_scheduled"

	// ActionArchived is logged when a post is archived (one-way).
	ActionArchived = "post.archived"

	// ActionPreviewAccessed is logged when a preview token grants access to
	// an unpublished post.
	ActionPreviewAccessed = "post.preview_accessed"

	// ActionPublishFailed is logged when a post fails content validation
	// during a bulk or scheduled publish, so the skip is visible in the
	// post's history.
	ActionPublishFailed = "post.publish_failed"
)

// Entry represents a single recorded event in the activity log. ActorID is
// the opaque identity supplied by the caller (nil for system-triggered
// events like scheduled publishes); SourceAddr is the client IP for preview
// accesses.
type Entry struct {
	ID          int64     `json:"id"`
	PostID      string    `json:"post_id"`
	Action      string    `json:"action"`
	Description string    `json:"description"`
	ActorID     *string   `json:"actor_id,omitempty"`
	SourceAddr  *string   `json:"source_addr,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// PreviewStats holds aggregate preview-access statistics for a post,
// derived from preview_accessed entries.
type PreviewStats struct {
	// TotalPreviews is the number of successful preview accesses.
	TotalPreviews int `json:"total_previews"`

	// UniqueVisitors is the count of distinct source addresses.
	UniqueVisitors int `json:"unique_visitors"`

	// LastPreview is the timestamp of the most recent access. Nil if the
	// post has never been previewed.
	LastPreview *time.Time `json:"last_preview,omitempty"`
}
