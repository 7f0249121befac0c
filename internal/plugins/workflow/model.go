// Package workflow owns the publishing state machine for posts: draft,
// scheduled, published, archived. All status transitions go through the
// WorkflowService so every change is validated, logged to the activity
// trail, and announced to observers.
package workflow

import (
	"time"

	"github.com/inkwell-cms/inkwell/internal/plugins/activity"
	"github.com/inkwell-cms/inkwell/internal/plugins/posts"
)

// Event identifies a workflow transition announced to observers.
type Event string

const (
	// EventPublished fires after a post becomes published.
	EventPublished Event = "published"

	// EventScheduled fires after a post is scheduled or rescheduled.
	EventScheduled Event = "scheduled"

	// EventUnpublished fires after a published post returns to draft.
	EventUnpublished Event = "unpublished"
)

// Hook is an observer callback invoked synchronously after a transition
// commits. Used for cache invalidation, search indexing, webhooks. Hooks
// must not block; anything slow belongs on the subscriber's own queue.
type Hook func(event Event, post *posts.Post)

// BulkResult reports the outcome of a bulk operation. Skipped counts posts
// that failed content validation; those do not abort the batch.
type BulkResult struct {
	Succeeded int `json:"succeeded"`
	Skipped   int `json:"skipped"`
}

// HistoryEntry is an activity entry annotated with the small display-status
// vocabulary used by admin history views.
type HistoryEntry struct {
	activity.Entry

	// DisplayStatus is one of "published", "draft", "scheduled".
	DisplayStatus string `json:"display_status"`
}

// displayStatusFor maps raw activity actions onto the display vocabulary.
func displayStatusFor(action string) string {
	switch action {
	case activity.ActionPublished, activity.ActionBulkPublished:
		return "published"
	case activity.ActionScheduled, activity.ActionRescheduled, activity.ActionBulkScheduled:
		return "scheduled"
	default:
		return "draft"
	}
}

// publishingActions is the set of actions shown in the publishing history.
// Preview accesses are tracked separately via preview stats.
var publishingActions = []string{
	activity.ActionDraftSaved,
	activity.ActionPublished,
	activity.ActionUnpublished,
	activity.ActionScheduled,
	activity.ActionRescheduled,
	activity.ActionBulkPublished,
	activity.ActionBulkScheduled,
	activity.ActionArchived,
	activity.ActionPublishFailed,
}

// fmtTime renders a timestamp for activity descriptions.
func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
