// Package posts defines the Post content model and its persistence layer.
// A Post is the unit of publishable content whose lifecycle the workflow
// plugin manages. The content fields themselves (title, slug, body) are
// plain editorial data; the workflow plugin owns all status transitions.
package posts

import "time"

// Post status constants. A post moves draft -> scheduled -> published, with
// unpublish returning to draft and archive as a one-way exit.
const (
	StatusDraft     = "draft"
	StatusScheduled = "scheduled"
	StatusPublished = "published"
	StatusArchived  = "archived"
)

// Post represents a single publishable content item.
//
// UpdatedAt doubles as the revision marker for preview tokens: every
// content edit bumps it, which silently invalidates any outstanding token
// bound to the previous revision. It is stored with microsecond precision
// for that reason.
type Post struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Slug      string     `json:"slug"`
	Body      string     `json:"body"`
	Status    string     `json:"status"`
	PublishAt *time.Time `json:"publish_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// IsPublic returns true if the post is visible to normal traffic.
func (p *Post) IsPublic() bool {
	return p.Status == StatusPublished
}

// CreatePostInput holds the fields accepted when creating a post.
type CreatePostInput struct {
	Title string `json:"title"`
	Slug  string `json:"slug"`
	Body  string `json:"body"`
}

// UpdatePostInput holds the fields accepted when editing a post's content.
// Status and publish_at are deliberately absent: those only change through
// workflow operations.
type UpdatePostInput struct {
	Title string `json:"title"`
	Slug  string `json:"slug"`
	Body  string `json:"body"`
}
