// Package preview implements the secure preview mechanism for unpublished
// posts. Two credential flavors exist on purpose: ordinary tokens are
// stored server-side and therefore revocable, while shareable links are
// self-contained encrypted payloads that trade revocability for working
// without any server-side record.
package preview

import "time"

// tokenPrefixLen is how many leading characters of a token form its store
// key. The full token is never stored; the prefix only locates the record,
// the digest recomputation proves authenticity.
const tokenPrefixLen = 12

// ResultKind classifies the outcome of a preview request.
type ResultKind int

const (
	// ResultNotFound means the item or credential is missing, expired, or
	// invalid. Deliberately indistinguishable from a nonexistent post.
	ResultNotFound ResultKind = iota

	// ResultRedirect means the post is already published; the preview link
	// is stale, and the caller should redirect to the canonical URL.
	ResultRedirect

	// ResultRender means the preview is authorized and should be rendered.
	ResultRender
)

// RenderResult is what the preview handler turns into an HTTP response.
type RenderResult struct {
	Kind ResultKind

	// RedirectURL is the canonical post URL, set for ResultRedirect.
	RedirectURL string

	// Post is the renderable preview payload, set for ResultRender.
	Post *PreviewPost
}

// PreviewPost is the post as handed to the view layer for preview
// rendering. Body is already sanitized. Mode tells the view which banner
// styling to apply.
type PreviewPost struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Slug      string     `json:"slug"`
	Body      string     `json:"body"`
	Status    string     `json:"status"`
	PublishAt *time.Time `json:"publish_at,omitempty"`

	// Mode is "draft" or "scheduled".
	Mode string `json:"mode"`

	// NoIndex is always true for previews; the handler mirrors it into the
	// X-Robots-Tag header.
	NoIndex bool `json:"noindex"`
}

// shareablePayload is the plaintext of a shareable link before encryption.
type shareablePayload struct {
	PostID    string    `json:"post_id"`
	ExpiresAt time.Time `json:"expires_at"`
	Shareable bool      `json:"shareable"`
	Nonce     string    `json:"nonce"`
}
