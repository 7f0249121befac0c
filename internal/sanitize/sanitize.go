// Package sanitize provides HTML sanitization for post content. Uses
// bluemonday to strip dangerous HTML (script tags, event handlers,
// javascript: URLs) while preserving safe formatting. The preview endpoint
// runs every post body through this before returning it, since previewed
// content is by definition not yet reviewed for publication.
package sanitize

import (
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

// policy is the singleton bluemonday policy for sanitizing post HTML.
// Initialized once via sync.Once for thread-safe lazy initialization.
var (
	policy     *bluemonday.Policy
	policyOnce sync.Once
)

// getPolicy returns the shared sanitization policy, initializing it on first call.
func getPolicy() *bluemonday.Policy {
	policyOnce.Do(func() {
		policy = bluemonday.UGCPolicy()

		// Allow class attributes broadly -- rich text editors use classes
		// for alignment, code blocks, and callouts.
		policy.AllowAttrs("class").Globally()

		// Allow table elements for rich text tables.
		policy.AllowElements("table", "thead", "tbody", "tfoot", "tr", "td", "th", "colgroup", "col", "caption")
		policy.AllowAttrs("colspan", "rowspan").OnElements("td", "th")

		// Allow inline style on common block/inline elements for editor
		// formatting (text color, background color).
		policy.AllowAttrs("style").OnElements("span", "p", "div", "td", "th")
	})
	return policy
}

// HTML sanitizes post body HTML by stripping dangerous elements (script,
// iframe, event handlers, javascript: URLs) while preserving safe
// formatting tags. The sanitized output is safe for rendering in browsers
// via innerHTML.
func HTML(input string) string {
	if input == "" {
		return ""
	}
	return getPolicy().Sanitize(input)
}
