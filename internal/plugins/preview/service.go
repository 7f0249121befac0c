package preview

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/inkwell-cms/inkwell/internal/apperror"
	"github.com/inkwell-cms/inkwell/internal/clock"
	"github.com/inkwell-cms/inkwell/internal/plugins/activity"
	"github.com/inkwell-cms/inkwell/internal/plugins/posts"
	"github.com/inkwell-cms/inkwell/internal/sanitize"
)

// PreviewService defines the business logic contract for preview access.
// Validation methods fail closed: any doubt about a credential reads as
// invalid, and the HTTP layer only ever surfaces a generic 404 for it.
type PreviewService interface {
	// GenerateToken issues a revocable preview token bound to the post's
	// current revision.
	GenerateToken(ctx context.Context, post *posts.Post) (string, error)

	// GenerateURL issues a token and wraps it in a preview URL.
	GenerateURL(ctx context.Context, post *posts.Post) (string, error)

	// TokenURL composes the preview URL for an already-issued token.
	TokenURL(postID, token string) string

	// ValidateToken reports whether token grants preview access to the
	// post at its current revision. Side-effect-free except for deleting
	// a record found expired.
	ValidateToken(ctx context.Context, post *posts.Post, token string) bool

	// RenderPreview authorizes and prepares a preview of the post. A
	// published post yields a redirect to its canonical URL; an invalid
	// credential yields not-found; success logs a preview_accessed entry.
	RenderPreview(ctx context.Context, postID, token string, actor *string, sourceAddr string) (*RenderResult, error)

	// GenerateShareableLink issues a self-contained encrypted preview link
	// that does not depend on the token store. Not revocable.
	GenerateShareableLink(ctx context.Context, post *posts.Post, expiresAt time.Time) (string, error)

	// RenderShared authorizes a shareable-link preview.
	RenderShared(ctx context.Context, blob string, actor *string, sourceAddr string) (*RenderResult, error)

	// RevokeToken deletes one stored token. Returns whether it existed.
	RevokeToken(ctx context.Context, postID, token string) (bool, error)

	// RevokeAll deletes every stored token for a post. Tokens for other
	// posts are unaffected. Shareable links cannot be revoked.
	RevokeAll(ctx context.Context, postID string) (bool, error)

	// CleanupExpired deletes stored tokens whose expiry has passed and
	// returns the count removed. Redis normally evicts them via TTL; this
	// is the safety net for stores that don't self-expire, and for tests.
	CleanupExpired(ctx context.Context) (int, error)

	// Stats aggregates preview accesses for a post. Returns zeros when no
	// activity backend is configured.
	Stats(ctx context.Context, postID string) (*activity.PreviewStats, error)
}

// previewService implements PreviewService.
type previewService struct {
	store    TokenStore
	posts    posts.PostRepository
	activity activity.ActivityService // nil disables access logging and stats
	clock    clock.Clock
	keys     *keys
	baseURL  string
	tokenTTL time.Duration
}

// NewPreviewService creates a preview service. activitySvc may be nil, in
// which case accesses are not logged and Stats returns zeros.
func NewPreviewService(store TokenStore, postRepo posts.PostRepository, activitySvc activity.ActivityService, clk clock.Clock, secret, baseURL string, tokenTTL time.Duration) (PreviewService, error) {
	k, err := deriveKeys(secret)
	if err != nil {
		return nil, err
	}
	return &previewService{
		store:    store,
		posts:    postRepo,
		activity: activitySvc,
		clock:    clk,
		keys:     k,
		baseURL:  baseURL,
		tokenTTL: tokenTTL,
	}, nil
}

// GenerateToken computes the keyed digest over (post, revision, expiry,
// nonce) and stores the verification record with a matching TTL.
func (s *previewService) GenerateToken(ctx context.Context, post *posts.Post) (string, error) {
	now := s.clock.Now()
	expiresAt := now.Add(s.tokenTTL)
	nonce := uuid.NewString()

	token := s.keys.tokenDigest(post.ID, post.UpdatedAt, expiresAt, nonce)

	record := &TokenRecord{
		PostID:    post.ID,
		ExpiresAt: expiresAt,
		Nonce:     nonce,
		IssuedAt:  now,
	}
	if err := s.store.Put(ctx, post.ID, token[:tokenPrefixLen], record, expiresAt.Sub(now)); err != nil {
		return "", apperror.NewInternal(fmt.Errorf("storing preview token: %w", err))
	}

	return token, nil
}

// GenerateURL issues a token and returns the full preview URL.
func (s *previewService) GenerateURL(ctx context.Context, post *posts.Post) (string, error) {
	token, err := s.GenerateToken(ctx, post)
	if err != nil {
		return "", err
	}
	return s.TokenURL(post.ID, token), nil
}

// TokenURL composes the preview URL for a token.
func (s *previewService) TokenURL(postID, token string) string {
	return s.baseURL + "/preview/" + postID + "/" + token
}

// ValidateToken checks a token against the store and the post's current
// revision. Binding the digest recomputation to post.UpdatedAt means any
// edit to the post invalidates all outstanding tokens without a revocation
// sweep. Never extends TTLs.
func (s *previewService) ValidateToken(ctx context.Context, post *posts.Post, token string) bool {
	if len(token) <= tokenPrefixLen {
		return false
	}

	record, err := s.store.Get(ctx, post.ID, token[:tokenPrefixLen])
	if err != nil {
		slog.Error("token store lookup failed",
			slog.String("post_id", post.ID),
			slog.Any("error", err),
		)
		return false
	}
	if record == nil {
		return false
	}

	if s.clock.Now().After(record.ExpiresAt) {
		// Expiry observed before the store evicted it; clean up eagerly.
		if _, err := s.store.Delete(ctx, post.ID, token[:tokenPrefixLen]); err != nil {
			slog.Warn("deleting expired token record",
				slog.String("post_id", post.ID),
				slog.Any("error", err),
			)
		}
		return false
	}

	expected := s.keys.tokenDigest(post.ID, post.UpdatedAt, record.ExpiresAt, record.Nonce)
	return tokenEqual(token, expected)
}

// RenderPreview loads the post and authorizes the preview. All failure
// modes collapse to not-found so a probing caller cannot distinguish a
// missing post from a bad token.
func (s *previewService) RenderPreview(ctx context.Context, postID, token string, actor *string, sourceAddr string) (*RenderResult, error) {
	post, err := s.posts.FindByID(ctx, postID)
	if err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) && appErr.Type == "not_found" {
			return &RenderResult{Kind: ResultNotFound}, nil
		}
		return nil, apperror.NewInternal(fmt.Errorf("loading post for preview: %w", err))
	}

	// A token request for a published post is a stale link, not an error.
	if post.IsPublic() {
		return s.redirectResult(post), nil
	}

	if !s.ValidateToken(ctx, post, token) {
		return &RenderResult{Kind: ResultNotFound}, nil
	}

	s.logAccess(ctx, post.ID, actor, sourceAddr)
	return s.renderResult(post), nil
}

// GenerateShareableLink encrypts a self-contained payload. Unlike ordinary
// tokens, nothing is written to the token store: the link is valid until
// its embedded expiry no matter what happens server-side.
func (s *previewService) GenerateShareableLink(ctx context.Context, post *posts.Post, expiresAt time.Time) (string, error) {
	if !expiresAt.After(s.clock.Now()) {
		return "", apperror.NewBadRequest("expiry must be in the future")
	}

	payload := shareablePayload{
		PostID:    post.ID,
		ExpiresAt: expiresAt.UTC(),
		Shareable: true,
		Nonce:     uuid.NewString(),
	}
	plaintext, err := json.Marshal(payload)
	if err != nil {
		return "", apperror.NewInternal(fmt.Errorf("marshaling shareable payload: %w", err))
	}

	blob, err := s.keys.encrypt(plaintext)
	if err != nil {
		return "", apperror.NewInternal(fmt.Errorf("encrypting shareable link: %w", err))
	}

	return s.baseURL + "/preview/shared/" + base64.RawURLEncoding.EncodeToString(blob), nil
}

// RenderShared decrypts and authorizes a shareable-link preview. The
// authenticated encryption doubles as the integrity check; there is no
// store lookup and no revision binding.
func (s *previewService) RenderShared(ctx context.Context, blob string, actor *string, sourceAddr string) (*RenderResult, error) {
	ciphertext, err := base64.RawURLEncoding.DecodeString(blob)
	if err != nil {
		return &RenderResult{Kind: ResultNotFound}, nil
	}

	plaintext, err := s.keys.decrypt(ciphertext)
	if err != nil {
		return &RenderResult{Kind: ResultNotFound}, nil
	}

	var payload shareablePayload
	if err := json.Unmarshal(plaintext, &payload); err != nil || !payload.Shareable {
		return &RenderResult{Kind: ResultNotFound}, nil
	}

	if s.clock.Now().After(payload.ExpiresAt) {
		return &RenderResult{Kind: ResultNotFound}, nil
	}

	post, err := s.posts.FindByID(ctx, payload.PostID)
	if err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) && appErr.Type == "not_found" {
			return &RenderResult{Kind: ResultNotFound}, nil
		}
		return nil, apperror.NewInternal(fmt.Errorf("loading post for shared preview: %w", err))
	}

	if post.IsPublic() {
		return s.redirectResult(post), nil
	}

	s.logAccess(ctx, post.ID, actor, sourceAddr)
	return s.renderResult(post), nil
}

// RevokeToken deletes one stored token record.
func (s *previewService) RevokeToken(ctx context.Context, postID, token string) (bool, error) {
	if len(token) <= tokenPrefixLen {
		return false, nil
	}
	deleted, err := s.store.Delete(ctx, postID, token[:tokenPrefixLen])
	if err != nil {
		return false, apperror.NewInternal(fmt.Errorf("revoking preview token: %w", err))
	}
	return deleted, nil
}

// RevokeAll deletes every stored token for a post.
func (s *previewService) RevokeAll(ctx context.Context, postID string) (bool, error) {
	deleted, err := s.store.DeleteAll(ctx, postID)
	if err != nil {
		return false, apperror.NewInternal(fmt.Errorf("revoking preview tokens: %w", err))
	}
	return deleted, nil
}

// CleanupExpired sweeps the store for records whose expiry has passed.
func (s *previewService) CleanupExpired(ctx context.Context) (int, error) {
	now := s.clock.Now()
	type stale struct{ postID, tokenPrefix string }
	var expired []stale

	err := s.store.Scan(ctx, func(postID, tokenPrefix string, record *TokenRecord) bool {
		if now.After(record.ExpiresAt) {
			expired = append(expired, stale{postID, tokenPrefix})
		}
		return true
	})
	if err != nil {
		return 0, apperror.NewInternal(fmt.Errorf("scanning for expired tokens: %w", err))
	}

	count := 0
	for _, e := range expired {
		deleted, err := s.store.Delete(ctx, e.postID, e.tokenPrefix)
		if err != nil {
			slog.Warn("deleting expired token",
				slog.String("post_id", e.postID),
				slog.Any("error", err),
			)
			continue
		}
		if deleted {
			count++
		}
	}

	return count, nil
}

// Stats aggregates preview accesses from the activity log.
func (s *previewService) Stats(ctx context.Context, postID string) (*activity.PreviewStats, error) {
	if s.activity == nil {
		return &activity.PreviewStats{}, nil
	}
	return s.activity.PreviewStats(ctx, postID)
}

// logAccess records a preview access. Fire-and-forget: a logging failure
// never blocks the preview itself.
func (s *previewService) logAccess(ctx context.Context, postID string, actor *string, sourceAddr string) {
	if s.activity == nil {
		return
	}

	var addr *string
	if sourceAddr != "" {
		addr = &sourceAddr
	}

	entry := &activity.Entry{
		PostID:      postID,
		Action:      activity.ActionPreviewAccessed,
		Description: "preview accessed",
		ActorID:     actor,
		SourceAddr:  addr,
		OccurredAt:  s.clock.Now(),
	}
	if err := s.activity.Log(ctx, entry); err != nil {
		slog.Warn("failed to log preview access",
			slog.String("post_id", postID),
			slog.Any("error", err),
		)
	}
}

// redirectResult builds the stale-link redirect to the canonical post URL.
func (s *previewService) redirectResult(post *posts.Post) *RenderResult {
	return &RenderResult{
		Kind:        ResultRedirect,
		RedirectURL: s.baseURL + "/posts/" + post.Slug,
	}
}

// renderResult builds the render payload with a sanitized body.
func (s *previewService) renderResult(post *posts.Post) *RenderResult {
	mode := "draft"
	if post.Status == posts.StatusScheduled {
		mode = "scheduled"
	}

	return &RenderResult{
		Kind: ResultRender,
		Post: &PreviewPost{
			ID:        post.ID,
			Title:     post.Title,
			Slug:      post.Slug,
			Body:      sanitize.HTML(post.Body),
			Status:    post.Status,
			PublishAt: post.PublishAt,
			Mode:      mode,
			NoIndex:   true,
		},
	}
}
