package preview

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/inkwell-cms/inkwell/internal/apperror"
	"github.com/inkwell-cms/inkwell/internal/clock"
	"github.com/inkwell-cms/inkwell/internal/plugins/activity"
	"github.com/inkwell-cms/inkwell/internal/plugins/posts"
)

// --- Mock Post Repository ---

// mockPostRepo implements posts.PostRepository for testing.
type mockPostRepo struct {
	findByIDFn func(ctx context.Context, id string) (*posts.Post, error)
}

func (m *mockPostRepo) Create(ctx context.Context, post *posts.Post) error { return nil }

func (m *mockPostRepo) FindByID(ctx context.Context, id string) (*posts.Post, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, apperror.NewNotFound("post not found")
}

func (m *mockPostRepo) FindBySlug(ctx context.Context, slug string) (*posts.Post, error) {
	return nil, apperror.NewNotFound("post not found")
}

func (m *mockPostRepo) Update(ctx context.Context, post *posts.Post) error { return nil }

func (m *mockPostRepo) List(ctx context.Context, limit, offset int) ([]posts.Post, error) {
	return nil, nil
}

func (m *mockPostRepo) ListReadyForPublishing(ctx context.Context, now time.Time) ([]posts.Post, error) {
	return nil, nil
}

func (m *mockPostRepo) FindForUpdateTx(ctx context.Context, tx *sql.Tx, id string) (*posts.Post, error) {
	return nil, apperror.NewNotFound("post not found")
}

func (m *mockPostRepo) SetStatusTx(ctx context.Context, tx *sql.Tx, id, status string, publishAt *time.Time, now time.Time) error {
	return nil
}

// --- Mock Activity Service ---

// mockActivity captures logged entries.
type mockActivity struct {
	entries []activity.Entry
	stats   *activity.PreviewStats
}

func (m *mockActivity) Log(ctx context.Context, entry *activity.Entry) error {
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *mockActivity) ListByPost(ctx context.Context, postID string, actions []string) ([]activity.Entry, error) {
	return nil, nil
}

func (m *mockActivity) PreviewStats(ctx context.Context, postID string) (*activity.PreviewStats, error) {
	if m.stats != nil {
		return m.stats, nil
	}
	return &activity.PreviewStats{}, nil
}

// --- Test Helpers ---

const (
	testSecret  = "test-secret-key-at-least-32-chars-long"
	testBaseURL = "https://blog.example.com"
	testTTL     = 24 * time.Hour
)

var previewNow = time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)

func draftPost(id string) *posts.Post {
	return &posts.Post{
		ID:        id,
		Title:     "A Post",
		Slug:      "a-post",
		Body:      "<p>hello</p>",
		Status:    posts.StatusDraft,
		CreatedAt: previewNow.Add(-time.Hour),
		UpdatedAt: previewNow.Add(-time.Hour),
	}
}

// newTestService builds a preview service on a miniredis-backed store, a
// single-post repo, and a fake clock.
func newTestService(t *testing.T, post *posts.Post) (PreviewService, *mockPostRepo, *mockActivity, *clock.Fake) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	repo := &mockPostRepo{}
	if post != nil {
		repo.findByIDFn = func(ctx context.Context, id string) (*posts.Post, error) {
			if id == post.ID {
				cp := *post
				return &cp, nil
			}
			return nil, apperror.NewNotFound("post not found")
		}
	}

	act := &mockActivity{}
	clk := clock.NewFake(previewNow)

	svc, err := NewPreviewService(NewRedisTokenStore(client), repo, act, clk, testSecret, testBaseURL, testTTL)
	if err != nil {
		t.Fatalf("building preview service: %v", err)
	}
	return svc, repo, act, clk
}

// --- Token Tests ---

func TestToken_RoundTrip(t *testing.T) {
	post := draftPost("p1")
	svc, _, _, _ := newTestService(t, post)
	ctx := context.Background()

	token, err := svc.GenerateToken(ctx, post)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(token) <= tokenPrefixLen {
		t.Fatalf("token too short: %q", token)
	}

	if !svc.ValidateToken(ctx, post, token) {
		t.Error("expected freshly issued token to validate")
	}
}

func TestToken_TamperedRejected(t *testing.T) {
	post := draftPost("p1")
	svc, _, _, _ := newTestService(t, post)
	ctx := context.Background()

	token, err := svc.GenerateToken(ctx, post)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Flip the last character while keeping the stored prefix intact, so
	// the record is found but the digest no longer matches.
	last := token[len(token)-1]
	flip := "0"
	if last == '0' {
		flip = "1"
	}
	tampered := token[:len(token)-1] + flip

	if svc.ValidateToken(ctx, post, tampered) {
		t.Error("expected tampered token to be rejected")
	}
	if svc.ValidateToken(ctx, post, "garbage") {
		t.Error("expected garbage token to be rejected")
	}
	if svc.ValidateToken(ctx, post, "") {
		t.Error("expected empty token to be rejected")
	}
}

func TestToken_ExpiresWithClock(t *testing.T) {
	post := draftPost("p1")
	svc, _, _, clk := newTestService(t, post)
	ctx := context.Background()

	token, err := svc.GenerateToken(ctx, post)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	clk.Advance(testTTL + time.Minute)
	if svc.ValidateToken(ctx, post, token) {
		t.Error("expected token to be invalid past its TTL")
	}
}

func TestToken_InvalidatedByRevisionChange(t *testing.T) {
	post := draftPost("p1")
	svc, _, _, _ := newTestService(t, post)
	ctx := context.Background()

	token, err := svc.GenerateToken(ctx, post)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The post is edited: updated_at moves, the token's bound revision is
	// gone.
	post.UpdatedAt = post.UpdatedAt.Add(time.Minute)
	if svc.ValidateToken(ctx, post, token) {
		t.Error("expected token to be invalid after a content edit")
	}
}

func TestToken_Revoke(t *testing.T) {
	post := draftPost("p1")
	svc, _, _, _ := newTestService(t, post)
	ctx := context.Background()

	token, err := svc.GenerateToken(ctx, post)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	deleted, err := svc.RevokeToken(ctx, post.ID, token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !deleted {
		t.Error("expected revocation to find the token")
	}
	if svc.ValidateToken(ctx, post, token) {
		t.Error("expected revoked token to be rejected")
	}

	// Revoking again reports nothing deleted.
	deleted, err = svc.RevokeToken(ctx, post.ID, token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted {
		t.Error("expected second revocation to be a miss")
	}
}

func TestToken_RevokeAllIsScopedToPost(t *testing.T) {
	p1 := draftPost("p1")
	p2 := draftPost("p2")

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	byID := map[string]*posts.Post{"p1": p1, "p2": p2}
	repo := &mockPostRepo{findByIDFn: func(ctx context.Context, id string) (*posts.Post, error) {
		if p, ok := byID[id]; ok {
			cp := *p
			return &cp, nil
		}
		return nil, apperror.NewNotFound("post not found")
	}}

	svc, err := NewPreviewService(NewRedisTokenStore(client), repo, nil, clock.NewFake(previewNow), testSecret, testBaseURL, testTTL)
	if err != nil {
		t.Fatalf("building preview service: %v", err)
	}
	ctx := context.Background()

	t1a, _ := svc.GenerateToken(ctx, p1)
	t1b, _ := svc.GenerateToken(ctx, p1)
	t2, _ := svc.GenerateToken(ctx, p2)

	deleted, err := svc.RevokeAll(ctx, "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !deleted {
		t.Error("expected revocation to delete tokens")
	}

	if svc.ValidateToken(ctx, p1, t1a) || svc.ValidateToken(ctx, p1, t1b) {
		t.Error("expected all of p1's tokens to be revoked")
	}
	if !svc.ValidateToken(ctx, p2, t2) {
		t.Error("expected p2's token to survive p1's revocation")
	}
}

func TestCleanupExpired(t *testing.T) {
	post := draftPost("p1")
	svc, _, _, clk := newTestService(t, post)
	ctx := context.Background()

	if _, err := svc.GenerateToken(ctx, post); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.GenerateToken(ctx, post); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Nothing is expired yet.
	n, err := svc.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 expired tokens, got %d", n)
	}

	// The service clock passes the expiry while the records are still in
	// Redis (miniredis does not advance TTLs on its own).
	clk.Advance(testTTL + time.Minute)
	n, err = svc.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 expired tokens removed, got %d", n)
	}
}

// --- RenderPreview Tests ---

func TestRenderPreview_ValidToken(t *testing.T) {
	post := draftPost("p1")
	svc, _, act, _ := newTestService(t, post)
	ctx := context.Background()

	token, err := svc.GenerateToken(ctx, post)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	actor := "alice"
	result, err := svc.RenderPreview(ctx, "p1", token, &actor, "203.0.113.9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Kind != ResultRender {
		t.Fatalf("expected render result, got %v", result.Kind)
	}
	if result.Post.Mode != "draft" {
		t.Errorf("expected draft mode, got %s", result.Post.Mode)
	}
	if !result.Post.NoIndex {
		t.Error("expected noindex flag set")
	}

	if len(act.entries) != 1 {
		t.Fatalf("expected 1 access entry, got %d", len(act.entries))
	}
	e := act.entries[0]
	if e.Action != activity.ActionPreviewAccessed {
		t.Errorf("expected preview_accessed action, got %s", e.Action)
	}
	if e.ActorID == nil || *e.ActorID != "alice" {
		t.Errorf("expected actor alice, got %v", e.ActorID)
	}
	if e.SourceAddr == nil || *e.SourceAddr != "203.0.113.9" {
		t.Errorf("expected source address recorded, got %v", e.SourceAddr)
	}
}

func TestRenderPreview_ScheduledMode(t *testing.T) {
	at := previewNow.Add(time.Hour)
	post := draftPost("p1")
	post.Status = posts.StatusScheduled
	post.PublishAt = &at

	svc, _, _, _ := newTestService(t, post)
	ctx := context.Background()

	token, _ := svc.GenerateToken(ctx, post)
	result, err := svc.RenderPreview(ctx, "p1", token, nil, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Kind != ResultRender {
		t.Fatalf("expected render result, got %v", result.Kind)
	}
	if result.Post.Mode != "scheduled" {
		t.Errorf("expected scheduled mode, got %s", result.Post.Mode)
	}
}

func TestRenderPreview_SanitizesBody(t *testing.T) {
	post := draftPost("p1")
	post.Body = `<p>ok</p><script>alert(1)</script>`

	svc, _, _, _ := newTestService(t, post)
	ctx := context.Background()

	token, _ := svc.GenerateToken(ctx, post)
	result, err := svc.RenderPreview(ctx, "p1", token, nil, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(result.Post.Body, "<script>") {
		t.Errorf("expected script stripped from body, got %q", result.Post.Body)
	}
	if !strings.Contains(result.Post.Body, "<p>ok</p>") {
		t.Errorf("expected safe markup preserved, got %q", result.Post.Body)
	}
}

func TestRenderPreview_InvalidTokenIsNotFound(t *testing.T) {
	post := draftPost("p1")
	svc, _, act, _ := newTestService(t, post)
	ctx := context.Background()

	result, err := svc.RenderPreview(ctx, "p1", "not-a-real-token", nil, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Kind != ResultNotFound {
		t.Errorf("expected not-found result, got %v", result.Kind)
	}

	// Failed attempts do not pollute the access trail.
	if len(act.entries) != 0 {
		t.Errorf("expected no access entries, got %d", len(act.entries))
	}
}

func TestRenderPreview_MissingPostIsNotFound(t *testing.T) {
	svc, _, _, _ := newTestService(t, nil)

	result, err := svc.RenderPreview(context.Background(), "ghost", "whatever", nil, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Kind != ResultNotFound {
		t.Errorf("expected not-found result, got %v", result.Kind)
	}
}

func TestRenderPreview_PublishedRedirects(t *testing.T) {
	at := previewNow.Add(-time.Hour)
	post := draftPost("p1")
	post.Status = posts.StatusPublished
	post.PublishAt = &at

	svc, _, _, _ := newTestService(t, post)

	// Even a bogus token redirects: the post is public anyway.
	result, err := svc.RenderPreview(context.Background(), "p1", "stale", nil, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Kind != ResultRedirect {
		t.Fatalf("expected redirect result, got %v", result.Kind)
	}
	if result.RedirectURL != testBaseURL+"/posts/a-post" {
		t.Errorf("expected canonical URL, got %s", result.RedirectURL)
	}
}

// --- Shareable Link Tests ---

func TestShareableLink_RoundTrip(t *testing.T) {
	post := draftPost("p1")
	svc, _, act, _ := newTestService(t, post)
	ctx := context.Background()

	url, err := svc.GenerateShareableLink(ctx, post, previewNow.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	prefix := testBaseURL + "/preview/shared/"
	if !strings.HasPrefix(url, prefix) {
		t.Fatalf("unexpected link format: %s", url)
	}
	blob := strings.TrimPrefix(url, prefix)

	result, err := svc.RenderShared(ctx, blob, nil, "198.51.100.7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Kind != ResultRender {
		t.Fatalf("expected render result, got %v", result.Kind)
	}
	if len(act.entries) != 1 {
		t.Errorf("expected 1 access entry, got %d", len(act.entries))
	}
}

func TestShareableLink_SurvivesTokenRevocation(t *testing.T) {
	post := draftPost("p1")
	svc, _, _, _ := newTestService(t, post)
	ctx := context.Background()

	url, err := svc.GenerateShareableLink(ctx, post, previewNow.Add(time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	blob := strings.TrimPrefix(url, testBaseURL+"/preview/shared/")

	// Revoking stored tokens cannot touch a self-contained link.
	if _, err := svc.RevokeAll(ctx, post.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := svc.RenderShared(ctx, blob, nil, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Kind != ResultRender {
		t.Errorf("expected shareable link to survive revocation, got %v", result.Kind)
	}
}

func TestShareableLink_Expires(t *testing.T) {
	post := draftPost("p1")
	svc, _, _, clk := newTestService(t, post)
	ctx := context.Background()

	url, err := svc.GenerateShareableLink(ctx, post, previewNow.Add(time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	blob := strings.TrimPrefix(url, testBaseURL+"/preview/shared/")

	clk.Advance(2 * time.Hour)
	result, err := svc.RenderShared(ctx, blob, nil, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Kind != ResultNotFound {
		t.Errorf("expected expired link to be not-found, got %v", result.Kind)
	}
}

func TestShareableLink_PastExpiryRejected(t *testing.T) {
	post := draftPost("p1")
	svc, _, _, _ := newTestService(t, post)

	_, err := svc.GenerateShareableLink(context.Background(), post, previewNow.Add(-time.Minute))
	if err == nil {
		t.Fatal("expected past expiry to be rejected")
	}
}

func TestShareableLink_TamperedRejected(t *testing.T) {
	post := draftPost("p1")
	svc, _, _, _ := newTestService(t, post)
	ctx := context.Background()

	url, err := svc.GenerateShareableLink(ctx, post, previewNow.Add(time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	blob := strings.TrimPrefix(url, testBaseURL+"/preview/shared/")

	for _, bad := range []string{
		blob[:len(blob)-2],
		"A" + blob,
		"not base64 at all!!",
		"",
	} {
		result, err := svc.RenderShared(ctx, bad, nil, "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Kind != ResultNotFound {
			t.Errorf("expected tampered blob %q to be not-found, got %v", bad, result.Kind)
		}
	}
}

// --- Stats Tests ---

func TestStats_WithoutActivityBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	svc, err := NewPreviewService(NewRedisTokenStore(client), &mockPostRepo{}, nil, clock.NewFake(previewNow), testSecret, testBaseURL, testTTL)
	if err != nil {
		t.Fatalf("building preview service: %v", err)
	}

	stats, err := svc.Stats(context.Background(), "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.TotalPreviews != 0 || stats.UniqueVisitors != 0 {
		t.Errorf("expected zero stats, got %+v", stats)
	}
}

func TestStats_DelegatesToActivity(t *testing.T) {
	post := draftPost("p1")
	svc, _, act, _ := newTestService(t, post)
	act.stats = &activity.PreviewStats{TotalPreviews: 7, UniqueVisitors: 3}

	stats, err := svc.Stats(context.Background(), "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.TotalPreviews != 7 || stats.UniqueVisitors != 3 {
		t.Errorf("expected delegated stats, got %+v", stats)
	}
}

// --- URL Tests ---

func TestGenerateURL(t *testing.T) {
	post := draftPost("p1")
	svc, _, _, _ := newTestService(t, post)

	url, err := svc.GenerateURL(context.Background(), post)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(url, testBaseURL+"/preview/p1/") {
		t.Errorf("unexpected preview URL: %s", url)
	}

	token := strings.TrimPrefix(url, testBaseURL+"/preview/p1/")
	if !svc.ValidateToken(context.Background(), post, token) {
		t.Error("expected token embedded in URL to validate")
	}
}
