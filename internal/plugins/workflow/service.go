package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/inkwell-cms/inkwell/internal/apperror"
	"github.com/inkwell-cms/inkwell/internal/clock"
	"github.com/inkwell-cms/inkwell/internal/plugins/activity"
	"github.com/inkwell-cms/inkwell/internal/plugins/posts"
)

// minBodyLength is the minimum trimmed body length a post needs before it
// can be published or scheduled.
const minBodyLength = 3

// Scheduler enqueues a delayed publish task. The queue guarantees
// at-least-once delivery at-or-after the given time; duplicate delivery is
// harmless because PublishNow is idempotent.
type Scheduler interface {
	EnqueuePublish(ctx context.Context, postID string, at time.Time) error
}

// WorkflowService defines the business logic contract for the publishing
// state machine. The actor parameter is an opaque identity recorded in the
// activity trail; nil means a system-triggered operation (scheduled task,
// sweep).
type WorkflowService interface {
	// SaveDraft forces a post back to draft and clears publish_at.
	SaveDraft(ctx context.Context, postID string, actor *string) (*posts.Post, error)

	// PublishNow publishes a post immediately. Idempotent: publishing an
	// already-published post is a harmless success, which is what makes
	// at-least-once scheduled task delivery safe.
	PublishNow(ctx context.Context, postID string, actor *string) (*posts.Post, error)

	// Schedule sets a post to publish at a future time and enqueues the
	// delayed task.
	Schedule(ctx context.Context, postID string, at time.Time, actor *string) (*posts.Post, error)

	// Reschedule moves a scheduled post's publish time. The previously
	// enqueued task is not removed; when it fires, PublishDue treats it as
	// a no-op, so ordering between the old and new tasks is irrelevant.
	Reschedule(ctx context.Context, postID string, newAt time.Time, actor *string) (*posts.Post, error)

	// Unpublish pulls a published post back to draft.
	Unpublish(ctx context.Context, postID string, actor *string) (*posts.Post, error)

	// Archive retires a post. One-way: no transition leads out of archived.
	Archive(ctx context.Context, postID string, actor *string) (*posts.Post, error)

	// BulkPublish publishes each post in one transaction. Posts failing
	// content validation are skipped and counted; a persistence error
	// rolls back the whole batch.
	BulkPublish(ctx context.Context, ids []string, actor *string) (*BulkResult, error)

	// BulkSchedule schedules each post in one transaction, with the same
	// skip/abort semantics as BulkPublish.
	BulkSchedule(ctx context.Context, ids []string, at time.Time, actor *string) (*BulkResult, error)

	// PublishDue publishes a post only if it is scheduled and its publish
	// time has arrived. This is the entry point for delivered queue tasks:
	// a task enqueued before a reschedule finds the post not yet due and
	// does nothing, and a redelivered task finds it already published.
	// Returns whether a publish actually happened.
	PublishDue(ctx context.Context, postID string) (bool, error)

	// ListReadyForPublishing returns scheduled posts whose time has passed.
	ListReadyForPublishing(ctx context.Context) ([]posts.Post, error)

	// ProcessScheduled publishes every due scheduled post and returns the
	// count processed. Runs periodically as a safety net for tasks lost to
	// queue failures; safe to run concurrently with task delivery.
	ProcessScheduled(ctx context.Context) (int, error)

	// History returns the post's publishing-related activity entries in
	// chronological order, each mapped to a display status.
	History(ctx context.Context, postID string) ([]HistoryEntry, error)

	// Subscribe registers an observer invoked after successful transitions.
	Subscribe(hook Hook)
}

// workflowService implements WorkflowService.
type workflowService struct {
	store     Store
	scheduler Scheduler
	clock     clock.Clock
	activity  activity.ActivityService

	mu    sync.RWMutex
	hooks []Hook
}

// NewWorkflowService creates a new workflow service with the given
// dependencies.
func NewWorkflowService(store Store, sched Scheduler, clk clock.Clock, activitySvc activity.ActivityService) WorkflowService {
	return &workflowService{
		store:     store,
		scheduler: sched,
		clock:     clk,
		activity:  activitySvc,
	}
}

// Subscribe registers a transition observer.
func (s *workflowService) Subscribe(hook Hook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, hook)
}

// fire invokes all registered hooks synchronously. Called only after the
// transaction has committed so observers never see a rolled-back state.
func (s *workflowService) fire(event Event, post *posts.Post) {
	s.mu.RLock()
	hooks := make([]Hook, len(s.hooks))
	copy(hooks, s.hooks)
	s.mu.RUnlock()

	for _, h := range hooks {
		h(event, post)
	}
}

// validatePublishable checks the content preconditions shared by publish
// and schedule: non-empty title, non-empty slug, body of minimum length.
func validatePublishable(p *posts.Post) *apperror.AppError {
	if strings.TrimSpace(p.Title) == "" {
		return apperror.NewValidation("title is required to publish")
	}
	if strings.TrimSpace(p.Slug) == "" {
		return apperror.NewValidation("slug is required to publish")
	}
	if len(strings.TrimSpace(p.Body)) < minBodyLength {
		return apperror.NewValidation("body is too short to publish")
	}
	return nil
}

// entry builds an activity entry stamped with the service clock.
func (s *workflowService) entry(postID, action, description string, actor *string) *activity.Entry {
	return &activity.Entry{
		PostID:      postID,
		Action:      action,
		Description: description,
		ActorID:     actor,
		OccurredAt:  s.clock.Now(),
	}
}

// SaveDraft forces a post back to draft state.
func (s *workflowService) SaveDraft(ctx context.Context, postID string, actor *string) (*posts.Post, error) {
	var post *posts.Post
	err := s.store.Transition(ctx, func(ops TxOps) error {
		p, err := ops.GetPostForUpdate(ctx, postID)
		if err != nil {
			return err
		}
		if p.Status == posts.StatusArchived {
			return apperror.NewInvalidState("post is archived")
		}

		now := s.clock.Now()
		if err := ops.SetStatus(ctx, postID, posts.StatusDraft, nil, now); err != nil {
			return wrapStoreErr(err, "saving draft")
		}
		if err := ops.Log(ctx, s.entry(postID, activity.ActionDraftSaved, "saved as draft", actor)); err != nil {
			return wrapStoreErr(err, "logging draft save")
		}

		p.Status = posts.StatusDraft
		p.PublishAt = nil
		p.UpdatedAt = now
		post = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return post, nil
}

// PublishNow publishes a post immediately. Calling it on an already
// published post logs the call but changes nothing and does not re-fire
// observers, so redelivered scheduled tasks cause no duplicate effects.
func (s *workflowService) PublishNow(ctx context.Context, postID string, actor *string) (*posts.Post, error) {
	var post *posts.Post
	var changed bool

	err := s.store.Transition(ctx, func(ops TxOps) error {
		p, c, err := s.publishInTx(ctx, ops, postID, actor, activity.ActionPublished)
		if err != nil {
			return err
		}
		post = p
		changed = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.fire(EventPublished, post)
	}
	return post, nil
}

// publishInTx performs the publish transition inside an open transaction.
// Shared by PublishNow and the bulk path (which tags entries with the bulk
// action). Returns the post and whether state actually changed.
func (s *workflowService) publishInTx(ctx context.Context, ops TxOps, postID string, actor *string, action string) (*posts.Post, bool, error) {
	p, err := ops.GetPostForUpdate(ctx, postID)
	if err != nil {
		return nil, false, err
	}

	if p.Status == posts.StatusArchived {
		return nil, false, apperror.NewInvalidState("post is archived")
	}

	if p.Status == posts.StatusPublished {
		// Idempotent no-op. Log the call for audit completeness but leave
		// the row and publish_at untouched.
		if err := ops.Log(ctx, s.entry(postID, action, "publish requested; already published", actor)); err != nil {
			return nil, false, wrapStoreErr(err, "logging no-op publish")
		}
		return p, false, nil
	}

	if vErr := validatePublishable(p); vErr != nil {
		return nil, false, vErr
	}

	now := s.clock.Now()
	if err := ops.SetStatus(ctx, postID, posts.StatusPublished, &now, now); err != nil {
		return nil, false, wrapStoreErr(err, "publishing post")
	}
	if err := ops.Log(ctx, s.entry(postID, action, "published", actor)); err != nil {
		return nil, false, wrapStoreErr(err, "logging publish")
	}

	p.Status = posts.StatusPublished
	p.PublishAt = &now
	p.UpdatedAt = now
	return p, true, nil
}

// Schedule sets a post to publish at a future time.
func (s *workflowService) Schedule(ctx context.Context, postID string, at time.Time, actor *string) (*posts.Post, error) {
	at = at.UTC()
	if !at.After(s.clock.Now()) {
		return nil, apperror.NewInvalidSchedule("publish date must be in the future")
	}

	var post *posts.Post
	err := s.store.Transition(ctx, func(ops TxOps) error {
		p, err := s.scheduleInTx(ctx, ops, postID, at, actor, activity.ActionScheduled)
		if err != nil {
			return err
		}
		post = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.enqueue(ctx, postID, at)
	s.fire(EventScheduled, post)
	return post, nil
}

// scheduleInTx performs the schedule transition inside an open transaction.
// Shared by Schedule and BulkSchedule.
func (s *workflowService) scheduleInTx(ctx context.Context, ops TxOps, postID string, at time.Time, actor *string, action string) (*posts.Post, error) {
	p, err := ops.GetPostForUpdate(ctx, postID)
	if err != nil {
		return nil, err
	}

	switch p.Status {
	case posts.StatusDraft, posts.StatusScheduled:
		// Schedulable.
	default:
		return nil, apperror.NewInvalidState(fmt.Sprintf("cannot schedule a %s post", p.Status))
	}

	if vErr := validatePublishable(p); vErr != nil {
		return nil, vErr
	}

	now := s.clock.Now()
	if err := ops.SetStatus(ctx, postID, posts.StatusScheduled, &at, now); err != nil {
		return nil, wrapStoreErr(err, "scheduling post")
	}
	desc := "scheduled for " + fmtTime(at)
	if err := ops.Log(ctx, s.entry(postID, action, desc, actor)); err != nil {
		return nil, wrapStoreErr(err, "logging schedule")
	}

	p.Status = posts.StatusScheduled
	p.PublishAt = &at
	p.UpdatedAt = now
	return p, nil
}

// Reschedule moves a scheduled post's publish time.
func (s *workflowService) Reschedule(ctx context.Context, postID string, newAt time.Time, actor *string) (*posts.Post, error) {
	newAt = newAt.UTC()
	if !newAt.After(s.clock.Now()) {
		return nil, apperror.NewInvalidSchedule("new publish date must be in the future")
	}

	var post *posts.Post
	err := s.store.Transition(ctx, func(ops TxOps) error {
		p, err := ops.GetPostForUpdate(ctx, postID)
		if err != nil {
			return err
		}
		if p.Status != posts.StatusScheduled {
			return apperror.NewInvalidState("only scheduled posts can be rescheduled")
		}

		oldAt := "unset"
		if p.PublishAt != nil {
			oldAt = fmtTime(*p.PublishAt)
		}

		now := s.clock.Now()
		if err := ops.SetStatus(ctx, postID, posts.StatusScheduled, &newAt, now); err != nil {
			return wrapStoreErr(err, "rescheduling post")
		}
		desc := fmt.Sprintf("rescheduled from %s to %s", oldAt, fmtTime(newAt))
		if err := ops.Log(ctx, s.entry(postID, activity.ActionRescheduled, desc, actor)); err != nil {
			return wrapStoreErr(err, "logging reschedule")
		}

		p.PublishAt = &newAt
		p.UpdatedAt = now
		post = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	// The task enqueued for the old time stays in the queue. When it fires,
	// PublishDue sees a post that is either not yet due (rescheduled later)
	// or already published (rescheduled earlier) and does nothing.
	s.enqueue(ctx, postID, newAt)
	s.fire(EventScheduled, post)
	return post, nil
}

// Unpublish pulls a published post back to draft.
func (s *workflowService) Unpublish(ctx context.Context, postID string, actor *string) (*posts.Post, error) {
	var post *posts.Post
	err := s.store.Transition(ctx, func(ops TxOps) error {
		p, err := ops.GetPostForUpdate(ctx, postID)
		if err != nil {
			return err
		}
		if p.Status == posts.StatusArchived {
			return apperror.NewInvalidState("post is archived")
		}

		now := s.clock.Now()
		if err := ops.SetStatus(ctx, postID, posts.StatusDraft, nil, now); err != nil {
			return wrapStoreErr(err, "unpublishing post")
		}
		if err := ops.Log(ctx, s.entry(postID, activity.ActionUnpublished, "unpublished", actor)); err != nil {
			return wrapStoreErr(err, "logging unpublish")
		}

		p.Status = posts.StatusDraft
		p.PublishAt = nil
		p.UpdatedAt = now
		post = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.fire(EventUnpublished, post)
	return post, nil
}

// Archive retires a post. Archiving an archived post is a no-op success.
func (s *workflowService) Archive(ctx context.Context, postID string, actor *string) (*posts.Post, error) {
	var post *posts.Post
	err := s.store.Transition(ctx, func(ops TxOps) error {
		p, err := ops.GetPostForUpdate(ctx, postID)
		if err != nil {
			return err
		}
		if p.Status == posts.StatusArchived {
			post = p
			return nil
		}

		now := s.clock.Now()
		if err := ops.SetStatus(ctx, postID, posts.StatusArchived, p.PublishAt, now); err != nil {
			return wrapStoreErr(err, "archiving post")
		}
		if err := ops.Log(ctx, s.entry(postID, activity.ActionArchived, "archived", actor)); err != nil {
			return wrapStoreErr(err, "logging archive")
		}

		p.Status = posts.StatusArchived
		p.UpdatedAt = now
		post = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return post, nil
}

// BulkPublish publishes each post in one transaction. Validation failures
// are skipped (with a publish_failed entry in the post's history); a
// persistence error aborts and rolls back the entire batch, including
// earlier successes in the same call.
func (s *workflowService) BulkPublish(ctx context.Context, ids []string, actor *string) (*BulkResult, error) {
	result := &BulkResult{}
	var published []*posts.Post

	err := s.store.Transition(ctx, func(ops TxOps) error {
		for _, id := range ids {
			p, changed, err := s.publishInTx(ctx, ops, id, actor, activity.ActionBulkPublished)
			if err != nil {
				if skippable(err) {
					result.Skipped++
					s.logSkip(ctx, ops, id, actor, err)
					continue
				}
				return err
			}
			result.Succeeded++
			if changed {
				published = append(published, p)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, p := range published {
		s.fire(EventPublished, p)
	}
	return result, nil
}

// BulkSchedule schedules each post in one transaction with the same
// skip/abort semantics as BulkPublish.
func (s *workflowService) BulkSchedule(ctx context.Context, ids []string, at time.Time, actor *string) (*BulkResult, error) {
	at = at.UTC()
	if !at.After(s.clock.Now()) {
		return nil, apperror.NewInvalidSchedule("publish date must be in the future")
	}

	result := &BulkResult{}
	var scheduled []*posts.Post

	err := s.store.Transition(ctx, func(ops TxOps) error {
		for _, id := range ids {
			p, err := s.scheduleInTx(ctx, ops, id, at, actor, activity.ActionBulkScheduled)
			if err != nil {
				if skippable(err) {
					result.Skipped++
					s.logSkip(ctx, ops, id, actor, err)
					continue
				}
				return err
			}
			result.Succeeded++
			scheduled = append(scheduled, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, p := range scheduled {
		s.enqueue(ctx, p.ID, at)
		s.fire(EventScheduled, p)
	}
	return result, nil
}

// skippable reports whether a per-item bulk failure should skip the item
// rather than abort the batch: content validation, wrong state, or a
// missing post. Persistence errors are never skippable.
func skippable(err error) bool {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		return false
	}
	switch appErr.Type {
	case "validation_error", "invalid_state", "not_found":
		return true
	}
	return false
}

// logSkip records a publish_failed entry for a post skipped during a bulk
// operation, so the skip shows up in the post's history. Best effort: the
// skip itself stands even if this log write fails.
func (s *workflowService) logSkip(ctx context.Context, ops TxOps, postID string, actor *string, cause error) {
	desc := "skipped: " + apperror.SafeMessage(cause)
	if err := ops.Log(ctx, s.entry(postID, activity.ActionPublishFailed, desc, actor)); err != nil {
		slog.Warn("failed to log bulk skip",
			slog.String("post_id", postID),
			slog.Any("error", err),
		)
	}
}

// PublishDue publishes a post if and only if it is scheduled and due.
func (s *workflowService) PublishDue(ctx context.Context, postID string) (bool, error) {
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return false, err
	}

	if post.Status != posts.StatusScheduled {
		return false, nil
	}
	if post.PublishAt == nil || post.PublishAt.After(s.clock.Now()) {
		return false, nil
	}

	if _, err := s.PublishNow(ctx, postID, nil); err != nil {
		return false, err
	}
	return true, nil
}

// ListReadyForPublishing returns scheduled posts whose publish time has
// passed.
func (s *workflowService) ListReadyForPublishing(ctx context.Context) ([]posts.Post, error) {
	ready, err := s.store.ListReadyForPublishing(ctx, s.clock.Now())
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("listing posts ready for publishing: %w", err))
	}
	return ready, nil
}

// ProcessScheduled publishes every due scheduled post. A failure on one
// post is logged and does not stop the sweep. Safe to run concurrently with
// individual task delivery because publishing is idempotent.
func (s *workflowService) ProcessScheduled(ctx context.Context) (int, error) {
	ready, err := s.ListReadyForPublishing(ctx)
	if err != nil {
		return 0, err
	}

	processed := 0
	for i := range ready {
		if _, err := s.PublishNow(ctx, ready[i].ID, nil); err != nil {
			slog.Error("scheduled publish failed",
				slog.String("post_id", ready[i].ID),
				slog.Any("error", err),
			)
			continue
		}
		processed++
	}

	return processed, nil
}

// History returns the post's publishing-related activity in chronological
// order with display statuses for the admin history view.
func (s *workflowService) History(ctx context.Context, postID string) ([]HistoryEntry, error) {
	entries, err := s.activity.ListByPost(ctx, postID, publishingActions)
	if err != nil {
		return nil, err
	}

	history := make([]HistoryEntry, 0, len(entries))
	for _, e := range entries {
		history = append(history, HistoryEntry{
			Entry:         e,
			DisplayStatus: displayStatusFor(e.Action),
		})
	}
	return history, nil
}

// enqueue puts a delayed publish task on the scheduler. Failure is logged
// but not surfaced: the periodic sweep will publish the post even if the
// queue never delivers.
func (s *workflowService) enqueue(ctx context.Context, postID string, at time.Time) {
	if s.scheduler == nil {
		return
	}
	if err := s.scheduler.EnqueuePublish(ctx, postID, at); err != nil {
		slog.Error("failed to enqueue scheduled publish",
			slog.String("post_id", postID),
			slog.Time("publish_at", at),
			slog.Any("error", err),
		)
	}
}

// wrapStoreErr wraps a persistence error as internal unless it already
// carries a domain meaning (e.g. not_found).
func wrapStoreErr(err error, doing string) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperror.NewInternal(fmt.Errorf("%s: %w", doing, err))
}
