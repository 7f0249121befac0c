// Package scheduler provides the delayed-publish task queue. Tasks are
// stored in a Redis sorted set scored by their due time; a polling runner
// pops due tasks and hands them to the workflow layer.
//
// Delivery is at-least-once: a task is removed from the set only after its
// handler returns, so a crash mid-handling redelivers it. The workflow
// layer's publish operation is idempotent, which makes redelivery harmless.
package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/inkwell-cms/inkwell/internal/clock"
)

// queueKey is the Redis sorted set holding pending publish tasks.
const queueKey = "schedule:publish"

// batchSize caps how many due tasks a single poll claims.
const batchSize = 100

// Queue is a Redis-backed delayed task queue for scheduled publishes.
type Queue struct {
	redis *redis.Client
	clock clock.Clock
}

// NewQueue creates a queue on the given Redis client.
func NewQueue(rdb *redis.Client, clk clock.Clock) *Queue {
	return &Queue{redis: rdb, clock: clk}
}

// EnqueuePublish adds a publish task for postID due at-or-after the given
// time. Each enqueue gets a unique member so rescheduling adds a second
// task instead of moving the first; stale tasks are no-ops downstream.
func (q *Queue) EnqueuePublish(ctx context.Context, postID string, at time.Time) error {
	member := postID + ":" + uuid.NewString()
	err := q.redis.ZAdd(ctx, queueKey, redis.Z{
		Score:  float64(at.UTC().UnixMilli()),
		Member: member,
	}).Err()
	if err != nil {
		return fmt.Errorf("enqueueing publish task: %w", err)
	}
	return nil
}

// Due returns the members of tasks whose due time has passed, oldest first.
// Members stay in the set until Ack'd.
func (q *Queue) Due(ctx context.Context) ([]string, error) {
	now := q.clock.Now().UnixMilli()
	members, err := q.redis.ZRangeByScore(ctx, queueKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now, 10),
		Count: batchSize,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("listing due tasks: %w", err)
	}
	return members, nil
}

// Ack removes a handled task from the queue.
func (q *Queue) Ack(ctx context.Context, member string) error {
	if err := q.redis.ZRem(ctx, queueKey, member).Err(); err != nil {
		return fmt.Errorf("acking task: %w", err)
	}
	return nil
}

// Pending returns the number of tasks in the queue, due or not.
func (q *Queue) Pending(ctx context.Context) (int64, error) {
	n, err := q.redis.ZCard(ctx, queueKey).Result()
	if err != nil {
		return 0, fmt.Errorf("counting pending tasks: %w", err)
	}
	return n, nil
}

// PostID extracts the post ID from a task member ("{postID}:{nonce}").
func PostID(member string) string {
	if i := strings.LastIndex(member, ":"); i > 0 {
		return member[:i]
	}
	return member
}
