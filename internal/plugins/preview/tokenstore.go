package preview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis key layout. Token records live under per-token keys with a TTL so
// Redis evicts them on expiry. A per-post index set tracks the token keys
// issued for each post, making revoke-all a deterministic iteration instead
// of a store-wide pattern scan.
const (
	tokenKeyPrefix = "preview:token:"
	indexKeyPrefix = "preview:index:"
)

// TokenRecord is the stored server-side half of a preview token. The token
// string itself is never stored; validation recomputes the digest from the
// post's current revision plus these fields.
type TokenRecord struct {
	PostID    string    `json:"post_id"`
	ExpiresAt time.Time `json:"expires_at"`
	Nonce     string    `json:"nonce"`
	IssuedAt  time.Time `json:"issued_at"`
}

// TokenStore persists issued preview tokens with expiry. Implementations
// must never extend a record's TTL on read.
type TokenStore interface {
	// Put stores a record under (postID, tokenPrefix) with the given TTL
	// and registers the key in the post's index.
	Put(ctx context.Context, postID, tokenPrefix string, record *TokenRecord, ttl time.Duration) error

	// Get returns the record for (postID, tokenPrefix), or nil if absent.
	Get(ctx context.Context, postID, tokenPrefix string) (*TokenRecord, error)

	// Delete removes a single record. Returns whether anything was deleted.
	Delete(ctx context.Context, postID, tokenPrefix string) (bool, error)

	// DeleteAll removes every record issued for a post. Returns whether
	// anything was deleted.
	DeleteAll(ctx context.Context, postID string) (bool, error)

	// Scan streams all stored records to fn. Used by the expired-token
	// sweep; fn returning false stops the scan.
	Scan(ctx context.Context, fn func(postID, tokenPrefix string, record *TokenRecord) bool) error
}

// redisTokenStore implements TokenStore on Redis.
type redisTokenStore struct {
	client *redis.Client
}

// NewRedisTokenStore creates a token store on the given Redis client.
func NewRedisTokenStore(client *redis.Client) TokenStore {
	return &redisTokenStore{client: client}
}

func tokenKey(postID, tokenPrefix string) string {
	return tokenKeyPrefix + postID + ":" + tokenPrefix
}

func indexKey(postID string) string {
	return indexKeyPrefix + postID
}

// Put stores the record with TTL and adds the key to the post's index set.
// The index set's own expiry is pushed out to the record's TTL so it never
// outlives the last token by more than one issuance window.
func (s *redisTokenStore) Put(ctx context.Context, postID, tokenPrefix string, record *TokenRecord, ttl time.Duration) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshaling token record: %w", err)
	}

	key := tokenKey(postID, tokenPrefix)
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, key, data, ttl)
	pipe.SAdd(ctx, indexKey(postID), key)
	pipe.Expire(ctx, indexKey(postID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("storing token record: %w", err)
	}
	return nil
}

// Get fetches a record. A missing key is (nil, nil), not an error: token
// validation treats absence as an ordinary failed lookup.
func (s *redisTokenStore) Get(ctx context.Context, postID, tokenPrefix string) (*TokenRecord, error) {
	data, err := s.client.Get(ctx, tokenKey(postID, tokenPrefix)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading token record: %w", err)
	}

	var record TokenRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("unmarshaling token record: %w", err)
	}
	return &record, nil
}

// Delete removes one record and its index entry.
func (s *redisTokenStore) Delete(ctx context.Context, postID, tokenPrefix string) (bool, error) {
	key := tokenKey(postID, tokenPrefix)

	deleted, err := s.client.Del(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("deleting token record: %w", err)
	}
	// Best effort; the index self-expires anyway.
	s.client.SRem(ctx, indexKey(postID), key)

	return deleted > 0, nil
}

// DeleteAll removes every record listed in the post's index set, then the
// set itself.
func (s *redisTokenStore) DeleteAll(ctx context.Context, postID string) (bool, error) {
	keys, err := s.client.SMembers(ctx, indexKey(postID)).Result()
	if err != nil {
		return false, fmt.Errorf("listing token index: %w", err)
	}

	var deleted int64
	if len(keys) > 0 {
		deleted, err = s.client.Del(ctx, keys...).Result()
		if err != nil {
			return false, fmt.Errorf("deleting token records: %w", err)
		}
	}

	if err := s.client.Del(ctx, indexKey(postID)).Err(); err != nil {
		return deleted > 0, fmt.Errorf("deleting token index: %w", err)
	}
	return deleted > 0, nil
}

// Scan iterates all token records via SCAN. Records that disappear between
// the scan and the read (TTL eviction) are skipped.
func (s *redisTokenStore) Scan(ctx context.Context, fn func(postID, tokenPrefix string, record *TokenRecord) bool) error {
	iter := s.client.Scan(ctx, 0, tokenKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()

		data, err := s.client.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return fmt.Errorf("reading token record during scan: %w", err)
		}

		var record TokenRecord
		if err := json.Unmarshal(data, &record); err != nil {
			continue
		}

		// Key layout: preview:token:{postID}:{tokenPrefix}
		rest := key[len(tokenKeyPrefix):]
		sep := len(record.PostID)
		if sep >= len(rest) || rest[:sep] != record.PostID {
			continue
		}
		if !fn(record.PostID, rest[sep+1:], &record) {
			return nil
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scanning token records: %w", err)
	}
	return nil
}
