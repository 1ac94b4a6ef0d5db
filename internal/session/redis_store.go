// Package session keeps edit leases in Redis. A lease grants one owner the
// right to edit a template and carries the serialised editor session between
// requests.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"clausebook/api/internal/editor"

	"github.com/redis/go-redis/v9"
)

var (
	ErrLeaseNotFound = errors.New("edit lease not found or expired")
	ErrLeaseHeld     = errors.New("template is being edited by someone else")
)

// Lease is the data stored for each template under edit.
type Lease struct {
	TemplateID   string          `json:"template_id"`
	Owner        string          `json:"owner"`
	BaseRevision int64           `json:"base_revision"`
	Snapshot     editor.Snapshot `json:"snapshot"`
	AcquiredAt   time.Time       `json:"acquired_at"`
	ExpiresAt    time.Time       `json:"expires_at"`
}

// RedisStore implements lease storage using Redis
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a new Redis-backed lease store
func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client, ttl), nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client
func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisStore{
		client: client,
		prefix: "lease:",
		ttl:    ttl,
	}
}

func (s *RedisStore) key(templateID string) string {
	return s.prefix + templateID
}

// TTL is how long a lease lives without being saved.
func (s *RedisStore) TTL() time.Duration {
	return s.ttl
}

// Acquire takes the lease on templateID for owner. Re-acquiring an owned
// lease returns it unchanged with a fresh expiry.
func (s *RedisStore) Acquire(ctx context.Context, templateID, owner string, baseRevision int64) (Lease, error) {
	now := time.Now().UTC()
	lease := Lease{
		TemplateID:   templateID,
		Owner:        owner,
		BaseRevision: baseRevision,
		Snapshot:     editor.Snapshot{State: editor.StateIdle},
		AcquiredAt:   now,
		ExpiresAt:    now.Add(s.ttl),
	}
	data, err := json.Marshal(lease)
	if err != nil {
		return Lease{}, fmt.Errorf("marshal lease: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.key(templateID), data, s.ttl).Result()
	if err != nil {
		return Lease{}, fmt.Errorf("acquire lease: %w", err)
	}
	if ok {
		return lease, nil
	}

	existing, err := s.Load(ctx, templateID)
	if errors.Is(err, ErrLeaseNotFound) {
		// expired between SETNX and GET
		return s.Acquire(ctx, templateID, owner, baseRevision)
	}
	if err != nil {
		return Lease{}, err
	}
	if existing.Owner != owner {
		return existing, fmt.Errorf("%w: held by %s until %s", ErrLeaseHeld, existing.Owner, existing.ExpiresAt.Format(time.RFC3339))
	}
	return s.Save(ctx, existing)
}

// Load returns the current lease on templateID.
func (s *RedisStore) Load(ctx context.Context, templateID string) (Lease, error) {
	raw, err := s.client.Get(ctx, s.key(templateID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Lease{}, ErrLeaseNotFound
	}
	if err != nil {
		return Lease{}, fmt.Errorf("load lease: %w", err)
	}

	var lease Lease
	if err := json.Unmarshal(raw, &lease); err != nil {
		return Lease{}, fmt.Errorf("unmarshal lease: %w", err)
	}
	return lease, nil
}

// LoadOwned returns the lease only when owner holds it.
func (s *RedisStore) LoadOwned(ctx context.Context, templateID, owner string) (Lease, error) {
	lease, err := s.Load(ctx, templateID)
	if err != nil {
		return Lease{}, err
	}
	if lease.Owner != owner {
		return Lease{}, fmt.Errorf("%w: held by %s", ErrLeaseHeld, lease.Owner)
	}
	return lease, nil
}

// Save writes the lease back and extends its expiry. It fails when the lease
// expired or passed to another owner in the meantime.
func (s *RedisStore) Save(ctx context.Context, lease Lease) (Lease, error) {
	key := s.key(lease.TemplateID)
	lease.ExpiresAt = time.Now().UTC().Add(s.ttl)

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := s.ownerOf(ctx, tx, key)
		if err != nil {
			return err
		}
		if current != lease.Owner {
			return fmt.Errorf("%w: held by %s", ErrLeaseHeld, current)
		}
		data, err := json.Marshal(lease)
		if err != nil {
			return fmt.Errorf("marshal lease: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return Lease{}, err
	}
	return lease, nil
}

// Release drops the lease if owner holds it. Releasing a missing lease is not an error.
func (s *RedisStore) Release(ctx context.Context, templateID, owner string) error {
	key := s.key(templateID)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := s.ownerOf(ctx, tx, key)
		if errors.Is(err, ErrLeaseNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if current != owner {
			return fmt.Errorf("%w: held by %s", ErrLeaseHeld, current)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		return err
	}, key)
	if err != nil && !errors.Is(err, ErrLeaseHeld) {
		return fmt.Errorf("release lease: %w", err)
	}
	return err
}

func (s *RedisStore) ownerOf(ctx context.Context, tx *redis.Tx, key string) (string, error) {
	raw, err := tx.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return "", ErrLeaseNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read lease: %w", err)
	}
	var lease Lease
	if err := json.Unmarshal(raw, &lease); err != nil {
		return "", fmt.Errorf("unmarshal lease: %w", err)
	}
	return lease.Owner, nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
