package group

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"go-messenger/internal/chat"

	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
)

// cacheClient is the subset of *redis.Client the cache uses.
type cacheClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// CachedStore keeps each user's memberships in Redis. Writes go to the
// underlying store first, then drop the affected users' entries.
// Redis failures degrade to the underlying store.
type CachedStore struct {
	Store
	rdb cacheClient
	ttl time.Duration
	log *slog.Logger
}

func NewCachedStore(store Store, rdb cacheClient, ttl time.Duration, log *slog.Logger) *CachedStore {
	return &CachedStore{Store: store, rdb: rdb, ttl: ttl, log: log}
}

func membershipKey(userID string) string {
	return "memberships:" + userID
}

func (c *CachedStore) MembershipsFor(ctx context.Context, userID string) ([]chat.GroupMembership, error) {
	key := membershipKey(userID)
	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached []chat.GroupMembership
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
		c.log.Warn("Dropping corrupt membership cache entry", "key", key)
	case !errors.Is(err, redis.Nil):
		c.log.Warn("Membership cache read failed", "key", key, "error", err)
	}

	memberships, err := c.Store.MembershipsFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	if memberships == nil {
		memberships = []chat.GroupMembership{}
	}
	data, err := json.Marshal(memberships)
	if err == nil {
		err = c.rdb.Set(ctx, key, data, c.ttl).Err()
	}
	if err != nil {
		c.log.Warn("Membership cache write failed", "key", key, "error", err)
	}
	return memberships, nil
}

func (c *CachedStore) IsMember(ctx context.Context, groupID int64, userID string) (bool, error) {
	memberships, err := c.MembershipsFor(ctx, userID)
	if err != nil {
		return false, err
	}
	return lo.ContainsBy(memberships, func(m chat.GroupMembership) bool {
		return m.GroupID == groupID
	}), nil
}

func (c *CachedStore) CreateGroup(ctx context.Context, g *Group) error {
	if err := c.Store.CreateGroup(ctx, g); err != nil {
		return err
	}
	c.invalidate(ctx, lo.Map(g.Members, func(m Membership, _ int) string { return m.UserID })...)
	return nil
}

// UpdateGroup changes no membership, so nothing cached goes stale.
func (c *CachedStore) UpdateGroup(ctx context.Context, groupID int64, name, description string) error {
	return c.Store.UpdateGroup(ctx, groupID, name, description)
}

func (c *CachedStore) AddMember(ctx context.Context, m Membership) error {
	if err := c.Store.AddMember(ctx, m); err != nil {
		return err
	}
	c.invalidate(ctx, m.UserID)
	return nil
}

func (c *CachedStore) RemoveMember(ctx context.Context, groupID int64, userID string) error {
	if err := c.Store.RemoveMember(ctx, groupID, userID); err != nil {
		return err
	}
	c.invalidate(ctx, userID)
	return nil
}

func (c *CachedStore) SetAdmin(ctx context.Context, groupID int64, userID string, isAdmin bool) error {
	if err := c.Store.SetAdmin(ctx, groupID, userID, isAdmin); err != nil {
		return err
	}
	c.invalidate(ctx, userID)
	return nil
}

func (c *CachedStore) invalidate(ctx context.Context, userIDs ...string) {
	if len(userIDs) == 0 {
		return
	}
	keys := lo.Map(userIDs, func(id string, _ int) string { return membershipKey(id) })
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.log.Warn("Membership cache invalidation failed", "keys", keys, "error", err)
	}
}
