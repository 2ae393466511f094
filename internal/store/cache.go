package store

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/webitel/chat-core/internal/domain/model"
)

const userCacheSize = 10000

// CachedStore wraps a Store with a read-through LRU in front of the user
// lookups made on every connect (the Identity Gate's existence check, the
// WebSocket handler's username lookup) and every send (the Lifecycle
// Engine's sender username). Grounded on the teacher's PeerEnricher
// (internal/service/peer_enricher.go), same cache-aside shape applied to
// users instead of cross-service peers.
type CachedStore struct {
	Store
	users *lru.Cache[string, cachedUser]
}

type cachedUser struct {
	user     *model.User
	cachedAt time.Time
}

const userCacheTTL = 30 * time.Second

// NewCachedStore wraps inner with a user read-through cache.
func NewCachedStore(inner Store) *CachedStore {
	// [MEMORY_MANAGEMENT] fixed-size cache, bounded regardless of active user count.
	cache, _ := lru.New[string, cachedUser](userCacheSize)
	return &CachedStore{Store: inner, users: cache}
}

// FindUserByID serves from cache when the entry hasn't expired the TTL,
// since isOnline is mutated frequently elsewhere and a stale cached value
// would misreport presence if cached indefinitely.
func (c *CachedStore) FindUserByID(ctx context.Context, userID string) (*model.User, error) {
	if cached, ok := c.users.Get(userID); ok && time.Since(cached.cachedAt) < userCacheTTL {
		return cached.user, nil
	}

	user, err := c.Store.FindUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	// [CACHE_POPULATION] cache misses too (nil user), to avoid hammering the
	// store for a userID that reliably doesn't exist.
	c.users.Add(userID, cachedUser{user: user, cachedAt: time.Now()})
	return user, nil
}

// UserExists is derived from the same cached lookup rather than a second
// query path.
func (c *CachedStore) UserExists(ctx context.Context, userID string) (bool, error) {
	user, err := c.FindUserByID(ctx, userID)
	if err != nil {
		return false, err
	}
	return user != nil, nil
}

// FindUsernameByID is likewise served from the cached user lookup; an
// unknown user yields "" with no error, as the uncached store does.
func (c *CachedStore) FindUsernameByID(ctx context.Context, userID string) (string, error) {
	user, err := c.FindUserByID(ctx, userID)
	if err != nil || user == nil {
		return "", err
	}
	return user.Username, nil
}

// SetUserOnline invalidates the cached entry so the next FindUserByID sees
// the fresh isOnline flag instead of waiting out the TTL.
func (c *CachedStore) SetUserOnline(ctx context.Context, userID string, online bool) error {
	if err := c.Store.SetUserOnline(ctx, userID, online); err != nil {
		return err
	}
	c.users.Remove(userID)
	return nil
}
