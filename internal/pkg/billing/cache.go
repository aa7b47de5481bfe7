package billing

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ManuelReschke/AlbumFox/app/models"
	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

// DefaultSnapshotCacheTTL bounds how long a cached snapshot may be served.
const DefaultSnapshotCacheTTL = 5 * time.Minute

const snapshotCachePrefix = "billing:snapshot:"

// cachedRepository is a read-through redis cache in front of a Repository.
// Every write invalidates the user's key; cache failures fall back to the
// wrapped repository.
type cachedRepository struct {
	Repository
	client redis.Cmdable
	ttl    time.Duration
}

// NewCachedRepository wraps repo with a redis snapshot cache.
func NewCachedRepository(repo Repository, client redis.Cmdable, ttl time.Duration) Repository {
	if client == nil {
		return repo
	}
	if ttl <= 0 {
		ttl = DefaultSnapshotCacheTTL
	}
	return &cachedRepository{Repository: repo, client: client, ttl: ttl}
}

func snapshotCacheKey(userID string) string {
	return snapshotCachePrefix + userID
}

func (r *cachedRepository) GetSnapshot(ctx context.Context, userID string) (*models.BillingSnapshot, error) {
	key := snapshotCacheKey(userID)

	raw, err := r.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var snap models.BillingSnapshot
		if jsonErr := json.Unmarshal(raw, &snap); jsonErr == nil {
			return &snap, nil
		}
		log.Warnf("[Billing] Dropping undecodable cached snapshot for user %s", userID)
	case !errors.Is(err, redis.Nil):
		log.Warnf("[Billing] Snapshot cache read failed for user %s: %v", userID, err)
	}

	snap, err := r.Repository.GetSnapshot(ctx, userID)
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(snap); err == nil {
		if err := r.client.Set(ctx, key, payload, r.ttl).Err(); err != nil {
			log.Warnf("[Billing] Snapshot cache write failed for user %s: %v", userID, err)
		}
	}
	return snap, nil
}

func (r *cachedRepository) MergeSnapshot(ctx context.Context, userID string, update SnapshotUpdate) error {
	if err := r.Repository.MergeSnapshot(ctx, userID, update); err != nil {
		return err
	}
	if err := r.client.Del(ctx, snapshotCacheKey(userID)).Err(); err != nil {
		log.Warnf("[Billing] Snapshot cache invalidation failed for user %s: %v", userID, err)
	}
	return nil
}

// GetFreshSnapshot reads past the cache. Cache-aside leaves a short window in
// which a reader that loaded the row before a merge repopulates the key after
// the merge invalidated it; decisions that depend on the current row use this.
func (r *cachedRepository) GetFreshSnapshot(ctx context.Context, userID string) (*models.BillingSnapshot, error) {
	return r.Repository.GetSnapshot(ctx, userID)
}
