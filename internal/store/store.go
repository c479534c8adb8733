package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/omniful/go_commons/db/sql/postgres"
	"github.com/omniful/inventory-reconciler/internal/models"
	"github.com/omniful/inventory-reconciler/pkg/constants"
	"gorm.io/gorm"
)

const storeCacheTTL = constants.CacheTTLStoreInfo * time.Second

// StoreRepository is the typed CRUD surface over stores. Stores are created
// administratively; this layer never auto-creates one.
type StoreRepository interface {
	Get(ctx context.Context, storeID string) (*models.Store, error)
	// ListActiveByPlatformType returns every store with status=active and
	// the given platform_type, used by OrderPoller.PollAllStores.
	ListActiveByPlatformType(ctx context.Context, platformType string) ([]*models.Store, error)
	TouchLastSkuSync(ctx context.Context, storeID string, at time.Time) error
}

type storeRepository struct {
	dbCluster *postgres.DbCluster
	redis     *redis.Client
}

func NewStoreRepository(dbCluster *postgres.DbCluster, redis *redis.Client) StoreRepository {
	return &storeRepository{dbCluster: dbCluster, redis: redis}
}

func (r *storeRepository) cacheKey(storeID string) string {
	return fmt.Sprintf("%s%s", constants.CacheKeyStorePrefix, storeID)
}

func (r *storeRepository) Get(ctx context.Context, storeID string) (*models.Store, error) {
	if r.redis != nil {
		var cached models.Store
		if err := cacheGet(ctx, r.redis, r.cacheKey(storeID), &cached); err == nil {
			return &cached, nil
		}
	}

	var s models.Store
	db := r.dbCluster.GetMasterDB(ctx)
	if err := db.WithContext(ctx).Where("store_id = ?", storeID).First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: get store %q: %w", storeID, err)
	}

	if r.redis != nil {
		cacheSet(ctx, r.redis, r.cacheKey(storeID), s, storeCacheTTL)
	}
	return &s, nil
}

func (r *storeRepository) ListActiveByPlatformType(ctx context.Context, platformType string) ([]*models.Store, error) {
	var stores []*models.Store
	db := r.dbCluster.GetMasterDB(ctx)
	if err := db.WithContext(ctx).
		Where("status = ? AND platform_type = ?", models.StoreStatusActive, platformType).
		Find(&stores).Error; err != nil {
		return nil, fmt.Errorf("store: list active stores for platform %q: %w", platformType, err)
	}
	return stores, nil
}

func (r *storeRepository) TouchLastSkuSync(ctx context.Context, storeID string, at time.Time) error {
	db := r.dbCluster.GetMasterDB(ctx)
	if err := db.WithContext(ctx).Model(&models.Store{}).
		Where("store_id = ?", storeID).
		Update("last_sku_sync_at", at).Error; err != nil {
		return fmt.Errorf("store: touch last_sku_sync_at for %q: %w", storeID, err)
	}
	if r.redis != nil {
		r.redis.Del(ctx, r.cacheKey(storeID))
	}
	return nil
}
