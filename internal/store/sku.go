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

const skuCacheTTL = constants.CacheTTLSkuInfo * time.Second

// SkuRepository is the typed CRUD surface over the SKU master table. It is
// the only layer that talks to Postgres/Redis for SkuMaster rows; all
// business-level invariants beyond FK integrity are enforced by the
// inventory service, not here.
type SkuRepository interface {
	// Get returns (nil, nil) if the SKU does not exist, matching the
	// original's "return None" semantics rather than an error.
	Get(ctx context.Context, skuID string) (*models.SkuMaster, error)
	Create(ctx context.Context, sku *models.SkuMaster) error
	Save(ctx context.Context, sku *models.SkuMaster) error
}

type skuRepository struct {
	dbCluster *postgres.DbCluster
	redis     *redis.Client
}

func NewSkuRepository(dbCluster *postgres.DbCluster, redis *redis.Client) SkuRepository {
	return &skuRepository{dbCluster: dbCluster, redis: redis}
}

func (r *skuRepository) cacheKey(skuID string) string {
	return fmt.Sprintf("%s%s", constants.CacheKeySkuPrefix, skuID)
}

func (r *skuRepository) Get(ctx context.Context, skuID string) (*models.SkuMaster, error) {
	if r.redis != nil {
		var cached models.SkuMaster
		if err := cacheGet(ctx, r.redis, r.cacheKey(skuID), &cached); err == nil {
			return &cached, nil
		}
	}

	var sku models.SkuMaster
	db := r.dbCluster.GetMasterDB(ctx)
	if err := db.WithContext(ctx).Where("sku_id = ?", skuID).First(&sku).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: get sku %q: %w", skuID, err)
	}

	r.cacheSku(ctx, &sku)
	return &sku, nil
}

func (r *skuRepository) Create(ctx context.Context, sku *models.SkuMaster) error {
	db := r.dbCluster.GetMasterDB(ctx)
	if err := db.WithContext(ctx).Create(sku).Error; err != nil {
		return fmt.Errorf("store: create sku %q: %w", sku.SkuID, err)
	}
	r.cacheSku(ctx, sku)
	return nil
}

func (r *skuRepository) Save(ctx context.Context, sku *models.SkuMaster) error {
	db := r.dbCluster.GetMasterDB(ctx)
	if err := db.WithContext(ctx).Save(sku).Error; err != nil {
		return fmt.Errorf("store: save sku %q: %w", sku.SkuID, err)
	}
	r.cacheSku(ctx, sku)
	return nil
}

func (r *skuRepository) cacheSku(ctx context.Context, sku *models.SkuMaster) {
	if r.redis == nil {
		return
	}
	cacheSet(ctx, r.redis, r.cacheKey(sku.SkuID), sku, skuCacheTTL)
}
