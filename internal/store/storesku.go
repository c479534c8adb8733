package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/omniful/go_commons/db/sql/postgres"
	"github.com/omniful/inventory-reconciler/internal/models"
	"gorm.io/gorm"
)

// StoreSkuRepository is the pure membership set linking SKUs to stores.
type StoreSkuRepository interface {
	// Register is idempotent: a second call for the same pair is a no-op.
	Register(ctx context.Context, skuID, storeID string) error
	ListStoresForSku(ctx context.Context, skuID string) ([]string, error)
	ListSkusForStore(ctx context.Context, storeID string) ([]string, error)
	// DeleteAllForSku removes every membership row for a SKU; used by
	// InventoryService.ResetSku.
	DeleteAllForSku(ctx context.Context, tx *gorm.DB, skuID string) error
}

type storeSkuRepository struct {
	dbCluster *postgres.DbCluster
}

func NewStoreSkuRepository(dbCluster *postgres.DbCluster) StoreSkuRepository {
	return &storeSkuRepository{dbCluster: dbCluster}
}

func (r *storeSkuRepository) Register(ctx context.Context, skuID, storeID string) error {
	db := r.dbCluster.GetMasterDB(ctx)

	var existing models.StoreSku
	err := db.WithContext(ctx).
		Where("sku_id = ? AND store_id = ?", skuID, storeID).
		First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("store: check store-sku membership: %w", err)
	}

	link := models.StoreSku{SkuID: skuID, StoreID: storeID}
	if err := db.WithContext(ctx).Create(&link).Error; err != nil {
		return fmt.Errorf("store: register sku %q to store %q: %w", skuID, storeID, err)
	}
	return nil
}

func (r *storeSkuRepository) ListStoresForSku(ctx context.Context, skuID string) ([]string, error) {
	var storeIDs []string
	db := r.dbCluster.GetMasterDB(ctx)
	if err := db.WithContext(ctx).Model(&models.StoreSku{}).
		Where("sku_id = ?", skuID).
		Pluck("store_id", &storeIDs).Error; err != nil {
		return nil, fmt.Errorf("store: list stores for sku %q: %w", skuID, err)
	}
	return storeIDs, nil
}

func (r *storeSkuRepository) ListSkusForStore(ctx context.Context, storeID string) ([]string, error) {
	var skuIDs []string
	db := r.dbCluster.GetMasterDB(ctx)
	if err := db.WithContext(ctx).Model(&models.StoreSku{}).
		Where("store_id = ?", storeID).
		Pluck("sku_id", &skuIDs).Error; err != nil {
		return nil, fmt.Errorf("store: list skus for store %q: %w", storeID, err)
	}
	return skuIDs, nil
}

func (r *storeSkuRepository) DeleteAllForSku(ctx context.Context, tx *gorm.DB, skuID string) error {
	if err := tx.WithContext(ctx).Where("sku_id = ?", skuID).Delete(&models.StoreSku{}).Error; err != nil {
		return fmt.Errorf("store: delete store-sku links for %q: %w", skuID, err)
	}
	return nil
}
