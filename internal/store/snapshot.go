package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/omniful/go_commons/db/sql/postgres"
	"github.com/omniful/inventory-reconciler/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SnapshotRepository is the materialized-accumulator table: exactly one row
// per SKU that has ever received a stock-altering event.
type SnapshotRepository interface {
	// Get returns (nil, nil) if no snapshot exists yet for the SKU.
	Get(ctx context.Context, skuID string) (*models.InventorySnapshot, error)
	// GetForUpdate locks the row within tx, via a SELECT ... FOR UPDATE, so
	// the read-then-write in InventoryService.CreateEvent is race-free once
	// a snapshot row exists. When no row exists yet nothing is locked.
	GetForUpdate(ctx context.Context, tx *gorm.DB, skuID string) (*models.InventorySnapshot, error)
	Upsert(ctx context.Context, tx *gorm.DB, snap *models.InventorySnapshot) error
	Delete(ctx context.Context, tx *gorm.DB, skuID string) error
}

type snapshotRepository struct {
	dbCluster *postgres.DbCluster
}

func NewSnapshotRepository(dbCluster *postgres.DbCluster) SnapshotRepository {
	return &snapshotRepository{dbCluster: dbCluster}
}

func (r *snapshotRepository) Get(ctx context.Context, skuID string) (*models.InventorySnapshot, error) {
	var snap models.InventorySnapshot
	db := r.dbCluster.GetMasterDB(ctx)
	if err := db.WithContext(ctx).Where("sku_id = ?", skuID).First(&snap).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: get snapshot for %q: %w", skuID, err)
	}
	return &snap, nil
}

func (r *snapshotRepository) GetForUpdate(ctx context.Context, tx *gorm.DB, skuID string) (*models.InventorySnapshot, error) {
	var snap models.InventorySnapshot
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("sku_id = ?", skuID).
		First(&snap).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: get snapshot for update %q: %w", skuID, err)
	}
	return &snap, nil
}

func (r *snapshotRepository) Upsert(ctx context.Context, tx *gorm.DB, snap *models.InventorySnapshot) error {
	err := tx.WithContext(ctx).
		Clauses(onConflictUpdateSnapshot()).
		Create(snap).Error
	if err != nil {
		return fmt.Errorf("store: upsert snapshot for %q: %w", snap.SkuID, err)
	}
	return nil
}

func (r *snapshotRepository) Delete(ctx context.Context, tx *gorm.DB, skuID string) error {
	if err := tx.WithContext(ctx).Where("sku_id = ?", skuID).Delete(&models.InventorySnapshot{}).Error; err != nil {
		return fmt.Errorf("store: delete snapshot for %q: %w", skuID, err)
	}
	return nil
}
