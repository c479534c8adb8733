package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/omniful/go_commons/db/sql/postgres"
	"github.com/omniful/inventory-reconciler/internal/models"
	"gorm.io/gorm"
)

// RetryQueueRepository is the gorm-backed C6 persistence layer. Exported
// here as a concrete type (rather than just satisfying retry.RetryRepository
// structurally) so cmd/server can construct it directly.
type RetryQueueRepository struct {
	dbCluster *postgres.DbCluster
}

func NewRetryQueueRepository(dbCluster *postgres.DbCluster) *RetryQueueRepository {
	return &RetryQueueRepository{dbCluster: dbCluster}
}

func (r *RetryQueueRepository) ExistsPending(ctx context.Context, orderNumber, storeID string) (bool, error) {
	var count int64
	db := r.dbCluster.GetMasterDB(ctx)
	err := db.WithContext(ctx).Model(&models.RetryEntry{}).
		Where("order_number = ? AND store_id = ? AND status = ?", orderNumber, storeID, models.RetryStatusPending).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("store: check pending retry for %q/%q: %w", orderNumber, storeID, err)
	}
	return count > 0, nil
}

func (r *RetryQueueRepository) Insert(ctx context.Context, entry *models.RetryEntry) error {
	db := r.dbCluster.GetMasterDB(ctx)
	if err := db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("store: insert retry entry for %q: %w", entry.OrderNumber, err)
	}
	return nil
}

// ListDue returns pending entries whose next_attempt_at has arrived and
// whose retry_count is still under max_retries, ordered oldest-due-first.
func (r *RetryQueueRepository) ListDue(ctx context.Context, now time.Time) ([]*models.RetryEntry, error) {
	var entries []*models.RetryEntry
	db := r.dbCluster.GetMasterDB(ctx)
	err := db.WithContext(ctx).
		Where("status = ? AND next_attempt_at <= ? AND retry_count < max_retries", models.RetryStatusPending, now).
		Order("next_attempt_at ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("store: list due retry entries: %w", err)
	}
	return entries, nil
}

func (r *RetryQueueRepository) MarkSucceeded(ctx context.Context, tx *gorm.DB, retryID uuid.UUID) error {
	if err := tx.WithContext(ctx).Where("retry_id = ?", retryID).Delete(&models.RetryEntry{}).Error; err != nil {
		return fmt.Errorf("store: delete succeeded retry %s: %w", retryID, err)
	}
	return nil
}

func (r *RetryQueueRepository) MarkRetry(ctx context.Context, tx *gorm.DB, retryID uuid.UUID, lastError string, nextAttempt time.Time) error {
	now := time.Now()
	err := tx.WithContext(ctx).Model(&models.RetryEntry{}).
		Where("retry_id = ?", retryID).
		Updates(map[string]interface{}{
			"retry_count":     gorm.Expr("retry_count + 1"),
			"last_error":      lastError,
			"last_attempt_at": now,
			"next_attempt_at": nextAttempt,
		}).Error
	if err != nil {
		return fmt.Errorf("store: update retry %s: %w", retryID, err)
	}
	return nil
}

func (r *RetryQueueRepository) MarkFailed(ctx context.Context, tx *gorm.DB, retryID uuid.UUID, lastError string) error {
	now := time.Now()
	err := tx.WithContext(ctx).Model(&models.RetryEntry{}).
		Where("retry_id = ?", retryID).
		Updates(map[string]interface{}{
			"retry_count":     gorm.Expr("retry_count + 1"),
			"status":          models.RetryStatusFailed,
			"last_error":      lastError,
			"last_attempt_at": now,
		}).Error
	if err != nil {
		return fmt.Errorf("store: mark retry %s failed: %w", retryID, err)
	}
	return nil
}
