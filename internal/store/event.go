package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/omniful/go_commons/db/sql/postgres"
	"github.com/omniful/inventory-reconciler/internal/coreerr"
	"github.com/omniful/inventory-reconciler/internal/models"
	"github.com/omniful/inventory-reconciler/pkg/constants"
	"gorm.io/gorm"
)

// EventRepository is the append-only event log. Insert is the only mutation
// besides the cascaded delete performed by InventoryService.ResetSku. Event
// token uniqueness is enforced here, at the storage layer, via a unique
// index (see migrations) — the repository surfaces a collision as
// coreerr.DuplicateToken rather than a raw constraint-violation error so
// every caller can treat it uniformly.
type EventRepository interface {
	// Insert appends ev inside tx. Returns *coreerr.DuplicateToken if
	// ev.Token collides with an existing row.
	Insert(ctx context.Context, tx *gorm.DB, ev *models.InventoryEvent) error
	ExistsByToken(ctx context.Context, token string) (bool, error)
	ListBySku(ctx context.Context, skuID string, eventType *models.EventType, limit, offset int) ([]*models.InventoryEvent, error)
	DeleteAllForSku(ctx context.Context, tx *gorm.DB, skuID string) error
}

type eventRepository struct {
	dbCluster *postgres.DbCluster
}

func NewEventRepository(dbCluster *postgres.DbCluster) EventRepository {
	return &eventRepository{dbCluster: dbCluster}
}

func (r *eventRepository) Insert(ctx context.Context, tx *gorm.DB, ev *models.InventoryEvent) error {
	err := tx.WithContext(ctx).Create(ev).Error
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		token := ""
		if ev.Token != nil {
			token = *ev.Token
		}
		return &coreerr.DuplicateToken{Token: token}
	}
	if isForeignKeyViolation(err) {
		return &coreerr.IntegrityFailure{Err: err}
	}
	return fmt.Errorf("store: insert event: %w", err)
}

func (r *eventRepository) ExistsByToken(ctx context.Context, token string) (bool, error) {
	var count int64
	db := r.dbCluster.GetMasterDB(ctx)
	if err := db.WithContext(ctx).Model(&models.InventoryEvent{}).
		Where("token = ?", token).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("store: check token existence: %w", err)
	}
	return count > 0, nil
}

func (r *eventRepository) ListBySku(ctx context.Context, skuID string, eventType *models.EventType, limit, offset int) ([]*models.InventoryEvent, error) {
	var events []*models.InventoryEvent
	db := r.dbCluster.GetMasterDB(ctx)
	query := db.WithContext(ctx).Where("sku_id = ?", skuID)
	if eventType != nil {
		query = query.Where("event_type = ?", *eventType)
	}
	if limit <= 0 {
		limit = constants.DefaultPageSize
	}
	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&events).Error; err != nil {
		return nil, fmt.Errorf("store: list events for sku %q: %w", skuID, err)
	}
	return events, nil
}

func (r *eventRepository) DeleteAllForSku(ctx context.Context, tx *gorm.DB, skuID string) error {
	if err := tx.WithContext(ctx).Where("sku_id = ?", skuID).Delete(&models.InventoryEvent{}).Error; err != nil {
		return fmt.Errorf("store: delete events for %q: %w", skuID, err)
	}
	return nil
}

// isUniqueViolation and isForeignKeyViolation inspect the Postgres error
// text for the SQLSTATE-derived constraint-name hints pgx/lib/pq surface,
// rather than a dialect-specific error type assertion.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint") || strings.Contains(msg, "idx_events_token")
}

func isForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "foreign key") || strings.Contains(msg, "violates foreign key constraint")
}

// ErrSkuNotFound is returned by InventoryService.DeactivateSku and ResetSku
// when the SKU row is absent.
var ErrSkuNotFound = errors.New("store: sku not found")
