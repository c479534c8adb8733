// Package inventory is the C4 inventory service: the single write path for
// the event log and its derived snapshot. Every stock-altering mutation in
// the system funnels through Service.CreateEvent.
package inventory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/omniful/go_commons/db/sql/postgres"
	"github.com/omniful/inventory-reconciler/internal/coreerr"
	"github.com/omniful/inventory-reconciler/internal/models"
	"github.com/omniful/inventory-reconciler/internal/skunorm"
	"github.com/omniful/inventory-reconciler/internal/store"
	"gorm.io/gorm"
)

type Service interface {
	GetSnapshot(ctx context.Context, skuID string) (*models.InventorySnapshot, error)
	GetSku(ctx context.Context, skuID string) (*models.SkuMaster, error)
	GetOrCreateSku(ctx context.Context, skuID, originalSku, skuName string, environment models.Environment) (*models.SkuMaster, error)

	// CreateEvent appends ev, then (unless the event's type is not
	// stock-altering) applies its quantity to the SKU's snapshot inside the
	// same transaction. Returns *coreerr.DuplicateToken if ev.Token already
	// exists, *coreerr.Oversell if the SKU forbids oversell and the
	// resulting balance would go negative.
	CreateEvent(ctx context.Context, ev CreateEventInput) (*models.InventoryEvent, error)

	// WithBatchTx opens one transaction and passes a Service bound to it to
	// fn; every CreateEvent/LogAPIError call made through that Service
	// commits or rolls back together as a single unit, rather than each
	// opening its own independent transaction.
	WithBatchTx(ctx context.Context, fn func(txSvc Service) error) error

	RegisterSkuToStore(ctx context.Context, skuID, storeID string) error
	GetRegisteredStores(ctx context.Context, skuID string) ([]string, error)
	GetStore(ctx context.Context, storeID string) (*models.Store, error)
	GetStoreSkus(ctx context.Context, storeID string) ([]*models.SkuMaster, error)
	GetEvents(ctx context.Context, skuID string, eventType *models.EventType, limit, offset int) ([]*models.InventoryEvent, error)

	DeactivateSku(ctx context.Context, skuID string) error
	// ResetSku wipes a SKU's event history, snapshot and store registrations,
	// clears its extra_data/aliases, marks it inactive, and re-seeds it at
	// zero, logging a single INIT_RESET event. A separate operation from
	// DeactivateSku: that one only flips status, this one fully retires the
	// SKU's accumulated state.
	ResetSku(ctx context.Context, skuID, operator, reason string) error

	LogAPIError(ctx context.Context, errorMessage, operation string, storeID, skuID *string, errorDetails map[string]any) (*models.InventoryEvent, error)
}

// CreateEventInput carries everything needed to append one inventory event.
type CreateEventInput struct {
	EventType      models.EventType
	SkuID          string
	Quantity       int
	Operator       string
	Source         models.Source
	StoreID        *string
	PlatformStatus *string
	OrderID        *string
	Reason         *string
	Metadata       models.JSONMap
	Token          *string
	// SkipSnapshot defaults to false (i.e. the snapshot is updated, matching
	// create_event's update_snapshot=True default); set true for events
	// (e.g. API_ERROR) that must not move the accumulator. Expressed as a
	// "skip" flag rather than "update" so the Go zero value matches the
	// common case, unlike a bool that defaults false when callers mean true.
	SkipSnapshot bool
}

type service struct {
	dbCluster *postgres.DbCluster
	skus      store.SkuRepository
	stores    store.StoreRepository
	storeSkus store.StoreSkuRepository
	events    store.EventRepository
	snapshots store.SnapshotRepository

	// tx is set on the Service handed to a WithBatchTx callback, so
	// CreateEvent joins the already-open transaction instead of opening its
	// own. nil on every other Service instance.
	tx *gorm.DB
}

func NewService(
	dbCluster *postgres.DbCluster,
	skus store.SkuRepository,
	stores store.StoreRepository,
	storeSkus store.StoreSkuRepository,
	events store.EventRepository,
	snapshots store.SnapshotRepository,
) Service {
	return &service{
		dbCluster: dbCluster,
		skus:      skus,
		stores:    stores,
		storeSkus: storeSkus,
		events:    events,
		snapshots: snapshots,
	}
}

func (s *service) GetSnapshot(ctx context.Context, skuID string) (*models.InventorySnapshot, error) {
	return s.snapshots.Get(ctx, skunorm.Normalize(skuID))
}

func (s *service) GetSku(ctx context.Context, skuID string) (*models.SkuMaster, error) {
	return s.skus.Get(ctx, skunorm.Normalize(skuID))
}

func (s *service) GetOrCreateSku(ctx context.Context, skuID, originalSku, skuName string, environment models.Environment) (*models.SkuMaster, error) {
	skuID = skunorm.Normalize(skuID)

	existing, err := s.skus.Get(ctx, skuID)
	if err != nil {
		return nil, fmt.Errorf("inventory: get sku %q: %w", skuID, err)
	}
	if existing != nil {
		return existing, nil
	}

	if originalSku == "" {
		originalSku = skuID
	}
	if skuName == "" {
		skuName = skuID
	}
	if environment == "" {
		environment = models.EnvProd
	}
	if !environment.Valid() {
		return nil, fmt.Errorf("inventory: invalid environment %q", environment)
	}

	sku := &models.SkuMaster{
		SkuID:       skuID,
		OriginalSku: &originalSku,
		SkuName:     skuName,
		Environment: environment,
		Status:      models.SkuStatusActive,
		ExtraData:   models.JSONMap{},
		Aliases:     models.JSONMap{},
	}
	if err := s.skus.Create(ctx, sku); err != nil {
		return nil, fmt.Errorf("inventory: create sku %q: %w", skuID, err)
	}
	return sku, nil
}

func (s *service) CreateEvent(ctx context.Context, in CreateEventInput) (*models.InventoryEvent, error) {
	if !in.EventType.Valid() {
		return nil, fmt.Errorf("inventory: invalid event type %q", in.EventType)
	}
	if in.Source == "" {
		in.Source = models.SourceSystem
	}
	if !in.Source.Valid() {
		return nil, fmt.Errorf("inventory: invalid source %q", in.Source)
	}
	in.SkuID = skunorm.Normalize(in.SkuID)
	if in.Metadata == nil {
		in.Metadata = models.JSONMap{}
	}
	if in.Token == nil {
		tok := generateToken()
		in.Token = &tok
	}

	var skuIDPtr *string
	if in.SkuID != "" {
		skuIDPtr = &in.SkuID
	}

	ev := &models.InventoryEvent{
		EventID:        uuid.New(),
		EventType:      in.EventType,
		SkuID:          skuIDPtr,
		Quantity:       in.Quantity,
		StoreID:        in.StoreID,
		PlatformStatus: in.PlatformStatus,
		OrderID:        in.OrderID,
		Operator:       in.Operator,
		Reason:         in.Reason,
		Source:         in.Source,
		Token:          in.Token,
		Metadata:       in.Metadata,
	}

	write := func(tx *gorm.DB) error {
		if err := s.events.Insert(ctx, tx, ev); err != nil {
			return err
		}

		updateSnapshot := !in.SkipSnapshot && in.EventType.StockAltering()
		if updateSnapshot && skuIDPtr != nil {
			if err := s.applySnapshotDelta(ctx, tx, in.SkuID, in.Quantity, ev.EventID); err != nil {
				return err
			}
		}
		return nil
	}

	var err error
	if s.tx != nil {
		err = write(s.tx)
	} else {
		err = store.WithTx(ctx, s.dbCluster, write)
	}
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// WithBatchTx opens one transaction and runs fn against a Service bound to
// it, so a caller processing several events (e.g. one poll batch) can make
// them commit or roll back together.
func (s *service) WithBatchTx(ctx context.Context, fn func(txSvc Service) error) error {
	return store.WithTx(ctx, s.dbCluster, func(tx *gorm.DB) error {
		bound := *s
		bound.tx = tx
		return fn(&bound)
	})
}

// applySnapshotDelta locks the snapshot row (if any) FOR UPDATE, rejects a
// negative result unless the SKU allows oversell, then upserts. A SKU with
// no snapshot yet is treated as an implicit zero baseline, so the very
// first event for a SKU is still subject to the oversell check.
func (s *service) applySnapshotDelta(ctx context.Context, tx *gorm.DB, skuID string, delta int, eventID uuid.UUID) error {
	existing, err := s.snapshots.GetForUpdate(ctx, tx, skuID)
	if err != nil {
		return err
	}

	baseline := 0
	if existing != nil {
		baseline = existing.InternalAvailable
	}
	newAvailable := baseline + delta

	if newAvailable < 0 {
		sku, err := s.skus.Get(ctx, skuID)
		if err != nil {
			return fmt.Errorf("inventory: get sku %q for oversell check: %w", skuID, err)
		}
		allowOversell := sku != nil && sku.AllowOversell
		if !allowOversell {
			return &coreerr.Oversell{SkuID: skuID, Current: baseline, Need: -delta}
		}
	}

	snap := &models.InventorySnapshot{
		SkuID:             skuID,
		InternalAvailable: newAvailable,
		LastEventID:       &eventID,
	}
	return s.snapshots.Upsert(ctx, tx, snap)
}

func (s *service) RegisterSkuToStore(ctx context.Context, skuID, storeID string) error {
	return s.storeSkus.Register(ctx, skunorm.Normalize(skuID), storeID)
}

func (s *service) GetRegisteredStores(ctx context.Context, skuID string) ([]string, error) {
	return s.storeSkus.ListStoresForSku(ctx, skunorm.Normalize(skuID))
}

func (s *service) GetStore(ctx context.Context, storeID string) (*models.Store, error) {
	return s.stores.Get(ctx, storeID)
}

func (s *service) GetStoreSkus(ctx context.Context, storeID string) ([]*models.SkuMaster, error) {
	skuIDs, err := s.storeSkus.ListSkusForStore(ctx, storeID)
	if err != nil {
		return nil, err
	}
	skus := make([]*models.SkuMaster, 0, len(skuIDs))
	for _, id := range skuIDs {
		sku, err := s.skus.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("inventory: get sku %q for store %q: %w", id, storeID, err)
		}
		if sku != nil {
			skus = append(skus, sku)
		}
	}
	return skus, nil
}

func (s *service) GetEvents(ctx context.Context, skuID string, eventType *models.EventType, limit, offset int) ([]*models.InventoryEvent, error) {
	return s.events.ListBySku(ctx, skunorm.Normalize(skuID), eventType, limit, offset)
}

func (s *service) DeactivateSku(ctx context.Context, skuID string) error {
	skuID = skunorm.Normalize(skuID)
	sku, err := s.skus.Get(ctx, skuID)
	if err != nil {
		return fmt.Errorf("inventory: get sku %q: %w", skuID, err)
	}
	if sku == nil {
		return store.ErrSkuNotFound
	}
	sku.Status = models.SkuStatusInactive
	if err := s.skus.Save(ctx, sku); err != nil {
		return fmt.Errorf("inventory: deactivate sku %q: %w", skuID, err)
	}
	return nil
}

func (s *service) ResetSku(ctx context.Context, skuID, operator, reason string) error {
	skuID = skunorm.Normalize(skuID)

	sku, err := s.skus.Get(ctx, skuID)
	if err != nil {
		return fmt.Errorf("inventory: get sku %q: %w", skuID, err)
	}
	if sku == nil {
		return store.ErrSkuNotFound
	}

	return store.WithTx(ctx, s.dbCluster, func(tx *gorm.DB) error {
		if err := s.storeSkus.DeleteAllForSku(ctx, tx, skuID); err != nil {
			return err
		}
		if err := s.events.DeleteAllForSku(ctx, tx, skuID); err != nil {
			return err
		}
		if err := s.snapshots.Delete(ctx, tx, skuID); err != nil {
			return err
		}

		sku.ExtraData = models.JSONMap{}
		sku.Aliases = models.JSONMap{}
		sku.Status = models.SkuStatusInactive
		if err := s.skus.Save(ctx, sku); err != nil {
			return fmt.Errorf("inventory: reset sku %q: %w", skuID, err)
		}

		var reasonPtr *string
		if reason != "" {
			reasonPtr = &reason
		}
		tok := generateToken()
		ev := &models.InventoryEvent{
			EventID:   uuid.New(),
			EventType: models.EventInitReset,
			SkuID:     &skuID,
			Quantity:  0,
			Operator:  operator,
			Reason:    reasonPtr,
			Source:    models.SourceManual,
			Token:     &tok,
			Metadata:  models.JSONMap{},
		}
		if err := s.events.Insert(ctx, tx, ev); err != nil {
			return err
		}
		snap := &models.InventorySnapshot{SkuID: skuID, InternalAvailable: 0, LastEventID: &ev.EventID}
		return s.snapshots.Upsert(ctx, tx, snap)
	})
}

func (s *service) LogAPIError(ctx context.Context, errorMessage, operation string, storeID, skuID *string, errorDetails map[string]any) (*models.InventoryEvent, error) {
	metadata := models.JSONMap{
		"error_type":    "api_failure",
		"operation":     operationOrUnknown(operation),
		"error_details": errorDetails,
	}
	if storeID != nil {
		metadata["store_id"] = *storeID
	}

	var normalizedSku string
	if skuID != nil {
		normalizedSku = skunorm.Normalize(*skuID)
	}

	ev, err := s.CreateEvent(ctx, CreateEventInput{
		EventType:      models.EventAPIError,
		SkuID:          normalizedSku,
		Quantity:       0,
		StoreID:        storeID,
		Operator:       "system",
		Reason:         &errorMessage,
		Source:         models.SourceSystem,
		Metadata:       metadata,
		SkipSnapshot:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("inventory: log api error: %w", err)
	}
	return ev, nil
}

func operationOrUnknown(op string) string {
	if op == "" {
		return "unknown"
	}
	return op
}

func generateToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is unrecoverable; fall back to a
		// time-derived token rather than panicking mid-transaction.
		return fmt.Sprintf("fallback-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
