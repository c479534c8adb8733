// Package storetest provides in-memory fakes of the internal/store
// repository interfaces, so internal/inventory, internal/poller,
// internal/retry and internal/sync can be unit tested without a live
// Postgres/Redis instance.
package storetest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/omniful/inventory-reconciler/internal/coreerr"
	"github.com/omniful/inventory-reconciler/internal/models"
	"gorm.io/gorm"
)

// SkuRepository is an in-memory store.SkuRepository.
type SkuRepository struct {
	mu   sync.Mutex
	skus map[string]*models.SkuMaster
}

func NewSkuRepository() *SkuRepository {
	return &SkuRepository{skus: map[string]*models.SkuMaster{}}
}

func (r *SkuRepository) Get(ctx context.Context, skuID string) (*models.SkuMaster, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sku, ok := r.skus[skuID]
	if !ok {
		return nil, nil
	}
	clone := *sku
	return &clone, nil
}

func (r *SkuRepository) Create(ctx context.Context, sku *models.SkuMaster) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *sku
	r.skus[sku.SkuID] = &clone
	return nil
}

func (r *SkuRepository) Save(ctx context.Context, sku *models.SkuMaster) error {
	return r.Create(ctx, sku)
}

// StoreRepository is an in-memory store.StoreRepository.
type StoreRepository struct {
	mu     sync.Mutex
	stores map[string]*models.Store
}

func NewStoreRepository() *StoreRepository {
	return &StoreRepository{stores: map[string]*models.Store{}}
}

func (r *StoreRepository) Put(s *models.Store) {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *s
	r.stores[s.StoreID] = &clone
}

func (r *StoreRepository) Get(ctx context.Context, storeID string) (*models.Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stores[storeID]
	if !ok {
		return nil, nil
	}
	clone := *s
	return &clone, nil
}

func (r *StoreRepository) ListActiveByPlatformType(ctx context.Context, platformType string) ([]*models.Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Store
	for _, s := range r.stores {
		if s.Status == models.StoreStatusActive && s.PlatformType == platformType {
			clone := *s
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *StoreRepository) TouchLastSkuSync(ctx context.Context, storeID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.stores[storeID]; ok {
		s.LastSkuSyncAt = &at
	}
	return nil
}

// StoreSkuRepository is an in-memory store.StoreSkuRepository.
type StoreSkuRepository struct {
	mu    sync.Mutex
	links map[string]map[string]bool // skuID -> storeID -> true
}

func NewStoreSkuRepository() *StoreSkuRepository {
	return &StoreSkuRepository{links: map[string]map[string]bool{}}
}

func (r *StoreSkuRepository) Register(ctx context.Context, skuID, storeID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.links[skuID] == nil {
		r.links[skuID] = map[string]bool{}
	}
	r.links[skuID][storeID] = true
	return nil
}

func (r *StoreSkuRepository) ListStoresForSku(ctx context.Context, skuID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for storeID := range r.links[skuID] {
		out = append(out, storeID)
	}
	return out, nil
}

func (r *StoreSkuRepository) ListSkusForStore(ctx context.Context, storeID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for skuID, stores := range r.links {
		if stores[storeID] {
			out = append(out, skuID)
		}
	}
	return out, nil
}

func (r *StoreSkuRepository) DeleteAllForSku(ctx context.Context, tx *gorm.DB, skuID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.links, skuID)
	return nil
}

// EventRepository is an in-memory store.EventRepository.
type EventRepository struct {
	mu     sync.Mutex
	events []*models.InventoryEvent
	tokens map[string]bool
}

func NewEventRepository() *EventRepository {
	return &EventRepository{tokens: map[string]bool{}}
}

func (r *EventRepository) Insert(ctx context.Context, tx *gorm.DB, ev *models.InventoryEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ev.Token != nil {
		if r.tokens[*ev.Token] {
			return &coreerr.DuplicateToken{Token: *ev.Token}
		}
		r.tokens[*ev.Token] = true
	}
	clone := *ev
	r.events = append(r.events, &clone)
	return nil
}

func (r *EventRepository) ExistsByToken(ctx context.Context, token string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tokens[token], nil
}

func (r *EventRepository) ListBySku(ctx context.Context, skuID string, eventType *models.EventType, limit, offset int) ([]*models.InventoryEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.InventoryEvent
	for i := len(r.events) - 1; i >= 0; i-- {
		ev := r.events[i]
		if ev.SkuID == nil || *ev.SkuID != skuID {
			continue
		}
		if eventType != nil && ev.EventType != *eventType {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func (r *EventRepository) DeleteAllForSku(ctx context.Context, tx *gorm.DB, skuID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kept []*models.InventoryEvent
	for _, ev := range r.events {
		if ev.SkuID != nil && *ev.SkuID == skuID {
			continue
		}
		kept = append(kept, ev)
	}
	r.events = kept
	return nil
}

// SnapshotRepository is an in-memory store.SnapshotRepository. It ignores
// the *gorm.DB argument entirely (there is no real transaction to
// participate in), which is sufficient for single-goroutine unit tests.
type SnapshotRepository struct {
	mu        sync.Mutex
	snapshots map[string]*models.InventorySnapshot
}

func NewSnapshotRepository() *SnapshotRepository {
	return &SnapshotRepository{snapshots: map[string]*models.InventorySnapshot{}}
}

func (r *SnapshotRepository) Get(ctx context.Context, skuID string) (*models.InventorySnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap, ok := r.snapshots[skuID]
	if !ok {
		return nil, nil
	}
	clone := *snap
	return &clone, nil
}

func (r *SnapshotRepository) GetForUpdate(ctx context.Context, tx *gorm.DB, skuID string) (*models.InventorySnapshot, error) {
	return r.Get(ctx, skuID)
}

func (r *SnapshotRepository) Upsert(ctx context.Context, tx *gorm.DB, snap *models.InventorySnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *snap
	r.snapshots[snap.SkuID] = &clone
	return nil
}

func (r *SnapshotRepository) Delete(ctx context.Context, tx *gorm.DB, skuID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.snapshots, skuID)
	return nil
}

// RetryRepository is an in-memory retry.RetryRepository.
type RetryRepository struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*models.RetryEntry
}

func NewRetryRepository() *RetryRepository {
	return &RetryRepository{entries: map[uuid.UUID]*models.RetryEntry{}}
}

func (r *RetryRepository) ExistsPending(ctx context.Context, orderNumber, storeID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.OrderNumber == orderNumber && e.StoreID == storeID && e.Status == models.RetryStatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (r *RetryRepository) Insert(ctx context.Context, entry *models.RetryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *entry
	r.entries[entry.RetryID] = &clone
	return nil
}

func (r *RetryRepository) ListDue(ctx context.Context, now time.Time) ([]*models.RetryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.RetryEntry
	for _, e := range r.entries {
		if e.Status == models.RetryStatusPending && !e.NextAttemptAt.After(now) && e.RetryCount < e.MaxRetries {
			clone := *e
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *RetryRepository) MarkSucceeded(ctx context.Context, tx *gorm.DB, retryID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, retryID)
	return nil
}

func (r *RetryRepository) MarkRetry(ctx context.Context, tx *gorm.DB, retryID uuid.UUID, lastError string, nextAttempt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[retryID]
	if !ok {
		return nil
	}
	e.RetryCount++
	e.LastError = &lastError
	now := time.Now()
	e.LastAttemptAt = &now
	e.NextAttemptAt = nextAttempt
	return nil
}

// ForceDue rewrites retryID's next_attempt_at to at (a raw test seam, not a
// Queue operation) so a just-enqueued entry can be drained immediately
// without waiting out its real backoff.
func (r *RetryRepository) ForceDue(retryID uuid.UUID, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[retryID]; ok {
		e.NextAttemptAt = at
	}
}

// All returns every retry entry regardless of status, for test assertions
// that need to inspect a failed or succeeded (deleted) entry — ListDue only
// surfaces still-pending, due entries.
func (r *RetryRepository) All() []*models.RetryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.RetryEntry, 0, len(r.entries))
	for _, e := range r.entries {
		clone := *e
		out = append(out, &clone)
	}
	return out
}

func (r *RetryRepository) MarkFailed(ctx context.Context, tx *gorm.DB, retryID uuid.UUID, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[retryID]
	if !ok {
		return nil
	}
	e.RetryCount++
	e.Status = models.RetryStatusFailed
	e.LastError = &lastError
	now := time.Now()
	e.LastAttemptAt = &now
	return nil
}
