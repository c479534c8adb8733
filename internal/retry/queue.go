// Package retry is the C6 retry queue: order confirmations that failed
// against the platform get one row here and are redriven on an exponential
// backoff until they succeed or exhaust their retry budget.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/omniful/go_commons/db/sql/postgres"
	logger "github.com/omniful/go_commons/log"
	"github.com/omniful/inventory-reconciler/internal/inventory"
	"github.com/omniful/inventory-reconciler/internal/models"
	"github.com/omniful/inventory-reconciler/internal/platform"
	"github.com/omniful/inventory-reconciler/pkg/constants"
	"gorm.io/gorm"
)

const (
	maxRetries        = constants.RetryMaxAttempts
	initialRetryDelay = constants.RetryInitialDelayMins * time.Minute
)

// Queue is the C6 contract.
type Queue interface {
	// Enqueue adds order_number/store_id for retry unless a pending entry
	// already exists for that pair (mirrors _add_order_to_retry_queue).
	Enqueue(ctx context.Context, orderNumber, storeID, lastError string, item map[string]any) error
	// Drain attempts every due, non-exhausted pending entry once and
	// reports how many succeeded/failed outright in this pass.
	Drain(ctx context.Context) DrainResult
}

// DrainResult summarizes one Drain call.
type DrainResult struct {
	Processed int
	Failed    []string
	Total     int
}

type queue struct {
	dbCluster     *postgres.DbCluster
	retries       RetryRepository
	stores        StoreLookup
	inv           inventory.Service
	proxyURL      string
	defaultSecret string
	defaultKey    string
	clientFactory platform.ClientFactory
}

// StoreLookup is the narrow slice of store.StoreRepository the retry queue
// needs; kept as its own interface so tests can fake it without pulling in
// the full repository surface.
type StoreLookup interface {
	Get(ctx context.Context, storeID string) (*models.Store, error)
}

// RetryRepository is the C6 persistence surface.
type RetryRepository interface {
	ExistsPending(ctx context.Context, orderNumber, storeID string) (bool, error)
	Insert(ctx context.Context, entry *models.RetryEntry) error
	ListDue(ctx context.Context, now time.Time) ([]*models.RetryEntry, error)
	MarkSucceeded(ctx context.Context, tx *gorm.DB, retryID uuid.UUID) error
	MarkRetry(ctx context.Context, tx *gorm.DB, retryID uuid.UUID, lastError string, nextAttempt time.Time) error
	MarkFailed(ctx context.Context, tx *gorm.DB, retryID uuid.UUID, lastError string) error
}

// NewQueue wires the retry queue. defaultSecret/defaultKey are the
// deployment-wide fallback credentials used when a store's own api_config
// omits its serviceSecret/licenseKey, matching CredentialsFromAPIConfig's
// fallback contract.
func NewQueue(dbCluster *postgres.DbCluster, retries RetryRepository, stores StoreLookup, inv inventory.Service, proxyURL, defaultSecret, defaultKey string) Queue {
	return NewQueueWithClientFactory(dbCluster, retries, stores, inv, proxyURL, defaultSecret, defaultKey, nil)
}

// NewQueueWithClientFactory is NewQueue with an overridable platform client
// factory, used by tests to avoid real HTTP calls.
func NewQueueWithClientFactory(dbCluster *postgres.DbCluster, retries RetryRepository, stores StoreLookup, inv inventory.Service, proxyURL, defaultSecret, defaultKey string, clientFactory platform.ClientFactory) Queue {
	if clientFactory == nil {
		clientFactory = platform.NewClientFactory
	}
	return &queue{
		dbCluster:     dbCluster,
		retries:       retries,
		stores:        stores,
		inv:           inv,
		proxyURL:      proxyURL,
		defaultSecret: defaultSecret,
		defaultKey:    defaultKey,
		clientFactory: clientFactory,
	}
}

func (q *queue) Enqueue(ctx context.Context, orderNumber, storeID, lastError string, item map[string]any) error {
	exists, err := q.retries.ExistsPending(ctx, orderNumber, storeID)
	if err != nil {
		return fmt.Errorf("retry: check existing entry: %w", err)
	}
	if exists {
		return nil
	}

	now := time.Now()
	entry := &models.RetryEntry{
		RetryID:       uuid.New(),
		OrderNumber:   orderNumber,
		StoreID:       storeID,
		RetryCount:    0,
		MaxRetries:    maxRetries,
		LastError:     &lastError,
		LastAttemptAt: &now,
		NextAttemptAt: now.Add(initialRetryDelay),
		Status:        models.RetryStatusPending,
		Metadata:      models.JSONMap{"item": item},
	}
	if err := q.retries.Insert(ctx, entry); err != nil {
		return fmt.Errorf("retry: enqueue order %q: %w", orderNumber, err)
	}
	logger.Info(fmt.Sprintf("retry: order %s added to retry queue for store %s", orderNumber, storeID))
	return nil
}

func (q *queue) Drain(ctx context.Context) DrainResult {
	now := time.Now()
	due, err := q.retries.ListDue(ctx, now)
	if err != nil {
		logger.Error("retry: list due entries: " + err.Error())
		return DrainResult{}
	}

	var result DrainResult
	result.Total = len(due)

	for _, entry := range due {
		if q.attempt(ctx, entry, now) {
			result.Processed++
		} else if entry.Status == models.RetryStatusFailed {
			result.Failed = append(result.Failed, entry.OrderNumber)
		}
	}
	return result
}

// attempt drives one retry entry through exactly one confirm attempt and
// persists the outcome. Returns true on success.
func (q *queue) attempt(ctx context.Context, entry *models.RetryEntry, now time.Time) bool {
	storeRow, err := q.stores.Get(ctx, entry.StoreID)
	if err != nil || storeRow == nil || len(storeRow.APIConfig) == 0 {
		q.transition(ctx, func(tx *gorm.DB) error {
			return q.retries.MarkFailed(ctx, tx, entry.RetryID, "store missing or has no api config")
		})
		entry.Status = models.RetryStatusFailed
		return false
	}

	creds, err := platform.CredentialsFromAPIConfig(storeRow.APIConfig, q.defaultSecret, q.defaultKey, entry.StoreID)
	if err != nil {
		q.transition(ctx, func(tx *gorm.DB) error {
			return q.retries.MarkFailed(ctx, tx, entry.RetryID, err.Error())
		})
		entry.Status = models.RetryStatusFailed
		return false
	}

	client := q.clientFactory(creds, q.proxyURL)
	if err := client.ConfirmOrder(ctx, entry.OrderNumber); err == nil {
		logger.Info(fmt.Sprintf("retry %d succeeded for order %s", entry.RetryCount+1, entry.OrderNumber))
		q.transition(ctx, func(tx *gorm.DB) error {
			return q.retries.MarkSucceeded(ctx, tx, entry.RetryID)
		})
		return true
	} else {
		nextCount := entry.RetryCount + 1
		if nextCount >= entry.MaxRetries {
			logger.Error(fmt.Sprintf("order %s failed after %d retries", entry.OrderNumber, entry.MaxRetries))
			q.transition(ctx, func(tx *gorm.DB) error {
				return q.retries.MarkFailed(ctx, tx, entry.RetryID, err.Error())
			})
			entry.Status = models.RetryStatusFailed
			_, logErr := q.inv.LogAPIError(ctx, fmt.Sprintf("order confirm failed after %d retries: %v", entry.MaxRetries, err),
				"confirm_order", &entry.StoreID, nil, map[string]any{"order_number": entry.OrderNumber, "retry_count": nextCount})
			if logErr != nil {
				logger.Error("retry: log terminal failure event: " + logErr.Error())
			}
		} else {
			waitMinutes := time.Duration(1 << nextCount)
			next := now.Add(waitMinutes * time.Minute)
			logger.Info(fmt.Sprintf("order %s will retry in %d minutes (attempt %d/%d)", entry.OrderNumber, waitMinutes, nextCount, entry.MaxRetries))
			q.transition(ctx, func(tx *gorm.DB) error {
				return q.retries.MarkRetry(ctx, tx, entry.RetryID, err.Error(), next)
			})
			_, logErr := q.inv.LogAPIError(ctx, err.Error(), "confirm_order_retry", &entry.StoreID, nil,
				map[string]any{"order_number": entry.OrderNumber, "retry_count": nextCount})
			if logErr != nil {
				logger.Error("retry: log retry attempt event: " + logErr.Error())
			}
		}
		return false
	}
}

// transition runs fn inside its own short-lived transaction. A nil
// dbCluster (as wired by unit tests against in-memory fakes, which ignore
// the *gorm.DB argument entirely) skips the real Begin/Commit and calls fn
// directly.
func (q *queue) transition(ctx context.Context, fn func(tx *gorm.DB) error) {
	if q.dbCluster == nil {
		if err := fn(nil); err != nil {
			logger.Error("retry: persist transition: " + err.Error())
		}
		return
	}
	db := q.dbCluster.GetMasterDB(ctx)
	tx := db.WithContext(ctx).Begin()
	if err := fn(tx); err != nil {
		tx.Rollback()
		logger.Error("retry: persist transition: " + err.Error())
		return
	}
	tx.Commit()
}
