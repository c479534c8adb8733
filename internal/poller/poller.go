// Package poller is the C5 order poller: pulls new/confirmed/cancelled
// orders from each active store's platform and turns them into inventory
// events, delegating unconfirmable orders to the C6 retry queue.
package poller

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/omniful/go_commons/db/sql/postgres"
	logger "github.com/omniful/go_commons/log"
	"github.com/omniful/inventory-reconciler/internal/coreerr"
	"github.com/omniful/inventory-reconciler/internal/inventory"
	"github.com/omniful/inventory-reconciler/internal/models"
	"github.com/omniful/inventory-reconciler/internal/platform"
	"github.com/omniful/inventory-reconciler/internal/retry"
	"github.com/omniful/inventory-reconciler/internal/skunorm"
	"github.com/omniful/inventory-reconciler/internal/store"
	"github.com/omniful/inventory-reconciler/pkg/constants"
)

const (
	defaultWindow = 2 * time.Hour
	batchSize     = constants.PollerBatchSize

	platformStatusNew       = constants.PlatformStatusNew
	platformStatusConfirmed = constants.PlatformStatusConfirmed
	platformStatusCancelled = constants.PlatformStatusCancelled
)

// StoreResult is one store's poll outcome, used both for logging and for
// aggregation in PollAllStores.
type StoreResult struct {
	StoreID   string
	Processed int
	Err       error
}

// Poller is the C5 contract.
type Poller interface {
	PollStore(ctx context.Context, s *models.Store, start, end time.Time) StoreResult
	// PollAllStores polls every active platform-typed store and then drains
	// the retry queue once, mirroring poll_all_stores's call order.
	PollAllStores(ctx context.Context, platformType string) (processed int, errs error, retryResult retry.DrainResult)
}

type poller struct {
	dbCluster     *postgres.DbCluster
	stores        store.StoreRepository
	inv           inventory.Service
	retries       retry.Queue
	window        time.Duration
	proxyURL      string
	defaultSecret string
	defaultKey    string
	clientFactory platform.ClientFactory
}

// NewPoller wires the order poller. defaultSecret/defaultKey are the
// deployment-wide fallback credentials used when a store's own api_config
// omits its serviceSecret/licenseKey, matching CredentialsFromAPIConfig's
// fallback contract.
func NewPoller(dbCluster *postgres.DbCluster, stores store.StoreRepository, inv inventory.Service, retries retry.Queue, window time.Duration, proxyURL, defaultSecret, defaultKey string) Poller {
	return NewPollerWithClientFactory(dbCluster, stores, inv, retries, window, proxyURL, defaultSecret, defaultKey, nil)
}

// NewPollerWithClientFactory is NewPoller with an overridable platform client
// factory, used by tests to avoid real HTTP calls.
func NewPollerWithClientFactory(dbCluster *postgres.DbCluster, stores store.StoreRepository, inv inventory.Service, retries retry.Queue, window time.Duration, proxyURL, defaultSecret, defaultKey string, clientFactory platform.ClientFactory) Poller {
	if window <= 0 {
		window = defaultWindow
	}
	if clientFactory == nil {
		clientFactory = platform.NewClientFactory
	}
	return &poller{
		dbCluster:     dbCluster,
		stores:        stores,
		inv:           inv,
		retries:       retries,
		window:        window,
		proxyURL:      proxyURL,
		defaultSecret: defaultSecret,
		defaultKey:    defaultKey,
		clientFactory: clientFactory,
	}
}

func (p *poller) PollAllStores(ctx context.Context, platformType string) (int, error, retry.DrainResult) {
	stores, err := p.stores.ListActiveByPlatformType(ctx, platformType)
	if err != nil {
		return 0, fmt.Errorf("poller: list active stores: %w", err), retry.DrainResult{}
	}

	end := time.Now()
	start := end.Add(-p.window)

	var totalProcessed int
	var errs *multierror.Error
	for _, s := range stores {
		res := p.PollStore(ctx, s, start, end)
		totalProcessed += res.Processed
		if res.Err != nil {
			errs = multierror.Append(errs, fmt.Errorf("store %s: %w", res.StoreID, res.Err))
		}
	}

	retryResult := p.retries.Drain(ctx)
	return totalProcessed, errs.ErrorOrNil(), retryResult
}

func (p *poller) PollStore(ctx context.Context, s *models.Store, start, end time.Time) StoreResult {
	res := StoreResult{StoreID: s.StoreID}

	if len(s.APIConfig) == 0 {
		res.Err = fmt.Errorf("store %s has no api config", s.StoreID)
		return res
	}

	creds, err := platform.CredentialsFromAPIConfig(s.APIConfig, p.defaultSecret, p.defaultKey, s.StoreID)
	if err != nil {
		res.Err = err
		return res
	}
	client := p.clientFactory(creds, p.proxyURL)

	orderNumbers, err := client.SearchOrders(ctx, start, end, nil)
	if err != nil {
		p.logSearchFailure(ctx, s.StoreID, start, end, err)
		res.Err = err
		return res
	}
	logger.Info(fmt.Sprintf("store %s: found %d orders", s.StoreID, len(orderNumbers)))

	if len(orderNumbers) == 0 {
		return res
	}

	for i := 0; i < len(orderNumbers); i += batchSize {
		end := i + batchSize
		if end > len(orderNumbers) {
			end = len(orderNumbers)
		}
		batch := orderNumbers[i:end]
		processed, err := p.processBatch(ctx, s.StoreID, batch, client)
		res.Processed += processed
		if err != nil {
			res.Err = err
		}
	}

	return res
}

func (p *poller) logSearchFailure(ctx context.Context, storeID string, start, end time.Time, cause error) {
	_, err := p.inv.LogAPIError(ctx, cause.Error(), "search_order", &storeID, nil, map[string]any{
		"start_time": start.Format(time.RFC3339),
		"end_time":   end.Format(time.RFC3339),
	})
	if err != nil {
		logger.Error("poller: log search failure event: " + err.Error())
	}
}

// processBatch fetches one batch of orders and applies all of their
// events/snapshot updates inside a single transaction, via inv.WithBatchTx:
// a crash or error partway through the batch rolls every order in it back
// together, rather than leaving the orders processed so far committed and
// the rest lost.
func (p *poller) processBatch(ctx context.Context, storeID string, batch []string, client platform.ClientAPI) (int, error) {
	orders, err := client.GetOrders(ctx, batch)
	if err != nil {
		head := batch
		if len(head) > 5 {
			head = head[:5]
		}
		_, logErr := p.inv.LogAPIError(ctx, err.Error(), "get_order", &storeID, nil, map[string]any{
			"batch":     head,
			"batchSize": len(batch),
		})
		if logErr != nil {
			logger.Error("poller: log get_order failure event: " + logErr.Error())
		}
		return 0, err
	}

	processed := 0
	err = p.inv.WithBatchTx(ctx, func(txInv inventory.Service) error {
		for _, order := range orders {
			if err := p.processOrder(ctx, order, storeID, client, txInv); err != nil {
				return fmt.Errorf("order %v: %w", order["orderNumber"], err)
			}
			processed++
		}
		return nil
	})
	if err != nil {
		logger.Error(fmt.Sprintf("poller: batch rolled back in store %s: %v", storeID, err))
		return 0, err
	}
	return processed, nil
}

func (p *poller) processOrder(ctx context.Context, order map[string]any, storeID string, client platform.ClientAPI, inv inventory.Service) error {
	orderNumber, _ := order["orderNumber"].(string)
	orderStatus, _ := order["orderStatus"].(string)

	items := extractOrderItems(order)

	for _, item := range items {
		rawSku := stringField(item, "skuNumber")
		if rawSku == "" {
			rawSku = stringField(item, "itemManagementNumber")
		}
		if rawSku == "" {
			continue
		}
		skuID := skunorm.Normalize(rawSku)
		quantity := intField(item, "quantity")
		dedupToken := fmt.Sprintf("%s|%s|%s", orderNumber, orderStatus, storeID)

		switch orderStatus {
		case platformStatusNew:
			if err := p.handleNewOrder(ctx, skuID, quantity, storeID, orderNumber, orderStatus, dedupToken, item, client, inv); err != nil {
				return err
			}
		case platformStatusConfirmed:
			if err := p.handleConfirmedOrder(ctx, skuID, storeID, orderNumber, orderStatus, dedupToken, item, inv); err != nil {
				return err
			}
		case platformStatusCancelled:
			if err := p.handleCancelledOrder(ctx, skuID, quantity, storeID, orderNumber, orderStatus, dedupToken, item, inv); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *poller) handleNewOrder(ctx context.Context, skuID string, quantity int, storeID, orderNumber, platformStatus, dedupToken string, item map[string]any, client platform.ClientAPI, inv inventory.Service) error {
	if _, err := inv.GetOrCreateSku(ctx, skuID, skuID, "", models.EnvProd); err != nil {
		return fmt.Errorf("get_or_create_sku: %w", err)
	}

	reason := "platform new order"
	_, err := inv.CreateEvent(ctx, inventory.CreateEventInput{
		EventType:      models.EventOrderReceived,
		SkuID:          skuID,
		Quantity:       -quantity,
		StoreID:        &storeID,
		PlatformStatus: &platformStatus,
		OrderID:        &orderNumber,
		Operator:       "system",
		Reason:         &reason,
		Source:         models.SourceAPI,
		Metadata:       models.JSONMap{"item": item},
		Token:          &dedupToken,
	})
	if _, dup := err.(*coreerr.DuplicateToken); dup {
		logger.Info(fmt.Sprintf("duplicate order skipped: order=%s status=%s store=%s", orderNumber, platformStatus, storeID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("create order_received event: %w", err)
	}

	if err := client.ConfirmOrder(ctx, orderNumber); err != nil {
		logger.Error(fmt.Sprintf("failed to confirm order %s: %v", orderNumber, err))
		if _, logErr := inv.LogAPIError(ctx, err.Error(), "confirm_order", &storeID, &skuID, map[string]any{
			"order_number": orderNumber,
		}); logErr != nil {
			logger.Error("poller: log confirm failure event: " + logErr.Error())
		}
		if enqErr := p.retries.Enqueue(ctx, orderNumber, storeID, err.Error(), item); enqErr != nil {
			return fmt.Errorf("enqueue retry: %w", enqErr)
		}
		return nil
	}
	logger.Info(fmt.Sprintf("order %s confirmed successfully", orderNumber))
	return nil
}

func (p *poller) handleConfirmedOrder(ctx context.Context, skuID, storeID, orderNumber, platformStatus, dedupToken string, item map[string]any, inv inventory.Service) error {
	reason := "platform order confirmed"
	_, err := inv.CreateEvent(ctx, inventory.CreateEventInput{
		EventType:      models.EventOrderConfirmed,
		SkuID:          skuID,
		Quantity:       0,
		StoreID:        &storeID,
		PlatformStatus: &platformStatus,
		OrderID:        &orderNumber,
		Operator:       "system",
		Reason:         &reason,
		Source:         models.SourceAPI,
		Metadata:       models.JSONMap{"item": item},
		Token:          &dedupToken,
	})
	if _, dup := err.(*coreerr.DuplicateToken); dup {
		return nil
	}
	if err != nil {
		return fmt.Errorf("create order_confirmed event: %w", err)
	}
	return nil
}

func (p *poller) handleCancelledOrder(ctx context.Context, skuID string, quantity int, storeID, orderNumber, platformStatus, dedupToken string, item map[string]any, inv inventory.Service) error {
	reason := "platform order cancelled"
	_, err := inv.CreateEvent(ctx, inventory.CreateEventInput{
		EventType:      models.EventOrderCancelled,
		SkuID:          skuID,
		Quantity:       quantity,
		StoreID:        &storeID,
		PlatformStatus: &platformStatus,
		OrderID:        &orderNumber,
		Operator:       "system",
		Reason:         &reason,
		Source:         models.SourceAPI,
		Metadata:       models.JSONMap{"item": item},
		Token:          &dedupToken,
	})
	if _, dup := err.(*coreerr.DuplicateToken); dup {
		return nil
	}
	if err != nil {
		return fmt.Errorf("create order_cancelled event: %w", err)
	}
	return nil
}

// extractOrderItems normalizes orderItemList.orderItem, which the platform
// returns as a bare object for a single-line order and an array otherwise.
func extractOrderItems(order map[string]any) []map[string]any {
	list, ok := order["orderItemList"].(map[string]any)
	if !ok {
		return nil
	}
	switch v := list["orderItem"].(type) {
	case map[string]any:
		return []map[string]any{v}
	case []any:
		items := make([]map[string]any, 0, len(v))
		for _, it := range v {
			if m, ok := it.(map[string]any); ok {
				items = append(items, m)
			}
		}
		return items
	default:
		return nil
	}
}

func stringField(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

func intField(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}
