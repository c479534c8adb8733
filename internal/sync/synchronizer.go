// Package sync is the C7 push synchronizer: pushes this core's view of a
// SKU's available stock out to the platform stores that carry it. It never
// returns an error to the caller for a single store's failure — every
// per-store outcome is captured in a Result instead, mirroring the
// reference sync_to_store's "return a dict, never raise" contract.
package sync

import (
	"context"
	"fmt"

	logger "github.com/omniful/go_commons/log"
	"github.com/omniful/inventory-reconciler/internal/inventory"
	"github.com/omniful/inventory-reconciler/internal/models"
	"github.com/omniful/inventory-reconciler/internal/platform"
	"github.com/omniful/inventory-reconciler/internal/skunorm"
)

// Result is one SKU/store push outcome.
type Result struct {
	SkuID       string
	StoreID     string
	PlatformSku string
	Quantity    int
	Success     bool
	Error       string
}

// Synchronizer is the C7 contract.
type Synchronizer interface {
	SyncSkuToStore(ctx context.Context, skuID, storeID string) Result
	SyncSkuToAllStores(ctx context.Context, skuID string) []Result
	SyncStore(ctx context.Context, storeID string) []Result
}

type synchronizer struct {
	svc           inventory.Service
	concurrency   int
	proxyURL      string
	defaultSecret string
	defaultKey    string
	clientFactory platform.ClientFactory
}

// NewSynchronizer wires the push synchronizer. defaultSecret/defaultKey are
// the deployment-wide fallback credentials used when a store's own
// api_config omits its serviceSecret/licenseKey, matching
// CredentialsFromAPIConfig's fallback contract.
func NewSynchronizer(svc inventory.Service, concurrency int, proxyURL, defaultSecret, defaultKey string) Synchronizer {
	return NewSynchronizerWithClientFactory(svc, concurrency, proxyURL, defaultSecret, defaultKey, nil)
}

// NewSynchronizerWithClientFactory is NewSynchronizer with an overridable
// platform client factory, used by tests to avoid real HTTP calls.
func NewSynchronizerWithClientFactory(svc inventory.Service, concurrency int, proxyURL, defaultSecret, defaultKey string, clientFactory platform.ClientFactory) Synchronizer {
	if concurrency <= 0 {
		concurrency = 16
	}
	if clientFactory == nil {
		clientFactory = platform.NewClientFactory
	}
	return &synchronizer{
		svc:           svc,
		concurrency:   concurrency,
		proxyURL:      proxyURL,
		defaultSecret: defaultSecret,
		defaultKey:    defaultKey,
		clientFactory: clientFactory,
	}
}

func (s *synchronizer) SyncSkuToStore(ctx context.Context, skuID, storeID string) Result {
	skuID = skunorm.Normalize(skuID)
	res := Result{SkuID: skuID, StoreID: storeID}

	storeRow, err := s.svc.GetStore(ctx, storeID)
	if err != nil {
		res.Error = fmt.Sprintf("lookup store: %v", err)
		return res
	}
	if storeRow == nil {
		res.Error = "store not found"
		return res
	}
	if len(storeRow.APIConfig) == 0 {
		res.Error = "store has no api config"
		return res
	}

	snap, err := s.svc.GetSnapshot(ctx, skuID)
	if err != nil {
		res.Error = fmt.Sprintf("lookup snapshot: %v", err)
		return res
	}
	if snap == nil {
		res.Error = "snapshot not found"
		return res
	}

	sku, err := s.svc.GetSku(ctx, skuID)
	if err != nil {
		res.Error = fmt.Sprintf("lookup sku: %v", err)
		return res
	}
	if sku == nil {
		res.Error = "sku not found"
		return res
	}

	// Clamp: the platform has no concept of negative stock.
	platformQty := snap.InternalAvailable
	if platformQty < 0 {
		platformQty = 0
	}
	res.Quantity = platformQty
	res.PlatformSku = resolvePlatformSku(sku)

	creds, err := platform.CredentialsFromAPIConfig(storeRow.APIConfig, s.defaultSecret, s.defaultKey, storeID)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	client := s.clientFactory(creds, s.proxyURL)
	if err := client.SetInventory(ctx, res.PlatformSku, platformQty); err != nil {
		logger.Error("sync: push " + skuID + " to store " + storeID + " failed: " + err.Error())
		res.Error = err.Error()
		return res
	}

	res.Success = true
	return res
}

// resolvePlatformSku prefers the SKU's "platform" alias, then the SKU's
// original (platform-native) identifier, then falls back to the internal
// sku_id itself: aliases["platform"], else original_sku, else sku_id.
func resolvePlatformSku(sku *models.SkuMaster) string {
	if alias, ok := sku.Aliases["platform"].(string); ok && alias != "" {
		return alias
	}
	if sku.OriginalSku != nil && *sku.OriginalSku != "" {
		return *sku.OriginalSku
	}
	return sku.SkuID
}

func (s *synchronizer) SyncSkuToAllStores(ctx context.Context, skuID string) []Result {
	skuID = skunorm.Normalize(skuID)
	storeIDs, err := s.svc.GetRegisteredStores(ctx, skuID)
	if err != nil || len(storeIDs) == 0 {
		return nil
	}

	results := make([]Result, len(storeIDs))
	runBounded(indices(len(storeIDs)), s.concurrency, func(i int) {
		results[i] = s.SyncSkuToStore(ctx, skuID, storeIDs[i])
	})
	return results
}

func (s *synchronizer) SyncStore(ctx context.Context, storeID string) []Result {
	skus, err := s.svc.GetStoreSkus(ctx, storeID)
	if err != nil || len(skus) == 0 {
		return nil
	}

	results := make([]Result, len(skus))
	runBounded(indices(len(skus)), s.concurrency, func(i int) {
		results[i] = s.SyncSkuToStore(ctx, skus[i].SkuID, storeID)
	})
	return results
}

func indices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
