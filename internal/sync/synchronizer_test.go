package sync

import (
	"context"
	"testing"

	"github.com/omniful/inventory-reconciler/internal/inventory"
	"github.com/omniful/inventory-reconciler/internal/models"
	"github.com/omniful/inventory-reconciler/internal/platform"
	"github.com/omniful/inventory-reconciler/internal/platform/platformtest"
	"github.com/omniful/inventory-reconciler/internal/store/storetest"
)

func seedStore(stores *storetest.StoreRepository, storeID string) {
	stores.Put(&models.Store{
		StoreID:      storeID,
		PlatformType: "rakuten",
		Status:       models.StoreStatusActive,
		APIConfig:    models.JSONMap{"serviceSecret": "s", "licenseKey": "k"},
	})
}

// TestSyncSkuToStore_clampsNegativeToZero covers spec scenario 6: a SKU with
// internal_available=-3 pushes quantity=0, never the negative value.
func TestSyncSkuToStore_clampsNegativeToZero(t *testing.T) {
	ctx := context.Background()
	skus := storetest.NewSkuRepository()
	stores := storetest.NewStoreRepository()
	seedStore(stores, "S1")
	storeSkus := storetest.NewStoreSkuRepository()
	events := storetest.NewEventRepository()
	snapshots := storetest.NewSnapshotRepository()

	inv := inventory.NewService(nil, skus, stores, storeSkus, events, snapshots)
	inv.GetOrCreateSku(ctx, "x", "ORIG-X", "widget", models.EnvProd)
	skuRow, _ := inv.GetSku(ctx, "x")
	skuRow.AllowOversell = true
	skus.Save(ctx, skuRow)

	if _, err := inv.CreateEvent(ctx, inventory.CreateEventInput{
		EventType: models.EventStockIn,
		SkuID:     "x",
		Quantity:  -3,
		Operator:  "system",
		Source:    models.SourceManual,
	}); err != nil {
		t.Fatalf("seed negative snapshot: %v", err)
	}

	fake := platformtest.New()
	sync := NewSynchronizerWithClientFactory(inv, 4, "", "", "", func(creds platform.Credentials, proxyURL string) platform.ClientAPI {
		return fake
	})

	res := sync.SyncSkuToStore(ctx, "x", "S1")
	if !res.Success {
		t.Fatalf("sync failed: %s", res.Error)
	}
	if res.Quantity != 0 {
		t.Fatalf("result quantity = %d, want 0", res.Quantity)
	}
	if got, ok := fake.Pushed["ORIG-X"]; !ok || got != 0 {
		t.Fatalf("platform push = %v, want 0 for sku ORIG-X", fake.Pushed)
	}
}

// TestResolvePlatformSku_prefersAlias covers the alias > original_sku > sku_id
// fallback chain.
func TestResolvePlatformSku_prefersAlias(t *testing.T) {
	sku := &models.SkuMaster{
		SkuID:       "x",
		OriginalSku: strPtr("ORIG-X"),
		Aliases:     models.JSONMap{"platform": "PLATFORM-X"},
	}
	if got := resolvePlatformSku(sku); got != "PLATFORM-X" {
		t.Fatalf("resolvePlatformSku = %q, want PLATFORM-X", got)
	}
}

func TestResolvePlatformSku_fallsBackToOriginalThenSkuID(t *testing.T) {
	withOriginal := &models.SkuMaster{SkuID: "x", OriginalSku: strPtr("ORIG-X")}
	if got := resolvePlatformSku(withOriginal); got != "ORIG-X" {
		t.Fatalf("resolvePlatformSku = %q, want ORIG-X", got)
	}

	bare := &models.SkuMaster{SkuID: "x"}
	if got := resolvePlatformSku(bare); got != "x" {
		t.Fatalf("resolvePlatformSku = %q, want x", got)
	}
}

func TestSyncSkuToAllStores_fanOut(t *testing.T) {
	ctx := context.Background()
	skus := storetest.NewSkuRepository()
	stores := storetest.NewStoreRepository()
	seedStore(stores, "S1")
	seedStore(stores, "S2")
	storeSkus := storetest.NewStoreSkuRepository()
	events := storetest.NewEventRepository()
	snapshots := storetest.NewSnapshotRepository()

	inv := inventory.NewService(nil, skus, stores, storeSkus, events, snapshots)
	inv.GetOrCreateSku(ctx, "x", "", "", models.EnvProd)
	inv.CreateEvent(ctx, inventory.CreateEventInput{EventType: models.EventStockIn, SkuID: "x", Quantity: 10, Operator: "system", Source: models.SourceManual})
	inv.RegisterSkuToStore(ctx, "x", "S1")
	inv.RegisterSkuToStore(ctx, "x", "S2")

	fake := platformtest.New()
	sync := NewSynchronizerWithClientFactory(inv, 4, "", "", "", func(creds platform.Credentials, proxyURL string) platform.ClientAPI { return fake })

	results := sync.SyncSkuToAllStores(ctx, "x")
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, r := range results {
		if !r.Success || r.Quantity != 10 {
			t.Fatalf("result = %+v, want success quantity=10", r)
		}
	}
}

func strPtr(s string) *string { return &s }
