package inventory

import (
	"context"
	"testing"

	"github.com/omniful/inventory-reconciler/internal/coreerr"
	"github.com/omniful/inventory-reconciler/internal/models"
	"github.com/omniful/inventory-reconciler/internal/store/storetest"
)

func newTestService() Service {
	svc, _ := newTestServiceWithSkus()
	return svc
}

func newTestServiceWithSkus() (Service, *storetest.SkuRepository) {
	skus := storetest.NewSkuRepository()
	svc := NewService(
		nil,
		skus,
		storetest.NewStoreRepository(),
		storetest.NewStoreSkuRepository(),
		storetest.NewEventRepository(),
		storetest.NewSnapshotRepository(),
	)
	return svc, skus
}

func TestCreateEvent_updatesSnapshot(t *testing.T) {
	ctx := context.Background()
	svc, skus := newTestServiceWithSkus()

	sku, err := svc.GetOrCreateSku(ctx, "ABC", "ABC", "widget", models.EnvProd)
	if err != nil {
		t.Fatalf("GetOrCreateSku: %v", err)
	}
	sku.AllowOversell = true
	if err := skus.Save(ctx, sku); err != nil {
		t.Fatalf("seed allow_oversell: %v", err)
	}

	if _, err := svc.CreateEvent(ctx, CreateEventInput{
		EventType: models.EventOrderReceived,
		SkuID:     "abc",
		Quantity:  -3,
		Operator:  "system",
		Source:    models.SourceAPI,
	}); err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}

	snap, err := svc.GetSnapshot(ctx, "abc")
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	if snap == nil || snap.InternalAvailable != -3 {
		t.Fatalf("snapshot = %+v, want internal_available=-3", snap)
	}
}

func TestCreateEvent_oversellRejected(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	sku, err := svc.GetOrCreateSku(ctx, "abc", "", "", models.EnvProd)
	if err != nil {
		t.Fatalf("GetOrCreateSku: %v", err)
	}
	if sku.AllowOversell {
		t.Fatalf("expected allow_oversell=false by default")
	}

	_, err = svc.CreateEvent(ctx, CreateEventInput{
		EventType: models.EventOrderReceived,
		SkuID:     "abc",
		Quantity:  -5,
		Operator:  "system",
		Source:    models.SourceAPI,
	})
	var oversell *coreerr.Oversell
	if err == nil {
		t.Fatalf("expected Oversell error, got nil")
	}
	if !asOversell(err, &oversell) {
		t.Fatalf("expected *coreerr.Oversell, got %T: %v", err, err)
	}

	snap, err := svc.GetSnapshot(ctx, "abc")
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	if snap != nil {
		t.Fatalf("snapshot should remain absent after a rejected event, got %+v", snap)
	}
}

func asOversell(err error, target **coreerr.Oversell) bool {
	o, ok := err.(*coreerr.Oversell)
	if ok {
		*target = o
	}
	return ok
}

func TestCreateEvent_tokenIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, skus := newTestServiceWithSkus()
	sku, _ := svc.GetOrCreateSku(ctx, "abc", "", "", models.EnvProd)
	sku.AllowOversell = true
	if err := skus.Save(ctx, sku); err != nil {
		t.Fatalf("seed allow_oversell: %v", err)
	}

	tok := "O1|100|S1"
	in := CreateEventInput{
		EventType: models.EventOrderReceived,
		SkuID:     "abc",
		Quantity:  -3,
		Operator:  "system",
		Source:    models.SourceAPI,
		Token:     &tok,
	}
	if _, err := svc.CreateEvent(ctx, in); err != nil {
		t.Fatalf("first CreateEvent: %v", err)
	}
	if _, err := svc.CreateEvent(ctx, in); err == nil {
		t.Fatalf("expected duplicate-token error on resubmit, got nil")
	} else if _, dup := err.(*coreerr.DuplicateToken); !dup {
		t.Fatalf("expected *coreerr.DuplicateToken, got %T: %v", err, err)
	}

	snap, _ := svc.GetSnapshot(ctx, "abc")
	if snap.InternalAvailable != -3 {
		t.Fatalf("snapshot moved on duplicate resubmit: %+v", snap)
	}
}

// TestCreateEvent_cancelThenReceive covers spec scenario 3: a cancellation
// for a SKU arrives before the corresponding receipt. The accumulator must
// converge to the same total regardless of processing order, once oversell
// is allowed.
func TestCreateEvent_cancelThenReceive(t *testing.T) {
	ctx := context.Background()
	svc, skus := newTestServiceWithSkus()

	sku, _ := svc.GetOrCreateSku(ctx, "x", "", "", models.EnvProd)
	sku.AllowOversell = true
	if err := skus.Save(ctx, sku); err != nil {
		t.Fatalf("seed allow_oversell: %v", err)
	}

	if _, err := svc.CreateEvent(ctx, CreateEventInput{
		EventType: models.EventOrderCancelled,
		SkuID:     "x",
		Quantity:  2,
		Operator:  "system",
		Source:    models.SourceAPI,
	}); err != nil {
		t.Fatalf("cancel event: %v", err)
	}
	if _, err := svc.CreateEvent(ctx, CreateEventInput{
		EventType: models.EventOrderReceived,
		SkuID:     "x",
		Quantity:  -5,
		Operator:  "system",
		Source:    models.SourceAPI,
	}); err != nil {
		t.Fatalf("receive event: %v", err)
	}

	snap, _ := svc.GetSnapshot(ctx, "x")
	if snap.InternalAvailable != -3 {
		t.Fatalf("snapshot = %d, want -3", snap.InternalAvailable)
	}
}

func TestGetSnapshot_normalizationInvariant(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()
	svc.GetOrCreateSku(ctx, "AbC", "", "", models.EnvProd)
	svc.CreateEvent(ctx, CreateEventInput{
		EventType: models.EventStockIn,
		SkuID:     "  ABC  ",
		Quantity:  7,
		Operator:  "system",
		Source:    models.SourceManual,
	})

	a, err := svc.GetSnapshot(ctx, "abc")
	if err != nil {
		t.Fatalf("GetSnapshot(abc): %v", err)
	}
	b, err := svc.GetSnapshot(ctx, "  AbC ")
	if err != nil {
		t.Fatalf("GetSnapshot(variant): %v", err)
	}
	if a == nil || b == nil || a.InternalAvailable != b.InternalAvailable {
		t.Fatalf("get_snapshot(r) != get_snapshot(normalize(r)): %+v vs %+v", a, b)
	}
}

func TestLogAPIError_doesNotMoveSnapshot(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()
	svc.GetOrCreateSku(ctx, "abc", "", "", models.EnvProd)
	svc.CreateEvent(ctx, CreateEventInput{
		EventType: models.EventStockIn,
		SkuID:     "abc",
		Quantity:  10,
		Operator:  "system",
		Source:    models.SourceManual,
	})

	storeID := "S1"
	if _, err := svc.LogAPIError(ctx, "boom", "confirm_order", &storeID, stringPtr("abc"), map[string]any{"order_number": "O1"}); err != nil {
		t.Fatalf("LogAPIError: %v", err)
	}

	snap, _ := svc.GetSnapshot(ctx, "abc")
	if snap.InternalAvailable != 10 {
		t.Fatalf("API_ERROR moved the snapshot: %+v", snap)
	}
}

func stringPtr(s string) *string { return &s }

func TestResetSku_clearsStateAndReseedsAtZero(t *testing.T) {
	ctx := context.Background()
	svc, skus := newTestServiceWithSkus()

	sku, err := svc.GetOrCreateSku(ctx, "abc", "ORIG", "widget", models.EnvProd)
	if err != nil {
		t.Fatalf("GetOrCreateSku: %v", err)
	}
	sku.ExtraData = models.JSONMap{"note": "do not touch"}
	sku.Aliases = models.JSONMap{"platform": "PLAT-ABC"}
	if err := skus.Save(ctx, sku); err != nil {
		t.Fatalf("seed extra_data/aliases: %v", err)
	}

	if _, err := svc.CreateEvent(ctx, CreateEventInput{
		EventType: models.EventStockIn,
		SkuID:     "abc",
		Quantity:  10,
		Operator:  "system",
		Source:    models.SourceManual,
	}); err != nil {
		t.Fatalf("seed stock event: %v", err)
	}
	if err := svc.RegisterSkuToStore(ctx, "abc", "S1"); err != nil {
		t.Fatalf("RegisterSkuToStore: %v", err)
	}

	if err := svc.ResetSku(ctx, "abc", "admin", "onboarded incorrectly"); err != nil {
		t.Fatalf("ResetSku: %v", err)
	}

	got, err := svc.GetSku(ctx, "abc")
	if err != nil {
		t.Fatalf("GetSku: %v", err)
	}
	if got == nil {
		t.Fatalf("sku row should still exist after reset")
	}
	if got.Status != models.SkuStatusInactive {
		t.Fatalf("status = %v, want inactive", got.Status)
	}
	if len(got.ExtraData) != 0 {
		t.Fatalf("extra_data = %+v, want empty", got.ExtraData)
	}
	if len(got.Aliases) != 0 {
		t.Fatalf("aliases = %+v, want empty", got.Aliases)
	}

	snap, err := svc.GetSnapshot(ctx, "abc")
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	if snap == nil || snap.InternalAvailable != 0 {
		t.Fatalf("snapshot = %+v, want internal_available=0", snap)
	}

	stores, err := svc.GetRegisteredStores(ctx, "abc")
	if err != nil {
		t.Fatalf("GetRegisteredStores: %v", err)
	}
	if len(stores) != 0 {
		t.Fatalf("registered stores = %v, want none after reset", stores)
	}

	events, err := svc.GetEvents(ctx, "abc", nil, 100, 0)
	if err != nil {
		t.Fatalf("GetEvents: %v", err)
	}
	if len(events) != 1 || events[0].EventType != models.EventInitReset {
		t.Fatalf("events = %+v, want exactly one INIT_RESET event", events)
	}
}

func TestResetSku_missingSkuReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	err := svc.ResetSku(ctx, "does-not-exist", "admin", "cleanup")
	if err == nil {
		t.Fatalf("expected an error for a nonexistent sku, got nil")
	}
}
