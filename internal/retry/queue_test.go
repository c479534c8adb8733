package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/omniful/inventory-reconciler/internal/inventory"
	"github.com/omniful/inventory-reconciler/internal/models"
	"github.com/omniful/inventory-reconciler/internal/platform"
	"github.com/omniful/inventory-reconciler/internal/platform/platformtest"
	"github.com/omniful/inventory-reconciler/internal/store/storetest"
)

func newTestQueue(fake *platformtest.Client) (Queue, *storetest.RetryRepository, *storetest.StoreRepository) {
	retries := storetest.NewRetryRepository()
	stores := storetest.NewStoreRepository()
	stores.Put(&models.Store{
		StoreID:      "S1",
		PlatformType: "rakuten",
		Status:       models.StoreStatusActive,
		APIConfig:    models.JSONMap{"serviceSecret": "s", "licenseKey": "k"},
	})
	inv := inventory.NewService(
		nil,
		storetest.NewSkuRepository(),
		stores,
		storetest.NewStoreSkuRepository(),
		storetest.NewEventRepository(),
		storetest.NewSnapshotRepository(),
	)
	q := NewQueueWithClientFactory(nil, retries, stores, inv, "", "", "", func(creds platform.Credentials, proxyURL string) platform.ClientAPI {
		return fake
	})
	return q, retries, stores
}

func onlyEntry(t *testing.T, repo *storetest.RetryRepository) *models.RetryEntry {
	t.Helper()
	due, err := repo.ListDue(context.Background(), time.Now().Add(24*time.Hour))
	if err != nil {
		t.Fatalf("ListDue: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("expected exactly one retry entry, got %d", len(due))
	}
	return due[0]
}

func TestEnqueue_schedulesFiveMinutesOut(t *testing.T) {
	fake := platformtest.New()
	q, retries, _ := newTestQueue(fake)
	ctx := context.Background()

	before := time.Now()
	if err := q.Enqueue(ctx, "O1", "S1", "confirm failed", map[string]any{"quantity": 3}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	entry := onlyEntry(t, retries)
	delta := entry.NextAttemptAt.Sub(before)
	if delta < 4*time.Minute+30*time.Second || delta > 5*time.Minute+30*time.Second {
		t.Fatalf("next_attempt_at delta = %v, want ~5m", delta)
	}
	if entry.Status != models.RetryStatusPending || entry.RetryCount != 0 {
		t.Fatalf("entry = %+v, want pending/retry_count=0", entry)
	}
}

func TestEnqueue_skipsWhenAlreadyPending(t *testing.T) {
	fake := platformtest.New()
	q, retries, _ := newTestQueue(fake)
	ctx := context.Background()

	q.Enqueue(ctx, "O1", "S1", "first failure", nil)
	q.Enqueue(ctx, "O1", "S1", "second failure", nil)

	due, _ := retries.ListDue(ctx, time.Now().Add(24*time.Hour))
	if len(due) != 1 {
		t.Fatalf("expected enqueue to be a no-op when a pending entry exists, got %d entries", len(due))
	}
}

// TestDrain_retrySuccessOnThirdAttempt covers spec scenario 4: confirm fails
// twice, succeeds the third time. After the failures the entry must still be
// pending with retry_count=2 and a ~4-minute backoff; the third attempt
// deletes it.
func TestDrain_retrySuccessOnThirdAttempt(t *testing.T) {
	fake := platformtest.New()
	q, retries, _ := newTestQueue(fake)
	ctx := context.Background()

	q.Enqueue(ctx, "O1", "S1", "initial failure", nil)
	makeDue(t, retries, "O1", "S1")

	fake.ConfirmErr = errors.New("still failing")
	res := q.Drain(ctx)
	if res.Total != 1 || res.Processed != 0 {
		t.Fatalf("drain 1 = %+v, want total=1 processed=0", res)
	}
	entry := onlyEntryIgnoringDue(t, retries)
	if entry.RetryCount != 1 || entry.Status != models.RetryStatusPending {
		t.Fatalf("after 1st failure: %+v", entry)
	}

	makeDue(t, retries, "O1", "S1")
	res = q.Drain(ctx)
	entry = onlyEntryIgnoringDue(t, retries)
	if entry.RetryCount != 2 || entry.Status != models.RetryStatusPending {
		t.Fatalf("after 2nd failure: %+v", entry)
	}
	before := time.Now()
	wantDelta := 4 * time.Minute
	if d := entry.NextAttemptAt.Sub(before); d < wantDelta-30*time.Second || d > wantDelta+30*time.Second {
		t.Fatalf("next_attempt_at delta after 2nd failure = %v, want ~4m", d)
	}

	makeDue(t, retries, "O1", "S1")
	fake.ConfirmErr = nil
	res = q.Drain(ctx)
	if res.Processed != 1 {
		t.Fatalf("drain 3 = %+v, want processed=1", res)
	}
	due, _ := retries.ListDue(ctx, time.Now().Add(24*time.Hour))
	if len(due) != 0 {
		t.Fatalf("entry should be deleted after success, found %d", len(due))
	}
}

// TestDrain_exhaustion covers spec scenario 5: confirm fails on every
// attempt through max_retries; the entry reaches status=failed with
// retry_count=max_retries and is never retried again.
func TestDrain_exhaustion(t *testing.T) {
	fake := platformtest.New()
	fake.ConfirmErr = errors.New("permanently broken")
	q, retries, _ := newTestQueue(fake)
	ctx := context.Background()

	q.Enqueue(ctx, "O1", "S1", "initial failure", nil)
	for i := 0; i < maxRetries; i++ {
		makeDue(t, retries, "O1", "S1")
		q.Drain(ctx)
	}

	entry := onlyEntryIgnoringDue(t, retries)
	if entry.Status != models.RetryStatusFailed {
		t.Fatalf("entry status = %v, want failed", entry.Status)
	}
	if entry.RetryCount != maxRetries {
		t.Fatalf("entry retry_count = %d, want %d", entry.RetryCount, maxRetries)
	}

	// A failed entry must never become due again, even with a wide window.
	due, _ := retries.ListDue(ctx, time.Now().Add(24*time.Hour))
	if len(due) != 0 {
		t.Fatalf("failed entry became due again: %+v", due)
	}
}

func TestDrain_missingStoreConfigFailsImmediately(t *testing.T) {
	fake := platformtest.New()
	retries := storetest.NewRetryRepository()
	stores := storetest.NewStoreRepository()
	stores.Put(&models.Store{StoreID: "S1", Status: models.StoreStatusActive}) // no APIConfig
	inv := inventory.NewService(nil, storetest.NewSkuRepository(), stores, storetest.NewStoreSkuRepository(), storetest.NewEventRepository(), storetest.NewSnapshotRepository())
	q := NewQueueWithClientFactory(nil, retries, stores, inv, "", "", "", func(creds platform.Credentials, proxyURL string) platform.ClientAPI { return fake })
	ctx := context.Background()

	q.Enqueue(ctx, "O1", "S1", "initial failure", nil)
	makeDue(t, retries, "O1", "S1")
	q.Drain(ctx)

	entry := onlyEntryIgnoringDue(t, retries)
	if entry.Status != models.RetryStatusFailed {
		t.Fatalf("entry with no store config should fail immediately, got %+v", entry)
	}
}

func makeDue(t *testing.T, retries *storetest.RetryRepository, orderNumber, storeID string) {
	t.Helper()
	for _, e := range retries.All() {
		if e.OrderNumber == orderNumber && e.StoreID == storeID && e.Status == models.RetryStatusPending {
			retries.ForceDue(e.RetryID, time.Now().Add(-time.Second))
			return
		}
	}
	t.Fatalf("no pending entry found for %s/%s to force due", orderNumber, storeID)
}

func onlyEntryIgnoringDue(t *testing.T, repo *storetest.RetryRepository) *models.RetryEntry {
	t.Helper()
	all := repo.All()
	if len(all) == 1 {
		return all[0]
	}
	t.Fatalf("expected exactly one live entry, got %d", len(all))
	return nil
}
