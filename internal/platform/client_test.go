package platform

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/omniful/inventory-reconciler/internal/coreerr"
)

func testCreds() Credentials {
	return Credentials{StoreID: "S1", ServiceSecret: "secret", LicenseKey: "key"}
}

func TestAuthHeader(t *testing.T) {
	want := "ESA " + base64.StdEncoding.EncodeToString([]byte("secret:key"))
	if got := testCreds().AuthHeader(); got != want {
		t.Fatalf("AuthHeader = %q, want %q", got, want)
	}
}

func TestClient_sendsAuthHeader(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewClient(testCreds(), WithBaseURL(srv.URL))
	_, err := client.SearchOrders(context.Background(), time.Now(), time.Now(), nil)
	if _, expired := err.(*coreerr.CredentialExpired); !expired {
		t.Fatalf("expected *coreerr.CredentialExpired, got %T: %v", err, err)
	}
	if gotAuth != testCreds().AuthHeader() {
		t.Fatalf("Authorization header = %q, want %q", gotAuth, testCreds().AuthHeader())
	}
}

// TestClient_401FailsImmediately asserts a 401 never retries: one request,
// translated straight into *coreerr.CredentialExpired.
func TestClient_401FailsImmediately(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewClient(testCreds(), WithBaseURL(srv.URL))
	_, err := client.SearchOrders(context.Background(), time.Now(), time.Now(), nil)
	if _, expired := err.(*coreerr.CredentialExpired); !expired {
		t.Fatalf("expected *coreerr.CredentialExpired, got %T: %v", err, err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("calls = %d, want 1 (no retry on 401)", got)
	}
}

// TestClient_retriesOn429ThenSucceeds covers the doubling backoff: two 429s
// followed by a 200 must succeed on the third call.
func TestClient_retriesOn429ThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"orderNumberList": {"orderNumber": "O1"}}`))
	}))
	defer srv.Close()

	client := NewClient(testCreds(), WithBaseURL(srv.URL))
	orders, err := client.SearchOrders(context.Background(), time.Now(), time.Now(), nil)
	if err != nil {
		t.Fatalf("SearchOrders: %v", err)
	}
	if len(orders) != 1 || orders[0] != "O1" {
		t.Fatalf("orders = %v, want [O1]", orders)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("calls = %d, want 3 (2 failures + success)", got)
	}
}

// TestClient_exhaustsRetriesOn429 asserts a permanently rate-limited upstream
// surfaces a *coreerr.RateLimited after maxRetries+1 attempts, not an
// infinite loop.
func TestClient_exhaustsRetriesOn429(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewClient(testCreds(), WithBaseURL(srv.URL), WithTimeout(5*time.Second))
	err := client.ConfirmOrder(context.Background(), "O1")
	if _, ok := err.(*coreerr.RateLimited); !ok {
		t.Fatalf("expected *coreerr.RateLimited, got %T: %v", err, err)
	}
	if got := atomic.LoadInt32(&calls); got != maxRetries+1 {
		t.Fatalf("calls = %d, want %d", got, maxRetries+1)
	}
}

// TestClient_5xxFailsImmediately asserts a 5xx response is not treated as
// transient: one request, translated straight into *coreerr.PlatformFailure.
func TestClient_5xxFailsImmediately(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(testCreds(), WithBaseURL(srv.URL))
	err := client.ConfirmOrder(context.Background(), "O1")
	pf, ok := err.(*coreerr.PlatformFailure)
	if !ok {
		t.Fatalf("expected *coreerr.PlatformFailure, got %T: %v", err, err)
	}
	if pf.Code != http.StatusInternalServerError {
		t.Fatalf("PlatformFailure.Code = %d, want 500", pf.Code)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("calls = %d, want 1 (no retry on 5xx)", got)
	}
}

// TestClient_cancellableBackoff asserts a caller's context cancellation
// during the backoff wait returns ctx.Err() immediately instead of blocking
// out the full sleep.
func TestClient_cancellableBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	client := NewClient(testCreds(), WithBaseURL(srv.URL))

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := client.SetInventory(ctx, "SKU1", 10)
	elapsed := time.Since(start)
	if err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if elapsed > time.Second {
		t.Fatalf("cancellation took %v, want well under the full backoff chain", elapsed)
	}
}

func TestClient_nonRetryable4xxFailsWithoutRetrying(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewClient(testCreds(), WithBaseURL(srv.URL))
	err := client.ConfirmOrder(context.Background(), "O1")
	if _, ok := err.(*coreerr.PlatformFailure); !ok {
		t.Fatalf("expected *coreerr.PlatformFailure, got %T: %v", err, err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("calls = %d, want 1 (no retry on a 4xx other than 429)", got)
	}
}
