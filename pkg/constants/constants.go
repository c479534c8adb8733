package constants

const (
	// Context keys
	ContextKeyRequestID = "request_id"

	// Error messages
	ErrInvalidRequest     = "Invalid request data"
	ErrDatabaseConnection = "Database connection error"
	ErrRedisConnection    = "Redis connection error"
	ErrInternalServer     = "Internal server error"
	ErrRecordNotFound     = "record not found"

	// Cache key templates (formatted with a single id via fmt.Sprintf)
	CacheKeySkuPrefix   = "sku:"
	CacheKeyStorePrefix = "store:"

	// Cache TTLs (in seconds)
	CacheTTLSkuInfo   = 3600 // 1 hour
	CacheTTLStoreInfo = 3600 // 1 hour

	// Platform order status codes, as returned on every order payload.
	PlatformStatusNew       = "100"
	PlatformStatusConfirmed = "300"
	PlatformStatusCancelled = "900"

	// Retry backoff
	RetryMaxAttempts      = 3
	RetryInitialDelayMins = 5

	// Order poller
	PollerBatchSize = 100

	// Pagination defaults for event-log listing
	DefaultPageSize = 50
	MaxPageSize      = 200

	// API Endpoints
	EndpointHealth = "/health"
)
