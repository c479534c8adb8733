package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	commonsHttp "github.com/omniful/go_commons/http"
	logger "github.com/omniful/go_commons/log"
	"github.com/omniful/inventory-reconciler/internal/config"
	"github.com/omniful/inventory-reconciler/internal/inventory"
	"github.com/omniful/inventory-reconciler/internal/platform"
	"github.com/omniful/inventory-reconciler/internal/poller"
	"github.com/omniful/inventory-reconciler/internal/retry"
	"github.com/omniful/inventory-reconciler/internal/store"
	"github.com/omniful/inventory-reconciler/internal/sync"
	"github.com/omniful/inventory-reconciler/pkg/constants"
)

const rakutenPlatformType = "rakuten"

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("Failed to load config: " + err.Error())
		os.Exit(1)
	}

	if err := config.InitDB(cfg); err != nil {
		logger.Error("Failed to initialize database: " + err.Error())
		os.Exit(1)
	} else {
		logger.Info("Database initialized successfully")
	}

	redisClient := initializeRedis(cfg)

	// Repositories
	skuRepo := store.NewSkuRepository(config.DBCluster, redisClient)
	storeRepo := store.NewStoreRepository(config.DBCluster, redisClient)
	storeSkuRepo := store.NewStoreSkuRepository(config.DBCluster)
	eventRepo := store.NewEventRepository(config.DBCluster)
	snapshotRepo := store.NewSnapshotRepository(config.DBCluster)
	retryRepo := store.NewRetryQueueRepository(config.DBCluster)

	// Services
	inventoryService := inventory.NewService(config.DBCluster, skuRepo, storeRepo, storeSkuRepo, eventRepo, snapshotRepo)
	retryQueue := retry.NewQueue(config.DBCluster, retryRepo, storeRepo, inventoryService, cfg.Platform.ProxyURL, cfg.Platform.DefaultServiceSecret, cfg.Platform.DefaultLicenseKey)
	orderPoller := poller.NewPoller(config.DBCluster, storeRepo, inventoryService, retryQueue, cfg.Poller.WindowSize, cfg.Platform.ProxyURL, cfg.Platform.DefaultServiceSecret, cfg.Platform.DefaultLicenseKey)
	synchronizer := sync.NewSynchronizer(inventoryService, cfg.Poller.SyncConcurrency, cfg.Platform.ProxyURL, cfg.Platform.DefaultServiceSecret, cfg.Platform.DefaultLicenseKey)

	server := commonsHttp.InitializeServer(
		cfg.Server.Port,
		10*time.Second,
		10*time.Second,
		70*time.Second,
		false,
	)

	server.GET(constants.EndpointHealth, func(c *gin.Context) {
		redisStatus := "disconnected"
		if redisClient != nil {
			if _, err := redisClient.Ping(c.Request.Context()).Result(); err == nil {
				redisStatus = "connected"
			}
		}
		dbStatus := "disconnected"
		if config.DBCluster != nil {
			dbStatus = "connected"
		}
		c.JSON(200, gin.H{
			"status":    "healthy",
			"service":   "inventory-reconciler",
			"timestamp": time.Now().Format(time.RFC3339),
			"redis":     redisStatus,
			"database":  dbStatus,
		})
	})

	// Manual push-sync trigger: lets operators force a re-push for one SKU
	// without waiting for the next scheduled cycle.
	server.POST("/sync/sku/:sku_id", func(c *gin.Context) {
		skuID := c.Param("sku_id")
		results := synchronizer.SyncSkuToAllStores(c.Request.Context(), skuID)
		c.JSON(200, gin.H{"sku_id": skuID, "results": results})
	})

	// Admin reset: wipes a SKU's event history, snapshot and store
	// registrations and re-seeds it at zero. Used to retire a SKU that was
	// onboarded incorrectly without leaving its prior accumulator state
	// around to confuse the next reconciliation pass.
	server.POST("/admin/sku/:sku_id/reset", func(c *gin.Context) {
		skuID := c.Param("sku_id")
		var body struct {
			Operator string `json:"operator"`
			Reason   string `json:"reason"`
		}
		_ = c.ShouldBindJSON(&body)
		if body.Operator == "" {
			body.Operator = "admin"
		}
		if err := inventoryService.ResetSku(c.Request.Context(), skuID, body.Operator, body.Reason); err != nil {
			c.JSON(500, gin.H{"sku_id": skuID, "error": err.Error()})
			return
		}
		c.JSON(200, gin.H{"sku_id": skuID, "status": "reset"})
	})

	printRoutes(server.Engine)

	go func() {
		if err := server.StartServer("inventory-reconciler"); err != nil {
			logger.Error("Failed to start server: " + err.Error())
			os.Exit(1)
		}
	}()

	schedulerCtx, cancelScheduler := context.WithCancel(context.Background())
	go runPollLoop(schedulerCtx, orderPoller, cfg.Poller.PollInterval)
	go runCredentialProbeLoop(schedulerCtx, storeRepo, cfg)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	cancelScheduler()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown: ", err)
		os.Exit(1)
	}

	logger.Info("Server exiting")
}

// runPollLoop ticks PollAllStores on cfg.Poller.PollInterval, draining the
// retry queue on every tick (PollAllStores already does this at the end of
// its own pass).
func runPollLoop(ctx context.Context, p poller.Poller, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			processed, err, retryResult := p.PollAllStores(ctx, rakutenPlatformType)
			if err != nil {
				logger.Error("poll cycle completed with errors: " + err.Error())
			}
			logger.Info(fmt.Sprintf("poll cycle: processed=%d retry_processed=%d retry_total=%d",
				processed, retryResult.Processed, retryResult.Total))
		}
	}
}

// runCredentialProbeLoop periodically calls TestAuth for every active store
// so an expiring license key surfaces as a log line well before a poll cycle
// silently stalls on 401s.
func runCredentialProbeLoop(ctx context.Context, stores store.StoreRepository, cfg *config.Config) {
	interval := cfg.Poller.CredentialProbeInterval
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			active, err := stores.ListActiveByPlatformType(ctx, rakutenPlatformType)
			if err != nil {
				logger.Error("credential probe: list active stores: " + err.Error())
				continue
			}
			for _, s := range active {
				creds, err := platform.CredentialsFromAPIConfig(s.APIConfig, cfg.Platform.DefaultServiceSecret, cfg.Platform.DefaultLicenseKey, s.StoreID)
				if err != nil {
					logger.Error(fmt.Sprintf("credential probe: store %s: %v", s.StoreID, err))
					continue
				}
				client := platform.NewClient(creds, platform.WithProxy(cfg.Platform.ProxyURL))
				valid, err := client.TestAuth(ctx)
				switch {
				case err != nil:
					logger.Error(fmt.Sprintf("credential probe: store %s: %v", s.StoreID, err))
				case !valid:
					logger.Error(fmt.Sprintf("credential probe: store %s credentials are expired", s.StoreID))
				}
			}
		}
	}
}

func printRoutes(router *gin.Engine) {
	fmt.Println("\n=== Registered Routes ===")
	for _, route := range router.Routes() {
		fmt.Printf("%s\t%s\t-> %s\n", route.Method, route.Path, route.Handler)
	}
	fmt.Println("========================")
}

func initializeRedis(cfg *config.Config) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	if _, err := client.Ping(context.Background()).Result(); err != nil {
		logger.Error("Failed to connect to Redis: " + err.Error())
		return nil
	}

	logger.Info("Successfully connected to Redis")
	return client
}
