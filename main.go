// main.go
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pubnub "github.com/pubnub/go"
	"github.com/redis/go-redis/v9"

	"queue-system/config"
	"queue-system/handlers"
	"queue-system/monitoring"
	"queue-system/realtime"
	"queue-system/services"
	"queue-system/utils"
)

func main() {
	// Load configuration
	cfg := config.LoadConfig()
	log.Printf("Starting queue engine for clinic %s", cfg.ClinicID)

	// Remote replicated store (optional)
	var remoteClient *redis.Client
	if cfg.RemoteEnable {
		remoteClient = utils.NewRemoteClient(cfg.RemoteURL, cfg.RemotePassword, cfg.RemoteDB)
		defer remoteClient.Close()
	} else {
		log.Println("Remote store sync disabled (REMOTE_ENABLE not set)")
	}

	// PubNub device channel (optional)
	var pn *pubnub.PubNub
	if cfg.PubNubSubscribeKey != "" {
		pnConfig := pubnub.NewConfig()
		pnConfig.PublishKey = cfg.PubNubPublishKey
		pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
		pnConfig.SecretKey = cfg.PubNubSecretKey
		pn = pubnub.NewPubNub(pnConfig)
		log.Printf("Device channel enabled on topic prefix %s", cfg.DeviceTopicPrefix)
	} else {
		log.Println("Device channel disabled (no PubNub keys)")
	}

	// Initialize services
	estimator := services.NewEstimator(cfg)
	ledger, err := services.NewLedger(cfg, estimator)
	if err != nil {
		log.Fatalf("Failed to open ledger: %v", err)
	}

	monitor := monitoring.NewMonitor(ledger, estimator)
	hub := realtime.NewHub()

	syncService := services.NewSyncService(remoteClient, ledger, estimator, monitor, cfg)
	broadcaster := services.NewBroadcaster(ledger, estimator, hub, pn, monitor, cfg)
	queueService := services.NewQueueService(ledger, estimator, syncService, broadcaster, services.LogNotifier{}, monitor)
	pairingService := services.NewPairingService(hub, queueService, monitor, cfg)

	// Initialize handlers
	queueHandler := handlers.NewQueueHandler(queueService, cfg)
	adminHandler := handlers.NewAdminHandler(queueService, hub, remoteClient, cfg)
	wsHandler := handlers.NewWSHandler(hub, queueService, pairingService)

	// Background tasks stop when a shutdown signal arrives.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start background tasks
	go queueService.RunPoller(ctx, cfg.PollInterval)
	go monitor.Collect(ctx, 30*time.Second)
	broadcaster.BridgeDeviceMessages(ctx)

	if cfg.EnableMetrics {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			log.Printf("Metrics listening on :%s", cfg.MetricsPort)
			if err := http.ListenAndServe(":"+cfg.MetricsPort, mux); err != nil {
				log.Printf("Metrics server stopped: %v", err)
			}
		}()
	}

	// Register routes
	e := echo.New()

	e.GET("/api/queue", queueHandler.GetQueue)
	e.POST("/api/take", queueHandler.TakeToken)
	e.POST("/api/cancel", queueHandler.Cancel)
	e.POST("/api/arrive", queueHandler.Arrive)
	e.GET("/api/eta", queueHandler.ETA)

	e.POST("/api/admin_action", adminHandler.AdminAction)
	e.POST("/api/reset", adminHandler.Reset)
	e.POST("/api/sync_from_remote", adminHandler.SyncFromRemote)
	e.POST("/remote_webhook", adminHandler.RemoteWebhook)
	e.GET("/api/kiosks", adminHandler.Kiosks)
	e.GET("/api/debug", adminHandler.Debug)
	e.GET("/health", adminHandler.Health)

	e.GET("/ws", wsHandler.Serve)

	log.Println("Server routes registered")

	// Start server; the signal context drains connections gracefully.
	sc := echo.StartConfig{
		Address:         ":" + cfg.Port,
		GracefulContext: ctx,
		GracefulTimeout: 10 * time.Second,
	}
	if err := sc.Start(e); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
	log.Println("Server stopped")
}
