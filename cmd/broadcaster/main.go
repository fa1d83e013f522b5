package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aaronwang/collectible-market/internal/aptos"
	"github.com/aaronwang/collectible-market/internal/auction"
	"github.com/aaronwang/collectible-market/internal/cache"
	"github.com/aaronwang/collectible-market/internal/config"
	"github.com/aaronwang/collectible-market/internal/market"
	"github.com/aaronwang/collectible-market/internal/ws"
)

func main() {
	logrus.Info("Starting Auction Broadcaster...")

	cfg := loadConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logrus.Infof("Connecting to Redis at %s...", cfg.RedisAddr)
	subscriber, err := cache.NewSubscriber(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logrus.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer subscriber.Close()

	subscriber.SubscribeAll(ctx)
	logrus.Info("Subscribed to market events")

	manager := ws.NewManager()
	go manager.Run()

	// The watcher emits auction countdowns straight into the fan-out.
	// The coordinator needs no write path here: the broadcaster only
	// observes.
	chain := aptos.NewClient(cfg.FullnodeURL)
	queries := market.NewQueryClient(chain, cfg.MarketplaceAddr)
	coordinator := auction.NewCoordinator(queries, nil)
	watcher := auction.NewWatcher(coordinator, queries, manager.Broadcast)
	go watcher.Run(ctx)

	// Forward gateway-published events to websocket subscribers.
	messageChan := make(chan *cache.Message, 256)
	go func() {
		if err := subscriber.Listen(ctx, messageChan); err != nil && ctx.Err() == nil {
			logrus.Errorf("Redis listener error: %v", err)
		}
	}()
	go func() {
		for msg := range messageChan {
			manager.Broadcast(msg.AssetID, []byte(msg.Payload))
		}
	}()

	handler := ws.NewHandler(manager, func(assetID string) {
		trackCtx, trackCancel := context.WithTimeout(ctx, 10*time.Second)
		defer trackCancel()
		watcher.Track(trackCtx, assetID)
	})
	router := handler.SetupRoutes()

	server := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logrus.Infof("Auction Broadcaster listening on %s", cfg.ServerAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	logrus.Info("Server stopped gracefully")
}

// Config holds broadcaster configuration
type Config struct {
	ServerAddr      string
	FullnodeURL     string
	MarketplaceAddr string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
}

func loadConfig() *Config {
	return &Config{
		ServerAddr:      config.GetEnv("SERVER_ADDR", ":8081"),
		FullnodeURL:     config.MustGetEnv("FULLNODE_URL"),
		MarketplaceAddr: config.MustGetEnv("MARKETPLACE_ADDRESS"),
		RedisAddr:       config.GetEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   config.GetEnv("REDIS_PASSWORD", ""),
		RedisDB:         config.GetEnvInt("REDIS_DB", 0),
	}
}
