package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/aaronwang/collectible-market/internal/aptos"
	"github.com/aaronwang/collectible-market/internal/auction"
	"github.com/aaronwang/collectible-market/internal/cache"
	"github.com/aaronwang/collectible-market/internal/config"
	"github.com/aaronwang/collectible-market/internal/events"
	"github.com/aaronwang/collectible-market/internal/gateway"
	"github.com/aaronwang/collectible-market/internal/market"
)

func main() {
	logrus.Info("Starting Marketplace Gateway...")

	cfg := loadConfig()

	chain := aptos.NewClient(cfg.FullnodeURL)
	signer := aptos.NewRemoteSigner(cfg.WalletAgentURL)

	queries := market.NewQueryClient(chain, cfg.MarketplaceAddr)
	writer := market.NewTxClient(chain, signer, cfg.MarketplaceAddr)
	auctions := auction.NewCoordinator(queries, writer)

	logrus.Infof("Connecting to Redis at %s...", cfg.RedisAddr)
	snapshots, err := cache.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logrus.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer snapshots.Close()

	logrus.Info("Connecting to NATS...")
	natsConn, err := nats.Connect(cfg.NatsURL)
	if err != nil {
		logrus.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer natsConn.Close()

	publisher, err := events.NewPublisher(natsConn)
	if err != nil {
		logrus.Fatalf("Failed to create event publisher: %v", err)
	}

	service := gateway.NewService(queries, writer, auctions, snapshots, publisher)
	handler := gateway.NewHandler(service)
	router := handler.SetupRoutes()

	server := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 90 * time.Second, // writes wait for transaction finality
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logrus.Infof("Marketplace Gateway listening on %s", cfg.ServerAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("Server error: %v", err)
		}
	}()

	if !queries.IsInitialized(context.Background()) {
		logrus.Warnf("Marketplace at %s is not initialized yet", cfg.MarketplaceAddr)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	logrus.Info("Server stopped gracefully")
}

// Config holds gateway configuration
type Config struct {
	ServerAddr      string
	FullnodeURL     string
	MarketplaceAddr string
	WalletAgentURL  string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	NatsURL         string
}

func loadConfig() *Config {
	return &Config{
		ServerAddr:      config.GetEnv("SERVER_ADDR", ":8080"),
		FullnodeURL:     config.MustGetEnv("FULLNODE_URL"),
		MarketplaceAddr: config.MustGetEnv("MARKETPLACE_ADDRESS"),
		WalletAgentURL:  config.GetEnv("WALLET_AGENT_URL", "http://localhost:9090/sign"),
		RedisAddr:       config.GetEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   config.GetEnv("REDIS_PASSWORD", ""),
		RedisDB:         config.GetEnvInt("REDIS_DB", 0),
		NatsURL:         config.GetEnv("NATS_URL", "nats://localhost:4222"),
	}
}
