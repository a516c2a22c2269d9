// Package main is the entry point for the artnode daemon.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/openlumen/artnode/internal/api"
	"github.com/openlumen/artnode/internal/config"
	"github.com/openlumen/artnode/internal/database"
	"github.com/openlumen/artnode/internal/database/repositories"
	"github.com/openlumen/artnode/internal/logger"
	"github.com/openlumen/artnode/internal/services/dmx"
	"github.com/openlumen/artnode/internal/services/endpoint"
	"github.com/openlumen/artnode/internal/services/fade"
	"github.com/openlumen/artnode/internal/services/network"
	"github.com/openlumen/artnode/internal/services/pubsub"
	"github.com/openlumen/artnode/internal/services/registry"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Load .env file if present
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}

	api.Version = Version
	printBanner(cfg)

	db, err := database.Connect(database.Config{
		URL:   cfg.DatabaseURL,
		Debug: cfg.IsDevelopment(),
	})
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	defer func() { _ = database.Close(db) }()

	nodeRepo := repositories.NewNodeRepository(db)
	settingRepo := repositories.NewSettingRepository(db)

	// Fill in the network settings the environment left blank: a saved
	// broadcast address wins, then interface auto-detection.
	if cfg.BroadcastAddr == "" {
		if saved, err := settingRepo.FindByKey(context.Background(), "artnet_broadcast_address"); err == nil && saved != nil && saved.Value != "" {
			log.WithField("address", saved.Value).Info("using saved broadcast address")
			cfg.BroadcastAddr = saved.Value
		}
	}
	if cfg.BroadcastAddr == "" && cfg.SubnetPrefix == "" {
		opt := network.Detect()
		cfg.BroadcastAddr = opt.Broadcast
		cfg.SubnetPrefix = opt.Prefix
		log.WithFields(logrus.Fields{
			"interface": opt.Interface,
			"broadcast": opt.Broadcast,
		}).Info("auto-detected network")
	}

	ep := endpoint.New(endpoint.Config{
		BindAddr:      cfg.BindAddr,
		Port:          cfg.Port,
		BroadcastAddr: cfg.BroadcastAddr,
		SubnetPrefix:  cfg.SubnetPrefix,
		PollInterval:  cfg.PollInterval(),
	}, log.WithField("component", "endpoint"))
	if err := ep.Bind(); err != nil {
		log.WithError(err).Fatal("failed to bind Art-Net endpoint")
	}
	log.WithField("addr", ep.LocalAddr().String()).Info("Art-Net endpoint listening")

	ps := pubsub.New()

	reg := registry.NewService(ep, nodeRepo, ps, log.WithField("component", "registry"))
	reg.Start()

	tx := dmx.NewTransmitter(ep, log.WithField("component", "dmx"), dmx.TransmitterConfig{
		Universe:   uint16(cfg.Universe),
		ActiveHz:   cfg.ActiveRateHz,
		IdleHz:     cfg.IdleRateHz,
		ActiveHold: 2 * time.Second,
	})
	tx.Start()

	fadeEngine := fade.NewEngine(tx)
	fadeEngine.Start()

	server := api.NewServer(tx, fadeEngine, reg, nodeRepo, ps,
		log.WithField("component", "api"), api.Config{
			CORSOrigin:  cfg.CORSOrigin,
			Development: cfg.IsDevelopment(),
		})

	httpServer := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithField("addr", httpServer.Addr).Info("HTTP API listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("http server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.WithError(err).Error("http server shutdown error")
	}

	// Stop services in reverse start order.
	fadeEngine.Stop()
	tx.Stop()
	reg.Stop()
	ep.Close()
	ps.Close()

	log.Info("stopped")
}

// printBanner prints the startup banner.
func printBanner(cfg *config.Config) {
	fmt.Println("============================================")
	fmt.Println("  artnode daemon")
	fmt.Printf("  Version: %s\n", Version)
	fmt.Printf("  Build:   %s\n", BuildTime)
	fmt.Printf("  Commit:  %s\n", GitCommit)
	fmt.Println("============================================")
	fmt.Printf("  Environment: %s\n", cfg.Env)
	fmt.Printf("  HTTP port:   %s\n", cfg.HTTPPort)
	fmt.Printf("  Art-Net:     :%d universe %d\n", cfg.Port, cfg.Universe)
	fmt.Printf("  Database:    %s\n", cfg.DatabaseURL)
	fmt.Println("============================================")
}
