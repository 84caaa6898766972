package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"blockfrost-proxy/pkg/auditlog"
	"blockfrost-proxy/pkg/cache"
	"blockfrost-proxy/pkg/config"
	"blockfrost-proxy/pkg/logging"
	"blockfrost-proxy/pkg/pattern"
	"blockfrost-proxy/pkg/proxy"
	"blockfrost-proxy/pkg/ratelimit"
	"blockfrost-proxy/pkg/rules"
	"blockfrost-proxy/pkg/staticoverlay"
	"blockfrost-proxy/pkg/telemetry"
	"blockfrost-proxy/pkg/tenant"
	"blockfrost-proxy/pkg/tier"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	logging.SetGlobal(logger)

	logger.Info("blockfrost-proxy starting", "namespace", cfg.ProxyNamespace)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	roster := tenant.NewRoster()
	tenantSource := tenant.NewChannelSource(1)
	tenantWatcher := tenant.NewWatcher(tenantSource, roster, logger)
	go func() {
		if err := tenantWatcher.Start(ctx); err != nil && err != context.Canceled {
			logger.Error("tenant watcher stopped", "error", err)
		}
	}()

	tiers := tier.NewTable()
	tierWatcher := tier.NewWatcher(cfg.TiersPath, time.Duration(cfg.TiersPollInterval)*time.Second, tiers, logger)
	if err := tierWatcher.LoadOnce(); err != nil {
		logger.Error("failed to load tier table", "error", err)
		os.Exit(1)
	}
	go func() {
		if err := tierWatcher.Start(ctx); err != nil && err != context.Canceled {
			logger.Error("tier watcher stopped", "error", err)
		}
	}()

	ruleList := rules.NewList()
	ruleWatcher, err := rules.NewWatcher(cfg.CacheRulesPath, ruleList, logger)
	if err != nil {
		logger.Error("failed to initialize cache rule watcher", "error", err)
		os.Exit(1)
	}
	defer ruleWatcher.Close()
	go func() {
		if err := ruleWatcher.Start(ctx); err != nil && err != context.Canceled {
			logger.Error("cache rule watcher stopped", "error", err)
		}
	}()

	forbidden, err := pattern.NewList(cfg.ForbiddenEndpoints)
	if err != nil {
		logger.Error("failed to compile forbidden endpoint patterns", "error", err)
		os.Exit(1)
	}

	dolos, err := pattern.NewList(cfg.Dolos.Endpoints)
	if err != nil {
		logger.Error("failed to compile Dolos endpoint patterns", "error", err)
		os.Exit(1)
	}

	limiter := ratelimit.NewManager(tiers)

	store, err := cache.Open(cfg.CacheDBPath, cfg.CacheMaxSizeBytes, logger)
	if err != nil {
		logger.Error("failed to open response cache", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	registry := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(registry)
	metricsServer := telemetry.NewServer(cfg.PrometheusAddr, registry, logger)
	go metricsServer.Start()

	overlay, err := staticoverlay.Load()
	if err != nil {
		logger.Error("failed to load static overlay payload", "error", err)
		os.Exit(1)
	}

	var auditLog *auditlog.Log
	if cfg.AuditLogPath != "" {
		auditLog, err = auditlog.Open(cfg.AuditLogPath, logger)
		if err != nil {
			logger.Error("failed to open audit log", "error", err)
			os.Exit(1)
		}
		defer auditLog.Close()
	}

	pipeline := proxy.New(proxy.Config{
		Static:    cfg,
		Roster:    roster,
		Tiers:     tiers,
		Rules:     ruleList,
		Forbidden: forbidden,
		Dolos:     dolos,
		Limiter:   limiter,
		Cache:     store,
		Metrics:   metrics,
		Overlay:   overlay,
		AuditLog:  auditLog,
		Logger:    logger,
	})

	server := &http.Server{
		Addr:              cfg.ProxyAddr,
		Handler:           pipeline,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("proxy listening", "addr", cfg.ProxyAddr)
		if err := server.ListenAndServeTLS(cfg.SSLCrtPath, cfg.SSLKeyPath); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("proxy server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("error during proxy server shutdown", "error", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("error during metrics server shutdown", "error", err)
	}

	logger.Info("blockfrost-proxy stopped")
}
