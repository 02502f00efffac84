package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/gantry/pkg/activity"
	"github.com/platinummonkey/gantry/pkg/api"
	"github.com/platinummonkey/gantry/pkg/config"
	"github.com/platinummonkey/gantry/pkg/feed"
	"github.com/platinummonkey/gantry/pkg/gateway"
	"github.com/platinummonkey/gantry/pkg/idp"
	"github.com/platinummonkey/gantry/pkg/observability"
	"github.com/platinummonkey/gantry/pkg/report"
	"github.com/platinummonkey/gantry/pkg/store"
	"github.com/platinummonkey/gantry/pkg/workflow"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		os.Stderr.WriteString("gantry: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogJSON)

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(nil)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	// Record store gateway
	executor := store.NewHTTPExecutor(cfg.Store.Endpoint, cfg.Store.Token, cfg.Store.Timeout)
	gw := store.NewGateway(executor, log)

	// Feed reconciliation
	engine := feed.NewEngine(feed.DefaultRegistry(), gw, metrics, log)

	// Identity provider clients
	discovery, err := idp.NewDiscoveryClient(redisClient, cfg.IDP.DiscoveryTTL, metrics, log)
	if err != nil {
		log.WithError(err).Fatal("failed to build discovery client")
	}
	registrar := idp.NewRegistrationService(discovery, log)
	tokens := idp.NewTokenService(discovery, redisClient, log)

	// Gateway admin API
	admin := gateway.NewAdminClient(cfg.Gateway.AdminURL, log)

	// Workflow engine
	recorder := activity.NewRecorder(gw, log)
	records := workflow.NewStore(gw, log)
	workflows := workflow.NewService(records, registrar, tokens, discovery, admin, recorder, metrics, log)

	// Namespace report
	workbook := report.NewWorkbookService(records, log)

	server := api.NewServer(engine, workflows, records, workbook, metrics, log)

	addr := net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.WithField("addr", addr).Info("gantry listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Info("shutting down gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.WithError(err).Error("shutdown did not complete cleanly")
	}
	log.Info("gantry stopped")
}
