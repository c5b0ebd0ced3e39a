package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/secure-banking-ledger/internal/auditrelay"
	"github.com/secure-banking-ledger/internal/config"
	"github.com/secure-banking-ledger/internal/data/mongo"
	"github.com/secure-banking-ledger/internal/data/postgres"
	"github.com/secure-banking-ledger/internal/logger"
	"github.com/secure-banking-ledger/internal/platform/messaging/producers"
	"github.com/secure-banking-ledger/internal/platform/persistence"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	cfg, err := config.LoadConfig("audit_relay")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg)

	log.Info("Starting Audit Relay",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
	)

	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}

	mongoDB, err := persistence.NewMongoDB(appCtx, log, &cfg.MongoDB)
	if err != nil {
		log.Error("Failed to initialize MongoDB", "error", err)
		postgresDB.Close()
		os.Exit(1)
	}

	archive := mongo.NewAuditArchive(log, mongoDB.Database())
	if err := archive.EnsureIndexes(appCtx); err != nil {
		log.Warn("Continuing without audit archive index", "error", err)
	}

	publisher, err := producers.NewAuditEventProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize audit Kafka producer", "error", err)
		postgresDB.Close()
		_ = mongoDB.Close(context.Background())
		os.Exit(1)
	}

	auditRepo := postgres.NewAuditRepository(log, postgresDB)
	poller := auditrelay.NewPoller(
		&cfg.Relay,
		postgres.NewAuditBatch(postgresDB, auditRepo),
		auditrelay.NewForwarder(archive, publisher, log),
		log,
	)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		poller.Start(appCtx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	<-quit
	log.Info("Shutdown signal received")

	cancelAppCtx()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	log.Info("Waiting for relay to stop...")
	wgChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(wgChan)
	}()

	select {
	case <-wgChan:
		log.Info("Relay stopped")
	case <-shutdownCtx.Done():
		log.Warn("Shutdown timeout reached, forcing exit")
	}

	var shutdownErr error
	if err := publisher.Close(); err != nil {
		log.Error("Error closing audit Kafka producer", "error", err)
		shutdownErr = err
	}

	postgresDB.Close()

	if err := mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
		shutdownErr = err
	}

	if shutdownErr != nil {
		log.Error("Audit Relay shutdown completed with errors")
		os.Exit(1)
	}
	log.Info("Audit Relay shutdown completed successfully")
}
