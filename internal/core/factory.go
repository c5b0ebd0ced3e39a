package core

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/panjf2000/ants/v2"
	"github.com/secure-banking-ledger/internal/audit"
	"github.com/secure-banking-ledger/internal/authn"
	"github.com/secure-banking-ledger/internal/config"
	"github.com/secure-banking-ledger/internal/crypto"
	"github.com/secure-banking-ledger/internal/data/postgres"
	"github.com/secure-banking-ledger/internal/domain/account"
	"github.com/secure-banking-ledger/internal/domain/auditevent"
	"github.com/secure-banking-ledger/internal/domain/ledger"
	"github.com/secure-banking-ledger/internal/platform/persistence"
	"github.com/secure-banking-ledger/internal/securestore"
)

// Backend is the storage the core runs on
type Backend struct {
	Accounts    account.Repository
	Ledger      ledger.Repository
	AuditEvents auditevent.Repository
	UnitOfWork  securestore.UnitOfWork
}

// Open connects to PostgreSQL (applying migrations), loads or creates the
// key file and assembles the core.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Core, error) {
	db, err := persistence.NewPostgresDB(ctx, logger, &cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}

	accountRepo := postgres.NewAccountRepository(logger, db)
	ledgerRepo := postgres.NewTransactionRepository(logger, db)
	backend := Backend{
		Accounts:    accountRepo,
		Ledger:      ledgerRepo,
		AuditEvents: postgres.NewAuditRepository(logger, db),
		UnitOfWork:  postgres.NewUnitOfWork(db, accountRepo, ledgerRepo),
	}

	c, err := Assemble(cfg, logger, crypto.NewFileKeyStore(cfg.Crypto.KeyFilePath), backend)
	if err != nil {
		db.Close()
		return nil, err
	}
	c.closers = append([]func(){db.Close}, c.closers...)
	return c, nil
}

// Assemble builds the core over an already opened backend.
func Assemble(cfg *config.Config, logger *slog.Logger, keys crypto.KeyStore, backend Backend) (*Core, error) {
	cryptoService, err := crypto.NewService(keys, crypto.Options{
		PBKDF2Iterations: cfg.Crypto.PBKDF2Iterations,
		MaxAmount:        cfg.Security.MaxTransactionAmount,
	})
	if err != nil {
		return nil, err
	}

	c := &Core{crypto: cryptoService, logger: logger}

	auditLogger, err := c.buildAuditLogger(cfg, logger.With("component", "audit"), backend.AuditEvents)
	if err != nil {
		c.Close()
		return nil, err
	}

	c.store = securestore.New(
		backend.Accounts,
		backend.Ledger,
		backend.UnitOfWork,
		cryptoService,
		auditLogger,
		logger.With("component", "secure_store"),
		securestore.Options{MinPasswordLength: cfg.Security.MinPasswordLength},
	)
	c.auth = authn.NewEngine(c.store, cryptoService, auditLogger, logger.With("component", "authn"))
	c.admin = authn.NewAdminGate(cfg.Security.AdminPasswordHash, cfg.Security.AdminPasswordSalt, cryptoService, auditLogger)

	logger.Info("Core assembled",
		"audit_log", cfg.Audit.LogPath,
		"audit_workers", cfg.Audit.WorkerPoolSize,
		"admin_configured", c.admin.Configured(),
	)
	return c, nil
}

// buildAuditLogger writes the line log synchronously and the audit_events
// rows on a worker pool.
func (c *Core) buildAuditLogger(cfg *config.Config, logger *slog.Logger, events auditevent.Repository) (*audit.Logger, error) {
	fileSink, err := audit.OpenFileSink(cfg.Audit.LogPath)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, func() {
		if err := fileSink.Close(); err != nil {
			logger.Error("Failed to close audit log", "error", err)
		}
	})

	var pool *ants.Pool
	if cfg.Audit.WorkerPoolSize > 0 {
		pool, err = ants.NewPool(cfg.Audit.WorkerPoolSize)
		if err != nil {
			logger.Error("Failed to create audit worker pool, writing inline", "error", err)
			pool = nil
		}
	}

	auditLogger := audit.NewLogger(logger, pool).AddSink(fileSink)
	if events != nil {
		auditLogger.AddAsyncSink(audit.NewRepositorySink(events))
	}

	c.closers = append(c.closers, func() {
		auditLogger.Flush()
		if pool != nil {
			pool.Release()
		}
	})
	return auditLogger, nil
}
