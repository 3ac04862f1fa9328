package main

import (
	"os"

	"ssogate/internal/audit"
	"ssogate/internal/config"
	"ssogate/internal/observability"
	"ssogate/internal/storage"
	pgstore "ssogate/internal/storage/postgres"
	sqlitestore "ssogate/internal/storage/sqlite"
)

// selectBackends builds the configuration store and the audit logger for the
// configured driver. SQL backends share one connection between the two; the
// store is wrapped in the read cache either way.
func selectBackends(cfg *config.Config, logger observability.Logger) (storage.IdPStore, audit.AuditLogger) {
	switch cfg.Storage.Driver {
	case "sqlite":
		st, err := sqlitestore.New(cfg.Storage.DSN)
		if err != nil {
			logger.Error("sqlite init failed", "error", err)
			os.Exit(1)
		}
		logger.Info("using sqlite store", "dsn", cfg.Storage.DSN)
		return storage.NewCachedIdPStore(st), audit.NewSQLiteAuditLoggerFromDB(st.DB())
	case "postgres":
		st, err := pgstore.New(cfg.Storage.DSN)
		if err != nil {
			logger.Error("postgres init failed", "error", err)
			os.Exit(1)
		}
		logger.Info("using postgres store")
		return storage.NewCachedIdPStore(st), audit.NewPostgresAuditLoggerFromPool(st.Pool())
	default:
		logger.Info("using in-memory store")
		return storage.NewMemoryIdPStore(), audit.NewMemoryAuditLogger()
	}
}
