// Package factory constructs the configured storage backend.
package factory

import (
	"fmt"
	"log/slog"

	"github.com/logpeak/logpeak/internal/store"
	"github.com/logpeak/logpeak/internal/store/memory"
	"github.com/logpeak/logpeak/internal/store/postgres"
)

// Open creates a store.Store for the named driver. The DSN is only used
// by the postgres driver.
func Open(driverName, dsn string, logger *slog.Logger) (store.Store, error) {
	driver, err := store.ParseDriver(driverName)
	if err != nil {
		return nil, err
	}

	switch driver {
	case store.DriverMemory:
		logger.Warn("using in-memory store, data will not survive restarts")
		return memory.New(), nil
	case store.DriverPostgres:
		return postgres.NewPostgresStore(postgres.DefaultConfig(dsn), logger)
	default:
		return nil, fmt.Errorf("unhandled store driver %q", driver)
	}
}
