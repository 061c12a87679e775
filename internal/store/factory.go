package store

import "fmt"

// Driver identifies a storage backend.
type Driver string

const (
	// DriverPostgres selects the PostgreSQL backend.
	DriverPostgres Driver = "postgres"
	// DriverMemory selects the in-memory backend.
	DriverMemory Driver = "memory"
)

// ParseDriver validates a driver name from configuration.
func ParseDriver(name string) (Driver, error) {
	switch Driver(name) {
	case DriverPostgres, DriverMemory:
		return Driver(name), nil
	default:
		return "", fmt.Errorf("unknown store driver %q (want postgres or memory)", name)
	}
}
