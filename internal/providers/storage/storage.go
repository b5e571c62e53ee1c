package storage

import (
	"fmt"

	"github.com/GriffinCanCode/readerfleet/internal/domain/account"
)

// Store is a repository that holds resources until closed
type Store interface {
	account.Repository
	Close() error
}

// Open returns the repository named by driver
func Open(driver, dsn string) (Store, error) {
	switch driver {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite":
		return NewSQLite(dsn)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}
