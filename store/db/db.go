package db

import (
	"github.com/pkg/errors"

	"github.com/hrygo/xflo/internal/profile"
	"github.com/hrygo/xflo/store"
	"github.com/hrygo/xflo/store/db/postgres"
	"github.com/hrygo/xflo/store/db/sqlite"
)

// NewDBDriver creates the persistence driver named by profile.Driver.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	var driver store.Driver
	var err error

	switch profile.Driver {
	case "sqlite":
		driver, err = sqlite.NewDB(profile)
	case "postgres":
		driver, err = postgres.NewDB(profile)
	case "memory":
		driver = store.NewMemoryDriver()
	default:
		return nil, errors.Errorf("unknown db driver: %s", profile.Driver)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to create db driver")
	}
	return driver, nil
}
