// Package db selects the database driver from the daemon profile.
package db

import (
	"github.com/pkg/errors"

	"github.com/paperlens/paperlens/internal/profile"
	"github.com/paperlens/paperlens/store"
	"github.com/paperlens/paperlens/store/db/sqlite"
)

// NewDBDriver creates new db driver based on profile. The daemon is
// local-first, so SQLite is the only supported driver.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	var driver store.Driver
	var err error

	switch profile.Driver {
	case "sqlite":
		driver, err = sqlite.NewDB(profile)
	default:
		return nil, errors.Errorf("unknown db driver: %s (only 'sqlite' is supported)", profile.Driver)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to create db driver")
	}
	return driver, nil
}
