package store

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"
)

// Migrate brings the database schema up to date. The schema is idempotent, so
// migration runs unconditionally at startup.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.driver.Migrate(ctx); err != nil {
		return errors.Wrap(err, "failed to migrate database")
	}
	slog.Info("database schema up to date", slog.String("driver", s.profile.Driver))
	return nil
}
