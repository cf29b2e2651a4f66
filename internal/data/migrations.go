package data

import (
	"context"
	"database/sql"

	"github.com/target/runboard/internal/migrate"
)

// RunMigrations applies the postgres store schema by delegating to the migrate package.
// It returns the number of migrations applied.
func RunMigrations(ctx context.Context, db *sql.DB) (int, error) {
	return migrate.Run(ctx, db)
}
