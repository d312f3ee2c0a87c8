package postgres

import (
	"context"
	"fmt"
	"io/fs"
	"sort"

	"github.com/gamassss/shortlink/migrations"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Migrate applies every embedded up migration in file name order. The
// statements are idempotent, so running it on each start is safe.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	names, err := fs.Glob(migrations.FS, "*.up.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)

	for _, name := range names {
		sql, err := fs.ReadFile(migrations.FS, name)
		if err != nil {
			return err
		}
		if _, err := db.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
	}

	return nil
}
