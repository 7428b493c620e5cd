package pg_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"testing/fstest"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/Lleewss/Biypod-merchant-v2/pkg/pg"
)

func TestErrorHelpers(t *testing.T) {
	t.Parallel()

	t.Run("not found", func(t *testing.T) {
		t.Parallel()
		assert.True(t, pg.IsNotFoundError(fmt.Errorf("query: %w", pgx.ErrNoRows)))
		assert.False(t, pg.IsNotFoundError(nil))
		assert.False(t, pg.IsNotFoundError(errors.New("boom")))
	})

	t.Run("duplicate key", func(t *testing.T) {
		t.Parallel()
		assert.True(t, pg.IsDuplicateKeyError(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
		assert.False(t, pg.IsDuplicateKeyError(&pgconn.PgError{Code: "23503"}))
		assert.False(t, pg.IsDuplicateKeyError(nil))
	})
}

func TestConnectRequiresConnectionString(t *testing.T) {
	t.Parallel()

	_, err := pg.Connect(context.Background(), pg.Config{})
	assert.ErrorIs(t, err, pg.ErrEmptyConnectionString)
}

func TestMigrateValidatesSource(t *testing.T) {
	t.Parallel()

	err := pg.Migrate(context.Background(), nil, nil, "migrations", pg.Config{}, nil)
	assert.ErrorIs(t, err, pg.ErrMigrationsNotProvided)

	err = pg.Migrate(context.Background(), nil, fstest.MapFS{}, "migrations", pg.Config{}, nil)
	assert.ErrorIs(t, err, pg.ErrMigrationsDirNotFound)
}
