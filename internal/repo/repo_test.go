package repo_test

import (
	"errors"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-maplefresh/internal/repo"
)

func TestMigrationURL(t *testing.T) {
	require.Equal(t, "pgx5://u:p@db:5432/maplefresh?sslmode=disable", repo.MigrationURL("postgres://u:p@db:5432/maplefresh?sslmode=disable"))
	require.Equal(t, "pgx5://db/maplefresh", repo.MigrationURL("postgresql://db/maplefresh"))
	require.Equal(t, "pgx5://db/maplefresh", repo.MigrationURL("pgx5://db/maplefresh"))
}

func TestMigrationSourceEmbedsInitialSchema(t *testing.T) {
	src, err := repo.MigrationSource()
	require.NoError(t, err)
	t.Cleanup(func() { _ = src.Close() })

	first, err := src.First()
	require.NoError(t, err)
	require.Equal(t, uint(1), first)

	up, ident, err := src.ReadUp(first)
	require.NoError(t, err)
	defer up.Close()
	require.Equal(t, "init", ident)
	body, err := io.ReadAll(up)
	require.NoError(t, err)
	for _, table := range []string{"customers", "quotes", "bookings", "service_providers", "payments", "domain_events"} {
		require.Contains(t, string(body), "CREATE TABLE IF NOT EXISTS "+table)
	}

	down, _, err := src.ReadDown(first)
	require.NoError(t, err)
	require.NoError(t, down.Close())

	_, err = src.Next(first)
	require.True(t, errors.Is(err, os.ErrNotExist))
}
