package sql

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tempinbox/backend/internal/storage"
	"tempinbox/backend/internal/storage/storagetest"
)

func newSQLiteStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(context.Background(), DriverSQLite, ":memory:", Options{})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_Conformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		return newSQLiteStore(t)
	})
}

func TestNewStore_UnsupportedDriver(t *testing.T) {
	_, err := NewStore(context.Background(), "oracle", "", Options{})
	assert.Error(t, err)
}

func TestMigrate_Idempotent(t *testing.T) {
	store := newSQLiteStore(t)
	require.NoError(t, store.Migrate(context.Background()))
	require.NoError(t, store.Health(context.Background()))
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "CREATE TABLE x (", firstLine("CREATE TABLE x (\n id INT\n)"))
	assert.Equal(t, "SELECT 1", firstLine("SELECT 1"))
}
