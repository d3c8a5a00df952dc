package storage

import (
	"path/filepath"
	"testing"

	"github.com/LENAX/pipeline-engine/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStore_SQLite(t *testing.T) {
	store, err := NewStore("sqlite", filepath.Join(t.TempDir(), "factory.db"), PoolOptions{MaxOpenConns: 20})
	require.NoError(t, err)
	assert.NoError(t, store.Close())
}

func TestNewStore_UnsupportedType(t *testing.T) {
	_, err := NewStore("oracle", "dsn", PoolOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConfiguration))
	assert.Contains(t, errors.FlattenHints(err), "sqlite, mysql, postgres")
}

func TestIsSupported(t *testing.T) {
	for _, name := range []string{"", "sqlite", "SQLite3", "mysql", "postgresql"} {
		assert.True(t, IsSupported(name), name)
	}
	assert.False(t, IsSupported("mongodb"))
}
