package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "flowexec.db"))
	require.Nil(t, err)
	defer s.Close()

	v, err := s.Get(ctx, "/execute_log/", "missing")
	assert.Nil(t, err)
	assert.Nil(t, v)

	assert.Nil(t, s.Set(ctx, "/execute_log/", "k2", []byte("v2")))
	assert.Nil(t, s.Set(ctx, "/execute_log/", "k1", []byte("v1")))
	assert.Nil(t, s.Set(ctx, "/execute_log/", "k1", []byte("v1-updated")))

	v, err = s.Get(ctx, "/execute_log/", "k1")
	assert.Nil(t, err)
	assert.Equal(t, []byte("v1-updated"), v)

	keys := make([]string, 0)
	assert.Nil(t, s.List(ctx, "/execute_log/", func(key string) bool {
		keys = append(keys, key)
		return true
	}))
	assert.Equal(t, []string{"k1", "k2"}, keys)

	assert.Nil(t, s.Remove(ctx, "/execute_log/", "k1"))
	v, err = s.Get(ctx, "/execute_log/", "k1")
	assert.Nil(t, err)
	assert.Nil(t, v)
}

func TestSQLiteStoreReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "flowexec.db")

	s, err := NewSQLiteStore(path)
	require.Nil(t, err)
	assert.Nil(t, s.Set(ctx, "/wait_message/", "w1", []byte("payload")))
	assert.Nil(t, s.Close())

	s, err = NewSQLiteStore(path)
	require.Nil(t, err)
	defer s.Close()
	v, err := s.Get(ctx, "/wait_message/", "w1")
	assert.Nil(t, err)
	assert.Equal(t, []byte("payload"), v)
}
