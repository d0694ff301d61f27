package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runContract exercises the behaviour every backend must share.
func runContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("miss is not an error", func(t *testing.T) {
		v, ok, err := s.Get(ctx, "absent")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, v)
	})

	t.Run("set then get", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, "ezan_app_settings", `{"volume":0.8}`))
		v, ok, err := s.Get(ctx, "ezan_app_settings")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, `{"volume":0.8}`, v)
	})

	t.Run("set overwrites", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, "k", "one"))
		require.NoError(t, s.Set(ctx, "k", "two"))
		v, _, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "two", v)
	})

	t.Run("remove", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, "gone", "x"))
		require.NoError(t, s.Remove(ctx, "gone"))
		_, ok, err := s.Get(ctx, "gone")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("remove missing key", func(t *testing.T) {
		assert.NoError(t, s.Remove(ctx, "never-set"))
	})

	t.Run("unicode value", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, "city", "Şanlıurfa"))
		v, _, err := s.Get(ctx, "city")
		require.NoError(t, err)
		assert.Equal(t, "Şanlıurfa", v)
	})

	t.Run("concurrent writers", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, s.Set(ctx, "shared", strings.Repeat("x", 64)))
			}()
		}
		wg.Wait()
		v, ok, err := s.Get(ctx, "shared")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Len(t, v, 64)
	})
}

func TestMemory(t *testing.T) {
	runContract(t, NewMemory())
}

func TestFile(t *testing.T) {
	s, err := NewFile(filepath.Join(t.TempDir(), "nested", "store"))
	require.NoError(t, err)
	runContract(t, s)
}

func TestFile_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFile(dir)
	require.NoError(t, err)

	require.NoError(t, s.Set(context.Background(), "a/b", "value"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a%2Fb.json", entries[0].Name())
}

func TestFile_PersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	s1, err := NewFile(dir)
	require.NoError(t, err)
	require.NoError(t, s1.Set(context.Background(), "k", "v"))

	s2, err := NewFile(dir)
	require.NoError(t, err)
	v, ok, err := s2.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestFile_CancelledContext(t *testing.T) {
	s, err := NewFile(t.TempDir())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, s.Set(ctx, "k", "v"))
}

func TestSQLite(t *testing.T) {
	s, err := NewSQLite(filepath.Join(t.TempDir(), "ezan.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	runContract(t, s)
}

func TestSQLite_PersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ezan.db")
	s1, err := NewSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s1.Set(context.Background(), "k", "v"))
	require.NoError(t, s1.Close())

	s2, err := NewSQLite(path)
	require.NoError(t, err)
	defer s2.Close()
	v, ok, err := s2.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}

// TestRedis runs against a real server when EZAN_TEST_REDIS_ADDR is set.
func TestRedis(t *testing.T) {
	addr := os.Getenv("EZAN_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("EZAN_TEST_REDIS_ADDR not set")
	}
	s, err := NewRedis(context.Background(), RedisOptions{Addr: addr, Prefix: "ezan-test:"})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	runContract(t, s)
}

func TestRedis_KeyPrefix(t *testing.T) {
	s := &Redis{prefix: "ezan:"}
	assert.Equal(t, "ezan:ezan_app_settings", s.key("ezan_app_settings"))
}

func TestRedis_UnreachableServer(t *testing.T) {
	_, err := NewRedis(context.Background(), RedisOptions{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}
