package store_test

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acailic/archi-comm-sub010/pkg/recovery/store"
)

// storeFactory creates a store instance for testing.
type storeFactory func(t *testing.T) store.Store

func factories() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T) store.Store {
			return store.NewMemoryStore()
		},
		"sqlite": func(t *testing.T) store.Store {
			s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "kv.db"))
			require.NoError(t, err)
			return s
		},
		"redis": func(t *testing.T) store.Store {
			mr := miniredis.RunT(t)
			return store.NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test:")
		},
		"file": func(t *testing.T) store.Store {
			s, err := store.NewFileStore(afero.NewMemMapFs(), "/data/kv")
			require.NoError(t, err)
			return s
		},
		"namespaced": func(t *testing.T) store.Store {
			return store.WithNamespace(store.NewMemoryStore(), "ns")
		},
	}
}

func TestStoreContract(t *testing.T) {
	for name, factory := range factories() {
		storeContractTest(t, name, factory)
	}
}

// storeContractTest runs contract tests against any Store implementation.
func storeContractTest(t *testing.T, name string, factory storeFactory) {
	ctx := context.Background()

	t.Run(name+"/Set_and_Get", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		require.NoError(t, s.Set(ctx, "design/p1", []byte(`{"id":"p1"}`)))

		got, err := s.Get(ctx, "design/p1")
		require.NoError(t, err)
		assert.Equal(t, []byte(`{"id":"p1"}`), got)
	})

	t.Run(name+"/Get_NotFound", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		_, err := s.Get(ctx, "missing")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run(name+"/Set_Overwrite", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		require.NoError(t, s.Set(ctx, "k", []byte("first")))
		require.NoError(t, s.Set(ctx, "k", []byte("second")))

		got, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("second"), got)
	})

	t.Run(name+"/Remove", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		require.NoError(t, s.Set(ctx, "k", []byte("v")))
		require.NoError(t, s.Remove(ctx, "k"))
		require.NoError(t, s.Remove(ctx, "k"), "removing a missing key is not an error")

		_, err := s.Get(ctx, "k")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run(name+"/Keys_Prefix", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		require.NoError(t, s.Set(ctx, "backup/b", []byte("2")))
		require.NoError(t, s.Set(ctx, "backup/a", []byte("1")))
		require.NoError(t, s.Set(ctx, "prefs", []byte("3")))

		keys, err := s.Keys(ctx, "backup/")
		require.NoError(t, err)
		assert.Equal(t, []string{"backup/a", "backup/b"}, keys)

		all, err := s.Keys(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 3)

		none, err := s.Keys(ctx, "zzz")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run(name+"/Take_Once", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		require.NoError(t, s.Set(ctx, "flag", []byte("1")))

		var wins atomic.Int32
		var wg sync.WaitGroup
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := store.Take(ctx, s, "flag"); err == nil {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), wins.Load())
		_, err := s.Get(ctx, "flag")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run(name+"/Take_NotFound", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		_, err := store.Take(ctx, s, "missing")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run(name+"/Clear", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		require.NoError(t, s.Set(ctx, "a", []byte("1")))
		require.NoError(t, s.Set(ctx, "b/c", []byte("2")))
		require.NoError(t, store.Clear(ctx, s))

		keys, err := s.Keys(ctx, "")
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run(name+"/JSON", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		type prefs struct {
			Theme string `json:"theme"`
		}
		require.NoError(t, store.SetJSON(ctx, s, "prefs", prefs{Theme: "dark"}))

		got, err := store.GetJSON[prefs](ctx, s, "prefs")
		require.NoError(t, err)
		assert.Equal(t, "dark", got.Theme)
	})
}

func TestStoreClosed(t *testing.T) {
	ctx := context.Background()
	for name, factory := range factories() {
		if name == "namespaced" {
			continue
		}
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			require.NoError(t, s.Close())
			require.NoError(t, s.Close(), "close is idempotent")

			_, err := s.Get(ctx, "k")
			assert.ErrorIs(t, err, store.ErrStoreClosed)
			assert.ErrorIs(t, s.Set(ctx, "k", []byte("v")), store.ErrStoreClosed)
		})
	}
}

func TestMemoryStore_CopiesValues(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	buf := []byte("abc")
	require.NoError(t, s.Set(ctx, "k", buf))
	buf[0] = 'x'

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)
	assert.Equal(t, 1, s.Len())
}

func TestSQLiteStore_Persistence(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "kv.db")

	s1, err := store.NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s1.Set(ctx, "pending", []byte("design")))
	require.NoError(t, s1.Close())

	s2, err := store.NewSQLiteStore(path)
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.Get(ctx, "pending")
	require.NoError(t, err)
	assert.Equal(t, []byte("design"), got)
}

func TestSQLiteStore_InvalidPath(t *testing.T) {
	_, err := store.NewSQLiteStore("/nonexistent/path/db.sqlite")
	assert.Error(t, err)
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	fsys := afero.NewMemMapFs()

	s1, err := store.NewFileStore(fsys, "/state")
	require.NoError(t, err)
	require.NoError(t, s1.Set(ctx, "doc/current/p1", []byte("v1")))

	s2, err := store.NewFileStore(fsys, "/state")
	require.NoError(t, err)
	got, err := s2.Get(ctx, "doc/current/p1")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)

	keys, err := s2.Keys(ctx, "doc/")
	require.NoError(t, err)
	assert.Equal(t, []string{"doc/current/p1"}, keys)
}

func TestRedisStore_ClearKeepsForeignKeys(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	require.NoError(t, mr.Set("other:keep", "1"))

	s := store.NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "app:")
	defer s.Close()

	require.NoError(t, s.Set(ctx, "a", []byte("1")))
	require.NoError(t, s.Clear(ctx))

	assert.False(t, mr.Exists("app:a"))
	assert.True(t, mr.Exists("other:keep"))
}

func TestNamespaced_Isolation(t *testing.T) {
	ctx := context.Background()
	base := store.NewMemoryStore()
	autosave := store.WithNamespace(base, "autosave")
	reload := store.WithNamespace(base, "softreload")

	require.NoError(t, autosave.Set(ctx, "design", []byte("a")))
	require.NoError(t, reload.Set(ctx, "design", []byte("b")))

	got, err := autosave.Get(ctx, "design")
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), got)

	require.NoError(t, autosave.Clear(ctx))
	_, err = autosave.Get(ctx, "design")
	assert.ErrorIs(t, err, store.ErrNotFound)

	got, err = reload.Get(ctx, "design")
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), got)

	nested := store.WithNamespace(reload, "pending")
	assert.Equal(t, "softreload/pending/", nested.Prefix())
}

func TestOpen(t *testing.T) {
	s, err := store.Open(store.Options{})
	require.NoError(t, err)
	assert.IsType(t, &store.MemoryStore{}, s)

	s, err = store.Open(store.Options{Driver: store.DriverFile, Path: "/kv", Fs: afero.NewMemMapFs()})
	require.NoError(t, err)
	assert.IsType(t, &store.FileStore{}, s)

	_, err = store.Open(store.Options{Driver: store.DriverFile})
	assert.Error(t, err)

	_, err = store.Open(store.Options{Driver: "etcd"})
	assert.Error(t, err)
}
