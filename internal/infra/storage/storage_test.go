package storage_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-inbox/internal/infra/storage"
)

// openers собирает бэкенды, которые можно поднять без внешних сервисов.
func openers(t *testing.T) map[string]func() storage.KV {
	t.Helper()
	return map[string]func() storage.KV{
		"memory": func() storage.KV { return storage.NewMemoryKV() },
		"file": func() storage.KV {
			return storage.NewFileKV(filepath.Join(t.TempDir(), "kv", "store.json"))
		},
		"bolt": func() storage.KV {
			kv, err := storage.OpenBolt(filepath.Join(t.TempDir(), "data", "store.bbolt"))
			require.NoError(t, err)
			return kv
		},
	}
}

func TestKV_Contract(t *testing.T) {
	for name, open := range openers(t) {
		open := open
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			kv := open()
			defer func() { require.NoError(t, kv.Close()) }()

			_, ok, err := kv.Get(ctx, "telegram_api_id")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, kv.Set(ctx, "telegram_api_id", "123"))
			require.NoError(t, kv.Set(ctx, "telegram_api_hash", "abc"))

			v, ok, err := kv.Get(ctx, "telegram_api_id")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "123", v)

			require.NoError(t, kv.Delete(ctx, "telegram_api_id", "telegram_api_hash", "missing"))
			require.NoError(t, kv.Delete(ctx, "telegram_api_id"))

			_, ok, err = kv.Get(ctx, "telegram_api_hash")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestFileKV_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.json")

	first := storage.NewFileKV(path)
	require.NoError(t, first.Set(ctx, "telegram_session:k", `{"isLoggedIn":false}`))

	second := storage.NewFileKV(path)
	v, ok, err := second.Get(ctx, "telegram_session:k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"isLoggedIn":false}`, v)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(storage.DefaultFilePerm), info.Mode().Perm())
}

func TestFileKV_CorruptFileIsEmpty(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	kv := storage.NewFileKV(path)
	_, ok, err := kv.Get(ctx, "anything")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.Set(ctx, "a", "b"))
	v, ok, err := storage.NewFileKV(path).Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "b", v)
}
