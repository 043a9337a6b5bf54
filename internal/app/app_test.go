package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-inbox/internal/domain/model"
	"telegram-inbox/internal/infra/config"
	"telegram-inbox/internal/infra/storage"
)

func TestOpenStore_Backends(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()

	fileKV, err := openStore(ctx, config.EnvConfig{StoreBackend: config.StoreFile, StoreFile: filepath.Join(dir, "kv.json")})
	require.NoError(t, err)
	assert.IsType(t, &storage.FileKV{}, fileKV)
	require.NoError(t, fileKV.Close())

	boltKV, err := openStore(ctx, config.EnvConfig{StoreBackend: config.StoreBolt, StoreFile: filepath.Join(dir, "kv.bbolt")})
	require.NoError(t, err)
	assert.IsType(t, &storage.BoltKV{}, boltKV)
	require.NoError(t, boltKV.Set(ctx, "k", "v"))
	require.NoError(t, boltKV.Close())
}

func TestTransportFactory_Demo(t *testing.T) {
	t.Parallel()
	factory, err := transportFactory(config.EnvConfig{Transport: config.TransportDemo})
	require.NoError(t, err)

	client, err := factory(model.Credentials{APIID: 1, APIHash: "hash"})
	require.NoError(t, err)
	require.NoError(t, client.Connect(context.Background()))
	require.NoError(t, client.Close())

	_, err = transportFactory(config.EnvConfig{Transport: config.TransportDemo, DemoFixtureFile: filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)
}

func TestApp_InitAndShutdown(t *testing.T) {
	t.Parallel()
	cfg := config.FromEnv(config.EnvConfig{
		Transport:    config.TransportDemo,
		StoreBackend: config.StoreFile,
		StoreFile:    filepath.Join(t.TempDir(), "inbox.json"),
	})

	ctx, cancel := context.WithCancel(context.Background())
	a := NewApp(ctx, cancel, cfg)
	require.NoError(t, a.Init())
	assert.Nil(t, a.cli)
	assert.Nil(t, a.web)

	done := make(chan error, 1)
	go func() { done <- a.Run() }()
	cancel()
	require.NoError(t, <-done)
}
