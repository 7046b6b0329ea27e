package storage_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/JakeFAU/brandscan/internal/config"
	"github.com/JakeFAU/brandscan/internal/storage"
	"github.com/JakeFAU/brandscan/internal/storage/gcs"
	"github.com/JakeFAU/brandscan/internal/storage/local"
	"github.com/JakeFAU/brandscan/internal/storage/memory"
)

func TestOpenBackends(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store, closeFn, err := storage.Open(ctx, config.StorageConfig{Backend: config.StorageMemory})
	require.NoError(t, err)
	require.IsType(t, &memory.BlobStore{}, store)
	require.NoError(t, closeFn())

	store, closeFn, err = storage.Open(ctx, config.StorageConfig{Backend: config.StorageLocal, BaseDir: t.TempDir()})
	require.NoError(t, err)
	require.IsType(t, &local.BlobStore{}, store)
	require.NoError(t, closeFn())

	store, closeFn, err = storage.Open(ctx,
		config.StorageConfig{Backend: config.StorageGCS, GCSBucket: "brand-artifacts"},
		option.WithEndpoint("http://127.0.0.1:1"), option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	require.IsType(t, &gcs.BlobStore{}, store)
	require.NoError(t, closeFn())
}

func TestOpenErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	_, _, err := storage.Open(ctx, config.StorageConfig{Backend: "s3"})
	require.ErrorContains(t, err, "unknown storage backend")

	_, _, err = storage.Open(ctx, config.StorageConfig{Backend: config.StorageLocal})
	require.Error(t, err)

	_, _, err = storage.Open(ctx, config.StorageConfig{Backend: config.StorageGCS},
		option.WithEndpoint("http://127.0.0.1:1"), option.WithoutAuthentication())
	require.Error(t, err)
}

func TestMockBlobStore(t *testing.T) {
	t.Parallel()

	m := &storage.MockBlobStore{}
	m.On("PutObject", mock.Anything, "a/theme.css", "text/css", mock.Anything).Return("mock://a/theme.css", nil)
	m.On("PutObject", mock.Anything, "a/tokens.json", mock.Anything, mock.Anything).Return("", errors.New("denied"))

	uri, err := m.PutObject(context.Background(), "a/theme.css", "text/css", []byte("x"))
	require.NoError(t, err)
	require.Equal(t, "mock://a/theme.css", uri)
	_, err = m.PutObject(context.Background(), "a/tokens.json", "application/json", nil)
	require.EqualError(t, err, "denied")
	m.AssertExpectations(t)
}
