// Package storage selects the blob store that receives scan artifacts.
package storage

import (
	"context"
	"fmt"

	gcsclient "cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/JakeFAU/brandscan/internal/config"
	"github.com/JakeFAU/brandscan/internal/scan"
	"github.com/JakeFAU/brandscan/internal/storage/gcs"
	"github.com/JakeFAU/brandscan/internal/storage/local"
	"github.com/JakeFAU/brandscan/internal/storage/memory"
)

// Open builds the BlobStore named by cfg.Backend. The returned close func
// releases any client the store owns. opts are passed to the GCS client.
func Open(ctx context.Context, cfg config.StorageConfig, opts ...option.ClientOption) (scan.BlobStore, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Backend {
	case config.StorageMemory, "":
		return memory.NewBlobStore(), noop, nil
	case config.StorageLocal:
		store, err := local.New(local.Config{BaseDir: cfg.BaseDir})
		if err != nil {
			return nil, nil, fmt.Errorf("open local blob store: %w", err)
		}
		return store, noop, nil
	case config.StorageGCS:
		client, err := gcsclient.NewClient(ctx, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("create gcs client: %w", err)
		}
		store, err := gcs.New(client, gcs.Config{Bucket: cfg.GCSBucket})
		if err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("open gcs blob store: %w", err)
		}
		return store, client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
