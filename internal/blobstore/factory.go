package blobstore

import (
	"context"
	"fmt"

	"github.com/i474232898/household-energy-dashboard/internal/config"
	"github.com/i474232898/household-energy-dashboard/internal/household"
)

// NewFromConfig builds the configured object store wrapped with retries and
// a circuit breaker.
func NewFromConfig(ctx context.Context, sc config.StoreConfig, backoff BackoffConfig, breaker BreakerConfig) (household.ObjectStore, error) {
	var (
		store household.ObjectStore
		err   error
	)

	switch sc.Backend {
	case "azure":
		store, err = NewAzureStore(sc.ConnectionString, sc.ContainerName, sc.ObjectPrefix)
	case "s3":
		store, err = NewS3Store(ctx, S3Config{
			Bucket:   sc.ContainerName,
			Region:   sc.S3Region,
			Endpoint: sc.S3Endpoint,
			Prefix:   sc.ObjectPrefix,
		})
	case "":
		return nil, fmt.Errorf("store backend is required")
	default:
		return nil, fmt.Errorf("unknown store backend: %s", sc.Backend)
	}
	if err != nil {
		return nil, err
	}

	return WithResilience(store, backoff, breaker), nil
}
