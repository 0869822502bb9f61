package source

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"github.com/dvloznov/finance-categorizer/internal/domain"
)

// Fetcher returns the raw bytes of the file at a location.
type Fetcher interface {
	Fetch(ctx context.Context, loc Location) ([]byte, error)
}

// GCSFetcher reads uploaded files from Cloud Storage.
type GCSFetcher struct {
	open func(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// NewGCSFetcher wraps an existing storage client. The caller owns the client.
func NewGCSFetcher(client *storage.Client) *GCSFetcher {
	return &GCSFetcher{
		open: func(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
			return client.Bucket(bucket).Object(key).NewReader(ctx)
		},
	}
}

// Fetch downloads the object. Every failure is reported as ErrSourceUnavailable.
func (f *GCSFetcher) Fetch(ctx context.Context, loc Location) ([]byte, error) {
	if err := loc.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrSourceUnavailable, err)
	}

	r, err := f.open(ctx, loc.Bucket, loc.Key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
			return nil, fmt.Errorf("%w: %s does not exist: %w", domain.ErrSourceUnavailable, loc, err)
		}
		return nil, fmt.Errorf("%w: open GCS object reader %s: %w", domain.ErrSourceUnavailable, loc, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: read GCS object %s: %w", domain.ErrSourceUnavailable, loc, err)
	}

	return data, nil
}
