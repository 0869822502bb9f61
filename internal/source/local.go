package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dvloznov/finance-categorizer/internal/domain"
)

// LocalFetcher serves Root/<bucket>/<key> from disk, mirroring the bucket
// layout for local runs and tests.
type LocalFetcher struct {
	Root string
}

// Fetch reads the file. Keys escaping Root are rejected.
func (f LocalFetcher) Fetch(ctx context.Context, loc Location) ([]byte, error) {
	if err := loc.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrSourceUnavailable, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrSourceUnavailable, err)
	}

	root := filepath.Clean(f.Root)
	path := filepath.Join(root, loc.Bucket, filepath.FromSlash(loc.Key))
	if path != root && !strings.HasPrefix(path, root+string(filepath.Separator)) {
		return nil, fmt.Errorf("%w: %s escapes %s", domain.ErrSourceUnavailable, loc, root)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", domain.ErrSourceUnavailable, path, err)
	}
	return data, nil
}
