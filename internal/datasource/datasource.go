// Package datasource abstracts where an import's CSV bytes come from.
package datasource

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Source opens a fresh reader over an export.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// ErrTooLarge is returned by ReadAll when the export exceeds the limit.
var ErrTooLarge = errors.New("datasource: export exceeds size limit")

// DefaultMaxBytes bounds ReadAll when no limit is given.
const DefaultMaxBytes = 256 << 20

// ReadAll opens src and reads it fully into memory. limit <= 0 selects
// DefaultMaxBytes.
func ReadAll(ctx context.Context, src Source, limit int64) ([]byte, error) {
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	rc, err := src.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	b, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read export: %w", err)
	}
	if int64(len(b)) > limit {
		return nil, fmt.Errorf("%w (%d bytes)", ErrTooLarge, limit)
	}
	return b, nil
}
