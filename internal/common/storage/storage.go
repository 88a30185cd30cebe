// Package storage provides object storage access for submitted sources.
package storage

import (
	"context"
	"io"
)

// ObjectReader is a readable object stream.
type ObjectReader interface {
	io.ReadCloser
}

// ObjectStorage abstracts the S3-compatible store holding submitted sources.
type ObjectStorage interface {
	// GetObject opens the object for reading. The caller must close the reader.
	GetObject(ctx context.Context, bucket, objectKey string) (ObjectReader, error)
}
