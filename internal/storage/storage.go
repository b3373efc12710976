package storage

import (
	"context"
	"io"
)

// ObjectStore defines the object operations the organizer needs.
type ObjectStore interface {
	// List calls fn for every object key under bucket/prefix, following
	// pagination until the listing is exhausted or fn returns an error.
	List(ctx context.Context, bucket, prefix string, fn func(key string) error) error
	// GetRange reads the inclusive byte range [start,end] of the object.
	GetRange(ctx context.Context, bucket, key string, start, end int64) ([]byte, error)
	// Get returns a reader over the whole object and its size if known.
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, int64, error)
	// Copy performs a server-side copy between keys.
	Copy(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) error
	// Put writes content to bucket/key.
	Put(ctx context.Context, bucket, key string, body io.Reader) error
}
