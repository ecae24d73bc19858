// Package objectstore abstracts where submission documents land: an S3
// bucket in production, the embedded database for local runs.
package objectstore

import "context"

// Metadata is attached to a stored object as user metadata.
type Metadata map[string]string

// Store writes submission documents to a namespace (bucket).
type Store interface {
	// Exists reports whether an object already lives under key.
	Exists(ctx context.Context, namespace, key string) (bool, error)
	// Put writes body under key and returns a backend receipt (ETag or
	// equivalent) for logging.
	Put(ctx context.Context, namespace, key string, body []byte, meta Metadata) (string, error)
}
