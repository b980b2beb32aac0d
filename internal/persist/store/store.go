package store

import "context"

// Store is durable object storage with public read access.
type Store interface {
	// Put writes data under key and returns the object's public URL.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}
