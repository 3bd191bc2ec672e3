package objstore

import (
	"context"
	"time"
)

// Client defines the object-store operations the bulk importer consumes
type Client interface {
	// ListObjects streams object metadata under a prefix.
	ListObjects(ctx context.Context, bucket, prefix string) (<-chan ObjectInfo, <-chan error)
	// Download copies an object to transient local storage.
	Download(ctx context.Context, bucket, key, localPath string) error
}

// ObjectInfo contains object metadata
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

// Config contains client configuration
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Secure    bool
}
