package storage

import (
	"context"
	"fmt"
)

// Backends.
const (
	BackendLocal = "local"
	BackendGCS   = "gcs"
)

// Options selects and configures a backend.
type Options struct {
	Backend         string
	LocalDir        string
	Bucket          string
	CredentialsFile string
}

// Open builds the configured store.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case BackendLocal, "":
		return NewLocalStore(opts.LocalDir)
	case BackendGCS:
		return NewGCSStore(ctx, opts.Bucket, opts.CredentialsFile)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}
