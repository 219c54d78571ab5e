package storage

import (
	"context"
	"fmt"
	"strings"

	"handout/internal/config"
)

// Store persists finished artifacts.
type Store interface {
	// Put copies the local file at src into storage under name and returns
	// the resulting location.
	Put(ctx context.Context, src, name string) (string, error)
	// Exists reports whether an object is present under name.
	Exists(ctx context.Context, name string) (bool, error)
}

// Open builds the backend selected by cfg.Storage.Backend.
func Open(cfg *config.Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Backend)) {
	case "", "local":
		return NewLocal(cfg.Paths.OutputDir), nil
	case "s3":
		return NewS3FromConfig(S3Options{
			Bucket:       cfg.Storage.Bucket,
			Region:       cfg.Storage.Region,
			Endpoint:     cfg.Storage.Endpoint,
			UsePathStyle: cfg.Storage.UsePathStyle,
			Prefix:       cfg.Storage.Prefix,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// objectKey joins prefix and name with exactly one slash.
func objectKey(prefix, name string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	name = strings.TrimLeft(strings.TrimSpace(name), "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}
