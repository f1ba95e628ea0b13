package storage

import (
	"context"
)

// Sink receives every file written to the output directory
type Sink interface {
	// Put copies the local file at path to key
	Put(ctx context.Context, path, key string) error
}

// Config contains S3-compatible mirror configuration
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Secure    bool
	Bucket    string
	Prefix    string
}

// Enabled reports whether a mirror is configured
func (c Config) Enabled() bool {
	return c.Endpoint != ""
}
