// Package storage uploads audio and illustration files to S3-compatible
// object storage and resolves their public URLs.
package storage

import (
	"context"
	"errors"
)

// ErrUpload is wrapped by every failed upload.
var ErrUpload = errors.New("object upload failed")

// Object is a stored file.
type Object struct {
	Bucket string
	Path   string
	URL    string
}

// ObjectStore stores files in named buckets.
type ObjectStore interface {
	Upload(ctx context.Context, bucket, path string, body []byte, contentType string) (Object, error)
	Delete(ctx context.Context, bucket, path string) error
	PublicURL(bucket, path string) string
}
