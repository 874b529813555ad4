package storage

import (
	"context"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/shopmonkeyus/go-common/logger"
)

// Placeholder is the marker file written into an empty upload location.
const Placeholder = ".gitkeep"

// ErrInvalidKey is returned for keys that would escape the upload location.
var ErrInvalidKey = errors.New("invalid storage key")

// Storage is a write target for uploaded attachments.
type Storage interface {
	// Setup creates the location if needed and verifies it is writable.
	Setup(ctx context.Context) error

	// Put stores the contents of r under key.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error

	// Delete removes key. Removing a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// URL returns the location of key for storing in the database.
	URL(key string) string
}

// New returns the storage for location which is either a directory or an s3:// url.
func New(ctx context.Context, logger logger.Logger, location string) (Storage, error) {
	if location == "" {
		return nil, errors.New("missing upload location")
	}
	if strings.HasPrefix(location, "s3://") {
		u, err := url.Parse(location)
		if err != nil {
			return nil, errors.Wrap(err, "unable to parse url")
		}
		return newS3Storage(ctx, logger, u)
	}
	return newLocalStorage(logger, strings.TrimPrefix(location, "file://")), nil
}

// CleanKey normalizes key to a relative slash separated path.
func CleanKey(key string) (string, error) {
	if key == "" || strings.Contains(key, "\\") {
		return "", ErrInvalidKey
	}
	cleaned := path.Clean("/" + key)[1:]
	if cleaned == "" || cleaned != strings.TrimPrefix(key, "/") {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}
