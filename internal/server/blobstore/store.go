// Package blobstore is the object-store boundary of the server: uniform
// get / stat / put / conditional put / delete / list operations with opaque
// version tokens.
//
// Implementations must be safe for concurrent use and must not cache
// objects in process; other servers may write the same bucket.
//
// Errors are reported with the sentinels of internal/common:
//
//   - common.ErrorNotFound: no object under the key;
//   - common.ErrVersionConflict: a conditional put lost its precondition;
//   - common.ErrStoreUnavailable: transport or backend failure (wrapping the cause).
//
// Context cancellation and deadline errors are returned unchanged.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/enginuity/internal/common"
)

// Version is an opaque token identifying one stored revision of an object
// (an entity tag for S3-compatible backends).
type Version string

// NoVersion is the token of an absent object. PutIfMatch with NoVersion
// only succeeds when nothing is stored under the key.
const NoVersion Version = ""

// ObjectInfo is the metadata the store keeps next to an object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	ContentType  string
	Version      Version
}

// Object is an object's content plus its metadata.
type Object struct {
	Data []byte
	Info ObjectInfo
}

// Store is the blob-store contract consumed by the file and annotation services.
type Store interface {
	// Get reads an object and the version it was read at.
	Get(ctx context.Context, key string) (*Object, error)

	// Stat returns object metadata without the content.
	Stat(ctx context.Context, key string) (*ObjectInfo, error)

	// Put writes unconditionally (last writer wins).
	Put(ctx context.Context, key string, data []byte, contentType string) (Version, error)

	// PutIfMatch writes only if the stored version equals expected, or, when
	// expected is NoVersion, only if the key is absent. Otherwise it fails
	// with common.ErrVersionConflict and leaves the object untouched.
	PutIfMatch(ctx context.Context, key string, data []byte, contentType string, expected Version) (Version, error)

	// Delete removes an object; a missing key yields common.ErrorNotFound.
	Delete(ctx context.Context, key string) error

	// List returns metadata of every object whose key starts with prefix,
	// ordered by key.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// Pinger is implemented by stores that can cheaply check backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Unavailable wraps a backend failure with common.ErrStoreUnavailable.
// nil stays nil; context errors and errors already carrying a sentinel of
// this package are returned as is.
func Unavailable(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, common.ErrStoreUnavailable),
		errors.Is(err, common.ErrorNotFound),
		errors.Is(err, common.ErrVersionConflict):
		return err
	}
	return fmt.Errorf("%w: %w", common.ErrStoreUnavailable, err)
}
