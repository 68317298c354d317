// Package owners records which caller uploaded each file. Files without a
// record (uploaded before the registry existed, or by another tool) are
// treated as unowned and open to every authenticated caller.
package owners

import "context"

// Registry is the file-ownership store.
type Registry interface {
	// Claim records ownerID as the owner of fileKey. Claiming a key already
	// owned by ownerID succeeds; a key owned by someone else yields
	// common.ErrorForbidden.
	Claim(ctx context.Context, fileKey, ownerID string) error

	// CheckOwner returns common.ErrorForbidden when fileKey is owned by
	// somebody other than ownerID.
	CheckOwner(ctx context.Context, fileKey, ownerID string) error

	// Release forgets the owner of fileKey. Releasing an unknown key is not
	// an error.
	Release(ctx context.Context, fileKey string) error

	Ping(ctx context.Context) error
}
