// Package files serves the primary file blobs: upload, read, replace and
// delete, with ownership checks and cascade removal of annotations.
package files

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"
	"time"

	"github.com/dmitrijs2005/enginuity/internal/common"
	"github.com/dmitrijs2005/enginuity/internal/logging"
	"github.com/dmitrijs2005/enginuity/internal/server/annotations"
	"github.com/dmitrijs2005/enginuity/internal/server/blobstore"
	"github.com/dmitrijs2005/enginuity/internal/server/owners"
)

// MaxKeyLength is the longest accepted file key, in bytes.
const MaxKeyLength = 1024

const replaceAttempts = 3

// reserved keys collide with fixed routes under /files.
var reserved = map[string]struct{}{
	"search": {},
	"recent": {},
}

// FileInfo describes a stored file.
type FileInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"contentType"`
	LastModified time.Time `json:"lastModified,omitzero"`
	Version      string    `json:"version"`
}

// Purger removes the annotations of a file.
type Purger interface {
	Purge(ctx context.Context, fileKey string) error
}

type Options struct {
	// CascadeDelete removes a file's annotations together with the file.
	CascadeDelete bool
}

type Service struct {
	store   blobstore.Store
	owners  owners.Registry
	purger  Purger
	cascade bool
	logger  logging.Logger
}

func NewService(store blobstore.Store, registry owners.Registry, purger Purger, logger logging.Logger, opts Options) *Service {
	return &Service{
		store:   store,
		owners:  registry,
		purger:  purger,
		cascade: opts.CascadeDelete,
		logger:  logger.With("module", "files"),
	}
}

// ValidateKey checks that key can name a file.
func ValidateKey(key string) error {
	switch {
	case key == "":
		return fmt.Errorf("%w: key is required", common.ErrorValidation)
	case len(key) > MaxKeyLength:
		return fmt.Errorf("%w: key is longer than %d bytes", common.ErrorValidation, MaxKeyLength)
	case !utf8.ValidString(key):
		return fmt.Errorf("%w: key must be valid UTF-8", common.ErrorValidation)
	case strings.Contains(key, "/"):
		return fmt.Errorf("%w: key must not contain '/'", common.ErrorValidation)
	case annotations.IsSidecarKey(key):
		return fmt.Errorf("%w: key %q is reserved for annotations", common.ErrorValidation, key)
	}
	if _, ok := reserved[key]; ok {
		return fmt.Errorf("%w: key %q is reserved", common.ErrorValidation, key)
	}
	return nil
}

// Upload stores content under key for caller, overwriting any earlier
// content the caller owns. An empty contentType is sniffed from content.
func (s *Service) Upload(ctx context.Context, caller, key string, content []byte, contentType string) (*FileInfo, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if err := s.owners.Claim(ctx, key, caller); err != nil {
		return nil, fmt.Errorf("upload %s: %w", key, err)
	}

	if contentType == "" {
		contentType = http.DetectContentType(content)
	}

	v, err := s.store.Put(ctx, key, content, contentType)
	if err != nil {
		s.releaseOrphan(ctx, key)
		return nil, fmt.Errorf("upload %s: %w", key, err)
	}

	s.logger.Info(ctx, "file uploaded", "key", key, "size", len(content), "owner", caller)
	return &FileInfo{Key: key, Size: int64(len(content)), ContentType: contentType, Version: string(v)}, nil
}

// Get returns the content of key.
func (s *Service) Get(ctx context.Context, key string) ([]byte, *FileInfo, error) {
	if err := ValidateKey(key); err != nil {
		return nil, nil, err
	}

	obj, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, nil, fmt.Errorf("get %s: %w", key, err)
	}
	return obj.Data, toFileInfo(obj.Info), nil
}

// Exists returns common.ErrorNotFound when no file is stored under key.
func (s *Service) Exists(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if _, err := s.store.Stat(ctx, key); err != nil {
		return fmt.Errorf("file %s: %w", key, err)
	}
	return nil
}

// Replace overwrites an existing file, keeping its content type. The write
// is conditional on the version seen, so a concurrent delete is not undone.
func (s *Service) Replace(ctx context.Context, caller, key string, content []byte) (*FileInfo, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if err := s.owners.CheckOwner(ctx, key, caller); err != nil {
		return nil, fmt.Errorf("replace %s: %w", key, err)
	}

	for attempt := 1; ; attempt++ {
		info, err := s.store.Stat(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("replace %s: %w", key, err)
		}

		v, err := s.store.PutIfMatch(ctx, key, content, info.ContentType, info.Version)
		if errors.Is(err, common.ErrVersionConflict) {
			if attempt < replaceAttempts {
				continue
			}
			return nil, fmt.Errorf("replace %s: %w", key, common.ErrConcurrentModification)
		}
		if err != nil {
			return nil, fmt.Errorf("replace %s: %w", key, err)
		}

		s.logger.Info(ctx, "file replaced", "key", key, "size", len(content))
		return &FileInfo{Key: key, Size: int64(len(content)), ContentType: info.ContentType, Version: string(v)}, nil
	}
}

// Delete removes key, releases its ownership and, with cascading enabled,
// its annotations.
func (s *Service) Delete(ctx context.Context, caller, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := s.owners.CheckOwner(ctx, key, caller); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}

	if err := s.store.Delete(ctx, key); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.release(ctx, key)
		}
		return fmt.Errorf("delete %s: %w", key, err)
	}
	s.release(ctx, key)

	if s.cascade && s.purger != nil {
		if err := s.purger.Purge(ctx, key); err != nil {
			s.logger.Error(ctx, "annotation cascade failed", "key", key, "error", err)
			return fmt.Errorf("delete %s: %w", key, err)
		}
	}

	s.logger.Info(ctx, "file deleted", "key", key)
	return nil
}

func (s *Service) release(ctx context.Context, key string) {
	if err := s.owners.Release(ctx, key); err != nil {
		s.logger.Warn(ctx, "ownership release failed", "key", key, "error", err)
	}
}

// releaseOrphan drops the claim taken by a failed upload unless a file is
// still stored under key.
func (s *Service) releaseOrphan(ctx context.Context, key string) {
	if _, err := s.store.Stat(ctx, key); err == nil {
		return
	}
	s.release(ctx, key)
}

func toFileInfo(i blobstore.ObjectInfo) *FileInfo {
	return &FileInfo{
		Key:          i.Key,
		Size:         i.Size,
		ContentType:  i.ContentType,
		LastModified: i.LastModified,
		Version:      string(i.Version),
	}
}
