// Package listing answers list, prefix-search and recency queries over the
// stored files. Annotation sidecars are never reported.
package listing

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dmitrijs2005/enginuity/internal/server/annotations"
	"github.com/dmitrijs2005/enginuity/internal/server/blobstore"
)

// DefaultRecentLimit applies when Recent is called with a non-positive n.
const DefaultRecentLimit = 10

// RecentFile is one entry of a recency listing.
type RecentFile struct {
	Key          string    `json:"key"`
	LastModified time.Time `json:"lastModified"`
}

type Service struct {
	store blobstore.Store
}

func NewService(store blobstore.Store) *Service {
	return &Service{store: store}
}

// List returns every file key in ascending order.
func (s *Service) List(ctx context.Context) ([]string, error) {
	return s.Search(ctx, "")
}

// Search returns the file keys starting with prefix, ascending.
func (s *Service) Search(ctx context.Context, prefix string) ([]string, error) {
	infos, err := s.files(ctx, prefix)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(infos))
	for _, i := range infos {
		keys = append(keys, i.Key)
	}
	sort.Strings(keys)
	return keys, nil
}

// Recent returns up to n files, most recently modified first. Equal
// timestamps are ordered by key. n is capped at DefaultRecentLimit.
func (s *Service) Recent(ctx context.Context, n int) ([]RecentFile, error) {
	if n <= 0 || n > DefaultRecentLimit {
		n = DefaultRecentLimit
	}

	infos, err := s.files(ctx, "")
	if err != nil {
		return nil, err
	}

	sort.Slice(infos, func(i, j int) bool {
		a, b := infos[i], infos[j]
		if !a.LastModified.Equal(b.LastModified) {
			return a.LastModified.After(b.LastModified)
		}
		return a.Key < b.Key
	})

	if len(infos) > n {
		infos = infos[:n]
	}
	out := make([]RecentFile, 0, len(infos))
	for _, i := range infos {
		out = append(out, RecentFile{Key: i.Key, LastModified: i.LastModified})
	}
	return out, nil
}

func (s *Service) files(ctx context.Context, prefix string) ([]blobstore.ObjectInfo, error) {
	infos, err := s.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %q: %w", prefix, err)
	}

	out := infos[:0]
	for _, i := range infos {
		if !annotations.IsSidecarKey(i.Key) {
			out = append(out, i)
		}
	}
	return out, nil
}
