// Package storetest holds a behavioural suite every blobstore.Store backend
// must pass. Backends call Run from their own tests.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/dmitrijs2005/enginuity/internal/common"
	"github.com/dmitrijs2005/enginuity/internal/server/blobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises newStore against the Store contract. newStore must return an
// empty store for every call.
func Run(t *testing.T, newStore func(t *testing.T) blobstore.Store) {
	t.Helper()

	t.Run("missing key", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.Get(ctx, "nope")
		assert.ErrorIs(t, err, common.ErrorNotFound)

		_, err = s.Stat(ctx, "nope")
		assert.ErrorIs(t, err, common.ErrorNotFound)

		assert.ErrorIs(t, s.Delete(ctx, "nope"), common.ErrorNotFound)
	})

	t.Run("put and get", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		v, err := s.Put(ctx, "a.txt", []byte("hello"), "text/plain")
		require.NoError(t, err)
		assert.NotEqual(t, blobstore.NoVersion, v)

		obj, err := s.Get(ctx, "a.txt")
		require.NoError(t, err)
		assert.Equal(t, []byte("hello"), obj.Data)
		assert.Equal(t, "a.txt", obj.Info.Key)
		assert.Equal(t, int64(5), obj.Info.Size)
		assert.Equal(t, "text/plain", obj.Info.ContentType)
		assert.Equal(t, v, obj.Info.Version)
		assert.False(t, obj.Info.LastModified.IsZero())

		info, err := s.Stat(ctx, "a.txt")
		require.NoError(t, err)
		assert.Equal(t, v, info.Version)
		assert.Equal(t, int64(5), info.Size)
	})

	t.Run("unconditional put overwrites", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.Put(ctx, "k", []byte("one"), "text/plain")
		require.NoError(t, err)
		_, err = s.Put(ctx, "k", []byte("two!"), "text/plain")
		require.NoError(t, err)

		obj, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("two!"), obj.Data)
	})

	t.Run("create only", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		v, err := s.PutIfMatch(ctx, "doc.json", []byte("[]"), common.ContentTypeJSON, blobstore.NoVersion)
		require.NoError(t, err)
		assert.NotEqual(t, blobstore.NoVersion, v)

		_, err = s.PutIfMatch(ctx, "doc.json", []byte("[1]"), common.ContentTypeJSON, blobstore.NoVersion)
		assert.ErrorIs(t, err, common.ErrVersionConflict)

		obj, err := s.Get(ctx, "doc.json")
		require.NoError(t, err)
		assert.Equal(t, []byte("[]"), obj.Data)
	})

	t.Run("compare and swap", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		v1, err := s.PutIfMatch(ctx, "doc.json", []byte(`["a"]`), common.ContentTypeJSON, blobstore.NoVersion)
		require.NoError(t, err)

		v2, err := s.PutIfMatch(ctx, "doc.json", []byte(`["a","b"]`), common.ContentTypeJSON, v1)
		require.NoError(t, err)
		assert.NotEqual(t, v1, v2)

		_, err = s.PutIfMatch(ctx, "doc.json", []byte(`["stale"]`), common.ContentTypeJSON, v1)
		assert.ErrorIs(t, err, common.ErrVersionConflict)

		obj, err := s.Get(ctx, "doc.json")
		require.NoError(t, err)
		assert.Equal(t, []byte(`["a","b"]`), obj.Data)
		assert.Equal(t, v2, obj.Info.Version)
	})

	t.Run("expected version on missing key", func(t *testing.T) {
		s := newStore(t)
		_, err := s.PutIfMatch(context.Background(), "ghost", []byte("x"), "", blobstore.Version("v-that-never-was"))
		assert.ErrorIs(t, err, common.ErrVersionConflict)
	})

	t.Run("concurrent creators", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		const writers = 8
		var wins, conflicts atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := s.PutIfMatch(ctx, "race.json", []byte(fmt.Sprintf("[%d]", i)), common.ContentTypeJSON, blobstore.NoVersion)
				switch {
				case err == nil:
					wins.Add(1)
				case assert.ErrorIs(t, err, common.ErrVersionConflict):
					conflicts.Add(1)
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, int32(1), wins.Load())
		assert.Equal(t, int32(writers-1), conflicts.Load())
	})

	t.Run("list by prefix", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for _, k := range []string{"b.txt", "a.txt", "a.txt.comments.json", "c/d.txt"} {
			_, err := s.Put(ctx, k, []byte(k), "text/plain")
			require.NoError(t, err)
		}

		all, err := s.List(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, []string{"a.txt", "a.txt.comments.json", "b.txt", "c/d.txt"}, keys(all))

		some, err := s.List(ctx, "a.")
		require.NoError(t, err)
		assert.Equal(t, []string{"a.txt", "a.txt.comments.json"}, keys(some))
		assert.Equal(t, int64(len("a.txt")), some[0].Size)

		none, err := s.List(ctx, "zzz")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.Put(ctx, "gone", []byte("x"), "text/plain")
		require.NoError(t, err)
		require.NoError(t, s.Delete(ctx, "gone"))

		_, err = s.Get(ctx, "gone")
		assert.ErrorIs(t, err, common.ErrorNotFound)

		all, err := s.List(ctx, "")
		require.NoError(t, err)
		assert.Empty(t, all)

		_, err = s.PutIfMatch(ctx, "gone", []byte("again"), "text/plain", blobstore.NoVersion)
		assert.NoError(t, err, "a deleted key can be created again")
	})
}

func keys(infos []blobstore.ObjectInfo) []string {
	out := make([]string, 0, len(infos))
	for _, i := range infos {
		out = append(out, i.Key)
	}
	return out
}
