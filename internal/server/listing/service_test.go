package listing

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/enginuity/internal/common"
	"github.com/dmitrijs2005/enginuity/internal/server/blobstore"
)

// steppingClock returns the queued times in order.
type steppingClock struct {
	times []time.Time
}

func (c *steppingClock) now() time.Time {
	t := c.times[0]
	c.times = c.times[1:]
	return t
}

func seed(t *testing.T, keys []string, at []int) *blobstore.MemoryStore {
	t.Helper()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := &steppingClock{}
	for _, sec := range at {
		clock.times = append(clock.times, base.Add(time.Duration(sec)*time.Second))
	}

	store := blobstore.NewMemoryStore(blobstore.WithClock(clock.now))
	for _, k := range keys {
		_, err := store.Put(context.Background(), k, []byte(k), "text/plain")
		require.NoError(t, err)
	}
	return store
}

func TestService_ListExcludesSidecars(t *testing.T) {
	store := seed(t,
		[]string{"b.txt", "a.txt", "a.txt.comments.json", "a.txt.questions.json", "c.json"},
		[]int{1, 2, 3, 4, 5})
	svc := NewService(store)

	keys, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt", "c.json"}, keys)

	keys, err = svc.Search(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, keys)

	keys, err = svc.Search(context.Background(), "zzz")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestService_Recent(t *testing.T) {
	store := seed(t, []string{"five", "three", "nine", "one"}, []int{5, 3, 9, 1})
	svc := NewService(store)

	recent, err := svc.Recent(context.Background(), 0)
	require.NoError(t, err)

	var keys []string
	for _, r := range recent {
		keys = append(keys, r.Key)
	}
	assert.Equal(t, []string{"nine", "five", "three", "one"}, keys)

	top, err := svc.Recent(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, top, 2)
	assert.Equal(t, "nine", top[0].Key)
}

func TestService_RecentTiesAndLimit(t *testing.T) {
	var keys []string
	var at []int
	for i := 0; i < 15; i++ {
		keys = append(keys, fmt.Sprintf("f%02d", i))
		at = append(at, 7)
	}
	keys = append(keys, "x.comments.json")
	at = append(at, 100)

	svc := NewService(seed(t, keys, at))

	recent, err := svc.Recent(context.Background(), -1)
	require.NoError(t, err)
	require.Len(t, recent, DefaultRecentLimit)
	for i, r := range recent {
		assert.Equal(t, fmt.Sprintf("f%02d", i), r.Key, "equal timestamps are ordered by key")
	}
}

func TestService_RecentCapsLimit(t *testing.T) {
	var keys []string
	var at []int
	for i := 0; i < 25; i++ {
		keys = append(keys, fmt.Sprintf("f%02d", i))
		at = append(at, i)
	}
	svc := NewService(seed(t, keys, at))

	recent, err := svc.Recent(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, recent, DefaultRecentLimit)
	assert.Equal(t, "f24", recent[0].Key)
	assert.Equal(t, "f15", recent[DefaultRecentLimit-1].Key)
}

type brokenStore struct{ blobstore.Store }

func (brokenStore) List(context.Context, string) ([]blobstore.ObjectInfo, error) {
	return nil, blobstore.Unavailable(fmt.Errorf("bucket gone"))
}

func TestService_StoreError(t *testing.T) {
	svc := NewService(brokenStore{})

	_, err := svc.List(context.Background())
	assert.ErrorIs(t, err, common.ErrStoreUnavailable)
	_, err = svc.Recent(context.Background(), 5)
	assert.ErrorIs(t, err, common.ErrStoreUnavailable)
}
