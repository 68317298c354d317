package annotations

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/enginuity/internal/common"
	"github.com/dmitrijs2005/enginuity/internal/logging"
	"github.com/dmitrijs2005/enginuity/internal/server/blobstore"
)

func newRepo(t *testing.T, store blobstore.Store, opts Options) *Repository {
	t.Helper()
	return NewRepository(store, logging.Discard(), opts)
}

func fastOptions() Options {
	return Options{MaxAttempts: 5, Backoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond, Timeout: 2 * time.Second}
}

// conflictStore fails the next n conditional writes with a version conflict.
type conflictStore struct {
	blobstore.Store
	n    atomic.Int32
	puts atomic.Int32
}

func (s *conflictStore) PutIfMatch(ctx context.Context, key string, data []byte, ct string, v blobstore.Version) (blobstore.Version, error) {
	s.puts.Add(1)
	if s.n.Add(-1) >= 0 {
		return blobstore.NoVersion, common.ErrVersionConflict
	}
	return s.Store.PutIfMatch(ctx, key, data, ct, v)
}

// errorStore fails every Get with err and counts calls.
type errorStore struct {
	blobstore.Store
	err   error
	calls atomic.Int32
}

func (s *errorStore) Get(context.Context, string) (*blobstore.Object, error) {
	s.calls.Add(1)
	return nil, s.err
}

// blockingStore blocks Get until the context ends.
type blockingStore struct {
	blobstore.Store
}

func (s *blockingStore) Get(ctx context.Context, _ string) (*blobstore.Object, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRepository_CommentLifecycle(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	repo := newRepo(t, store, fastOptions())

	_, err := store.Put(ctx, "a.txt", []byte("content"), "text/plain")
	require.NoError(t, err)

	added, err := repo.AddComment(ctx, "a.txt", "u1", "hi")
	require.NoError(t, err)
	assert.NotEmpty(t, added.ID)
	assert.Equal(t, "hi", added.Text)
	assert.Equal(t, "u1", added.Author)
	assert.Nil(t, added.EditedAt)

	edited, err := repo.EditComment(ctx, "a.txt", added.ID, "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", edited.Text)
	require.NotNil(t, edited.EditedAt)
	assert.Equal(t, added.CreatedAt, edited.CreatedAt)

	list, err := repo.ListComments(ctx, "a.txt")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, *edited, list[0])

	require.NoError(t, repo.DeleteComment(ctx, "a.txt", added.ID))

	obj, err := store.Get(ctx, SidecarKey("a.txt", KindComments))
	require.NoError(t, err)
	assert.Equal(t, "[]", string(obj.Data))
	assert.Equal(t, common.ContentTypeJSON, obj.Info.ContentType)
}

func TestRepository_QuestionLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t, blobstore.NewMemoryStore(), fastOptions())

	q, err := repo.AddQuestion(ctx, "a.txt", "", "why?")
	require.NoError(t, err)
	assert.Nil(t, q.Answer)
	assert.Nil(t, q.AnsweredAt)
	assert.False(t, q.Answered())

	answered, err := repo.AnswerQuestion(ctx, "a.txt", q.ID, "because")
	require.NoError(t, err)
	require.NotNil(t, answered.Answer)
	assert.Equal(t, "because", *answered.Answer)
	require.NotNil(t, answered.AnsweredAt)

	edited, err := repo.EditQuestion(ctx, "a.txt", q.ID, "why though?")
	require.NoError(t, err)
	assert.Equal(t, "why though?", edited.Text)
	assert.Equal(t, "because", *edited.Answer, "editing keeps the answer")

	list, err := repo.ListQuestions(ctx, "a.txt")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, *edited, list[0])

	require.NoError(t, repo.DeleteQuestion(ctx, "a.txt", q.ID))
	list, err = repo.ListQuestions(ctx, "a.txt")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRepository_InsertionOrder(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t, blobstore.NewMemoryStore(), fastOptions())

	for i := 0; i < 5; i++ {
		_, err := repo.AddComment(ctx, "f", "", fmt.Sprintf("c%d", i))
		require.NoError(t, err)
	}

	list, err := repo.ListComments(ctx, "f")
	require.NoError(t, err)
	require.Len(t, list, 5)
	for i, c := range list {
		assert.Equal(t, fmt.Sprintf("c%d", i), c.Text)
	}
}

func TestRepository_MissingDocument(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	repo := newRepo(t, store, fastOptions())

	comments, err := repo.ListComments(ctx, "nothing")
	require.NoError(t, err)
	assert.Empty(t, comments)

	_, err = repo.EditComment(ctx, "nothing", "id", "x")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	_, err = repo.AnswerQuestion(ctx, "nothing", "id", "x")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	require.NoError(t, repo.DeleteComment(ctx, "nothing", "id"))

	all, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, all, "no document is created by failed or no-op mutations")
}

func TestRepository_DeleteAbsentIDIsNoop(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	repo := newRepo(t, store, fastOptions())

	_, err := repo.AddComment(ctx, "f", "", "keep me")
	require.NoError(t, err)
	before, err := store.Stat(ctx, SidecarKey("f", KindComments))
	require.NoError(t, err)

	require.NoError(t, repo.DeleteComment(ctx, "f", "not-there"))
	require.NoError(t, repo.DeleteComment(ctx, "f", "not-there"))

	after, err := store.Stat(ctx, SidecarKey("f", KindComments))
	require.NoError(t, err)
	assert.Equal(t, before.Version, after.Version)
}

func TestRepository_EditAbsentIDLeavesDocument(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	repo := newRepo(t, store, fastOptions())

	_, err := repo.AddQuestion(ctx, "f", "", "q")
	require.NoError(t, err)
	before, err := store.Get(ctx, SidecarKey("f", KindQuestions))
	require.NoError(t, err)

	_, err = repo.EditQuestion(ctx, "f", "nope", "x")
	assert.ErrorIs(t, err, common.ErrorNotFound)
	_, err = repo.AnswerQuestion(ctx, "f", "nope", "x")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	after, err := store.Get(ctx, SidecarKey("f", KindQuestions))
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRepository_EmptyText(t *testing.T) {
	repo := newRepo(t, blobstore.NewMemoryStore(), fastOptions())

	_, err := repo.AddComment(context.Background(), "f", "", "   ")
	assert.ErrorIs(t, err, common.ErrorValidation)
	_, err = repo.AnswerQuestion(context.Background(), "f", "id", "")
	assert.ErrorIs(t, err, common.ErrorValidation)
}

func TestRepository_ConcurrentAdds(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t, blobstore.NewMemoryStore(), Options{
		MaxAttempts: 100,
		Backoff:     time.Millisecond,
		MaxBackoff:  5 * time.Millisecond,
		Timeout:     10 * time.Second,
	})

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.AddComment(ctx, "busy.txt", "", fmt.Sprintf("comment %d", i))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	list, err := repo.ListComments(ctx, "busy.txt")
	require.NoError(t, err)
	require.Len(t, list, n)

	ids := make(map[string]struct{}, n)
	for _, c := range list {
		ids[c.ID] = struct{}{}
	}
	assert.Len(t, ids, n)
}

func TestRepository_ConcurrentDeletesOfDifferentIDs(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t, blobstore.NewMemoryStore(), Options{
		MaxAttempts: 100,
		Backoff:     time.Millisecond,
		MaxBackoff:  5 * time.Millisecond,
		Timeout:     10 * time.Second,
	})

	var ids []string
	for i := 0; i < 10; i++ {
		c, err := repo.AddComment(ctx, "f", "", fmt.Sprintf("c%d", i))
		require.NoError(t, err)
		ids = append(ids, c.ID)
	}

	var wg sync.WaitGroup
	for _, id := range ids[:5] {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			assert.NoError(t, repo.DeleteComment(ctx, "f", id))
		}(id)
	}
	wg.Wait()

	list, err := repo.ListComments(ctx, "f")
	require.NoError(t, err)
	require.Len(t, list, 5)
	for i, c := range list {
		assert.Equal(t, ids[5+i], c.ID)
	}
}

func TestRepository_ConcurrentEditAndAnswer(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t, blobstore.NewMemoryStore(), Options{
		MaxAttempts: 100,
		Backoff:     time.Millisecond,
		MaxBackoff:  5 * time.Millisecond,
		Timeout:     10 * time.Second,
	})

	for round := 0; round < 50; round++ {
		key := fmt.Sprintf("q%d.txt", round)
		q, err := repo.AddQuestion(ctx, key, "", "why?")
		require.NoError(t, err)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := repo.EditQuestion(ctx, key, q.ID, "why not?")
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := repo.AnswerQuestion(ctx, key, q.ID, "because")
			assert.NoError(t, err)
		}()
		wg.Wait()

		list, err := repo.ListQuestions(ctx, key)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "why not?", list[0].Text, "round %d", round)
		require.NotNil(t, list[0].Answer, "round %d", round)
		assert.Equal(t, "because", *list[0].Answer)
		assert.NotNil(t, list[0].EditedAt)
		assert.NotNil(t, list[0].AnsweredAt)
	}
}

func TestRepository_RetriesConflicts(t *testing.T) {
	store := &conflictStore{Store: blobstore.NewMemoryStore()}
	store.n.Store(3)
	repo := newRepo(t, store, fastOptions())

	c, err := repo.AddComment(context.Background(), "f", "", "eventually")
	require.NoError(t, err)
	assert.Equal(t, int32(4), store.puts.Load())

	list, err := repo.ListComments(context.Background(), "f")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, c.ID, list[0].ID)
}

func TestRepository_RetriesExhausted(t *testing.T) {
	store := &conflictStore{Store: blobstore.NewMemoryStore()}
	store.n.Store(1000)
	repo := newRepo(t, store, Options{MaxAttempts: 3, Backoff: time.Millisecond, Timeout: time.Second})

	_, err := repo.AddComment(context.Background(), "f", "", "never")
	assert.ErrorIs(t, err, common.ErrConcurrentModification)
	assert.NotErrorIs(t, err, common.ErrVersionConflict)
	assert.Equal(t, int32(3), store.puts.Load())
}

func TestRepository_UnavailableIsNotRetried(t *testing.T) {
	store := &errorStore{
		Store: blobstore.NewMemoryStore(),
		err:   blobstore.Unavailable(errors.New("connection reset")),
	}
	repo := newRepo(t, store, fastOptions())

	_, err := repo.AddComment(context.Background(), "f", "", "x")
	assert.ErrorIs(t, err, common.ErrStoreUnavailable)
	assert.Equal(t, int32(1), store.calls.Load())
}

func TestRepository_CorruptDocument(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	_, err := store.Put(ctx, SidecarKey("f", KindComments), []byte(`{"comment":"legacy"}`), common.ContentTypeJSON)
	require.NoError(t, err)
	repo := newRepo(t, store, fastOptions())

	_, err = repo.AddComment(ctx, "f", "", "x")
	assert.ErrorIs(t, err, common.ErrorSchema)

	_, err = repo.ListComments(ctx, "f")
	assert.ErrorIs(t, err, common.ErrorSchema)
}

func TestRepository_Timeout(t *testing.T) {
	repo := newRepo(t, &blockingStore{Store: blobstore.NewMemoryStore()}, Options{Timeout: 20 * time.Millisecond})

	_, err := repo.AddComment(context.Background(), "f", "", "x")
	assert.ErrorIs(t, err, common.ErrTimeout)
}

func TestRepository_CallerCancel(t *testing.T) {
	repo := newRepo(t, &blockingStore{Store: blobstore.NewMemoryStore()}, Options{Timeout: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)

	_, err := repo.AddComment(ctx, "f", "", "x")
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, common.ErrTimeout)
}

func TestRepository_Purge(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	repo := newRepo(t, store, fastOptions())

	_, err := repo.AddComment(ctx, "f", "", "c")
	require.NoError(t, err)
	_, err = repo.AddComment(ctx, "other", "", "c")
	require.NoError(t, err)

	require.NoError(t, repo.Purge(ctx, "f"), "missing questions document is fine")

	_, err = store.Stat(ctx, SidecarKey("f", KindComments))
	assert.ErrorIs(t, err, common.ErrorNotFound)
	_, err = store.Stat(ctx, SidecarKey("other", KindComments))
	assert.NoError(t, err)
}

func TestOptions_Defaults(t *testing.T) {
	o := Options{}.withDefaults()
	assert.Equal(t, DefaultOptions(), o)

	o = Options{Backoff: time.Second}.withDefaults()
	assert.Equal(t, time.Second, o.MaxBackoff)
}
