package annotations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/enginuity/internal/common"
	"github.com/dmitrijs2005/enginuity/internal/logging"
	"github.com/dmitrijs2005/enginuity/internal/server/blobstore"
)

// Options bound the optimistic-write loop of a Repository.
type Options struct {
	// MaxAttempts is the number of read-modify-write attempts per mutation.
	MaxAttempts int
	// Backoff is the first retry delay; it doubles per attempt with 50% jitter.
	Backoff time.Duration
	// MaxBackoff caps a single retry delay.
	MaxBackoff time.Duration
	// Timeout bounds one mutation including all of its retries.
	Timeout time.Duration
}

// DefaultOptions returns the production retry bounds.
func DefaultOptions() Options {
	return Options{
		MaxAttempts: 5,
		Backoff:     25 * time.Millisecond,
		MaxBackoff:  250 * time.Millisecond,
		Timeout:     2 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = d.MaxAttempts
	}
	if o.Backoff <= 0 {
		o.Backoff = d.Backoff
	}
	if o.MaxBackoff < o.Backoff {
		o.MaxBackoff = max(d.MaxBackoff, o.Backoff)
	}
	if o.Timeout <= 0 {
		o.Timeout = d.Timeout
	}
	return o
}

// Repository is the only writer of sidecar documents.
type Repository struct {
	store  blobstore.Store
	logger logging.Logger
	opts   Options
	now    func() time.Time
	newID  func() string
}

// NewRepository creates a Repository over store. Zero fields of opts take
// their DefaultOptions value.
func NewRepository(store blobstore.Store, logger logging.Logger, opts Options) *Repository {
	return &Repository{
		store:  store,
		logger: logger.With("module", "annotations"),
		opts:   opts.withDefaults(),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  func() string { return uuid.New().String() },
	}
}

// AddComment appends a comment by author to the comments of fileKey.
func (r *Repository) AddComment(ctx context.Context, fileKey, author, text string) (*Comment, error) {
	if err := requireText(text); err != nil {
		return nil, err
	}
	c := Comment{ID: r.newID(), Text: text, Author: author, CreatedAt: r.now()}

	err := mutate(ctx, r, fileKey, KindComments, func(items []Comment) ([]Comment, bool, error) {
		return append(items, c), true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("add comment: %w", err)
	}
	return &c, nil
}

// EditComment replaces the text of comment id.
func (r *Repository) EditComment(ctx context.Context, fileKey, id, text string) (*Comment, error) {
	if err := requireText(text); err != nil {
		return nil, err
	}

	var edited Comment
	err := mutate(ctx, r, fileKey, KindComments, func(items []Comment) ([]Comment, bool, error) {
		i := indexOf(items, id)
		if i < 0 {
			return nil, false, fmt.Errorf("comment %s: %w", id, common.ErrorNotFound)
		}
		at := r.now()
		items[i].Text = text
		items[i].EditedAt = &at
		edited = items[i]
		return items, true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("edit comment: %w", err)
	}
	return &edited, nil
}

// DeleteComment removes comment id. Removing an absent id succeeds
// without writing.
func (r *Repository) DeleteComment(ctx context.Context, fileKey, id string) error {
	err := mutate(ctx, r, fileKey, KindComments, removeByID[Comment](id))
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	return nil
}

// ListComments returns the comments of fileKey in insertion order.
func (r *Repository) ListComments(ctx context.Context, fileKey string) ([]Comment, error) {
	items, _, err := load[Comment](ctx, r.store, SidecarKey(fileKey, KindComments))
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	return items, nil
}

// AddQuestion appends an unanswered question by author.
func (r *Repository) AddQuestion(ctx context.Context, fileKey, author, text string) (*Question, error) {
	if err := requireText(text); err != nil {
		return nil, err
	}
	q := Question{ID: r.newID(), Text: text, Author: author, CreatedAt: r.now()}

	err := mutate(ctx, r, fileKey, KindQuestions, func(items []Question) ([]Question, bool, error) {
		return append(items, q), true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("add question: %w", err)
	}
	return &q, nil
}

// EditQuestion replaces the text of question id. The answer is kept.
func (r *Repository) EditQuestion(ctx context.Context, fileKey, id, text string) (*Question, error) {
	if err := requireText(text); err != nil {
		return nil, err
	}

	var edited Question
	err := mutate(ctx, r, fileKey, KindQuestions, func(items []Question) ([]Question, bool, error) {
		i := indexOf(items, id)
		if i < 0 {
			return nil, false, fmt.Errorf("question %s: %w", id, common.ErrorNotFound)
		}
		at := r.now()
		items[i].Text = text
		items[i].EditedAt = &at
		edited = items[i]
		return items, true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("edit question: %w", err)
	}
	return &edited, nil
}

// AnswerQuestion sets the answer of question id, replacing any earlier one.
func (r *Repository) AnswerQuestion(ctx context.Context, fileKey, id, answer string) (*Question, error) {
	if err := requireText(answer); err != nil {
		return nil, err
	}

	var answered Question
	err := mutate(ctx, r, fileKey, KindQuestions, func(items []Question) ([]Question, bool, error) {
		i := indexOf(items, id)
		if i < 0 {
			return nil, false, fmt.Errorf("question %s: %w", id, common.ErrorNotFound)
		}
		at := r.now()
		a := answer
		items[i].Answer = &a
		items[i].AnsweredAt = &at
		answered = items[i]
		return items, true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("answer question: %w", err)
	}
	return &answered, nil
}

// DeleteQuestion removes question id. Removing an absent id succeeds
// without writing.
func (r *Repository) DeleteQuestion(ctx context.Context, fileKey, id string) error {
	err := mutate(ctx, r, fileKey, KindQuestions, removeByID[Question](id))
	if err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	return nil
}

// ListQuestions returns the questions of fileKey in insertion order.
func (r *Repository) ListQuestions(ctx context.Context, fileKey string) ([]Question, error) {
	items, _, err := load[Question](ctx, r.store, SidecarKey(fileKey, KindQuestions))
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	return items, nil
}

// Purge deletes every sidecar document of fileKey. Missing documents are
// not an error.
func (r *Repository) Purge(ctx context.Context, fileKey string) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, kind := range Kinds {
		key := SidecarKey(fileKey, kind)
		g.Go(func() error {
			err := r.store.Delete(ctx, key)
			if err != nil && !errors.Is(err, common.ErrorNotFound) {
				return fmt.Errorf("purge %s: %w", key, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func requireText(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: text must not be empty", common.ErrorValidation)
	}
	return nil
}

func removeByID[T record](id string) func([]T) ([]T, bool, error) {
	return func(items []T) ([]T, bool, error) {
		i := indexOf(items, id)
		if i < 0 {
			return items, false, nil
		}
		return append(items[:i], items[i+1:]...), true, nil
	}
}

// load reads and decodes a sidecar document. A missing document is an empty
// list at NoVersion.
func load[T record](ctx context.Context, store blobstore.Store, key string) ([]T, blobstore.Version, error) {
	obj, err := store.Get(ctx, key)
	if errors.Is(err, common.ErrorNotFound) {
		return []T{}, blobstore.NoVersion, nil
	}
	if err != nil {
		return nil, blobstore.NoVersion, err
	}

	items, err := decode[T](obj.Data)
	if err != nil {
		return nil, blobstore.NoVersion, fmt.Errorf("%s: %w", key, err)
	}
	return items, obj.Info.Version, nil
}

// mutate runs read, apply, conditional write until the write lands, the
// attempts run out or the deadline passes. apply may be called several
// times and must only depend on its argument.
func mutate[T record](ctx context.Context, r *Repository, fileKey string, kind Kind, apply func([]T) ([]T, bool, error)) error {
	key := SidecarKey(fileKey, kind)

	loopCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	attempt := 0
	err := retry.Do(loopCtx, r.backoff(), func(ctx context.Context) error {
		attempt++

		items, version, err := load[T](ctx, r.store, key)
		if err != nil {
			return err
		}

		items, changed, err := apply(items)
		if err != nil || !changed {
			return err
		}

		data, err := Encode(items)
		if err != nil {
			return err
		}

		_, err = r.store.PutIfMatch(ctx, key, data, common.ContentTypeJSON, version)
		if errors.Is(err, common.ErrVersionConflict) {
			r.logger.Debug(ctx, "sidecar write conflict", "key", key, "attempt", attempt)
			return retry.RetryableError(err)
		}
		return err
	})

	switch {
	case err == nil:
		return nil
	case errors.Is(err, common.ErrVersionConflict):
		r.logger.Warn(ctx, "sidecar write gave up", "key", key, "attempts", attempt)
		return fmt.Errorf("%w: %s after %d attempts", common.ErrConcurrentModification, key, attempt)
	case ctx.Err() != nil:
		return ctx.Err()
	case loopCtx.Err() != nil && errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %s after %v", common.ErrTimeout, key, r.opts.Timeout)
	}
	return err
}

func (r *Repository) backoff() retry.Backoff {
	b := retry.NewExponential(r.opts.Backoff)
	b = retry.WithCappedDuration(r.opts.MaxBackoff, b)
	b = retry.WithJitterPercent(50, b)
	return retry.WithMaxRetries(uint64(r.opts.MaxAttempts-1), b)
}
