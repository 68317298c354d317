package blobstore

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/enginuity/internal/common"
)

// MemoryStore is an in-process Store used by tests and the "memory" backend.
// Every write mints a new version token from a per-store counter.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
	seq     uint64
	now     func() time.Time
}

type memoryObject struct {
	data []byte
	info ObjectInfo
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock overrides the clock used for LastModified.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryStore) { m.now = now }
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		objects: make(map[string]memoryObject),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MemoryStore) Get(ctx context.Context, key string) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[key]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &Object{Data: clone(obj.data), Info: obj.info}, nil
}

func (m *MemoryStore) Stat(ctx context.Context, key string) (*ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[key]
	if !ok {
		return nil, common.ErrorNotFound
	}
	info := obj.info
	return &info, nil
}

func (m *MemoryStore) Put(ctx context.Context, key string, data []byte, contentType string) (Version, error) {
	if err := ctx.Err(); err != nil {
		return NoVersion, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.storeLocked(key, data, contentType), nil
}

func (m *MemoryStore) PutIfMatch(ctx context.Context, key string, data []byte, contentType string, expected Version) (Version, error) {
	if err := ctx.Err(); err != nil {
		return NoVersion, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	current, exists := m.objects[key]
	switch {
	case expected == NoVersion && exists:
		return NoVersion, common.ErrVersionConflict
	case expected != NoVersion && (!exists || current.info.Version != expected):
		return NoVersion, common.ErrVersionConflict
	}
	return m.storeLocked(key, data, contentType), nil
}

func (m *MemoryStore) storeLocked(key string, data []byte, contentType string) Version {
	m.seq++
	v := Version("m" + strconv.FormatUint(m.seq, 10))
	m.objects[key] = memoryObject{
		data: clone(data),
		info: ObjectInfo{
			Key:          key,
			Size:         int64(len(data)),
			LastModified: m.now().UTC(),
			ContentType:  contentType,
			Version:      v,
		},
	}
	return v
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.objects[key]; !ok {
		return common.ErrorNotFound
	}
	delete(m.objects, key)
	return nil
}

func (m *MemoryStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ObjectInfo
	for key, obj := range m.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, obj.info)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
