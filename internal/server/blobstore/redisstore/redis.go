// Package redisstore implements blobstore.Store on Redis. Each object is a
// hash; a sorted set of keys (all scored 0) gives ordered prefix listing.
// Conditional writes run as Lua scripts so the check and the write are atomic.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrijs2005/enginuity/internal/common"
	"github.com/dmitrijs2005/enginuity/internal/server/blobstore"
)

const (
	modeAny    = "any"
	modeAbsent = "absent"
	modeMatch  = "match"
)

var putScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'etag')
if ARGV[1] == 'absent' and cur then return false end
if ARGV[1] == 'match' and cur ~= ARGV[2] then return false end
local v = 'r' .. redis.call('INCR', KEYS[3])
redis.call('HSET', KEYS[1], 'data', ARGV[3], 'etag', v, 'size', string.len(ARGV[3]), 'mtime', ARGV[5], 'ctype', ARGV[4])
redis.call('ZADD', KEYS[2], 0, ARGV[6])
return v
`)

var deleteScript = redis.NewScript(`
if redis.call('DEL', KEYS[1]) == 0 then return 0 end
redis.call('ZREM', KEYS[2], ARGV[1])
return 1
`)

// Store keeps objects under a key namespace of one Redis database.
type Store struct {
	client    redis.UniversalClient
	namespace string
	now       func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithNamespace sets the prefix of every Redis key the store touches.
func WithNamespace(ns string) Option {
	return func(s *Store) { s.namespace = ns }
}

// WithClock overrides the clock used for LastModified.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a store. The default namespace is "blob:".
func NewStore(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{client: client, namespace: "blob:", now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) objectKey(key string) string { return s.namespace + "o:" + key }
func (s *Store) indexKey() string { return s.namespace + "keys" }
func (s *Store) seqKey() string { return s.namespace + "seq" }

func (s *Store) Get(ctx context.Context, key string) (*blobstore.Object, error) {
	vals, err := s.client.HMGet(ctx, s.objectKey(key), "data", "etag", "size", "mtime", "ctype").Result()
	if err != nil {
		return nil, blobstore.Unavailable(err)
	}
	if vals[1] == nil {
		return nil, common.ErrorNotFound
	}

	data, _ := vals[0].(string)
	info, err := toInfo(key, vals[1:])
	if err != nil {
		return nil, err
	}
	return &blobstore.Object{Data: []byte(data), Info: info}, nil
}

func (s *Store) Stat(ctx context.Context, key string) (*blobstore.ObjectInfo, error) {
	vals, err := s.client.HMGet(ctx, s.objectKey(key), "etag", "size", "mtime", "ctype").Result()
	if err != nil {
		return nil, blobstore.Unavailable(err)
	}
	if vals[0] == nil {
		return nil, common.ErrorNotFound
	}

	info, err := toInfo(key, vals)
	if err != nil {
		return nil, err
	}
	return &info, nil
}

func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) (blobstore.Version, error) {
	return s.put(ctx, key, data, contentType, modeAny, blobstore.NoVersion)
}

func (s *Store) PutIfMatch(ctx context.Context, key string, data []byte, contentType string, expected blobstore.Version) (blobstore.Version, error) {
	if expected == blobstore.NoVersion {
		return s.put(ctx, key, data, contentType, modeAbsent, expected)
	}
	return s.put(ctx, key, data, contentType, modeMatch, expected)
}

func (s *Store) put(ctx context.Context, key string, data []byte, contentType, mode string, expected blobstore.Version) (blobstore.Version, error) {
	mtime := strconv.FormatInt(s.now().UTC().UnixNano(), 10)
	v, err := putScript.Run(ctx, s.client,
		[]string{s.objectKey(key), s.indexKey(), s.seqKey()},
		mode, string(expected), data, contentType, mtime, key,
	).Text()
	switch {
	case errors.Is(err, redis.Nil):
		return blobstore.NoVersion, common.ErrVersionConflict
	case err != nil:
		return blobstore.NoVersion, blobstore.Unavailable(err)
	}
	return blobstore.Version(v), nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	n, err := deleteScript.Run(ctx, s.client, []string{s.objectKey(key), s.indexKey()}, key).Int()
	if err != nil {
		return blobstore.Unavailable(err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]blobstore.ObjectInfo, error) {
	by := &redis.ZRangeBy{Min: "-", Max: "+"}
	if prefix != "" {
		by = &redis.ZRangeBy{Min: "[" + prefix, Max: "[" + prefix + "\xff"}
	}

	keys, err := s.client.ZRangeByLex(ctx, s.indexKey(), by).Result()
	if err != nil {
		return nil, blobstore.Unavailable(err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.SliceCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.HMGet(ctx, s.objectKey(key), "etag", "size", "mtime", "ctype")
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, blobstore.Unavailable(err)
	}

	infos := make([]blobstore.ObjectInfo, 0, len(keys))
	for i, key := range keys {
		vals := cmds[i].Val()
		if len(vals) == 0 || vals[0] == nil {
			continue // deleted between the range and the pipeline
		}
		info, err := toInfo(key, vals)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// Ping checks the Redis connection.
func (s *Store) Ping(ctx context.Context) error {
	return blobstore.Unavailable(s.client.Ping(ctx).Err())
}

// toInfo decodes the etag, size, mtime, ctype fields of an object hash.
func toInfo(key string, vals []any) (blobstore.ObjectInfo, error) {
	field := func(i int) string {
		v, _ := vals[i].(string)
		return v
	}

	size, err := strconv.ParseInt(field(1), 10, 64)
	if err != nil {
		return blobstore.ObjectInfo{}, fmt.Errorf("%w: object %s: size: %v", common.ErrorInternal, key, err)
	}
	nanos, err := strconv.ParseInt(field(2), 10, 64)
	if err != nil {
		return blobstore.ObjectInfo{}, fmt.Errorf("%w: object %s: mtime: %v", common.ErrorInternal, key, err)
	}

	return blobstore.ObjectInfo{
		Key:          key,
		Size:         size,
		LastModified: time.Unix(0, nanos).UTC(),
		ContentType:  field(3),
		Version:      blobstore.Version(field(0)),
	}, nil
}
