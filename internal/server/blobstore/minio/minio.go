// Package minio implements blobstore.Store with the MinIO client. Conditional
// writes use MinIO's If-Match / If-None-Match support on PutObject.
package minio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dmitrijs2005/enginuity/internal/common"
	"github.com/dmitrijs2005/enginuity/internal/server/blobstore"
)

// ClientOptions describe how to reach the MinIO server.
type ClientOptions struct {
	Endpoint  string // URL ("http://127.0.0.1:9000") or bare host:port
	AccessKey string
	SecretKey string
	Region    string
}

// NewClient creates a MinIO client. A URL endpoint selects TLS by scheme.
func NewClient(opts ClientOptions) (*minio.Client, error) {
	host, secure := opts.Endpoint, false
	if u, err := url.Parse(opts.Endpoint); err == nil && u.Host != "" {
		host, secure = u.Host, u.Scheme == "https"
	}

	client, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: secure,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return client, nil
}

// Store is a blobstore.Store over one MinIO bucket.
type Store struct {
	client *minio.Client
	bucket string
}

// NewStore creates a store for bucket.
func NewStore(client *minio.Client, bucket string) *Store {
	return &Store{client: client, bucket: bucket}
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s *Store) EnsureBucket(ctx context.Context, region string) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return mapError(err)
	}
	if exists {
		return nil
	}
	return mapError(s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: region}))
}

func (s *Store) Get(ctx context.Context, key string) (*blobstore.Object, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, mapError(err)
	}
	defer func() { _ = obj.Close() }()

	// GetObject is lazy; the request happens on Stat or the first Read.
	st, err := obj.Stat()
	if err != nil {
		return nil, mapError(err)
	}
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, mapError(err)
	}

	return &blobstore.Object{Data: data, Info: toInfo(st)}, nil
}

func (s *Store) Stat(ctx context.Context, key string) (*blobstore.ObjectInfo, error) {
	st, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, mapError(err)
	}
	info := toInfo(st)
	return &info, nil
}

func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) (blobstore.Version, error) {
	return s.put(ctx, key, data, minio.PutObjectOptions{ContentType: contentType})
}

func (s *Store) PutIfMatch(ctx context.Context, key string, data []byte, contentType string, expected blobstore.Version) (blobstore.Version, error) {
	opts := minio.PutObjectOptions{ContentType: contentType}
	if expected == blobstore.NoVersion {
		opts.SetMatchETagExcept("*")
	} else {
		opts.SetMatchETag(string(expected))
	}

	v, err := s.put(ctx, key, data, opts)
	if errors.Is(err, common.ErrorNotFound) {
		return blobstore.NoVersion, common.ErrVersionConflict
	}
	return v, err
}

func (s *Store) put(ctx context.Context, key string, data []byte, opts minio.PutObjectOptions) (blobstore.Version, error) {
	info, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), opts)
	if err != nil {
		return blobstore.NoVersion, mapError(err)
	}
	return blobstore.Version(info.ETag), nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.Stat(ctx, key); err != nil {
		return err
	}
	return mapError(s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}))
}

func (s *Store) List(ctx context.Context, prefix string) ([]blobstore.ObjectInfo, error) {
	var infos []blobstore.ObjectInfo
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, mapError(obj.Err)
		}
		infos = append(infos, toInfo(obj))
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

// Ping checks that the bucket exists.
func (s *Store) Ping(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return mapError(err)
	}
	if !ok {
		return blobstore.Unavailable(fmt.Errorf("bucket %q does not exist", s.bucket))
	}
	return nil
}

func toInfo(o minio.ObjectInfo) blobstore.ObjectInfo {
	return blobstore.ObjectInfo{
		Key:          o.Key,
		Size:         o.Size,
		LastModified: o.LastModified.UTC(),
		ContentType:  o.ContentType,
		Version:      blobstore.Version(o.ETag),
	}
}

func mapError(err error) error {
	if err == nil {
		return nil
	}

	resp := minio.ToErrorResponse(err)
	switch {
	case resp.Code == "NoSuchKey" || resp.Code == "NotFound":
		return common.ErrorNotFound
	case resp.Code == "PreconditionFailed" || resp.StatusCode == http.StatusPreconditionFailed:
		return common.ErrVersionConflict
	}

	return blobstore.Unavailable(err)
}
