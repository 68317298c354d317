// Package s3 implements blobstore.Store on Amazon S3 and S3-compatible
// servers, using native conditional writes (If-Match / If-None-Match) for
// compare-and-swap.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/dmitrijs2005/enginuity/internal/common"
	"github.com/dmitrijs2005/enginuity/internal/server/blobstore"
)

// Client is the subset of *s3.Client the store uses.
type Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// ClientOptions describe how to reach the bucket.
type ClientOptions struct {
	Region       string
	AccessKey    string
	SecretKey    string
	Endpoint     string // empty means the AWS default
	UsePathStyle bool
}

// NewClient builds an S3 client with static credentials.
func NewClient(ctx context.Context, opts ClientOptions) (*s3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(opts.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			opts.AccessKey,
			opts.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	}), nil
}

// Store is a blobstore.Store over one bucket.
type Store struct {
	client Client
	bucket string
}

// NewStore creates a store for bucket.
func NewStore(client Client, bucket string) *Store {
	return &Store{client: client, bucket: bucket}
}

func (s *Store) Get(ctx context.Context, key string) (*blobstore.Object, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, mapError(err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, blobstore.Unavailable(fmt.Errorf("read %s: %w", key, err))
	}

	return &blobstore.Object{
		Data: data,
		Info: blobstore.ObjectInfo{
			Key:          key,
			Size:         int64(len(data)),
			LastModified: aws.ToTime(out.LastModified).UTC(),
			ContentType:  aws.ToString(out.ContentType),
			Version:      blobstore.Version(aws.ToString(out.ETag)),
		},
	}, nil
}

func (s *Store) Stat(ctx context.Context, key string) (*blobstore.ObjectInfo, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, mapError(err)
	}

	return &blobstore.ObjectInfo{
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		LastModified: aws.ToTime(out.LastModified).UTC(),
		ContentType:  aws.ToString(out.ContentType),
		Version:      blobstore.Version(aws.ToString(out.ETag)),
	}, nil
}

func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) (blobstore.Version, error) {
	return s.put(ctx, s.putInput(key, data, contentType))
}

func (s *Store) PutIfMatch(ctx context.Context, key string, data []byte, contentType string, expected blobstore.Version) (blobstore.Version, error) {
	in := s.putInput(key, data, contentType)
	if expected == blobstore.NoVersion {
		in.IfNoneMatch = aws.String("*")
	} else {
		in.IfMatch = aws.String(string(expected))
	}

	v, err := s.put(ctx, in)
	// If-Match against a missing key answers 404 rather than 412.
	if errors.Is(err, common.ErrorNotFound) {
		return blobstore.NoVersion, common.ErrVersionConflict
	}
	return v, err
}

func (s *Store) putInput(key string, data []byte, contentType string) *s3.PutObjectInput {
	in := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	return in
}

func (s *Store) put(ctx context.Context, in *s3.PutObjectInput) (blobstore.Version, error) {
	out, err := s.client.PutObject(ctx, in)
	if err != nil {
		return blobstore.NoVersion, mapError(err)
	}
	return blobstore.Version(aws.ToString(out.ETag)), nil
}

// Delete removes key. S3 deletes are idempotent, so existence is checked first.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.Stat(ctx, key); err != nil {
		return err
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return mapError(err)
}

func (s *Store) List(ctx context.Context, prefix string) ([]blobstore.ObjectInfo, error) {
	in := &s3.ListObjectsV2Input{Bucket: aws.String(s.bucket)}
	if prefix != "" {
		in.Prefix = aws.String(prefix)
	}

	var infos []blobstore.ObjectInfo
	paginator := s3.NewListObjectsV2Paginator(s.client, in)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, mapError(err)
		}
		for _, obj := range page.Contents {
			infos = append(infos, blobstore.ObjectInfo{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified).UTC(),
				Version:      blobstore.Version(aws.ToString(obj.ETag)),
			})
		}
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

// Ping checks that the bucket is reachable.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	return mapError(err)
}

func mapError(err error) error {
	if err == nil {
		return nil
	}

	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return common.ErrorNotFound
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return common.ErrorNotFound
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "PreconditionFailed", "ConditionalRequestConflict":
			return common.ErrVersionConflict
		case "NoSuchKey", "NotFound":
			return common.ErrorNotFound
		}
	}

	return blobstore.Unavailable(err)
}
