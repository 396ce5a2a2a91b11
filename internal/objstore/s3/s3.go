// Package s3 implements objstore.Store on Amazon S3 and S3-compatible stores
// (MinIO, LocalStack). It registers the "s3" scheme.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"ecommetl/internal/config"
	"ecommetl/internal/objstore"
)

// deleteBatch is the DeleteObjects per-request key limit.
const deleteBatch = 1000

func init() {
	objstore.Register("s3", func(ctx context.Context, loc objstore.Location, cfg config.ObjStore) (objstore.Store, error) {
		api, err := NewClient(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		return New(api, loc.Bucket, loc.Path), nil
	})
}

// API is the subset of *s3.Client the store uses.
type API interface {
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// NewClient builds an S3 client from cfg. With an Endpoint set it targets a
// local S3-compatible service using path-style addressing and, unless keys
// are given, dummy static credentials.
func NewClient(ctx context.Context, cfg config.S3) (*s3.Client, error) {
	var configOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		configOpts = append(configOpts, awsconfig.WithRegion(cfg.Region))
	}

	var clientOpts []func(*s3.Options)
	switch {
	case cfg.AccessKeyID != "":
		configOpts = append(configOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	case cfg.Endpoint != "":
		configOpts = append(configOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("dummy", "dummy", "")))
	}
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3: load AWS config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, clientOpts...), nil
}

// Store is an objstore.Store over one bucket and base prefix.
type Store struct {
	api    API
	bucket string
	base   string // "" or ends with "/"
}

// New returns a Store for bucket rooted at prefix.
func New(api API, bucket, prefix string) *Store {
	prefix = strings.TrimPrefix(prefix, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Store{api: api, bucket: bucket, base: prefix}
}

func (s *Store) fullKey(key string) string { return s.base + strings.TrimPrefix(key, "/") }

// URL returns "s3://bucket/base/key".
func (s *Store) URL(key string) string {
	return "s3://" + s.bucket + "/" + s.fullKey(key)
}

// List pages through ListObjectsV2 and returns keys relative to the base
// prefix. Zero-byte "directory marker" keys ending in "/" are skipped.
func (s *Store) List(ctx context.Context, prefix string) ([]objstore.Object, error) {
	p := s3.NewListObjectsV2Paginator(s.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.fullKey(prefix)),
	})
	var out []objstore.Object
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3: list s3://%s/%s: %w", s.bucket, s.fullKey(prefix), err)
		}
		for _, o := range page.Contents {
			k := aws.ToString(o.Key)
			if strings.HasSuffix(k, "/") {
				continue
			}
			out = append(out, objstore.Object{
				Key:     strings.TrimPrefix(k, s.base),
				Size:    aws.ToInt64(o.Size),
				ModTime: aws.ToTime(o.LastModified),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Open streams key. A missing key returns an error matching
// objstore.ErrNotFound.
func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	res, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(key)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("s3: open %s: %w", s.URL(key), objstore.ErrNotFound)
		}
		return nil, fmt.Errorf("s3: open %s: %w", s.URL(key), err)
	}
	return res.Body, nil
}

// Put uploads r as key. S3 PUTs are atomic per object. Non-seekable readers
// are buffered so the SDK can sign the payload.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	body, ok := r.(io.ReadSeeker)
	if !ok {
		b, err := io.ReadAll(r)
		if err != nil {
			return fmt.Errorf("s3: put %s: read body: %w", s.URL(key), err)
		}
		body, size = bytes.NewReader(b), int64(len(b))
	}
	in := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(key)),
		Body:   body,
	}
	if size >= 0 {
		in.ContentLength = aws.Int64(size)
	}
	if _, err := s.api.PutObject(ctx, in); err != nil {
		return fmt.Errorf("s3: put %s: %w", s.URL(key), err)
	}
	return nil
}

// DeletePrefix lists prefix and removes the keys in batches of 1000.
func (s *Store) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	objs, err := s.List(ctx, prefix)
	if err != nil {
		return 0, err
	}
	n := 0
	for start := 0; start < len(objs); start += deleteBatch {
		end := min(start+deleteBatch, len(objs))
		ids := make([]types.ObjectIdentifier, 0, end-start)
		for _, o := range objs[start:end] {
			ids = append(ids, types.ObjectIdentifier{Key: aws.String(s.fullKey(o.Key))})
		}
		res, err := s.api.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return n, fmt.Errorf("s3: delete under %s: %w", s.URL(prefix), err)
		}
		if len(res.Errors) > 0 {
			e := res.Errors[0]
			return n + len(ids) - len(res.Errors), fmt.Errorf("s3: delete %s: %s: %s (%d failed)",
				aws.ToString(e.Key), aws.ToString(e.Code), aws.ToString(e.Message), len(res.Errors))
		}
		n += len(ids)
	}
	return n, nil
}
