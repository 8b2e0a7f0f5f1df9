// Package s3 stores snapshots as objects in an S3 bucket.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gezibash/arc-registrar/internal/snapshot"
	"github.com/gezibash/arc-registrar/internal/storage"
)

// TargetName is the registered target name.
const TargetName = "s3"

func init() {
	snapshot.Register(TargetName, factory, defaults)
}

func defaults() map[string]string {
	return map[string]string{
		"region":           "us-east-1",
		"prefix":           "snapshots/",
		"force_path_style": "false",
	}
}

// API is the subset of the S3 client the target uses.
type API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

func factory(ctx context.Context, config map[string]string) (snapshot.Target, error) {
	p := storage.Read(TargetName, config)
	bucket := p.Required("bucket")
	region := p.String("region", "us-east-1")
	endpoint := p.String("endpoint", "")
	accessKey := p.String("access_key_id", "")
	secretKey := p.String("secret_access_key", "")
	prefix := p.String("prefix", "")
	forcePathStyle := p.Bool("force_path_style", false)
	if err := p.Err(); err != nil {
		return nil, err
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3: load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = forcePathStyle
	})

	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err != nil {
		return nil, fmt.Errorf("s3: bucket %q not accessible: %w", bucket, err)
	}
	return New(client, bucket, prefix), nil
}

// Target stores snapshots under prefix in bucket.
type Target struct {
	client API
	bucket string
	prefix string
	closed atomic.Bool
}

// New wraps an S3 client.
func New(client API, bucket, prefix string) *Target {
	return &Target{client: client, bucket: bucket, prefix: prefix}
}

func (t *Target) key(name string) string { return t.prefix + name }

func (t *Target) check(name string) error {
	if t.closed.Load() {
		return snapshot.ErrClosed
	}
	return snapshot.ValidName(name)
}

// Put buffers r and uploads it; PutObject needs the content length.
func (t *Target) Put(ctx context.Context, name string, r io.Reader) (int64, error) {
	if err := t.check(name); err != nil {
		return 0, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, fmt.Errorf("s3: read stream: %w", err)
	}
	_, err = t.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(t.bucket),
		Key:           aws.String(t.key(name)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/octet-stream"),
	})
	if err != nil {
		return 0, fmt.Errorf("s3: put object: %w", err)
	}
	return int64(len(data)), nil
}

// Get streams the named object.
func (t *Target) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := t.check(name); err != nil {
		return nil, err
	}
	out, err := t.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(t.key(name)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", snapshot.ErrNotFound, name)
		}
		return nil, fmt.Errorf("s3: get object: %w", err)
	}
	return out.Body, nil
}

// List pages through every object under the prefix.
func (t *Target) List(ctx context.Context) ([]snapshot.Object, error) {
	if t.closed.Load() {
		return nil, snapshot.ErrClosed
	}
	var (
		out   []snapshot.Object
		token *string
	)
	for {
		page, err := t.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(t.bucket),
			Prefix:            aws.String(t.prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("s3: list objects: %w", err)
		}
		for _, obj := range page.Contents {
			o := snapshot.Object{Name: strings.TrimPrefix(aws.ToString(obj.Key), t.prefix)}
			if obj.Size != nil {
				o.Size = *obj.Size
			}
			if obj.LastModified != nil {
				o.Modified = *obj.LastModified
			}
			out = append(out, o)
		}
		if !aws.ToBool(page.IsTruncated) {
			return out, nil
		}
		token = page.NextContinuationToken
	}
}

// Close marks the target closed.
func (t *Target) Close() error {
	t.closed.Store(true)
	return nil
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var respErr interface{ HTTPStatusCode() int }
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound
}
