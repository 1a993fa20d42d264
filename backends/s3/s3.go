// Package s3 implements a backend that keeps secrets as objects in an
// S3-compatible bucket (AWS S3, MinIO, Ceph RGW).
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/gannonmg/lockbox/pkg/backend"
)

// deleteBatchSize is the S3 limit for a single DeleteObjects request.
const deleteBatchSize = 1000

// Backend implements backend.Backend on top of an S3 bucket. Records live
// under prefix/namespace/class/key.
type Backend struct {
	client *awss3.Client
	bucket string
	prefix string
}

// Config holds configuration for the S3 backend.
type Config struct {
	Bucket      string `yaml:"bucket"`
	Region      string `yaml:"region"`
	AccessKeyID string `yaml:"access_key_id"` // optional, uses default credentials if empty
	SecretKey   string `yaml:"secret_key"`    // optional
	Endpoint    string `yaml:"endpoint"`      // custom endpoint (for MinIO, etc.)
	Prefix      string `yaml:"prefix"`        // prefix for object keys
}

// New creates a new S3 backend.
func New(cfg Config) (*Backend, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3: bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{}

	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	if cfg.AccessKeyID != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("s3: failed to load AWS config: %w", err)
	}

	s3Opts := []func(*awss3.Options){}
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *awss3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return &Backend{
		client: awss3.NewFromConfig(awsCfg, s3Opts...),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

// NewFromConfig creates an S3 backend from registry configuration. The
// Address field carries the custom endpoint, Path the bucket name.
func NewFromConfig(cfg backend.Config) (backend.Backend, error) {
	scfg := Config{
		Bucket:      cfg.Path,
		Endpoint:    cfg.Address,
		Prefix:      cfg.Prefix,
		Region:      cfg.Settings["region"],
		AccessKeyID: cfg.Settings["access_key_id"],
		SecretKey:   cfg.Settings["secret_key"],
	}
	if scfg.Bucket == "" {
		scfg.Bucket = cfg.Settings["bucket"]
	}
	return New(scfg)
}

// objectKey builds the object key for a record.
func (b *Backend) objectKey(namespace string, class backend.Class, key string) string {
	return path.Join(b.prefix, namespace, string(class), key)
}

// classPrefix builds the object key prefix covering one class.
func (b *Backend) classPrefix(namespace string, class backend.Class) string {
	return path.Join(b.prefix, namespace, string(class)) + "/"
}

// Put stores value under namespace and key. An S3 PUT replaces the object,
// so no record for the key survives the write.
func (b *Backend) Put(ctx context.Context, namespace, key string, value []byte) error {
	_, err := b.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(b.objectKey(namespace, backend.ClassGenericPassword, key)),
		Body:        bytes.NewReader(value),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return fmt.Errorf("s3 put: %w", errors.Join(backend.ErrUnavailable, err))
	}
	return nil
}

// Get returns the stored bytes for key.
func (b *Backend) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	out, err := b.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(namespace, backend.ClassGenericPassword, key)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("s3 get %q: %w", key, backend.ErrNotFound)
		}
		return nil, fmt.Errorf("s3 get: %w", errors.Join(backend.ErrUnavailable, err))
	}
	defer out.Body.Close()

	value, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 get: read body: %w", errors.Join(backend.ErrUnavailable, err))
	}
	return value, nil
}

// Delete removes the object for key. S3 deletes are idempotent, so the
// object is probed first to report absent keys.
func (b *Backend) Delete(ctx context.Context, namespace, key string) error {
	k := b.objectKey(namespace, backend.ClassGenericPassword, key)

	_, err := b.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(k),
	})
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("s3 delete %q: %w", key, backend.ErrNotFound)
		}
		return fmt.Errorf("s3 delete: %w", errors.Join(backend.ErrUnavailable, err))
	}

	_, err = b.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(k),
	})
	if err != nil {
		return fmt.Errorf("s3 delete: %w", errors.Join(backend.ErrUnavailable, err))
	}
	return nil
}

// Clear removes every object in namespace belonging to the given classes.
// Classes are swept independently.
func (b *Backend) Clear(ctx context.Context, namespace string, classes []backend.Class) error {
	var errs []error
	for _, class := range classes {
		if err := b.clearClass(ctx, namespace, class); err != nil {
			errs = append(errs, fmt.Errorf("s3 clear %s: %w", class, err))
		}
	}
	return errors.Join(errs...)
}

func (b *Backend) clearClass(ctx context.Context, namespace string, class backend.Class) error {
	prefix := b.classPrefix(namespace, class)

	var token *string
	for {
		out, err := b.client.ListObjectsV2(ctx, &awss3.ListObjectsV2Input{
			Bucket:            aws.String(b.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return errors.Join(backend.ErrUnavailable, err)
		}

		if len(out.Contents) > 0 {
			if err := b.deleteObjects(ctx, out.Contents); err != nil {
				return err
			}
		}

		if out.IsTruncated == nil || !*out.IsTruncated {
			return nil
		}
		token = out.NextContinuationToken
	}
}

func (b *Backend) deleteObjects(ctx context.Context, objects []types.Object) error {
	for start := 0; start < len(objects); start += deleteBatchSize {
		end := start + deleteBatchSize
		if end > len(objects) {
			end = len(objects)
		}

		ids := make([]types.ObjectIdentifier, 0, end-start)
		for _, obj := range objects[start:end] {
			ids = append(ids, types.ObjectIdentifier{Key: obj.Key})
		}

		_, err := b.client.DeleteObjects(ctx, &awss3.DeleteObjectsInput{
			Bucket: aws.String(b.bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return errors.Join(backend.ErrUnavailable, err)
		}
	}
	return nil
}

// isNotFound reports whether err is an S3 missing-object error.
func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	return errors.As(err, &notFound)
}
