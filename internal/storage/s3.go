package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"storyreel/internal/config"
	"storyreel/internal/services"
)

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Store stores objects in an S3 bucket.
type S3Store struct {
	client S3API
	bucket string
}

// NewS3Store loads AWS configuration (region, credentials chain, optional
// static keys and custom endpoint) and returns a store for cfg.Bucket.
func NewS3Store(ctx context.Context, cfg config.Storage) (*S3Store, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "storage", "load aws config", "", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return NewS3StoreWithClient(client, cfg.Bucket), nil
}

// NewS3StoreWithClient wraps an existing client.
func NewS3StoreWithClient(client S3API, bucket string) *S3Store {
	return &S3Store{client: client, bucket: strings.TrimSpace(bucket)}
}

// Bucket returns the bucket name.
func (s *S3Store) Bucket() string {
	return s.bucket
}

// ForBucket returns a store for another bucket sharing the same client.
func (s *S3Store) ForBucket(bucket string) Store {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" || bucket == s.bucket {
		return s
	}
	return &S3Store{client: s.client, bucket: bucket}
}

// Put uploads body under key.
func (s *S3Store) Put(ctx context.Context, key string, body []byte, contentType string) error {
	if err := s.check(key); err != nil {
		return err
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return s.classify("put", key, err)
	}
	return nil
}

// PutFile uploads the file at path under key.
func (s *S3Store) PutFile(ctx context.Context, key, path, contentType string) error {
	if err := s.check(key); err != nil {
		return err
	}
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          file,
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(info.Size()),
	})
	if err != nil {
		return s.classify("put", key, err)
	}
	return nil
}

// Get downloads the object at key.
func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := s.check(key); err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, s.classify("get", key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "storage", "get", key, err)
	}
	return data, nil
}

// Exists reports whether key is present.
func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	if err := s.check(key); err != nil {
		return false, err
	}
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	classified := s.classify("head", key, err)
	if errors.Is(classified, services.ErrNotFound) {
		return false, nil
	}
	return false, classified
}

// Ping verifies the bucket is reachable with the current credentials.
func (s *S3Store) Ping(ctx context.Context) error {
	if s.bucket == "" {
		return services.Wrap(services.ErrConfiguration, "storage", "ping", "bucket required", nil)
	}
	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		return s.classify("head bucket", s.bucket, err)
	}
	return nil
}

func (s *S3Store) check(key string) error {
	if s.bucket == "" {
		return services.Wrap(services.ErrConfiguration, "storage", "s3", "bucket required", nil)
	}
	if strings.TrimSpace(key) == "" {
		return services.Wrap(services.ErrValidation, "storage", "s3", "key required", nil)
	}
	return nil
}

func (s *S3Store) classify(op, key string, err error) error {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	var noBucket *types.NoSuchBucket
	if errors.As(err, &noKey) || errors.As(err, &notFound) || errors.As(err, &noBucket) {
		return services.Wrap(services.ErrNotFound, "storage", op, fmt.Sprintf("s3://%s/%s", s.bucket, key), err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return services.Wrap(services.ErrNotFound, "storage", op, fmt.Sprintf("s3://%s/%s", s.bucket, key), err)
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return services.Wrap(services.ErrConfiguration, "storage", op, fmt.Sprintf("s3://%s/%s", s.bucket, key), err)
		}
	}
	return services.Wrap(services.ErrTransient, "storage", op, fmt.Sprintf("s3://%s/%s", s.bucket, key), err)
}
