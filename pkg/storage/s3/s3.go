// Package s3 provides the AWS S3 object-store implementation.
package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	rferrors "github.com/reportflow/reportflow/pkg/errors"
)

// Config holds S3 client configuration.
type Config struct {
	// Region is the AWS region (e.g., "us-east-1")
	Region string

	// Endpoint overrides the default S3 endpoint (for S3-compatible services)
	Endpoint string

	// UsePathStyle forces path-style addressing (for MinIO, LocalStack)
	UsePathStyle bool

	// Credentials (optional - uses default chain if not provided)
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	// OperationTimeout bounds each store round trip
	OperationTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(region string) Config {
	return Config{
		Region:           region,
		OperationTimeout: 30 * time.Second,
	}
}

// Store implements storage.ObjectStore on S3.
type Store struct {
	cfg    Config
	client *s3.Client
}

// NewStore creates a new S3-backed object store. A zero operation timeout
// takes the default.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.OperationTimeout == 0 {
		cfg.OperationTimeout = DefaultConfig(cfg.Region).OperationTimeout
	}

	var opts []func(*awsconfig.LoadOptions) error

	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				cfg.SessionToken,
			),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, rferrors.Wrap(err, rferrors.CodeStoreUnavailable, "failed to load AWS config")
	}

	s3Opts := []func(*s3.Options){}
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return &Store{
		cfg:    cfg,
		client: s3.NewFromConfig(awsCfg, s3Opts...),
	}, nil
}

// classify maps an S3 error to the pipeline's error taxonomy.
func classify(err error, op, container, key string) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NoSuchBucket", "NotFound":
			return rferrors.Wrap(err, rferrors.CodeNotFound, "object not found").
				WithContext("container", container).WithContext("key", key)
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return rferrors.Wrap(err, rferrors.CodePermission, "object access denied").
				WithContext("container", container).WithContext("key", key)
		}
	}
	return rferrors.Wrapf(err, rferrors.CodeStoreUnavailable, "s3 %s failed", op).
		WithContext("container", container).WithContext("key", key)
}

// Read returns the full content of an object.
func (s *Store) Read(ctx context.Context, container, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.OperationTimeout)
	defer cancel()

	output, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(container),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classify(err, "get", container, key)
	}
	defer output.Body.Close()

	data, err := io.ReadAll(output.Body)
	if err != nil {
		return nil, classify(err, "read", container, key)
	}
	return data, nil
}

// Write stores an object. S3 PUTs are last-writer-wins, so rewriting the
// same report key is safe.
func (s *Store) Write(ctx context.Context, container, key string, data []byte, contentType string) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.OperationTimeout)
	defer cancel()

	input := &s3.PutObjectInput{
		Bucket: aws.String(container),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return classify(err, "put", container, key)
	}
	return nil
}

// Exists reports whether an object is present.
func (s *Store) Exists(ctx context.Context, container, key string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.OperationTimeout)
	defer cancel()

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(container),
		Key:    aws.String(key),
	})
	if err != nil {
		classified := classify(err, "head", container, key)
		if rferrors.IsCode(classified, rferrors.CodeNotFound) {
			return false, nil
		}
		return false, classified
	}
	return true, nil
}

// List returns all keys under prefix, following pagination.
func (s *Store) List(ctx context.Context, container, prefix string) ([]string, error) {
	var keys []string
	var continuationToken *string

	for {
		output, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(container),
			Prefix:            aws.String(prefix),
			ContinuationToken: continuationToken,
		})
		if err != nil {
			return nil, classify(err, "list", container, prefix)
		}

		for _, obj := range output.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}

		if !aws.ToBool(output.IsTruncated) {
			break
		}
		continuationToken = output.NextContinuationToken
	}

	return keys, nil
}

// Name returns "s3".
func (s *Store) Name() string {
	return "s3"
}
