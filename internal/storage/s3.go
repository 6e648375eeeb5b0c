package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"github.com/firstpro/mock-feedback-service/internal/config"
)

// s3MaxKeys is the largest page ListObjectsV2 returns.
const s3MaxKeys = 1000

// S3Storage implements ObjectStore on AWS S3 or an S3-compatible service
// such as Cloudflare R2 or MinIO
type S3Storage struct {
	client s3iface.S3API
	bucket string
}

// NewS3Storage creates a new S3 storage instance
func NewS3Storage(cfg config.StorageConfig) (*S3Storage, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 storage requires a bucket")
	}

	awsConfig := &aws.Config{
		Region: aws.String(cfg.Region),
	}

	// For R2, MinIO or localstack
	if cfg.Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.Endpoint)
	}
	if cfg.PathStyle {
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}
	if cfg.AccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return NewS3StorageWithClient(s3.New(sess), cfg.Bucket), nil
}

// NewS3StorageWithClient wraps an existing S3 client
func NewS3StorageWithClient(client s3iface.S3API, bucket string) *S3Storage {
	return &S3Storage{client: client, bucket: bucket}
}

// Get fetches an object and its ETag
func (s *S3Storage) Get(ctx context.Context, key string) (*Object, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get object %s: %w", key, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", key, err)
	}

	return &Object{
		Key:         key,
		Body:        body,
		ContentType: aws.StringValue(out.ContentType),
		Version:     aws.StringValue(out.ETag),
	}, nil
}

// Put stores an object unconditionally
func (s *S3Storage) Put(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := s.client.PutObjectWithContext(ctx, s.putInput(key, body, contentType))
	if err != nil {
		return fmt.Errorf("failed to put object %s: %w", key, err)
	}
	return nil
}

// PutIfMatch relies on S3 conditional writes: If-Match for an existing
// ETag, If-None-Match for create-only.
func (s *S3Storage) PutIfMatch(ctx context.Context, key string, body []byte, contentType, version string) (string, error) {
	condition := withHeader("If-None-Match", "*")
	if version != "" {
		condition = withHeader("If-Match", version)
	}

	out, err := s.client.PutObjectWithContext(ctx, s.putInput(key, body, contentType), condition)
	if err != nil {
		if isS3PreconditionFailed(err) {
			return "", ErrVersionMismatch
		}
		return "", fmt.Errorf("failed to put object %s: %w", key, err)
	}
	return aws.StringValue(out.ETag), nil
}

func (s *S3Storage) putInput(key string, body []byte, contentType string) *s3.PutObjectInput {
	return &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	}
}

// List pages through ListObjectsV2 until limit keys are collected
func (s *S3Storage) List(ctx context.Context, prefix string, limit int) ([]string, error) {
	if limit <= 0 {
		return []string{}, nil
	}

	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int64(int64(min(limit, s3MaxKeys))),
	}

	keys := make([]string, 0)
	err := s.client.ListObjectsV2PagesWithContext(ctx, input, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			keys = append(keys, aws.StringValue(obj.Key))
			if len(keys) == limit {
				return false
			}
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list objects under %s: %w", prefix, err)
	}

	return keys, nil
}

// Close closes the S3 connection
func (s *S3Storage) Close() error {
	// S3 client doesn't need explicit closing
	return nil
}

func withHeader(name, value string) request.Option {
	return func(r *request.Request) {
		r.HTTPRequest.Header.Set(name, value)
	}
}

// isS3NotFound matches a missing object only. A missing bucket also answers
// 404 but is a configuration error, not an absent key.
func isS3NotFound(err error) bool {
	var aerr awserr.Error
	if !errors.As(err, &aerr) {
		return false
	}
	return aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == "NotFound"
}

func isS3PreconditionFailed(err error) bool {
	var reqErr awserr.RequestFailure
	if !errors.As(err, &reqErr) {
		return false
	}
	// 409 is returned when a concurrent conditional write wins the race.
	return reqErr.StatusCode() == http.StatusPreconditionFailed || reqErr.StatusCode() == http.StatusConflict
}
