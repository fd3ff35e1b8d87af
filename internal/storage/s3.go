package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// S3Client is the subset of *s3.Client used by S3Store.
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Config holds connection settings for S3 or an S3-compatible service.
type S3Config struct {
	Endpoint        string // empty for AWS S3
	Region          string
	AccessKeyID     string // empty to use the default credential chain
	SecretAccessKey string
	PublicURL       string // base for public object URLs; derived when empty
}

// S3Store implements ObjectStore on S3.
type S3Store struct {
	client  S3Client
	baseURL string
}

// NewS3 builds an S3Store. A custom endpoint switches to path-style addressing.
func NewS3(ctx context.Context, cfg S3Config) (*S3Store, error) {
	opts := []func(*config.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading storage config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	slog.Info("object storage configured", "endpoint", cfg.Endpoint, "region", awsCfg.Region)
	return NewS3WithClient(client, publicBase(cfg, awsCfg.Region)), nil
}

// NewS3WithClient builds an S3Store around an existing client. Object URLs
// are baseURL/bucket/path.
func NewS3WithClient(client S3Client, baseURL string) *S3Store {
	return &S3Store{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

// Upload stores body at bucket/path.
func (s *S3Store) Upload(ctx context.Context, bucket, path string, body []byte, contentType string) (Object, error) {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(path),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return Object{}, fmt.Errorf("%w: %s/%s: %s", ErrUpload, bucket, path, describe(err))
	}

	return Object{Bucket: bucket, Path: path, URL: s.PublicURL(bucket, path)}, nil
}

// Delete removes bucket/path. Missing objects are not an error.
func (s *S3Store) Delete(ctx context.Context, bucket, path string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return fmt.Errorf("deleting %s/%s: %s", bucket, path, describe(err))
	}
	return nil
}

// PublicURL returns the address a browser can fetch bucket/path from.
func (s *S3Store) PublicURL(bucket, path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return s.baseURL + "/" + url.PathEscape(bucket) + "/" + strings.Join(segments, "/")
}

func publicBase(cfg S3Config, region string) string {
	switch {
	case cfg.PublicURL != "":
		return cfg.PublicURL
	case cfg.Endpoint != "":
		return cfg.Endpoint
	default:
		return fmt.Sprintf("https://s3.%s.amazonaws.com", region)
	}
}

// describe keeps the service error code when there is one.
func describe(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() + ": " + apiErr.ErrorMessage()
	}
	return err.Error()
}
